package main

import (
	"fmt"
	"strings"

	"github.com/guptarohit/asciigraph"

	"runstream/internal/analysis"
	"runstream/internal/config"
)

const (
	metersPerMile = 1609.34
	metersPerKm   = 1000.0
)

// Units converts and formats values per the athlete's display preferences.
type Units struct {
	cfg config.DisplayConfig
}

func NewUnits(cfg config.DisplayConfig) Units {
	return Units{cfg: cfg}
}

// FormatDistance formats meters in the preferred distance unit.
func (u Units) FormatDistance(meters float64) string {
	if u.cfg.DistanceUnit == "mi" {
		return fmt.Sprintf("%.1f mi", meters/metersPerMile)
	}
	return fmt.Sprintf("%.1f km", meters/metersPerKm)
}

// FormatPace renders a seconds-per-km pace in the preferred pace unit.
func (u Units) FormatPace(secPerKm float64) string {
	if secPerKm <= 0 {
		return "-"
	}
	v := secPerKm
	if u.cfg.PaceUnit == "min/mi" {
		v = secPerKm * metersPerMile / metersPerKm
	}
	mins := int(v) / 60
	secs := int(v) % 60
	return fmt.Sprintf("%d:%02d", mins, secs)
}

// PaceLabel returns "min/km" or "min/mi".
func (u Units) PaceLabel() string {
	if u.cfg.PaceUnit == "min/mi" {
		return "min/mi"
	}
	return "min/km"
}

// paceSuffix is the per-distance part of the pace label.
func (u Units) paceSuffix() string {
	if u.cfg.PaceUnit == "min/mi" {
		return "mi"
	}
	return "km"
}

// formatOffset renders a seconds offset as m:ss, or h:mm:ss past an hour.
func formatOffset(seconds int) string {
	if seconds >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func formatPct(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.1f%%", *v)
}

// renderResult prints the human-readable summary of one analysis.
func renderResult(res *analysis.Result, units Units) {
	fmt.Printf("Activity %d · version %d\n", res.ActivityID, res.Version)
	comparable := "not cross-run comparable"
	if res.CrossRunComparable {
		comparable = "cross-run comparable"
	}
	fmt.Printf("Tier: %s · confidence %.2f (%s) · %s\n",
		res.TierUsed, res.Confidence, res.ConfidenceLabel, comparable)
	fmt.Printf("Channels: %s", res.Channels.Completeness)
	if len(res.Channels.Missing) > 0 {
		names := make([]string, len(res.Channels.Missing))
		for i, c := range res.Channels.Missing {
			names[i] = string(c)
		}
		fmt.Printf(" (missing: %s)", strings.Join(names, ", "))
	}
	fmt.Println()
	for _, flag := range res.EstimatedFlags {
		fmt.Printf("  note: %s\n", flag)
	}

	fmt.Println()
	fmt.Println("Segments:")
	for _, seg := range res.Segments {
		pace := "-"
		if seg.AvgPace != nil {
			pace = units.FormatPace(*seg.AvgPace) + "/" + units.paceSuffix()
		}
		hr := "-"
		if seg.AvgHeartrate != nil {
			hr = fmt.Sprintf("%.0f bpm", *seg.AvgHeartrate)
		}
		fmt.Printf("  %-9s %9s - %-9s  pace %-9s  hr %s\n",
			seg.Type, formatOffset(seg.StartOffset), formatOffset(seg.EndOffset), pace, hr)
	}

	fmt.Println()
	fmt.Printf("Drift: pace %s · cardiac %s · cadence %s\n",
		formatPct(res.Drift.PaceDriftPct), formatPct(res.Drift.CardiacDriftPct), formatPct(res.Drift.CadenceTrend))

	fmt.Println()
	if len(res.Moments) == 0 {
		fmt.Println("Moments: none")
	} else {
		fmt.Println("Moments:")
		for _, m := range res.Moments {
			fmt.Printf("  %8s  %-22s %+6.1f  %s\n", formatOffset(m.TimeOffset), m.Type, m.Value, m.Context)
		}
	}

	fmt.Println()
	fmt.Printf("Intensity: %.2f - %.2f\n", res.EffortIntensity.Min, res.EffortIntensity.Max)
	if chart := sparkline(res.Curve); chart != "" {
		fmt.Println(chart)
	}
}

// sparkline plots the per-second intensity curve, downsampled to fit a
// terminal row.
func sparkline(curve *analysis.IntensityCurve) string {
	if curve == nil || curve.Len() < 3 {
		return ""
	}
	data := make([]float64, curve.Len())
	for i := range data {
		data[i] = curve.At(i)
	}
	if len(data) > 60 {
		data = downsample(data, 60)
	}
	return asciigraph.Plot(data,
		asciigraph.Height(8),
		asciigraph.Width(50),
	)
}

// downsample bucket-averages data down to targetLen points.
func downsample(data []float64, targetLen int) []float64 {
	if len(data) <= targetLen {
		return data
	}
	result := make([]float64, targetLen)
	ratio := float64(len(data)) / float64(targetLen)
	for i := 0; i < targetLen; i++ {
		start := int(float64(i) * ratio)
		end := int(float64(i+1) * ratio)
		if end > len(data) {
			end = len(data)
		}
		var sum float64
		var count int
		for j := start; j < end; j++ {
			sum += data[j]
			count++
		}
		if count > 0 {
			result[i] = sum / float64(count)
		}
	}
	return result
}
