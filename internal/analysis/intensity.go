package analysis

import (
	"iter"
	"math"

	"runstream/internal/telemetry"
)

// intensityBreakpoints maps effort ratios onto the normalized 0..1 scale by
// linear interpolation. The knees follow the usual five-zone HR cuts; the
// same table serves every tier because each tier reduces to an effort
// ratio against its own effective threshold.
var intensityBreakpoints = []struct {
	Effort    float64
	Intensity float64
}{
	{0.50, 0.05},
	{0.68, 0.30},
	{0.80, 0.55},
	{0.92, 0.75},
	{1.00, 0.88},
	{1.15, 1.00},
}

// mapIntensity converts one effort ratio to normalized intensity.
func mapIntensity(effort float64) float64 {
	bp := intensityBreakpoints
	if effort <= bp[0].Effort {
		return bp[0].Intensity
	}
	for k := 1; k < len(bp); k++ {
		if effort <= bp[k].Effort {
			frac := (effort - bp[k-1].Effort) / (bp[k].Effort - bp[k-1].Effort)
			return bp[k-1].Intensity + frac*(bp[k].Intensity-bp[k-1].Intensity)
		}
	}
	return bp[len(bp)-1].Intensity
}

// IntensityCurve is the per-second effort estimate on the normalized scale.
// Samples map lazily from the stored effort ratios; iteration is finite and
// restarts from the beginning on every call.
type IntensityCurve struct {
	offsets []int
	effort  []float64
}

// Len returns the number of samples.
func (c *IntensityCurve) Len() int {
	return len(c.effort)
}

// At returns the intensity of sample i.
func (c *IntensityCurve) At(i int) float64 {
	return mapIntensity(c.effort[i])
}

// Values yields (time offset, intensity) pairs in stream order.
func (c *IntensityCurve) Values() iter.Seq2[int, float64] {
	return func(yield func(int, float64) bool) {
		for i, e := range c.effort {
			if !yield(c.offsets[i], mapIntensity(e)) {
				return
			}
		}
	}
}

// EffortIntensity is the curve's reporting form: the observed range plus
// one representative band per segment.
type EffortIntensity struct {
	Min   float64         `json:"min"`
	Max   float64         `json:"max"`
	Bands []IntensityBand `json:"bands"`
}

// IntensityBand is one segment's representative intensity.
type IntensityBand struct {
	Segment SegmentType `json:"segment"`
	Value   float64     `json:"value"`
}

// ComputeIntensity grades every second of the run. Tier1 and tier2 map
// HR-relative effort through the breakpoint table; tier3 grades pace
// against the run's own median, which is honest about intra-run variation
// but never comparable across runs.
func ComputeIntensity(stream *telemetry.Stream, segments []Segment, tier TierReport, tun Tuning) (*IntensityCurve, EffortIntensity) {
	offsets := make([]int, stream.Len())
	for i, p := range stream.Points {
		offsets[i] = p.TimeOffset
	}
	curve := &IntensityCurve{
		offsets: offsets,
		effort:  smoothSeries(effortSeries(stream, tier, tun), tun.TrendWindowSeconds/2),
	}
	if curve.Len() == 0 || len(segments) == 0 {
		return curve, EffortIntensity{}
	}

	min, max := math.Inf(1), math.Inf(-1)
	sums := make([]float64, len(segments))
	counts := make([]int, len(segments))
	si := 0
	for i, off := range curve.offsets {
		v := curve.At(i)
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		for si < len(segments)-1 && off >= segments[si].EndOffset {
			si++
		}
		sums[si] += v
		counts[si]++
	}

	bands := make([]IntensityBand, 0, len(segments))
	for i, seg := range segments {
		if counts[i] == 0 {
			continue
		}
		bands = append(bands, IntensityBand{
			Segment: seg.Type,
			Value:   round2(sums[i] / float64(counts[i])),
		})
	}
	return curve, EffortIntensity{Min: round2(min), Max: round2(max), Bands: bands}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
