package analysis

import (
	"math"
	"sort"

	"runstream/internal/telemetry"
)

// MomentType names a moment detector.
type MomentType string

const (
	MomentGradeAnomaly MomentType = "grade_adjusted_anomaly"
	MomentPaceSurge    MomentType = "pace_surge"
)

// Moment flags a notable instant in the run. Value is the detector's signed
// magnitude in percent; Context is a short terrain hint for display.
type Moment struct {
	Type       MomentType `json:"type"`
	TimeOffset int        `json:"time"`
	Value      float64    `json:"value"`
	Context    string     `json:"context"`
}

// DetectMoments runs the independent detectors and merges their findings by
// timestamp. Detectors only emit in-stream offsets, so every moment lands
// inside exactly one segment of the partition.
func DetectMoments(stream *telemetry.Stream, segments []Segment, tun Tuning) []Moment {
	if stream.Len() == 0 || len(segments) == 0 {
		return nil
	}

	moments := append(detectGradeAnomalies(stream, segments, tun), detectPaceSurges(stream, tun)...)

	sort.Slice(moments, func(i, j int) bool {
		if moments[i].TimeOffset != moments[j].TimeOffset {
			return moments[i].TimeOffset < moments[j].TimeOffset
		}
		return moments[i].Type < moments[j].Type
	})
	return moments
}

// detectGradeAnomalies flags sustained deviations between measured velocity
// and what the grade model expects. Uphill-slow beyond the model reads
// negative, downhill-fast reads positive.
func detectGradeAnomalies(stream *telemetry.Stream, segments []Segment, tun Tuning) []Moment {
	if !stream.Availability.Has(telemetry.ChannelGrade) {
		return nil
	}

	n := stream.Len()
	vel := velocitySeries(stream)

	// Flat-equivalent velocity per point.
	adj := make([]float64, n)
	for i, p := range stream.Points {
		grade := 0.0
		if p.Grade != nil {
			grade = *p.Grade / 100
		}
		adj[i] = vel[i] * gradeFactor(grade)
	}

	baseline := segmentBaselines(stream, segments, adj, tun)

	residuals := make([]float64, n)
	eligible := make([]bool, n)
	var sample []float64
	for i, p := range stream.Points {
		if !p.Moving || vel[i] < tun.MinSpeedForPace || baseline[i] <= 0 {
			continue
		}
		eligible[i] = true
		residuals[i] = adj[i] - baseline[i]
		sample = append(sample, residuals[i])
	}
	if len(sample) < tun.TrendWindowSeconds {
		return nil
	}
	_, sigma := meanStddev(sample)
	if sigma == 0 {
		return nil
	}
	cutoff := tun.AnomalyZScore * sigma

	var moments []Moment
	i := 0
	for i < n {
		if !eligible[i] || math.Abs(residuals[i]) < cutoff {
			i++
			continue
		}
		j, peak := i, i
		for j < n && eligible[j] && math.Abs(residuals[j]) >= cutoff {
			if math.Abs(residuals[j]) > math.Abs(residuals[peak]) {
				peak = j
			}
			j++
		}
		if offsetSpan(stream, i, j) >= tun.AnomalyPersistence {
			p := stream.Points[peak]
			value := residuals[peak] / baseline[peak] * 100
			moments = append(moments, Moment{
				Type:       MomentGradeAnomaly,
				TimeOffset: p.TimeOffset,
				Value:      math.Round(value*10) / 10,
				Context:    terrainContext(p.Grade),
			})
			i = advancePast(stream, j, tun.AnomalyMinSpacing)
			continue
		}
		i = j
	}
	return moments
}

// detectPaceSurges flags sustained accelerations: the rolling velocity mean
// rising past the tuned rate against the preceding window and holding.
// A restart after a dead stop is not a surge; the preceding window must
// already be at running speed.
func detectPaceSurges(stream *telemetry.Stream, tun Tuning) []Moment {
	n := stream.Len()
	w := tun.SurgeWindowSeconds
	if w <= 0 || n < 3*w {
		return nil
	}

	smoothed := smoothSeries(velocitySeries(stream), w)
	rise := make([]float64, n)
	for i := w; i < n; i++ {
		prev := smoothed[i-w]
		if prev >= tun.MinSpeedForPace {
			rise[i] = (smoothed[i] - prev) / prev * 100
		}
	}

	var moments []Moment
	i := 0
	for i < n {
		if rise[i] < tun.SurgeRisePct {
			i++
			continue
		}
		j, peak := i, i
		for j < n && rise[j] >= tun.SurgeRisePct {
			if rise[j] > rise[peak] {
				peak = j
			}
			j++
		}
		if offsetSpan(stream, i, j) >= tun.SurgeSustainSeconds {
			p := stream.Points[i]
			moments = append(moments, Moment{
				Type:       MomentPaceSurge,
				TimeOffset: p.TimeOffset,
				Value:      math.Round(rise[peak]*10) / 10,
				Context:    terrainContext(p.Grade),
			})
			i = advancePast(stream, j, tun.AnomalyMinSpacing)
			continue
		}
		i = j
	}
	return moments
}

// gradeFactor converts measured velocity to a flat-equivalent velocity.
// Roughly +10% grade costs a third of flat speed; clamped for extremes.
func gradeFactor(grade float64) float64 {
	f := 1.0 + grade*3.0
	if f < 0.5 {
		f = 0.5
	}
	if f > 3.0 {
		f = 3.0
	}
	return f
}

// terrainContext names the terrain at a moment for display alongside it.
func terrainContext(grade *float64) string {
	if grade == nil {
		return "Flat section"
	}
	switch {
	case *grade >= 2:
		return "Hill section"
	case *grade <= -2:
		return "Downhill"
	default:
		return "Flat section"
	}
}

// segmentBaselines maps every point to its segment's mean adjusted
// velocity over qualifying points.
func segmentBaselines(stream *telemetry.Stream, segments []Segment, adj []float64, tun Tuning) []float64 {
	n := stream.Len()
	segIdx := make([]int, n)
	sums := make([]float64, len(segments))
	counts := make([]int, len(segments))

	si := 0
	for i, p := range stream.Points {
		for si < len(segments)-1 && p.TimeOffset >= segments[si].EndOffset {
			si++
		}
		segIdx[i] = si
		if p.Moving && adj[i] >= tun.MinSpeedForPace {
			sums[si] += adj[i]
			counts[si]++
		}
	}

	baseline := make([]float64, n)
	for i := range baseline {
		if counts[segIdx[i]] > 0 {
			baseline[i] = sums[segIdx[i]] / float64(counts[segIdx[i]])
		}
	}
	return baseline
}

// offsetSpan measures the elapsed seconds covered by points [i, j).
func offsetSpan(stream *telemetry.Stream, i, j int) int {
	if j <= i {
		return 0
	}
	return stream.Points[j-1].TimeOffset - stream.Points[i].TimeOffset + 1
}

// advancePast skips to the first point at least spacing seconds after the
// excursion that ended at point index j.
func advancePast(stream *telemetry.Stream, j, spacing int) int {
	if j >= stream.Len() {
		return j
	}
	limit := stream.Points[j-1].TimeOffset + spacing
	k := j
	for k < stream.Len() && stream.Points[k].TimeOffset < limit {
		k++
	}
	return k
}
