package analysis

import "runstream/internal/telemetry"

// SegmentType classifies a segment by effort phase.
type SegmentType string

const (
	SegmentWarmup   SegmentType = "warmup"
	SegmentSteady   SegmentType = "steady"
	SegmentRecovery SegmentType = "recovery"
	SegmentCooldown SegmentType = "cooldown"
)

// Segment is one labeled span of the run. Offsets are half-open seconds
// [Start, End); a run's segments always tile [0, duration) exactly.
// Aggregates are nil when the backing channel delivered nothing usable.
type Segment struct {
	Type         SegmentType `json:"type"`
	StartOffset  int         `json:"start"`
	EndOffset    int         `json:"end"`
	AvgPace      *float64    `json:"avg_pace"` // s/km over moving points
	AvgHeartrate *float64    `json:"avg_hr"`   // bpm
	AvgGrade     *float64    `json:"avg_grade"`
}

// DurationSeconds returns the segment's span.
func (s Segment) DurationSeconds() int {
	return s.EndOffset - s.StartOffset
}

// Contains reports whether the offset falls inside the segment.
func (s Segment) Contains(offset int) bool {
	return offset >= s.StartOffset && offset < s.EndOffset
}

// SegmentStream partitions the aligned stream into labeled effort phases.
// Labels are mechanical: smoothed effort relative to the calibration
// threshold (or pace relative to the run median when HR is unavailable)
// drives the bands, and position along the run decides whether easy spans
// read as warmup, recovery, or cooldown.
func SegmentStream(stream *telemetry.Stream, tier TierReport, tun Tuning) []Segment {
	if stream.Len() == 0 {
		return nil
	}

	effort := smoothSeries(effortSeries(stream, tier, tun), tun.TrendWindowSeconds/2)
	labels := labelPoints(effort, tun)
	runs := absorbShortRuns(coalesceRuns(labels), stream, tun.MinSegmentSeconds)

	segments := make([]Segment, 0, len(runs))
	for i, r := range runs {
		end := stream.Duration()
		if i+1 < len(runs) {
			end = stream.Points[runs[i+1].start].TimeOffset
		}
		segments = append(segments, buildSegment(stream, r, end, tun))
	}
	return segments
}

// effortSeries computes per-point effort ratios. With a graded HR threshold
// and a heartrate channel the ratio is hr/threshold, holding the last valid
// reading across sensor dropouts. Otherwise effort derives from pace
// relative to the run's median moving velocity.
func effortSeries(stream *telemetry.Stream, tier TierReport, tun Tuning) []float64 {
	effort := make([]float64, stream.Len())

	if tier.EffectiveThreshold > 0 && stream.Availability.Has(telemetry.ChannelHeartrate) {
		last := 0.0
		for i, p := range stream.Points {
			if p.Heartrate != nil {
				hr := float64(*p.Heartrate)
				if hr >= float64(tun.MinValidHeartrate) && hr <= float64(tun.MaxValidHeartrate) {
					last = hr / tier.EffectiveThreshold
				}
			}
			effort[i] = last
		}
		// Backfill the lead-in before the first valid reading.
		firstValid := 0.0
		for _, e := range effort {
			if e > 0 {
				firstValid = e
				break
			}
		}
		for i := range effort {
			if effort[i] != 0 {
				break
			}
			effort[i] = firstValid
		}
		return effort
	}

	vel := velocitySeries(stream)
	med := medianPositive(vel)
	if med <= 0 {
		return effort
	}
	for i, v := range vel {
		e := tun.PaceEffortScale * v / med
		if e > 1.3 {
			e = 1.3
		}
		effort[i] = e
	}
	return effort
}

// labelPoints assigns a provisional phase to every point. Work points sit
// at or above the steady onset; everything before the first of them is
// warmup, everything after the last is cooldown, and easy points in
// between are recovery.
func labelPoints(effort []float64, tun Tuning) []SegmentType {
	labels := make([]SegmentType, len(effort))

	first, last := workBounds(effort, tun.SteadyOnset)
	if first == -1 {
		first, last = workBounds(effort, tun.RecoveryCeiling)
	}
	if first == -1 {
		// Uniformly easy run: a single steady block.
		for i := range labels {
			labels[i] = SegmentSteady
		}
		return labels
	}

	for i, e := range effort {
		switch {
		case i < first:
			labels[i] = SegmentWarmup
		case i > last:
			labels[i] = SegmentCooldown
		case e >= tun.RecoveryCeiling:
			labels[i] = SegmentSteady
		default:
			labels[i] = SegmentRecovery
		}
	}
	return labels
}

// workBounds returns the first and last index at or above the cutoff,
// or (-1, -1) when no point qualifies.
func workBounds(effort []float64, cutoff float64) (int, int) {
	first, last := -1, -1
	for i, e := range effort {
		if e >= cutoff {
			if first == -1 {
				first = i
			}
			last = i
		}
	}
	return first, last
}

// pointRun is a maximal same-label span of point indexes, end exclusive.
type pointRun struct {
	typ        SegmentType
	start, end int
}

// coalesceRuns collapses consecutive same-label points into runs.
func coalesceRuns(labels []SegmentType) []pointRun {
	var runs []pointRun
	for i := 0; i < len(labels); {
		j := i
		for j < len(labels) && labels[j] == labels[i] {
			j++
		}
		runs = append(runs, pointRun{typ: labels[i], start: i, end: j})
		i = j
	}
	return runs
}

// absorbShortRuns folds interior runs shorter than the merge floor into
// their dominant (longer) neighbor. The final run is exempt: a short tail
// keeps its own label instead of inheriting a neighbor's.
func absorbShortRuns(runs []pointRun, stream *telemetry.Stream, minSeconds int) []pointRun {
	spanOf := func(runs []pointRun, i int) int {
		start := stream.Points[runs[i].start].TimeOffset
		end := stream.Duration()
		if i+1 < len(runs) {
			end = stream.Points[runs[i+1].start].TimeOffset
		}
		return end - start
	}

	for {
		// Merge same-label neighbors created by the previous round.
		var merged []pointRun
		for _, r := range runs {
			if len(merged) > 0 && merged[len(merged)-1].typ == r.typ {
				merged[len(merged)-1].end = r.end
				continue
			}
			merged = append(merged, r)
		}
		runs = merged
		if len(runs) <= 1 {
			return runs
		}

		// Absorb the shortest sub-floor run, final run exempt.
		idx := -1
		for i := 0; i < len(runs)-1; i++ {
			if spanOf(runs, i) >= minSeconds {
				continue
			}
			if idx == -1 || spanOf(runs, i) < spanOf(runs, idx) {
				idx = i
			}
		}
		if idx == -1 {
			return runs
		}

		prevSpan := -1
		if idx > 0 {
			prevSpan = spanOf(runs, idx-1)
		}
		nextSpan := -1
		if idx+1 < len(runs) {
			nextSpan = spanOf(runs, idx+1)
		}
		if idx > 0 && prevSpan >= nextSpan {
			runs[idx].typ = runs[idx-1].typ
		} else {
			runs[idx].typ = runs[idx+1].typ
		}
	}
}

// buildSegment aggregates one run into its reporting form.
func buildSegment(stream *telemetry.Stream, r pointRun, endOffset int, tun Tuning) Segment {
	seg := Segment{
		Type:        r.typ,
		StartOffset: stream.Points[r.start].TimeOffset,
		EndOffset:   endOffset,
	}

	var velTotal, hrTotal, gradeTotal float64
	var velCount, hrCount, gradeCount int
	for i := r.start; i < r.end; i++ {
		p := stream.Points[i]
		if p.Velocity != nil && p.Moving && *p.Velocity >= tun.MinSpeedForPace {
			velTotal += *p.Velocity
			velCount++
		}
		if p.Heartrate != nil {
			hr := float64(*p.Heartrate)
			if hr >= float64(tun.MinValidHeartrate) && hr <= float64(tun.MaxValidHeartrate) {
				hrTotal += hr
				hrCount++
			}
		}
		if p.Grade != nil {
			gradeTotal += *p.Grade
			gradeCount++
		}
	}

	if velCount > 0 {
		pace := 1000 / (velTotal / float64(velCount))
		seg.AvgPace = &pace
	} else if pace := distancePace(stream, r); pace > 0 {
		seg.AvgPace = &pace
	}
	if hrCount > 0 {
		hr := hrTotal / float64(hrCount)
		seg.AvgHeartrate = &hr
	}
	if gradeCount > 0 {
		g := gradeTotal / float64(gradeCount)
		seg.AvgGrade = &g
	}
	return seg
}

// distancePace derives s/km from the cumulative distance delta when no
// velocity samples qualified for the average.
func distancePace(stream *telemetry.Stream, r pointRun) float64 {
	first, last := stream.Points[r.start], stream.Points[r.end-1]
	if first.Distance == nil || last.Distance == nil {
		return 0
	}
	meters := *last.Distance - *first.Distance
	seconds := last.TimeOffset - first.TimeOffset
	if meters <= 0 || seconds <= 0 {
		return 0
	}
	return float64(seconds) / meters * 1000
}
