package analysis

import "runstream/internal/telemetry"

// DriftReport compares the main body of the run half against half. Fields
// are nil when the backing channel is missing or implausible, never a
// numeric placeholder.
type DriftReport struct {
	// CardiacDriftPct is the percent change in average HR (or HR:pace
	// ratio, when configured) from the first half to the second.
	CardiacDriftPct *float64 `json:"cardiac_drift_pct"`
	// PaceDriftPct is the percent change in average pace; positive means
	// the second half was faster.
	PaceDriftPct *float64 `json:"pace_drift_pct"`
	// CadenceTrend is the percent change in average cadence between halves.
	CadenceTrend *float64 `json:"cadence_trend"`
}

// Floor for drift math, matching the aerobic-decoupling minimum.
const minDriftPoints = 120

// ComputeDrift derives half-vs-half trends over the main body, the
// non-warmup, non-cooldown span. Returns the report plus caveat strings for
// anything withheld or estimated.
func ComputeDrift(stream *telemetry.Stream, segments []Segment, tun Tuning) (DriftReport, []string) {
	var report DriftReport
	var flags []string

	body := mainBodyPoints(stream, segments)
	if len(body) < minDriftPoints {
		flags = append(flags, "main body under two minutes; drift not computed")
		return report, flags
	}

	// Halves split by elapsed time, not point count, so pauses cannot
	// skew the comparison.
	mid := (body[0].TimeOffset + body[len(body)-1].TimeOffset) / 2
	var first, second []telemetry.TelemetryPoint
	for _, p := range body {
		if p.TimeOffset <= mid {
			first = append(first, p)
		} else {
			second = append(second, p)
		}
	}

	pace1 := halfPace(first, tun)
	pace2 := halfPace(second, tun)
	if pace1 > 0 && pace2 > 0 {
		d := (pace1 - pace2) / pace1 * 100
		report.PaceDriftPct = &d
	}

	if stream.Availability.Has(telemetry.ChannelHeartrate) {
		report.CardiacDriftPct = cardiacDrift(first, second, pace1, pace2, tun)
	}

	if stream.Availability.Has(telemetry.ChannelCadence) {
		trend, flag := cadenceTrend(first, second, body, tun)
		report.CadenceTrend = trend
		if flag != "" {
			flags = append(flags, flag)
		}
	}

	if report.CardiacDriftPct != nil && *report.CardiacDriftPct < 0 &&
		report.PaceDriftPct != nil && *report.PaceDriftPct > 3.0 {
		flags = append(flags, "hr decreased while pace rose; drift likely reflects pacing, not recovery")
	}

	return report, flags
}

// cardiacDrift compares half HR averages, or HR:pace ratios when the
// tuning table asks for drift normalized against speed changes.
func cardiacDrift(first, second []telemetry.TelemetryPoint, pace1, pace2 float64, tun Tuning) *float64 {
	hr1, n1 := avgValidHR(first, tun)
	hr2, n2 := avgValidHR(second, tun)
	if n1 == 0 || n2 == 0 || hr1 == 0 {
		return nil
	}

	if tun.UseHRPaceRatio && pace1 > 0 && pace2 > 0 {
		// hr*pace is proportional to beats per unit of speed; a rising
		// ratio means more cardiac cost for the same velocity, so drift
		// caused purely by running faster damps out.
		r1 := hr1 * pace1
		r2 := hr2 * pace2
		if r1 == 0 {
			return nil
		}
		d := (r2 - r1) / r1 * 100
		return &d
	}

	d := (hr2 - hr1) / hr1 * 100
	return &d
}

// cadenceTrend computes the half-over-half cadence change, withholding it
// when the channel's values fail plausibility. Ambiguous medians that look
// like per-step counts are passed through untouched, never doubled.
func cadenceTrend(first, second, body []telemetry.TelemetryPoint, tun Tuning) (*float64, string) {
	med := medianCadence(body)
	if med == 0 {
		return nil, "cadence channel delivered no usable values; trend withheld"
	}
	if med >= float64(tun.CadenceAmbiguousMin) && med <= float64(tun.CadenceAmbiguousMax) {
		return nil, "cadence values look like per-step counts, not steps per minute; trend withheld"
	}
	if med < float64(tun.CadencePlausibleMin) || med > float64(tun.CadencePlausibleMax) {
		return nil, "cadence outside plausible range; trend withheld"
	}

	c1, n1 := avgCadence(first)
	c2, n2 := avgCadence(second)
	if n1 == 0 || n2 == 0 || c1 == 0 {
		return nil, "cadence too sparse across halves; trend withheld"
	}
	d := (c2 - c1) / c1 * 100
	return &d, ""
}

// mainBodyPoints collects the points covered by non-warmup, non-cooldown
// segments, in stream order.
func mainBodyPoints(stream *telemetry.Stream, segments []Segment) []telemetry.TelemetryPoint {
	var body []telemetry.TelemetryPoint
	si := 0
	for _, p := range stream.Points {
		for si < len(segments) && p.TimeOffset >= segments[si].EndOffset {
			si++
		}
		if si >= len(segments) {
			break
		}
		if segments[si].Type == SegmentWarmup || segments[si].Type == SegmentCooldown {
			continue
		}
		body = append(body, p)
	}
	return body
}

// halfPace returns the average pace of a half in s/km, preferring velocity
// samples and falling back to the distance delta, 0 when neither works.
func halfPace(points []telemetry.TelemetryPoint, tun Tuning) float64 {
	var total float64
	var count int
	for _, p := range points {
		if p.Velocity != nil && p.Moving && *p.Velocity >= tun.MinSpeedForPace {
			total += *p.Velocity
			count++
		}
	}
	if count > 0 {
		return 1000 / (total / float64(count))
	}

	if len(points) < 2 {
		return 0
	}
	first, last := points[0], points[len(points)-1]
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

// avgValidHR averages readings inside the validity window.
func avgValidHR(points []telemetry.TelemetryPoint, tun Tuning) (float64, int) {
	var total float64
	var count int
	for _, p := range points {
		if p.Heartrate == nil {
			continue
		}
		hr := float64(*p.Heartrate)
		if hr < float64(tun.MinValidHeartrate) || hr > float64(tun.MaxValidHeartrate) {
			continue
		}
		total += hr
		count++
	}
	if count == 0 {
		return 0, 0
	}
	return total / float64(count), count
}

// avgCadence averages positive cadence readings on moving points.
func avgCadence(points []telemetry.TelemetryPoint) (float64, int) {
	var total float64
	var count int
	for _, p := range points {
		if p.Cadence == nil || !p.Moving || *p.Cadence <= 0 {
			continue
		}
		total += float64(*p.Cadence)
		count++
	}
	if count == 0 {
		return 0, 0
	}
	return total / float64(count), count
}

// medianCadence returns the median positive cadence on moving points.
func medianCadence(points []telemetry.TelemetryPoint) float64 {
	vals := make([]float64, 0, len(points))
	for _, p := range points {
		if p.Cadence != nil && p.Moving && *p.Cadence > 0 {
			vals = append(vals, float64(*p.Cadence))
		}
	}
	return medianPositive(vals)
}
