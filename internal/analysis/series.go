package analysis

import (
	"math"
	"sort"

	"runstream/internal/telemetry"
)

// velocitySeries returns per-point velocity in m/s, deriving it from the
// cumulative distance channel when the provider sent no velocity stream.
func velocitySeries(stream *telemetry.Stream) []float64 {
	n := stream.Len()
	vel := make([]float64, n)

	if stream.Availability.Has(telemetry.ChannelVelocity) {
		for i, p := range stream.Points {
			if p.Velocity != nil {
				vel[i] = *p.Velocity
			}
		}
		return vel
	}

	for i := 1; i < n; i++ {
		prev, cur := stream.Points[i-1], stream.Points[i]
		if prev.Distance == nil || cur.Distance == nil {
			vel[i] = vel[i-1]
			continue
		}
		dt := cur.TimeOffset - prev.TimeOffset
		if dt <= 0 {
			vel[i] = vel[i-1]
			continue
		}
		v := (*cur.Distance - *prev.Distance) / float64(dt)
		if v < 0 {
			v = 0
		}
		vel[i] = v
	}
	if n > 1 {
		vel[0] = vel[1]
	}
	return vel
}

// smoothSeries applies a trailing moving average of the given window.
func smoothSeries(vals []float64, window int) []float64 {
	if window <= 1 || len(vals) == 0 {
		return vals
	}
	out := make([]float64, len(vals))
	var sum float64
	for i, v := range vals {
		sum += v
		if i >= window {
			sum -= vals[i-window]
		}
		span := i + 1
		if span > window {
			span = window
		}
		out[i] = sum / float64(span)
	}
	return out
}

// medianPositive returns the median of the positive values, 0 when none.
func medianPositive(vals []float64) float64 {
	pos := make([]float64, 0, len(vals))
	for _, v := range vals {
		if v > 0 {
			pos = append(pos, v)
		}
	}
	if len(pos) == 0 {
		return 0
	}
	sort.Float64s(pos)
	mid := len(pos) / 2
	if len(pos)%2 == 1 {
		return pos[mid]
	}
	return (pos[mid-1] + pos[mid]) / 2
}

// meanStddev returns the mean and population standard deviation.
func meanStddev(vals []float64) (float64, float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))

	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(vals)))
}
