package telemetry

import "math"

// Align validates the raw payload and resamples every delivered channel onto
// the time axis. Channels the provider sampled at a different cadence are
// stretched by relative position: continuous series interpolate linearly,
// step series hold the nearest prior sample. Offsets are normalized so the
// first point sits at zero. Absent channels stay nil on every point.
func Align(raw *RawStreams) (*Stream, error) {
	if err := raw.validate(); err != nil {
		return nil, err
	}

	n := len(raw.Time)
	base := raw.Time[0]
	span := raw.Time[n-1] - base

	// Relative position of target index i along the time axis, 0..1.
	pos := func(i int) float64 {
		if span == 0 {
			return 0
		}
		return float64(raw.Time[i]-base) / float64(span)
	}

	avail := raw.Availability()
	points := make([]TelemetryPoint, n)
	for i := range points {
		points[i].TimeOffset = raw.Time[i] - base
		// Without a moving channel every point counts as moving.
		points[i].Moving = true
	}

	for i := range points {
		d := sampleLinear(raw.Distance, n, i, pos)
		points[i].Distance = &d
	}
	if avail.Has(ChannelVelocity) {
		for i := range points {
			v := sampleLinear(raw.Velocity, n, i, pos)
			points[i].Velocity = &v
		}
	}
	if avail.Has(ChannelGrade) {
		for i := range points {
			g := sampleLinear(raw.Grade, n, i, pos)
			points[i].Grade = &g
		}
	}
	if avail.Has(ChannelAltitude) {
		for i := range points {
			a := sampleLinear(raw.Altitude, n, i, pos)
			points[i].Altitude = &a
		}
	}
	if avail.Has(ChannelLatLng) {
		for i := range points {
			lat := sampleLinearAt(raw.LatLng, 0, n, i, pos)
			lng := sampleLinearAt(raw.LatLng, 1, n, i, pos)
			points[i].Lat = &lat
			points[i].Lng = &lng
		}
	}
	if avail.Has(ChannelHeartrate) {
		for i := range points {
			hr := samplePrior(raw.Heartrate, n, i, pos)
			points[i].Heartrate = &hr
		}
	}
	if avail.Has(ChannelCadence) {
		for i := range points {
			c := samplePrior(raw.Cadence, n, i, pos)
			points[i].Cadence = &c
		}
	}
	if avail.Has(ChannelMoving) {
		for i := range points {
			points[i].Moving = samplePrior(raw.Moving, n, i, pos)
		}
	}

	return &Stream{Points: points, Availability: avail}, nil
}

// sampleLinear reads a continuous series for target index i, interpolating
// linearly when the source length differs from the time axis.
func sampleLinear(vals []float64, n, i int, pos func(int) float64) float64 {
	if len(vals) == n {
		return vals[i]
	}
	if len(vals) == 1 {
		return vals[0]
	}
	fidx := pos(i) * float64(len(vals)-1)
	lo := int(math.Floor(fidx))
	hi := lo + 1
	if hi >= len(vals) {
		return vals[len(vals)-1]
	}
	frac := fidx - float64(lo)
	return vals[lo]*(1-frac) + vals[hi]*frac
}

// sampleLinearAt interpolates one component of a paired series.
func sampleLinearAt(vals [][2]float64, comp, n, i int, pos func(int) float64) float64 {
	if len(vals) == n {
		return vals[i][comp]
	}
	if len(vals) == 1 {
		return vals[0][comp]
	}
	fidx := pos(i) * float64(len(vals)-1)
	lo := int(math.Floor(fidx))
	hi := lo + 1
	if hi >= len(vals) {
		return vals[len(vals)-1][comp]
	}
	frac := fidx - float64(lo)
	return vals[lo][comp]*(1-frac) + vals[hi][comp]*frac
}

// samplePrior reads a step series, holding the nearest prior sample when the
// source length differs from the time axis.
func samplePrior[T any](vals []T, n, i int, pos func(int) float64) T {
	if len(vals) == n {
		return vals[i]
	}
	idx := int(math.Floor(pos(i) * float64(len(vals)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(vals) {
		idx = len(vals) - 1
	}
	return vals[idx]
}
