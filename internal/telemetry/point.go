package telemetry

// TelemetryPoint is one second of aligned telemetry. Channels the provider
// did not deliver stay nil; absent data is never zero-filled.
type TelemetryPoint struct {
	TimeOffset int      // seconds from activity start
	Distance   *float64 // cumulative meters
	Velocity   *float64 // m/s
	Heartrate  *int     // bpm
	Cadence    *int     // spm, exactly as reported
	Grade      *float64 // percent
	Altitude   *float64 // meters
	Lat        *float64
	Lng        *float64
	Moving     bool
}

// Stream is the aligned, validated form of an activity's telemetry.
// Points are ordered by TimeOffset starting at zero.
type Stream struct {
	Points       []TelemetryPoint
	Availability ChannelAvailability
}

// Len returns the number of aligned points.
func (s *Stream) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points)
}

// Duration returns the elapsed span in seconds, counting the final sample.
func (s *Stream) Duration() int {
	if s == nil || len(s.Points) == 0 {
		return 0
	}
	return s.Points[len(s.Points)-1].TimeOffset + 1
}

// AvgVelocity averages velocity over moving points. Stationary points are
// retained in the stream but excluded from pace aggregates.
func (s *Stream) AvgVelocity() float64 {
	var total float64
	var count int
	for _, p := range s.Points {
		if p.Velocity == nil || !p.Moving {
			continue
		}
		total += *p.Velocity
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// AvgHeartrate averages heart rate over moving points with a reading.
func (s *Stream) AvgHeartrate() float64 {
	var total float64
	var count int
	for _, p := range s.Points {
		if p.Heartrate == nil || !p.Moving {
			continue
		}
		total += float64(*p.Heartrate)
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// TotalDistance returns the cumulative distance of the final point, meters.
func (s *Stream) TotalDistance() float64 {
	for i := len(s.Points) - 1; i >= 0; i-- {
		if s.Points[i].Distance != nil {
			return *s.Points[i].Distance
		}
	}
	return 0
}
