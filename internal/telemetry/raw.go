package telemetry

import (
	"fmt"
	"strings"
)

// RawStreams holds per-channel arrays exactly as the provider delivered
// them. Arrays may have differing lengths; Align reconciles every channel
// against the time axis. A nil or empty slice means the channel is absent.
type RawStreams struct {
	Time      []int        `json:"time,omitempty"`
	Distance  []float64    `json:"distance,omitempty"`
	Velocity  []float64    `json:"velocity_smooth,omitempty"`
	Heartrate []int        `json:"heartrate,omitempty"`
	Cadence   []int        `json:"cadence,omitempty"`
	Grade     []float64    `json:"grade_smooth,omitempty"`
	Altitude  []float64    `json:"altitude,omitempty"`
	LatLng    [][2]float64 `json:"latlng,omitempty"`
	Moving    []bool       `json:"moving,omitempty"`
}

// Availability reports which catalog channels the raw payload carries.
func (r *RawStreams) Availability() ChannelAvailability {
	var avail ChannelAvailability
	mark := func(c Channel, present bool) {
		if present {
			avail.Present = append(avail.Present, c)
		} else {
			avail.Missing = append(avail.Missing, c)
		}
	}
	mark(ChannelTime, len(r.Time) > 0)
	mark(ChannelDistance, len(r.Distance) > 0)
	mark(ChannelVelocity, len(r.Velocity) > 0)
	mark(ChannelHeartrate, len(r.Heartrate) > 0)
	mark(ChannelCadence, len(r.Cadence) > 0)
	mark(ChannelGrade, len(r.Grade) > 0)
	mark(ChannelAltitude, len(r.Altitude) > 0)
	mark(ChannelLatLng, len(r.LatLng) > 0)
	mark(ChannelMoving, len(r.Moving) > 0)
	return avail
}

// IngestionError rejects telemetry that cannot enter the pipeline.
// No partial result accompanies one.
type IngestionError struct {
	Reason  string
	Missing []Channel
}

func (e *IngestionError) Error() string {
	if len(e.Missing) == 0 {
		return "telemetry ingestion: " + e.Reason
	}
	names := make([]string, len(e.Missing))
	for i, c := range e.Missing {
		names[i] = string(c)
	}
	return fmt.Sprintf("telemetry ingestion: %s: %s", e.Reason, strings.Join(names, ", "))
}

// validate enforces the entry rules: a non-empty time axis, the required
// channels, and strictly increasing offsets.
func (r *RawStreams) validate() *IngestionError {
	if len(r.Time) == 0 && len(r.Distance) == 0 {
		return &IngestionError{Reason: "empty stream"}
	}

	var missing []Channel
	if len(r.Time) == 0 {
		missing = append(missing, ChannelTime)
	}
	if len(r.Distance) == 0 {
		missing = append(missing, ChannelDistance)
	}
	if len(missing) > 0 {
		return &IngestionError{Reason: "required channels missing", Missing: missing}
	}

	for i := 1; i < len(r.Time); i++ {
		if r.Time[i] <= r.Time[i-1] {
			return &IngestionError{Reason: fmt.Sprintf("time offsets not strictly increasing at index %d", i)}
		}
	}
	return nil
}
