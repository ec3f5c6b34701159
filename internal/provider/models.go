package provider

import (
	"time"

	"runstream/internal/telemetry"
)

// Activity is one run summary from the provider API.
type Activity struct {
	ID           int64     `json:"id"`
	Athlete      Athlete   `json:"athlete"`
	Name         string    `json:"name"`
	SportType    string    `json:"sport_type"`
	StartDate    time.Time `json:"start_date"`
	Distance     float64   `json:"distance"`     // meters
	MovingTime   int       `json:"moving_time"`  // seconds
	ElapsedTime  int       `json:"elapsed_time"` // seconds
	AverageSpeed float64   `json:"average_speed"`
	HasHeartrate bool      `json:"has_heartrate"`
}

// Athlete is the minimal athlete info embedded in activity responses.
type Athlete struct {
	ID int64 `json:"id"`
}

// Streams is the key_by_type wire form of an activity's channels.
type Streams struct {
	Time           *StreamData[int]        `json:"time"`
	Distance       *StreamData[float64]    `json:"distance"`
	VelocitySmooth *StreamData[float64]    `json:"velocity_smooth"`
	Heartrate      *StreamData[int]        `json:"heartrate"`
	Cadence        *StreamData[int]        `json:"cadence"`
	GradeSmooth    *StreamData[float64]    `json:"grade_smooth"`
	Altitude       *StreamData[float64]    `json:"altitude"`
	LatLng         *StreamData[[2]float64] `json:"latlng"`
	Moving         *StreamData[bool]       `json:"moving"`
}

// StreamData is a single channel's payload.
type StreamData[T any] struct {
	Data         []T    `json:"data"`
	SeriesType   string `json:"series_type"`
	OriginalSize int    `json:"original_size"`
	Resolution   string `json:"resolution"`
}

// Len returns the number of time samples, 0 if the time channel is absent.
func (s *Streams) Len() int {
	if s == nil || s.Time == nil {
		return 0
	}
	return len(s.Time.Data)
}

// ToRaw converts the wire payload to the ingestion form. Absent channels
// stay absent; nothing is zero-filled here.
func (s *Streams) ToRaw() *telemetry.RawStreams {
	raw := &telemetry.RawStreams{}
	if s == nil {
		return raw
	}
	if s.Time != nil {
		raw.Time = s.Time.Data
	}
	if s.Distance != nil {
		raw.Distance = s.Distance.Data
	}
	if s.VelocitySmooth != nil {
		raw.Velocity = s.VelocitySmooth.Data
	}
	if s.Heartrate != nil {
		raw.Heartrate = s.Heartrate.Data
	}
	if s.Cadence != nil {
		raw.Cadence = s.Cadence.Data
	}
	if s.GradeSmooth != nil {
		raw.Grade = s.GradeSmooth.Data
	}
	if s.Altitude != nil {
		raw.Altitude = s.Altitude.Data
	}
	if s.LatLng != nil {
		raw.LatLng = s.LatLng.Data
	}
	if s.Moving != nil {
		raw.Moving = s.Moving.Data
	}
	return raw
}
