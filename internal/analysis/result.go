package analysis

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"runstream/internal/telemetry"
)

// ChannelReport is the availability block of a result.
type ChannelReport struct {
	Present      []telemetry.Channel `json:"present"`
	Missing      []telemetry.Channel `json:"missing"`
	Completeness string              `json:"completeness"`
}

// Result is the immutable aggregate of one analysis run. Everything a
// display or archival consumer needs travels in the serialized form; a
// decoded result carries the same values it was encoded with, null for
// null, with no placeholder zeros invented on either side.
type Result struct {
	ID                 string          `json:"id"`
	ActivityID         int64           `json:"activity_id"`
	AthleteID          int64           `json:"athlete_id"`
	Version            int             `json:"version"`
	ComputedAt         time.Time       `json:"computed_at"`
	TierUsed           Tier            `json:"tier_used"`
	Confidence         float64         `json:"confidence"`
	ConfidenceLabel    string          `json:"confidence_label"`
	CrossRunComparable bool            `json:"cross_run_comparable"`
	EstimatedFlags     []string        `json:"estimated_flags"`
	Channels           ChannelReport   `json:"channels"`
	PointCount         int             `json:"point_count"`
	Segments           []Segment       `json:"segments"`
	Drift              DriftReport     `json:"drift"`
	Moments            []Moment        `json:"moments"`
	EffortIntensity    EffortIntensity `json:"effort_intensity"`

	// Curve backs programmatic iteration; the serialized form carries
	// only the range and bands.
	Curve *IntensityCurve `json:"-"`
}

// Encode renders the canonical JSON document.
func (r *Result) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode analysis result: %w", err)
	}
	return data, nil
}

// DecodeResult parses a stored result document.
func DecodeResult(data []byte) (*Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode analysis result: %w", err)
	}
	return &r, nil
}
