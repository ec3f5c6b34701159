// Package consent tracks per-athlete permission to process telemetry.
// Consent is tri-state: a missing record means unknown, and unknown is
// never treated as denial.
package consent

import (
	"errors"
	"fmt"
	"time"
)

// State is an athlete's processing consent. The zero value is Unknown so a
// record that was never written cannot read as a grant or a denial.
type State int

const (
	Unknown State = iota
	Granted
	Denied
)

var (
	// ErrUnknown gates processing until the athlete has answered. Callers
	// should prompt for consent, not refuse outright.
	ErrUnknown = errors.New("athlete consent not recorded")
	// ErrDenied refuses processing for an athlete who opted out.
	ErrDenied = errors.New("athlete denied telemetry processing")
)

func (s State) String() string {
	switch s {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// Parse maps a stored state string back to a State. Unrecognized input is
// an error rather than a silent Unknown so corrupt rows surface.
func Parse(s string) (State, error) {
	switch s {
	case "unknown":
		return Unknown, nil
	case "granted":
		return Granted, nil
	case "denied":
		return Denied, nil
	default:
		return Unknown, fmt.Errorf("unrecognized consent state %q", s)
	}
}

func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *State) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("consent state must be a JSON string, got %s", data)
	}
	parsed, err := Parse(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Allow reports whether processing may proceed under this state. Unknown
// and Denied map to distinct errors so callers can prompt versus refuse.
func (s State) Allow() error {
	switch s {
	case Granted:
		return nil
	case Denied:
		return ErrDenied
	default:
		return ErrUnknown
	}
}

// Record is one athlete's consent ledger entry.
type Record struct {
	AthleteID int64     `json:"athlete_id"`
	State     State     `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}
