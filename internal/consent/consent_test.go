package consent

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestZeroValueIsUnknown(t *testing.T) {
	var s State
	if s != Unknown {
		t.Errorf("zero value should be Unknown, got %v", s)
	}
	if !errors.Is(s.Allow(), ErrUnknown) {
		t.Errorf("zero value should gate with ErrUnknown, got %v", s.Allow())
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, state := range []State{Unknown, Granted, Denied} {
		parsed, err := Parse(state.String())
		if err != nil {
			t.Errorf("Parse(%q) error = %v", state.String(), err)
		}
		if parsed != state {
			t.Errorf("Parse(%q) = %v, want %v", state.String(), parsed, state)
		}
	}

	if _, err := Parse("revoked"); err == nil {
		t.Error("expected error for unrecognized state")
	}
}

func TestAllowMapping(t *testing.T) {
	tests := []struct {
		state State
		want  error
	}{
		{Granted, nil},
		{Denied, ErrDenied},
		{Unknown, ErrUnknown},
	}

	for _, tt := range tests {
		err := tt.state.Allow()
		if tt.want == nil {
			if err != nil {
				t.Errorf("%v.Allow() = %v, want nil", tt.state, err)
			}
			continue
		}
		if !errors.Is(err, tt.want) {
			t.Errorf("%v.Allow() = %v, want %v", tt.state, err, tt.want)
		}
	}
}

func TestJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(Granted)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"granted"` {
		t.Errorf("expected quoted string, got %s", data)
	}

	var s State
	if err := json.Unmarshal([]byte(`"denied"`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s != Denied {
		t.Errorf("expected Denied, got %v", s)
	}

	if err := json.Unmarshal([]byte(`"yes"`), &s); err == nil {
		t.Error("expected error for unrecognized state")
	}
	if err := json.Unmarshal([]byte(`3`), &s); err == nil {
		t.Error("expected error for non-string payload")
	}
}
