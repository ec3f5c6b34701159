package analysis

import (
	"testing"

	"runstream/internal/telemetry"
)

func floatPtr(v float64) *float64 { return &v }

// streamSpec builds a synthetic 1 Hz run from per-second generators. A nil
// generator leaves its channel out of the payload entirely.
type streamSpec struct {
	n        int
	vel      func(i int) float64
	hr       func(i int) int
	grade    func(i int) float64
	cadence  func(i int) int
	altitude func(i int) float64
	latlng   bool
	moving   bool
}

func buildStream(t *testing.T, spec streamSpec) *telemetry.Stream {
	t.Helper()

	raw := telemetry.RawStreams{
		Time:     make([]int, spec.n),
		Distance: make([]float64, spec.n),
	}
	if spec.vel != nil {
		raw.Velocity = make([]float64, spec.n)
	}
	if spec.hr != nil {
		raw.Heartrate = make([]int, spec.n)
	}
	if spec.grade != nil {
		raw.Grade = make([]float64, spec.n)
	}
	if spec.cadence != nil {
		raw.Cadence = make([]int, spec.n)
	}
	if spec.altitude != nil {
		raw.Altitude = make([]float64, spec.n)
	}
	if spec.latlng {
		raw.LatLng = make([][2]float64, spec.n)
	}
	if spec.moving {
		raw.Moving = make([]bool, spec.n)
	}

	dist := 0.0
	for i := 0; i < spec.n; i++ {
		raw.Time[i] = i
		v := 3.0
		if spec.vel != nil {
			v = spec.vel(i)
			raw.Velocity[i] = v
		}
		dist += v
		raw.Distance[i] = dist
		if spec.hr != nil {
			raw.Heartrate[i] = spec.hr(i)
		}
		if spec.grade != nil {
			raw.Grade[i] = spec.grade(i)
		}
		if spec.cadence != nil {
			raw.Cadence[i] = spec.cadence(i)
		}
		if spec.altitude != nil {
			raw.Altitude[i] = spec.altitude(i)
		}
		if spec.latlng {
			raw.LatLng[i] = [2]float64{40.0 + float64(i)*1e-5, -74.0}
		}
		if spec.moving {
			raw.Moving[i] = true
		}
	}

	stream, err := telemetry.Align(&raw)
	if err != nil {
		t.Fatalf("Align() error = %v", err)
	}
	return stream
}

// intervalHR is the canonical test workout: a 300 s ramp, two steady blocks
// around a recovery dip, and a cooldown tail.
func intervalHR(i int) int {
	switch {
	case i < 300:
		return 120 + i/10
	case i < 1500:
		return 155
	case i < 1800:
		return 125
	case i < 3000:
		return 156
	default:
		return 120
	}
}

func tier1Report(threshold float64) TierReport {
	return TierReport{
		Tier:               TierThresholdHR,
		Confidence:         tier1BaseConfidence,
		ConfidenceLabel:    "high",
		CrossRunComparable: true,
		EffectiveThreshold: threshold,
	}
}
