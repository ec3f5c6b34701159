// Package fitfile ingests activity FIT files into raw telemetry channels.
// Per-record validity sentinels are resolved here; alignment and
// validation stay with the telemetry package.
package fitfile

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/tormoder/fit"

	"runstream/internal/telemetry"
)

// Summary carries the session-level facts of an imported file.
type Summary struct {
	Sport          string
	StartTime      time.Time
	DistanceMeters float64
	ElapsedSeconds int
	MovingSeconds  int
}

// Import is one decoded activity file.
type Import struct {
	Summary Summary
	Raw     *telemetry.RawStreams
}

// ReadFile decodes the FIT file at path.
func ReadFile(path string) (*Import, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open FIT file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes an activity FIT stream.
func Read(r io.Reader) (*Import, error) {
	decoded, err := fit.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode FIT file: %w", err)
	}

	activity, err := decoded.Activity()
	if err != nil {
		return nil, fmt.Errorf("activity FIT expected: %w", err)
	}
	if len(activity.Records) == 0 {
		return nil, fmt.Errorf("activity file has no record messages")
	}

	raw, start := recordsToRaw(activity.Records)
	if len(raw.Time) == 0 {
		return nil, fmt.Errorf("activity file has no usable timestamps")
	}

	summary := Summary{
		StartTime:      start,
		ElapsedSeconds: raw.Time[len(raw.Time)-1] + 1,
	}
	if len(raw.Distance) > 0 {
		summary.DistanceMeters = raw.Distance[len(raw.Distance)-1]
	}
	if len(activity.Sessions) > 0 {
		session := activity.Sessions[0]
		summary.Sport = fmt.Sprint(session.Sport)
		if t := session.StartTime; !t.IsZero() && !fit.IsBaseTime(t) {
			summary.StartTime = t
		}
		if v := session.GetTotalDistanceScaled(); isPositive(v) {
			summary.DistanceMeters = v
		}
		if v := session.GetTotalTimerTimeScaled(); isPositive(v) {
			summary.ElapsedSeconds = int(math.Round(v))
		}
		if v := session.GetTotalMovingTimeScaled(); isPositive(v) {
			summary.MovingSeconds = int(math.Round(v))
		}
	}
	if summary.MovingSeconds == 0 {
		summary.MovingSeconds = summary.ElapsedSeconds
	}

	return &Import{Summary: summary, Raw: raw}, nil
}

// movingSpeedFloor separates a stopped recording from a slow jog, m/s.
const movingSpeedFloor = 0.1

// recordsToRaw maps record messages onto raw channels. Records with
// unusable or non-increasing timestamps are dropped. A channel with no
// valid sample in any record stays absent; gaps within a present channel
// hold the previous valid sample.
func recordsToRaw(records []*fit.RecordMsg) (*telemetry.RawStreams, time.Time) {
	var kept []*fit.RecordMsg
	var offsets []int
	var start time.Time
	lastOffset := -1
	for _, rec := range records {
		if rec == nil || rec.Timestamp.IsZero() || fit.IsBaseTime(rec.Timestamp) {
			continue
		}
		if start.IsZero() {
			start = rec.Timestamp
		}
		offset := int(rec.Timestamp.Sub(start).Seconds())
		if offset <= lastOffset {
			continue
		}
		lastOffset = offset
		kept = append(kept, rec)
		offsets = append(offsets, offset)
	}

	raw := &telemetry.RawStreams{Time: offsets}
	if len(kept) == 0 {
		return raw, start
	}

	raw.Distance = fillHeld(kept, func(rec *fit.RecordMsg) (float64, bool) {
		v := rec.GetDistanceScaled()
		return v, !math.IsNaN(v)
	})
	raw.Velocity = fillHeld(kept, extractSpeed)
	raw.Heartrate = fillHeld(kept, func(rec *fit.RecordMsg) (int, bool) {
		if rec.HeartRate == math.MaxUint8 {
			return 0, false
		}
		return int(rec.HeartRate), true
	})
	raw.Cadence = fillHeld(kept, extractCadence)
	raw.Grade = fillHeld(kept, func(rec *fit.RecordMsg) (float64, bool) {
		v := rec.GetGradeScaled()
		return v, !math.IsNaN(v)
	})
	raw.Altitude = fillHeld(kept, func(rec *fit.RecordMsg) (float64, bool) {
		v := rec.GetAltitudeScaled()
		return v, !math.IsNaN(v)
	})

	// FIT records carry no explicit moving flag; derive it from speed
	// when speed exists at all.
	if raw.Velocity != nil {
		raw.Moving = make([]bool, len(raw.Velocity))
		for i, v := range raw.Velocity {
			raw.Moving[i] = v > movingSpeedFloor
		}
	}

	return raw, start
}

func extractSpeed(rec *fit.RecordMsg) (float64, bool) {
	v := rec.GetEnhancedSpeedScaled()
	if isFinite(v) && v >= 0 {
		return v, true
	}
	v = rec.GetSpeedScaled()
	if isFinite(v) && v >= 0 {
		return v, true
	}
	return 0, false
}

func extractCadence(rec *fit.RecordMsg) (int, bool) {
	v := rec.GetCadence256Scaled()
	if isFinite(v) && v > 0 {
		return int(math.Round(v)), true
	}
	if rec.Cadence == math.MaxUint8 {
		return 0, false
	}
	return int(rec.Cadence), true
}

// fillHeld builds a full-length series, holding the previous valid sample
// across gaps and backfilling a leading gap from the first valid sample.
// Returns nil when no record carries a valid value.
func fillHeld[T any](records []*fit.RecordMsg, extract func(*fit.RecordMsg) (T, bool)) []T {
	out := make([]T, len(records))
	firstValid := -1
	var last T
	for i, rec := range records {
		if v, ok := extract(rec); ok {
			if firstValid == -1 {
				firstValid = i
			}
			last = v
		}
		out[i] = last
	}
	if firstValid == -1 {
		return nil
	}
	for i := 0; i < firstValid; i++ {
		out[i] = out[firstValid]
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func isPositive(v float64) bool {
	return isFinite(v) && v > 0
}
