package fitfile

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/tormoder/fit"

	"runstream/internal/telemetry"
)

var testStart = time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

func buildTestFIT(t *testing.T) []byte {
	t.Helper()

	header := fit.NewHeader(fit.V20, true)
	file, err := fit.NewFile(fit.FileTypeActivity, header)
	if err != nil {
		t.Fatalf("new fit file: %v", err)
	}
	activity, err := file.Activity()
	if err != nil {
		t.Fatalf("activity accessor: %v", err)
	}

	for i := 0; i < 5; i++ {
		rec := fit.NewRecordMsg()
		rec.Timestamp = testStart.Add(time.Duration(i) * time.Second)
		rec.Speed = 3000
		rec.HeartRate = uint8(140 + i)
		rec.Cadence = 86
		rec.Distance = uint32(i * 300)
		rec.Altitude = 3000
		rec.Grade = 250
		activity.Records = append(activity.Records, rec)
	}

	var buf bytes.Buffer
	if err := fit.Encode(&buf, file, binary.LittleEndian); err != nil {
		t.Fatalf("encode fit: %v", err)
	}
	return buf.Bytes()
}

func TestReadRoundTrip(t *testing.T) {
	imp, err := Read(bytes.NewReader(buildTestFIT(t)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	raw := imp.Raw
	if diff := cmp.Diff([]int{0, 1, 2, 3, 4}, raw.Time); diff != "" {
		t.Errorf("time offsets mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{140, 141, 142, 143, 144}, raw.Heartrate); diff != "" {
		t.Errorf("heartrate mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0, 3, 6, 9, 12}, raw.Distance); diff != "" {
		t.Errorf("distance mismatch (-want +got):\n%s", diff)
	}
	for i, v := range raw.Velocity {
		if v != 3.0 {
			t.Errorf("velocity[%d] = %v, want 3.0", i, v)
		}
	}
	for i, v := range raw.Altitude {
		if v != 100.0 {
			t.Errorf("altitude[%d] = %v, want 100.0", i, v)
		}
	}
	for i, v := range raw.Grade {
		if v != 2.5 {
			t.Errorf("grade[%d] = %v, want 2.5", i, v)
		}
	}
	for i, m := range raw.Moving {
		if !m {
			t.Errorf("moving[%d] = false, want true", i)
		}
	}
	if raw.LatLng != nil {
		t.Errorf("latlng should stay absent for FIT imports, got %v", raw.LatLng)
	}

	if !imp.Summary.StartTime.Equal(testStart) {
		t.Errorf("start time = %v, want %v", imp.Summary.StartTime, testStart)
	}
	if imp.Summary.DistanceMeters != 12 {
		t.Errorf("distance = %v, want 12", imp.Summary.DistanceMeters)
	}
	if imp.Summary.ElapsedSeconds != 5 {
		t.Errorf("elapsed = %d, want 5", imp.Summary.ElapsedSeconds)
	}
	if imp.Summary.MovingSeconds != 5 {
		t.Errorf("moving seconds = %d, want 5", imp.Summary.MovingSeconds)
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	if _, err := Read(bytes.NewReader([]byte("not a fit file"))); err == nil {
		t.Fatal("expected decode error for garbage input")
	}
}

func recordAt(offset int) *fit.RecordMsg {
	rec := fit.NewRecordMsg()
	rec.Timestamp = testStart.Add(time.Duration(offset) * time.Second)
	return rec
}

func TestRecordsToRawSkipsUnusableTimestamps(t *testing.T) {
	zero := fit.NewRecordMsg()
	zero.Timestamp = time.Time{}
	zero.HeartRate = 99

	r0 := recordAt(0)
	r0.HeartRate = 101
	r1 := recordAt(1)
	r1.HeartRate = 102
	dup := recordAt(1)
	dup.HeartRate = 250
	r3 := recordAt(3)
	r3.HeartRate = 103

	raw, start := recordsToRaw([]*fit.RecordMsg{zero, r0, r1, dup, r3})
	if !start.Equal(testStart) {
		t.Errorf("start = %v, want %v", start, testStart)
	}
	if diff := cmp.Diff([]int{0, 1, 3}, raw.Time); diff != "" {
		t.Errorf("time offsets mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{101, 102, 103}, raw.Heartrate); diff != "" {
		t.Errorf("heartrate mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordsToRawHoldsGaps(t *testing.T) {
	r0 := recordAt(0)
	r1 := recordAt(1)
	r1.HeartRate = 140
	r2 := recordAt(2)
	r3 := recordAt(3)
	r3.HeartRate = 145

	raw, _ := recordsToRaw([]*fit.RecordMsg{r0, r1, r2, r3})
	if diff := cmp.Diff([]int{140, 140, 140, 145}, raw.Heartrate); diff != "" {
		t.Errorf("heartrate mismatch (-want +got):\n%s", diff)
	}
	if raw.Velocity != nil || raw.Moving != nil || raw.Cadence != nil ||
		raw.Grade != nil || raw.Altitude != nil || raw.Distance != nil {
		t.Errorf("channels with no valid samples should stay absent: %+v", raw)
	}

	avail := raw.Availability()
	want := []telemetry.Channel{telemetry.ChannelTime, telemetry.ChannelHeartrate}
	if diff := cmp.Diff(want, avail.Present); diff != "" {
		t.Errorf("present channels mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordsToRawDerivesMoving(t *testing.T) {
	speeds := []uint16{3000, 0, 2500}
	recs := make([]*fit.RecordMsg, len(speeds))
	for i, s := range speeds {
		recs[i] = recordAt(i)
		recs[i].Speed = s
	}

	raw, _ := recordsToRaw(recs)
	if diff := cmp.Diff([]float64{3.0, 0.0, 2.5}, raw.Velocity); diff != "" {
		t.Errorf("velocity mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]bool{true, false, true}, raw.Moving); diff != "" {
		t.Errorf("moving mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordsToRawCadencePriority(t *testing.T) {
	r0 := recordAt(0)
	r0.Cadence256 = 40960 // 160 rpm, should win over the coarse field
	r0.Cadence = 80
	r1 := recordAt(1)
	r1.Cadence = 85

	raw, _ := recordsToRaw([]*fit.RecordMsg{r0, r1})
	if diff := cmp.Diff([]int{160, 85}, raw.Cadence); diff != "" {
		t.Errorf("cadence mismatch (-want +got):\n%s", diff)
	}
}
