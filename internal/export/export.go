// Package export writes analysis artifacts to disk: the aligned stream as
// a parquet or CSV table, the canonical result document, and a flat
// segment summary. Absent channel values stay absent in the artifacts,
// as NaN plus validity flags in parquet and empty cells in CSV.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"runstream/internal/analysis"
	"runstream/internal/telemetry"
)

const (
	FormatParquet = "parquet"
	FormatCSV     = "csv"
)

// Options selects where and how artifacts are written.
type Options struct {
	Dir    string
	Format string // stream table format, FormatParquet when empty
}

// Artifacts lists the files one export produced.
type Artifacts struct {
	Dir          string
	StreamPath   string
	ResultPath   string
	SegmentsPath string
}

// Write exports one analyzed activity into a subdirectory of opts.Dir
// named by activity ID.
func Write(stream *telemetry.Stream, result *analysis.Result, opts Options) (*Artifacts, error) {
	if stream == nil || stream.Len() == 0 {
		return nil, fmt.Errorf("export needs a non-empty stream")
	}
	if result == nil {
		return nil, fmt.Errorf("export needs an analysis result")
	}
	format := opts.Format
	if format == "" {
		format = FormatParquet
	}
	if format != FormatParquet && format != FormatCSV {
		return nil, fmt.Errorf("unsupported format %q (expected parquet|csv)", format)
	}

	dir := filepath.Join(opts.Dir, strconv.FormatInt(result.ActivityID, 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}

	streamPath := filepath.Join(dir, "stream."+format)
	switch format {
	case FormatCSV:
		if err := writeStreamCSV(streamPath, stream); err != nil {
			return nil, fmt.Errorf("write stream csv: %w", err)
		}
	case FormatParquet:
		if err := writeStreamParquet(streamPath, stream); err != nil {
			return nil, fmt.Errorf("write stream parquet: %w", err)
		}
	}

	resultPath := filepath.Join(dir, "result.json")
	if err := writeResultJSON(resultPath, result); err != nil {
		return nil, fmt.Errorf("write result json: %w", err)
	}

	segmentsPath := filepath.Join(dir, "segments.csv")
	if err := writeSegmentsCSV(segmentsPath, result.Segments); err != nil {
		return nil, fmt.Errorf("write segments csv: %w", err)
	}

	return &Artifacts{
		Dir:          dir,
		StreamPath:   streamPath,
		ResultPath:   resultPath,
		SegmentsPath: segmentsPath,
	}, nil
}

type streamParquetRow struct {
	OffsetS      int64   `parquet:"name=offset_s, type=INT64"`
	DistanceM    float64 `parquet:"name=distance_m, type=DOUBLE"`
	SpeedMPS     float64 `parquet:"name=speed_mps, type=DOUBLE"`
	HRBPM        float64 `parquet:"name=hr_bpm, type=DOUBLE"`
	CadenceSPM   float64 `parquet:"name=cadence_spm, type=DOUBLE"`
	GradePct     float64 `parquet:"name=grade_pct, type=DOUBLE"`
	AltitudeM    float64 `parquet:"name=altitude_m, type=DOUBLE"`
	Lat          float64 `parquet:"name=lat, type=DOUBLE"`
	Lng          float64 `parquet:"name=lng, type=DOUBLE"`
	Moving       bool    `parquet:"name=moving, type=BOOLEAN"`
	ValidHR      bool    `parquet:"name=valid_hr, type=BOOLEAN"`
	ValidCadence bool    `parquet:"name=valid_cadence, type=BOOLEAN"`
}

func writeStreamParquet(path string, stream *telemetry.Stream) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	pw, err := writer.NewParquetWriter(fw, new(streamParquetRow), 4)
	if err != nil {
		_ = fw.Close()
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, p := range stream.Points {
		row := streamParquetRow{
			OffsetS:      int64(p.TimeOffset),
			DistanceM:    floatOrNaN(p.Distance),
			SpeedMPS:     floatOrNaN(p.Velocity),
			HRBPM:        intOrNaN(p.Heartrate),
			CadenceSPM:   intOrNaN(p.Cadence),
			GradePct:     floatOrNaN(p.Grade),
			AltitudeM:    floatOrNaN(p.Altitude),
			Lat:          floatOrNaN(p.Lat),
			Lng:          floatOrNaN(p.Lng),
			Moving:       p.Moving,
			ValidHR:      p.Heartrate != nil,
			ValidCadence: p.Cadence != nil,
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return err
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return err
	}
	return fw.Close()
}

var streamCSVHeader = []string{
	"offset_s", "distance_m", "speed_mps", "hr_bpm", "cadence_spm",
	"grade_pct", "altitude_m", "lat", "lng", "moving",
}

func writeStreamCSV(path string, stream *telemetry.Stream) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(streamCSVHeader); err != nil {
		return err
	}
	for _, p := range stream.Points {
		row := []string{
			strconv.Itoa(p.TimeOffset),
			formatFloatPtr(p.Distance),
			formatFloatPtr(p.Velocity),
			formatIntPtr(p.Heartrate),
			formatIntPtr(p.Cadence),
			formatFloatPtr(p.Grade),
			formatFloatPtr(p.Altitude),
			formatFloatPtr(p.Lat),
			formatFloatPtr(p.Lng),
			strconv.FormatBool(p.Moving),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

var segmentsCSVHeader = []string{
	"segment", "type", "start_s", "end_s", "duration_s",
	"avg_pace_s_per_km", "avg_hr_bpm", "avg_grade_pct",
}

func writeSegmentsCSV(path string, segments []analysis.Segment) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(segmentsCSVHeader); err != nil {
		return err
	}
	for i, seg := range segments {
		row := []string{
			strconv.Itoa(i + 1),
			string(seg.Type),
			strconv.Itoa(seg.StartOffset),
			strconv.Itoa(seg.EndOffset),
			strconv.Itoa(seg.DurationSeconds()),
			formatFloatPtr(seg.AvgPace),
			formatFloatPtr(seg.AvgHeartrate),
			formatFloatPtr(seg.AvgGrade),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// writeResultJSON writes the canonical result document, indented for
// reading but byte-equivalent to the stored payload once compacted.
func writeResultJSON(path string, result *analysis.Result) error {
	data, err := result.Encode()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func floatOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func intOrNaN(v *int) float64 {
	if v == nil {
		return math.NaN()
	}
	return float64(*v)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 6, 64)
}

func formatIntPtr(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
