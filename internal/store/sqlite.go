package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"runstream/internal/analysis"
	"runstream/internal/consent"
	"runstream/internal/telemetry"
)

// SQLite is the embedded backend used by the CLI and single-node deployments.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens the database at path, creating the file and schema as
// needed.
func OpenSQLite(path string) (*SQLite, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// migrateSQLite runs all schema migrations
func migrateSQLite(db *sql.DB) error {
	migrations := []string{
		// Activities (summary rows)
		`CREATE TABLE IF NOT EXISTS activities (
			id INTEGER PRIMARY KEY,
			athlete_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			sport TEXT NOT NULL DEFAULT 'run',
			start_date TEXT NOT NULL,
			distance REAL NOT NULL,
			moving_time INTEGER NOT NULL,
			elapsed_time INTEGER NOT NULL,
			channels TEXT,
			stream_synced INTEGER NOT NULL DEFAULT 0,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_activities_athlete ON activities(athlete_id)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_start_date ON activities(start_date)`,

		// Aligned telemetry, one row per second
		`CREATE TABLE IF NOT EXISTS streams (
			activity_id INTEGER NOT NULL,
			time_offset INTEGER NOT NULL,
			distance REAL,
			velocity REAL,
			heartrate INTEGER,
			cadence INTEGER,
			grade REAL,
			altitude REAL,
			lat REAL,
			lng REAL,
			moving INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (activity_id, time_offset),
			FOREIGN KEY (activity_id) REFERENCES activities(id) ON DELETE CASCADE
		)`,

		// Immutable versioned analysis results
		`CREATE TABLE IF NOT EXISTS results (
			id TEXT PRIMARY KEY,
			activity_id INTEGER NOT NULL,
			athlete_id INTEGER NOT NULL,
			version INTEGER NOT NULL,
			computed_at TEXT NOT NULL,
			tier TEXT NOT NULL,
			confidence REAL NOT NULL,
			comparable INTEGER NOT NULL,
			payload BLOB NOT NULL,
			UNIQUE (activity_id, version),
			FOREIGN KEY (activity_id) REFERENCES activities(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_results_activity ON results(activity_id)`,

		// Consent ledger, one row per athlete
		`CREATE TABLE IF NOT EXISTS consent (
			athlete_id INTEGER PRIMARY KEY,
			state TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,

		// Athlete reference values; NULL column = value not known
		`CREATE TABLE IF NOT EXISTS calibrations (
			athlete_id INTEGER PRIMARY KEY,
			threshold_hr REAL,
			max_hr REAL,
			resting_hr REAL,
			updated_at TEXT NOT NULL
		)`,

		// Sync state (key-value store for sync tracking)
		`CREATE TABLE IF NOT EXISTS sync_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}

	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) UpsertActivity(ctx context.Context, a *Activity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activities (id, athlete_id, name, sport, start_date, distance, moving_time, elapsed_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			athlete_id = excluded.athlete_id,
			name = excluded.name,
			sport = excluded.sport,
			start_date = excluded.start_date,
			distance = excluded.distance,
			moving_time = excluded.moving_time,
			elapsed_time = excluded.elapsed_time,
			updated_at = CURRENT_TIMESTAMP
	`, a.ID, a.AthleteID, a.Name, a.Sport, a.StartDate.UTC().Format(time.RFC3339), a.Distance, a.MovingTime, a.ElapsedTime)
	if err != nil {
		return fmt.Errorf("upserting activity: %w", err)
	}
	return nil
}

const sqliteActivityColumns = `id, athlete_id, name, sport, start_date, distance, moving_time, elapsed_time, stream_synced`

func (s *SQLite) GetActivity(ctx context.Context, id int64) (*Activity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteActivityColumns+` FROM activities WHERE id = ?`, id)
	a, err := scanSQLiteActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrActivityNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *SQLite) ListActivities(ctx context.Context, athleteID int64, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteActivityColumns+`
		FROM activities
		WHERE athlete_id = ?
		ORDER BY start_date DESC
		LIMIT ?
	`, athleteID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSQLiteActivities(rows)
}

func (s *SQLite) UnanalyzedActivities(ctx context.Context, athleteID int64) ([]Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteActivityColumns+`
		FROM activities a
		WHERE a.athlete_id = ?
		AND a.stream_synced = 1
		AND NOT EXISTS (SELECT 1 FROM results r WHERE r.activity_id = a.id)
		ORDER BY a.start_date DESC
	`, athleteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSQLiteActivities(rows)
}

func (s *SQLite) UnsyncedActivities(ctx context.Context, athleteID int64, limit int) ([]Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteActivityColumns+`
		FROM activities
		WHERE athlete_id = ?
		AND stream_synced = 0
		ORDER BY start_date ASC
		LIMIT ?
	`, athleteID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSQLiteActivities(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteActivity(row rowScanner) (*Activity, error) {
	var a Activity
	var startDate string
	if err := row.Scan(&a.ID, &a.AthleteID, &a.Name, &a.Sport, &startDate,
		&a.Distance, &a.MovingTime, &a.ElapsedTime, &a.StreamSynced); err != nil {
		return nil, err
	}
	parsed, err := time.Parse(time.RFC3339, startDate)
	if err != nil {
		return nil, fmt.Errorf("parsing start date %q: %w", startDate, err)
	}
	a.StartDate = parsed
	return &a, nil
}

func collectSQLiteActivities(rows *sql.Rows) ([]Activity, error) {
	var activities []Activity
	for rows.Next() {
		a, err := scanSQLiteActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, *a)
	}
	return activities, rows.Err()
}

// SaveStream replaces any stored telemetry for the activity and records
// which channels the aligned stream carries.
func (s *SQLite) SaveStream(ctx context.Context, activityID int64, stream *telemetry.Stream) error {
	channels, err := json.Marshal(stream.Availability.Present)
	if err != nil {
		return fmt.Errorf("encoding channels: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE activities SET channels = ?, stream_synced = 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, string(channels), activityID)
	if err != nil {
		return fmt.Errorf("marking activity synced: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrActivityNotFound
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM streams WHERE activity_id = ?", activityID); err != nil {
		return fmt.Errorf("deleting existing streams: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO streams (
			activity_id, time_offset, distance, velocity, heartrate, cadence,
			grade, altitude, lat, lng, moving
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range stream.Points {
		_, err := stmt.ExecContext(ctx,
			activityID, p.TimeOffset, p.Distance, p.Velocity, p.Heartrate,
			p.Cadence, p.Grade, p.Altitude, p.Lat, p.Lng, p.Moving,
		)
		if err != nil {
			return fmt.Errorf("inserting stream point: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SQLite) GetStream(ctx context.Context, activityID int64) (*telemetry.Stream, error) {
	var channels sql.NullString
	var synced bool
	err := s.db.QueryRowContext(ctx,
		"SELECT channels, stream_synced FROM activities WHERE id = ?", activityID).
		Scan(&channels, &synced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrActivityNotFound
	}
	if err != nil {
		return nil, err
	}
	if !synced || !channels.Valid {
		return nil, ErrNoStream
	}

	var present []telemetry.Channel
	if err := json.Unmarshal([]byte(channels.String), &present); err != nil {
		return nil, fmt.Errorf("decoding channels: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT time_offset, distance, velocity, heartrate, cadence,
			grade, altitude, lat, lng, moving
		FROM streams
		WHERE activity_id = ?
		ORDER BY time_offset
	`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []telemetry.TelemetryPoint
	for rows.Next() {
		var p telemetry.TelemetryPoint
		err := rows.Scan(&p.TimeOffset, &p.Distance, &p.Velocity, &p.Heartrate,
			&p.Cadence, &p.Grade, &p.Altitude, &p.Lat, &p.Lng, &p.Moving)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, ErrNoStream
	}

	return &telemetry.Stream{
		Points:       points,
		Availability: telemetry.AvailabilityFor(present),
	}, nil
}

// SaveResult appends one immutable result row. Versions are never
// overwritten; a duplicate (activity, version) insert fails.
func (s *SQLite) SaveResult(ctx context.Context, result *analysis.Result) error {
	payload, err := result.Encode()
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results (id, activity_id, athlete_id, version, computed_at, tier, confidence, comparable, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, result.ID, result.ActivityID, result.AthleteID, result.Version,
		result.ComputedAt.UTC().Format(time.RFC3339), string(result.TierUsed),
		result.Confidence, result.CrossRunComparable, payload)
	if err != nil {
		return fmt.Errorf("inserting result version %d for activity %d: %w",
			result.Version, result.ActivityID, err)
	}
	return nil
}

func (s *SQLite) GetResult(ctx context.Context, id string) (*analysis.Result, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM results WHERE id = ?", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}
	return analysis.DecodeResult(payload)
}

func (s *SQLite) ResultByVersion(ctx context.Context, activityID int64, version int) (*analysis.Result, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM results WHERE activity_id = ? AND version = ?",
		activityID, version).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}
	return analysis.DecodeResult(payload)
}

func (s *SQLite) LatestResult(ctx context.Context, activityID int64) (*analysis.Result, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM results
		WHERE activity_id = ?
		ORDER BY version DESC
		LIMIT 1
	`, activityID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}
	return analysis.DecodeResult(payload)
}

func (s *SQLite) ListResults(ctx context.Context, activityID int64) ([]ResultSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, activity_id, athlete_id, version, computed_at, tier, confidence, comparable
		FROM results
		WHERE activity_id = ?
		ORDER BY version DESC
	`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []ResultSummary
	for rows.Next() {
		var r ResultSummary
		var computedAt, tier string
		if err := rows.Scan(&r.ID, &r.ActivityID, &r.AthleteID, &r.Version,
			&computedAt, &tier, &r.Confidence, &r.Comparable); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339, computedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing computed_at %q: %w", computedAt, err)
		}
		r.ComputedAt = parsed
		r.Tier = analysis.Tier(tier)
		summaries = append(summaries, r)
	}
	return summaries, rows.Err()
}

func (s *SQLite) NextResultVersion(ctx context.Context, activityID int64) (int, error) {
	var next int
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) + 1 FROM results WHERE activity_id = ?",
		activityID).Scan(&next)
	return next, err
}

func (s *SQLite) GetConsent(ctx context.Context, athleteID int64) (consent.Record, error) {
	record := consent.Record{AthleteID: athleteID}

	var state, updatedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT state, updated_at FROM consent WHERE athlete_id = ?", athleteID).
		Scan(&state, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// No row means the athlete was never asked.
		return record, nil
	}
	if err != nil {
		return record, err
	}

	parsed, err := consent.Parse(state)
	if err != nil {
		return record, fmt.Errorf("consent row for athlete %d: %w", athleteID, err)
	}
	record.State = parsed
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		record.UpdatedAt = t
	}
	return record, nil
}

func (s *SQLite) SetConsent(ctx context.Context, athleteID int64, state consent.State) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consent (athlete_id, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (athlete_id) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at
	`, athleteID, state.String(), time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *SQLite) GetCalibration(ctx context.Context, athleteID int64) (analysis.Calibration, error) {
	var cal analysis.Calibration
	err := s.db.QueryRowContext(ctx,
		"SELECT threshold_hr, max_hr, resting_hr FROM calibrations WHERE athlete_id = ?",
		athleteID).Scan(&cal.ThresholdHR, &cal.MaxHR, &cal.RestingHR)
	if errors.Is(err, sql.ErrNoRows) {
		// No row means nothing is known; the tier ladder falls through.
		return analysis.Calibration{}, nil
	}
	if err != nil {
		return analysis.Calibration{}, err
	}
	return cal, nil
}

func (s *SQLite) SetCalibration(ctx context.Context, athleteID int64, cal analysis.Calibration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calibrations (athlete_id, threshold_hr, max_hr, resting_hr, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (athlete_id) DO UPDATE SET
			threshold_hr = excluded.threshold_hr,
			max_hr = excluded.max_hr,
			resting_hr = excluded.resting_hr,
			updated_at = excluded.updated_at
	`, athleteID, cal.ThresholdHR, cal.MaxHR, cal.RestingHR,
		time.Now().UTC().Format(time.RFC3339))
	return err
}

// GetSyncState retrieves a sync state value by key.
// Returns empty string if key doesn't exist.
func (s *SQLite) GetSyncState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM sync_state WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (s *SQLite) SetSyncState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}
