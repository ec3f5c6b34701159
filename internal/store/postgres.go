package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"runstream/internal/analysis"
	"runstream/internal/consent"
	"runstream/internal/telemetry"
)

// Postgres is the server backend, pooled over pgx.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// OpenPostgres connects a pool to dsn. Schema management is separate; run
// RunMigrations before first use.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// RunMigrations applies all pending migrations from the given directory.
func RunMigrations(dsn, migrationsPath string) error {
	m, err := migrate.New("file://"+migrationsPath, dsn)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func (s *Postgres) UpsertActivity(ctx context.Context, a *Activity) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO activities (id, athlete_id, name, sport, start_date, distance, moving_time, elapsed_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			athlete_id = EXCLUDED.athlete_id,
			name = EXCLUDED.name,
			sport = EXCLUDED.sport,
			start_date = EXCLUDED.start_date,
			distance = EXCLUDED.distance,
			moving_time = EXCLUDED.moving_time,
			elapsed_time = EXCLUDED.elapsed_time,
			updated_at = NOW()
	`, a.ID, a.AthleteID, a.Name, a.Sport, a.StartDate.UTC(), a.Distance, a.MovingTime, a.ElapsedTime)
	if err != nil {
		return fmt.Errorf("upserting activity: %w", err)
	}
	return nil
}

const pgActivityColumns = `id, athlete_id, name, sport, start_date, distance, moving_time, elapsed_time, stream_synced`

func (s *Postgres) GetActivity(ctx context.Context, id int64) (*Activity, error) {
	var a Activity
	err := s.pool.QueryRow(ctx,
		`SELECT `+pgActivityColumns+` FROM activities WHERE id = $1`, id).
		Scan(&a.ID, &a.AthleteID, &a.Name, &a.Sport, &a.StartDate,
			&a.Distance, &a.MovingTime, &a.ElapsedTime, &a.StreamSynced)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrActivityNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Postgres) ListActivities(ctx context.Context, athleteID int64, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+pgActivityColumns+`
		FROM activities
		WHERE athlete_id = $1
		ORDER BY start_date DESC
		LIMIT $2
	`, athleteID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPGActivities(rows)
}

func (s *Postgres) UnanalyzedActivities(ctx context.Context, athleteID int64) ([]Activity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pgActivityColumns+`
		FROM activities a
		WHERE a.athlete_id = $1
		AND a.stream_synced
		AND NOT EXISTS (SELECT 1 FROM results r WHERE r.activity_id = a.id)
		ORDER BY a.start_date DESC
	`, athleteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPGActivities(rows)
}

func (s *Postgres) UnsyncedActivities(ctx context.Context, athleteID int64, limit int) ([]Activity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pgActivityColumns+`
		FROM activities
		WHERE athlete_id = $1
		AND NOT stream_synced
		ORDER BY start_date ASC
		LIMIT $2
	`, athleteID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPGActivities(rows)
}

func collectPGActivities(rows pgx.Rows) ([]Activity, error) {
	var activities []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.AthleteID, &a.Name, &a.Sport, &a.StartDate,
			&a.Distance, &a.MovingTime, &a.ElapsedTime, &a.StreamSynced); err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

func (s *Postgres) SaveStream(ctx context.Context, activityID int64, stream *telemetry.Stream) error {
	channels, err := json.Marshal(stream.Availability.Present)
	if err != nil {
		return fmt.Errorf("encoding channels: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE activities SET channels = $1, stream_synced = TRUE, updated_at = NOW()
		WHERE id = $2
	`, channels, activityID)
	if err != nil {
		return fmt.Errorf("marking activity synced: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrActivityNotFound
	}

	if _, err := tx.Exec(ctx, "DELETE FROM streams WHERE activity_id = $1", activityID); err != nil {
		return fmt.Errorf("deleting existing streams: %w", err)
	}

	columns := []string{"activity_id", "time_offset", "distance", "velocity",
		"heartrate", "cadence", "grade", "altitude", "lat", "lng", "moving"}
	_, err = tx.CopyFrom(ctx, pgx.Identifier{"streams"}, columns,
		pgx.CopyFromSlice(len(stream.Points), func(i int) ([]any, error) {
			p := stream.Points[i]
			return []any{activityID, p.TimeOffset, p.Distance, p.Velocity,
				p.Heartrate, p.Cadence, p.Grade, p.Altitude, p.Lat, p.Lng, p.Moving}, nil
		}))
	if err != nil {
		return fmt.Errorf("copying stream points: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *Postgres) GetStream(ctx context.Context, activityID int64) (*telemetry.Stream, error) {
	var channels []byte
	var synced bool
	err := s.pool.QueryRow(ctx,
		"SELECT channels, stream_synced FROM activities WHERE id = $1", activityID).
		Scan(&channels, &synced)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrActivityNotFound
	}
	if err != nil {
		return nil, err
	}
	if !synced || len(channels) == 0 {
		return nil, ErrNoStream
	}

	var present []telemetry.Channel
	if err := json.Unmarshal(channels, &present); err != nil {
		return nil, fmt.Errorf("decoding channels: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT time_offset, distance, velocity, heartrate, cadence,
			grade, altitude, lat, lng, moving
		FROM streams
		WHERE activity_id = $1
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

func (s *Postgres) SaveResult(ctx context.Context, result *analysis.Result) error {
	payload, err := result.Encode()
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO results (id, activity_id, athlete_id, version, computed_at, tier, confidence, comparable, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, result.ID, result.ActivityID, result.AthleteID, result.Version,
		result.ComputedAt.UTC(), string(result.TierUsed), result.Confidence,
		result.CrossRunComparable, payload)
	if err != nil {
		return fmt.Errorf("inserting result version %d for activity %d: %w",
			result.Version, result.ActivityID, err)
	}
	return nil
}

func (s *Postgres) GetResult(ctx context.Context, id string) (*analysis.Result, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		"SELECT payload FROM results WHERE id = $1", id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}
	return analysis.DecodeResult(payload)
}

func (s *Postgres) ResultByVersion(ctx context.Context, activityID int64, version int) (*analysis.Result, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		"SELECT payload FROM results WHERE activity_id = $1 AND version = $2",
		activityID, version).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}
	return analysis.DecodeResult(payload)
}

func (s *Postgres) LatestResult(ctx context.Context, activityID int64) (*analysis.Result, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT payload FROM results
		WHERE activity_id = $1
		ORDER BY version DESC
		LIMIT 1
	`, activityID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}
	return analysis.DecodeResult(payload)
}

func (s *Postgres) ListResults(ctx context.Context, activityID int64) ([]ResultSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, activity_id, athlete_id, version, computed_at, tier, confidence, comparable
		FROM results
		WHERE activity_id = $1
		ORDER BY version DESC
	`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []ResultSummary
	for rows.Next() {
		var r ResultSummary
		var tier string
		if err := rows.Scan(&r.ID, &r.ActivityID, &r.AthleteID, &r.Version,
			&r.ComputedAt, &tier, &r.Confidence, &r.Comparable); err != nil {
			return nil, err
		}
		r.Tier = analysis.Tier(tier)
		summaries = append(summaries, r)
	}
	return summaries, rows.Err()
}

func (s *Postgres) NextResultVersion(ctx context.Context, activityID int64) (int, error) {
	var next int
	err := s.pool.QueryRow(ctx,
		"SELECT COALESCE(MAX(version), 0) + 1 FROM results WHERE activity_id = $1",
		activityID).Scan(&next)
	return next, err
}

func (s *Postgres) GetConsent(ctx context.Context, athleteID int64) (consent.Record, error) {
	record := consent.Record{AthleteID: athleteID}

	var state string
	var updatedAt time.Time
	err := s.pool.QueryRow(ctx,
		"SELECT state, updated_at FROM consent WHERE athlete_id = $1", athleteID).
		Scan(&state, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
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
	record.UpdatedAt = updatedAt
	return record, nil
}

func (s *Postgres) SetConsent(ctx context.Context, athleteID int64, state consent.State) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO consent (athlete_id, state, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (athlete_id) DO UPDATE SET
			state = EXCLUDED.state,
			updated_at = NOW()
	`, athleteID, state.String())
	return err
}

func (s *Postgres) GetCalibration(ctx context.Context, athleteID int64) (analysis.Calibration, error) {
	var cal analysis.Calibration
	err := s.pool.QueryRow(ctx,
		"SELECT threshold_hr, max_hr, resting_hr FROM calibrations WHERE athlete_id = $1",
		athleteID).Scan(&cal.ThresholdHR, &cal.MaxHR, &cal.RestingHR)
	if errors.Is(err, pgx.ErrNoRows) {
		// No row means nothing is known; the tier ladder falls through.
		return analysis.Calibration{}, nil
	}
	if err != nil {
		return analysis.Calibration{}, err
	}
	return cal, nil
}

func (s *Postgres) SetCalibration(ctx context.Context, athleteID int64, cal analysis.Calibration) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO calibrations (athlete_id, threshold_hr, max_hr, resting_hr, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (athlete_id) DO UPDATE SET
			threshold_hr = EXCLUDED.threshold_hr,
			max_hr = EXCLUDED.max_hr,
			resting_hr = EXCLUDED.resting_hr,
			updated_at = NOW()
	`, athleteID, cal.ThresholdHR, cal.MaxHR, cal.RestingHR)
	return err
}

func (s *Postgres) GetSyncState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		"SELECT value FROM sync_state WHERE key = $1", key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (s *Postgres) SetSyncState(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_state (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()
	`, key, value)
	return err
}
