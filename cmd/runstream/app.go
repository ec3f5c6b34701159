package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"runstream/internal/auth"
	"runstream/internal/config"
	"runstream/internal/consent"
	"runstream/internal/provider"
	"runstream/internal/service"
	"runstream/internal/store"
)

// app wires the CLI's service stack: file config, local sqlite, and a
// provider client when an athlete token is stored.
type app struct {
	cfg *config.Config
	st  store.Store
	svc *service.Service

	// tokenAthlete is the athlete the stored token belongs to, zero when
	// not authenticated.
	tokenAthlete int64
}

// calibOverrides are the analyze command's flag values; zero means keep
// the config value.
type calibOverrides struct {
	thresholdHR float64
	maxHR       float64
	restingHR   float64
}

func openApp(ctx context.Context, overrides calibOverrides) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return nil, err
	}
	st, err := store.OpenSQLite(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	source, tokenAthlete := providerFromToken(ctx, cfg)

	calib := cfg.Calibration()
	if overrides.thresholdHR > 0 {
		calib.ThresholdHR = &overrides.thresholdHR
	}
	if overrides.maxHR > 0 {
		calib.MaxHR = &overrides.maxHR
	}
	if overrides.restingHR > 0 {
		calib.RestingHR = &overrides.restingHR
	}

	return &app{
		cfg:          cfg,
		st:           st,
		svc:          service.New(st, source, calib),
		tokenAthlete: tokenAthlete,
	}, nil
}

func (a *app) Close() error {
	return a.st.Close()
}

// athleteID resolves, in order: the flag, the config, the stored token.
func (a *app) athleteID(flag int64) (int64, error) {
	if flag != 0 {
		return flag, nil
	}
	if a.cfg.Athlete.AthleteID != 0 {
		return a.cfg.Athlete.AthleteID, nil
	}
	if a.tokenAthlete != 0 {
		return a.tokenAthlete, nil
	}
	return 0, errors.New("no athlete configured; pass --athlete or set athlete.athlete_id in the config")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if errors.Is(err, config.ErrNoConfig) {
		return nil, errors.New("no config file found; run 'runstream init' first")
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// providerFromToken builds the sync source from the stored athlete token.
// Returns nil when the athlete has not authorized yet; only sync needs it.
func providerFromToken(ctx context.Context, cfg *config.Config) (service.TelemetrySource, int64) {
	stored, err := auth.LoadToken()
	if err != nil {
		return nil, 0
	}
	ts := auth.NewTokenSource(auth.NewOAuthConfig(cfg.Provider), stored.Token, func(fresh *oauth2.Token) error {
		return auth.SaveToken(&auth.Result{Token: fresh, AthleteID: stored.AthleteID})
	})
	client := provider.New(provider.Config{
		BaseURL:    cfg.Provider.BaseURL,
		HTTPClient: oauth2.NewClient(ctx, ts),
	})
	return client, stored.AthleteID
}

// consentHint layers CLI guidance onto the processing-consent sentinels.
func consentHint(err error) error {
	switch {
	case errors.Is(err, consent.ErrUnknown):
		return fmt.Errorf("%w\n\nRecord your decision first: 'runstream consent grant' (or 'deny')", err)
	case errors.Is(err, consent.ErrDenied):
		return fmt.Errorf("%w\n\nProcessing stays off until you run 'runstream consent grant'", err)
	default:
		return err
	}
}
