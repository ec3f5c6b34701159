package config

import (
	"time"

	"github.com/caarlos0/env/v11"

	"runstream/internal/analysis"
)

// Server is the HTTP service configuration, read from the environment.
// DatabaseURL selects the postgres backend; when empty the server falls
// back to sqlite at SQLitePath.
type Server struct {
	Addr            string        `env:"RUNSTREAM_ADDR" envDefault:":8080"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	SQLitePath      string        `env:"RUNSTREAM_SQLITE_PATH" envDefault:"runstream.db"`
	APIKey          string        `env:"RUNSTREAM_API_KEY"`
	RateLimit       string        `env:"RUNSTREAM_RATE_LIMIT" envDefault:"120-M"`
	ShutdownTimeout time.Duration `env:"RUNSTREAM_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	ProviderClientID     string `env:"PROVIDER_CLIENT_ID"`
	ProviderClientSecret string `env:"PROVIDER_CLIENT_SECRET"`
	ProviderTokenURL     string `env:"PROVIDER_TOKEN_URL"`
	ProviderBaseURL      string `env:"PROVIDER_BASE_URL"`

	// Athlete calibration. Zero means unset; the analysis tier ladder keys
	// off which values genuinely exist.
	ThresholdHR float64 `env:"RUNSTREAM_THRESHOLD_HR"`
	MaxHR       float64 `env:"RUNSTREAM_MAX_HR"`
	RestingHR   float64 `env:"RUNSTREAM_RESTING_HR"`
}

func ReadServer() (Server, error) {
	return env.ParseAs[Server]()
}

// Calibration maps the configured athlete values to their analysis form,
// leaving unset values nil.
func (s Server) Calibration() analysis.Calibration {
	var calib analysis.Calibration
	if s.ThresholdHR > 0 {
		calib.ThresholdHR = &s.ThresholdHR
	}
	if s.MaxHR > 0 {
		calib.MaxHR = &s.MaxHR
	}
	if s.RestingHR > 0 {
		calib.RestingHR = &s.RestingHR
	}
	return calib
}
