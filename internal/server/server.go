// Package server exposes the pipeline over HTTP. Reads are open;
// mutations sit behind the API key. Consent failures map to distinct
// status codes so clients can tell an unanswered athlete from a refusal.
package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ulule/limiter/v3"
	mhttp "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"runstream/internal/config"
	"runstream/internal/service"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	svc    *service.Service
	log    *slog.Logger
	apiKey string
	router chi.Router
}

// New creates a server with all routes configured.
func New(svc *service.Service, cfg config.Server, log *slog.Logger) (*Server, error) {
	rate, err := limiter.NewRateFromFormatted(cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("parse rate limit %q: %w", cfg.RateLimit, err)
	}
	rateLimit := mhttp.NewMiddleware(limiter.New(memory.NewStore(), rate))

	s := &Server{
		svc:    svc,
		log:    log,
		apiKey: cfg.APIKey,
		router: chi.NewRouter(),
	}
	s.routes(rateLimit)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes(rateLimit *mhttp.Middleware) {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(RequestID)
	s.router.Use(CORS)
	s.router.Use(rateLimit.Handler)

	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/activities", s.handleListActivities)
		r.Get("/activities/{id}", s.handleGetActivity)
		r.Get("/activities/{id}/channels", s.handleGetChannels)
		r.Get("/activities/{id}/results", s.handleListResults)
		r.Get("/activities/{id}/results/latest", s.handleLatestResult)
		r.Get("/activities/{id}/results/{version}", s.handleResultByVersion)
		r.Get("/results/{id}", s.handleGetResult)
		r.Get("/compare", s.handleCompare)
		r.Get("/athletes/{id}/consent", s.handleGetConsent)
		r.Get("/athletes/{id}/calibration", s.handleGetCalibration)

		// Mutations require the API key.
		r.Group(func(r chi.Router) {
			r.Use(APIKeyAuth(s.apiKey))
			r.Post("/activities/{id}/ingest", s.handleIngest)
			r.Post("/activities/{id}/analyze", s.handleAnalyze)
			r.Put("/athletes/{id}/consent", s.handleSetConsent)
			r.Put("/athletes/{id}/calibration", s.handleSetCalibration)
			r.Post("/sync", s.handleSync)
		})
	})
}
