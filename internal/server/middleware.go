package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"runstream/internal/xslog"
)

// RequestID tags each request and its context logger with an ID,
// honoring one supplied by the caller.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := xslog.WithAttrs(r.Context(), xslog.RequestID(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogging installs the base logger on the request context and logs
// each request with its status and duration. It must run before RequestID
// so the ID attaches to the installed logger.
func RequestLogging(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if log != nil {
				ctx = xslog.WithLogger(ctx, log)
			}
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r.WithContext(ctx))
			xslog.FromContext(ctx).Info("request",
				xslog.RequestMethod(r),
				xslog.RequestPath(r),
				xslog.RequestID(sw.Header().Get("X-Request-ID")),
				xslog.HTTPStatus(sw.status),
				xslog.Duration(time.Since(start)),
			)
		})
	}
}

// CORS adds permissive CORS headers for local dashboards.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// APIKeyAuth validates the X-API-Key header. An empty configured key
// disables the check for keyless local setups.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get("X-API-Key")
			if key == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing API key", Code: "unauthorized"})
				return
			}
			if key != apiKey {
				writeJSON(w, http.StatusForbidden, errorBody{Error: "invalid API key", Code: "forbidden"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// statusWriter wraps ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
