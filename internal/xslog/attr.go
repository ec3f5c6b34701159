package xslog

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"
)

func Error(err error) slog.Attr {
	const errorKey = "error"
	return slog.String(errorKey, err.Error())
}

func RequestID(requestID string) slog.Attr {
	const requestIDKey = "request_id"
	return slog.String(requestIDKey, requestID)
}

func Stack() slog.Attr {
	const stackKey = "stack"
	return slog.String(stackKey, string(debug.Stack()))
}

func HTTPStatus(status int) slog.Attr {
	const statusKey = "status"
	return slog.Int(statusKey, status)
}

func Duration(duration time.Duration) slog.Attr {
	const durationKey = "duration"
	return slog.Duration(durationKey, duration)
}

func RequestMethod(r *http.Request) slog.Attr {
	const methodKey = "method"
	return slog.String(methodKey, r.Method)
}

func RequestPath(r *http.Request) slog.Attr {
	const pathKey = "path"
	return slog.String(pathKey, r.URL.Path)
}

func ActivityID(id int64) slog.Attr {
	const activityIDKey = "activity_id"
	return slog.Int64(activityIDKey, id)
}

func AthleteID(id int64) slog.Attr {
	const athleteIDKey = "athlete_id"
	return slog.Int64(athleteIDKey, id)
}

func ResultID(id string) slog.Attr {
	const resultIDKey = "result_id"
	return slog.String(resultIDKey, id)
}

func Tier(tier string) slog.Attr {
	const tierKey = "tier"
	return slog.String(tierKey, tier)
}

func Count(count int) slog.Attr {
	const countKey = "count"
	return slog.Int(countKey, count)
}

func Consent(state string) slog.Attr {
	const consentKey = "consent"
	return slog.String(consentKey, state)
}

func Start(t time.Time) slog.Attr {
	const startKey = "start"
	return slog.Time(startKey, t)
}
