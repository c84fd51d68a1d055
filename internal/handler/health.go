package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to the pinger interface.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Health reports database connectivity and, when configured, Redis.
// Any failing dependency turns the response into a 503.
func Health(db pinger, redis pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := "ok"
		code := http.StatusOK
		checks := map[string]string{"database": "ok", "redis": "disabled"}

		if err := db.Ping(ctx); err != nil {
			checks["database"] = "unreachable"
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		if redis != nil {
			checks["redis"] = "ok"
			if err := redis.Ping(ctx); err != nil {
				checks["redis"] = "unreachable"
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "checks": checks})
	}
}
