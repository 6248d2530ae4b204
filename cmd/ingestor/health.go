package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/candlefeed/internal/metrics"
	"github.com/rickgao/candlefeed/internal/queue"
	"github.com/rickgao/candlefeed/internal/version"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type queueStats interface {
	Stats() queue.Stats
}

// createHealthHandler creates the HTTP handler for health checks and metrics.
func createHealthHandler(store pinger, q queueStats, m *metrics.Metrics, metricsPath string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Version    string                 `json:"version"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.String(),
			Components: make(map[string]interface{}),
		}

		// Check store
		if err := store.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["store"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["store"] = "connected"
		}

		stats := q.Stats()
		health.Components["queue"] = map[string]interface{}{
			"pending":  stats.Count,
			"capacity": stats.Capacity,
			"received": stats.TotalReceived,
			"sent":     stats.TotalSent,
			"rejected": stats.TotalRejected,
		}
		if stats.TotalRejected > 0 && health.Status == "healthy" {
			health.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(health); err != nil {
			logger.Warn("write health response", "error", err)
		}
	})

	mux.Handle(metricsPath, m.Handler())

	return mux
}
