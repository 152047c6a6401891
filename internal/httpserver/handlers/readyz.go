package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/concierge/internal/httpserver/deps"
	"github.com/MrSnakeDoc/concierge/internal/logger"
)

// readyTimeout bounds the cache backend ping.
const readyTimeout = 2 * time.Second

var timeNow = time.Now

type readyzResponse struct {
	Ready bool   `json:"ready"`
	Cache string `json:"cache"`
	Error string `json:"error,omitempty"`
}

// Readyz reports ready once the cache backend answers. The in-process cache is always ready.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")

		resp := readyzResponse{Ready: true, Cache: d.CacheBackend}
		if err := pingCache(r.Context(), d); err != nil {
			d.Logger.Warn("readiness check failed", logger.Error(err))
			resp.Ready = false
			resp.Error = err.Error()
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_ = json.NewEncoder(w).Encode(resp)
	}
}

func pingCache(ctx context.Context, d deps.Deps) error {
	if d.CachePinger == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	return d.CachePinger.Ping(ctx)
}
