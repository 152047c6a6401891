package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/MrSnakeDoc/concierge/internal/httpserver/deps"
	"github.com/MrSnakeDoc/concierge/internal/logger"
	"github.com/MrSnakeDoc/concierge/internal/scheduler"
)

const (
	modeOptimal  = "optimal"
	modeDegraded = "degraded"
	modeCritical = "critical"
	modeUnknown  = "unknown"
)

type cacheStatus struct {
	OK      bool   `json:"ok"`
	Backend string `json:"backend"`
	Error   string `json:"error,omitempty"`
}

type infraResponse struct {
	Mode       string                           `json:"mode"`
	Cache      cacheStatus                      `json:"cache"`
	LastProbe  string                           `json:"last_probe"`
	Downstream map[string]scheduler.ProbeStatus `json:"downstream"`
}

// Infra reports the cache backend and the last probe result of every downstream service.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")

		cs := cacheStatus{OK: true, Backend: d.CacheBackend}
		if err := pingCache(r.Context(), d); err != nil {
			cs.OK = false
			cs.Error = err.Error()
		}

		resp := infraResponse{
			Cache:      cs,
			LastProbe:  "never",
			Downstream: map[string]scheduler.ProbeStatus{},
		}
		if d.Probes != nil {
			snap, last := d.Probes.Snapshot()
			resp.Downstream = snap
			if !last.IsZero() {
				resp.LastProbe = last.UTC().Format("2006-01-02T15:04:05Z07:00")
			}
		}
		resp.Mode = determineMode(resp)

		_ = json.NewEncoder(w).Encode(resp)
	}
}

// determineMode: critical when the cache or every downstream is down, degraded when
// some downstream is down, unknown before the first probe round.
func determineMode(resp infraResponse) string {
	if !resp.Cache.OK {
		return modeCritical
	}
	if len(resp.Downstream) == 0 {
		return modeUnknown
	}

	down := 0
	for _, st := range resp.Downstream {
		if !st.OK {
			down++
		}
	}
	switch {
	case down == 0:
		return modeOptimal
	case down == len(resp.Downstream):
		return modeCritical
	default:
		return modeDegraded
	}
}

// TriggerProbe queues an immediate probe round.
func TriggerProbe(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.ProbeTrigger == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		select {
		case d.ProbeTrigger <- struct{}{}:
			d.Logger.Info("manual probe triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "queued"})
		default:
			d.Logger.Warn("probe round already queued",
				logger.String("remote_ip", r.RemoteAddr))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "already queued"})
		}
	}
}
