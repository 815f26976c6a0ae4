package api

import (
	"context"
	"net/http"
	"time"

	"sealbin/svc/store"
	"sealbin/svc/util"
)

type HealthResponse struct {
	Status string `json:"status"`
}
type ReadyResponse struct {
	Ready    bool        `json:"ready"`
	Degraded bool        `json:"degraded"`
	Store    store.Stats `json:"store"`
	Redis    string      `json:"redis"`
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Ready reports 503 only when a configured dependency is down. A full store
// marks the instance degraded but it can still serve reads.
func (s *Server) Ready(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{
		Ready: true,
		Store: s.paste.Stats(),
		Redis: "unconfigured",
	}
	if resp.Store.MaxEntries > 0 && resp.Store.Entries >= resp.Store.MaxEntries {
		resp.Degraded = true
	}
	if resp.Store.MaxBytes > 0 && resp.Store.Bytes >= resp.Store.MaxBytes {
		resp.Degraded = true
	}
	if s.rdb != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := s.rdb.Ping(ctx); err != nil {
			util.Error().Err(err).Msg("redis health check failed")
			resp.Redis = "down"
			resp.Ready = false
		} else {
			resp.Redis = "up"
		}
	}
	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
