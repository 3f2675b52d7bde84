package api

import (
	"net/http"
	"time"
)

// Version is reported by /healthz; set at build time by the binaries.
var Version = "dev"

// HealthResponse is the JSON response for the /healthz endpoint
type HealthResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime,omitempty"`
	Version   string `json:"version"`
	Connected bool   `json:"wallet_connected"`
	WSClients int    `json:"ws_clients"`
	Reason    string `json:"reason,omitempty"`
}

// handleHealthz handles GET /healthz for load balancer probes.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	running := s.running
	startedAt := s.startedAt
	s.mu.RUnlock()

	if !running {
		s.writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:  "unhealthy",
			Reason:  "server not running",
			Version: Version,
		})
		return
	}

	resp := HealthResponse{
		Status:  "healthy",
		Uptime:  time.Since(startedAt).Round(time.Second).String(),
		Version: Version,
	}
	if s.sessions != nil {
		resp.Connected = s.sessions.Session().Connected
	}
	if s.wsHub != nil {
		resp.WSClients = s.wsHub.ClientCount()
	}
	s.writeJSON(w, http.StatusOK, resp)
}
