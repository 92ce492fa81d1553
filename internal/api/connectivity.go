package api

import (
	"encoding/json"
	"net/http"

	"github.com/mitrajunior/esp32-controller-app/internal/audit"
)

// connectivityTestRequest is the payload for an ad-hoc detection run
// against an address that need not be registered.
type connectivityTestRequest struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
}

// handleConnectivityTest probes an arbitrary address with the full
// detection ladder and reports the winning port and protocol. Unreachable
// is a 200 with reachable=false; only cancellation is an error.
func (s *Server) handleConnectivityTest(w http.ResponseWriter, r *http.Request) {
	var req connectivityTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Host == "" {
		writeBadRequest(w, "host is required")
		return
	}
	if req.Port < 0 || req.Port > 65535 {
		writeBadRequest(w, "port must be between 0 and 65535")
		return
	}

	result, err := s.detector.Detect(r.Context(), req.Host, req.Port, req.Password)
	if err != nil {
		writeInternalError(w, "detection cancelled")
		return
	}

	s.auditWrite(audit.ActionDetectionRun, "", map[string]any{
		"host":      req.Host,
		"port":      req.Port,
		"reachable": result.Reachable,
	})

	resp := map[string]any{
		"host":      req.Host,
		"reachable": result.Reachable,
	}
	if result.Reachable {
		resp["port"] = result.Port
		resp["protocol"] = result.Protocol
	}
	writeJSON(w, http.StatusOK, resp)
}
