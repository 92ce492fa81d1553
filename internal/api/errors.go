package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mitrajunior/esp32-controller-app/internal/connectivity"
	"github.com/mitrajunior/esp32-controller-app/internal/control"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest = "bad_request"
	ErrCodeNotFound   = "not_found"
	ErrCodeConflict   = "conflict"
	ErrCodeInternal   = "internal_error"
	ErrCodeValidation = "validation_error"

	// Dispatch failure codes, one per branch of the failure taxonomy so
	// callers can tell "device down" from "bad command" from "slow network".
	ErrCodeUnreachable        = "device_unreachable"
	ErrCodeUnsupportedCommand = "unsupported_command"
	ErrCodeTimeout            = "timeout"
	ErrCodeHandshakeFailed    = "handshake_failed"

	ErrCodeDiscoveryFailed = "discovery_failed"
	ErrCodeMetricsDisabled = "metrics_disabled"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDispatchError maps a dispatch failure onto an HTTP status and code.
//
// Command and payload problems are the caller's fault (400); a device
// that cannot be reached or refuses the handshake is a bad gateway (502);
// an exceeded budget is a gateway timeout (504). Anything else is a 500.
func writeDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, connectivity.ErrUnsupportedCommand):
		writeError(w, http.StatusBadRequest, ErrCodeUnsupportedCommand, err.Error())
	case errors.Is(err, control.ErrInvalidCommand):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, connectivity.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, err.Error())
	case errors.Is(err, connectivity.ErrHandshake):
		writeError(w, http.StatusBadGateway, ErrCodeHandshakeFailed, err.Error())
	case errors.Is(err, connectivity.ErrUnreachable):
		writeError(w, http.StatusBadGateway, ErrCodeUnreachable, err.Error())
	default:
		writeInternalError(w, "command dispatch failed")
	}
}

// isTerminalCommandError reports whether a dispatch failure was decided
// before any I/O: an unknown command name or a malformed payload. These
// never reached the device, so no metrics or reachability bookkeeping apply.
func isTerminalCommandError(err error) bool {
	return errors.Is(err, connectivity.ErrUnsupportedCommand) ||
		errors.Is(err, control.ErrInvalidCommand)
}

// isTransportDown reports whether a dispatch failure indicates the device
// could not be contacted at all.
func isTransportDown(err error) bool {
	return errors.Is(err, connectivity.ErrUnreachable) ||
		errors.Is(err, connectivity.ErrTimeout)
}
