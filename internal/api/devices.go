package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mitrajunior/esp32-controller-app/internal/audit"
	"github.com/mitrajunior/esp32-controller-app/internal/control"
	"github.com/mitrajunior/esp32-controller-app/internal/device"
	"github.com/mitrajunior/esp32-controller-app/internal/events"
	"github.com/mitrajunior/esp32-controller-app/internal/infrastructure/influxdb"
)

// defaultHistoryWindow is how far back the history endpoint looks when
// the caller does not say.
const defaultHistoryWindow = 24 * time.Hour

// handleListDevices returns all registered devices.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.registry.ListDevices(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// createDeviceRequest is the payload for device creation. The password
// travels here rather than on the Device struct, which never serialises it.
type createDeviceRequest struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	Type     string `json:"type"`

	// Detect runs protocol detection before the record is written, so
	// the stored port is the one the device actually answers on.
	Detect bool `json:"detect"`
}

// handleCreateDevice creates a new device, optionally running detection first.
//
// With detect=true the detected port wins over the requested one; a device
// that answers nothing is still created, just marked unreachable, so slow
// or sleeping devices can be registered ahead of time.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev := device.Device{
		Name:     req.Name,
		Host:     req.Host,
		Port:     req.Port,
		Password: req.Password,
		Type:     device.DeviceType(req.Type),
	}

	detected := false
	if req.Detect {
		result, err := s.detector.Detect(r.Context(), req.Host, req.Port, req.Password)
		if err != nil {
			writeInternalError(w, "detection cancelled")
			return
		}
		if result.Reachable {
			detected = true
			dev.Port = result.Port
			dev.Reachable = true
			now := time.Now().UTC()
			dev.LastSeen = &now
		}
	}

	if err := s.registry.CreateDevice(r.Context(), &dev); err != nil {
		switch {
		case errors.Is(err, device.ErrDeviceExists):
			writeError(w, http.StatusConflict, ErrCodeConflict, "device with this address already exists")
		case isValidationError(err):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		default:
			writeInternalError(w, "failed to create device")
		}
		return
	}

	s.publishEvent(events.Event{
		Type:     events.TypeDeviceCreated,
		DeviceID: dev.ID,
		Data: map[string]any{
			"name":     dev.Name,
			"host":     dev.Host,
			"port":     dev.Port,
			"protocol": string(dev.Protocol),
		},
	})
	s.auditWrite(audit.ActionDeviceCreated, dev.ID, map[string]any{
		"name":     dev.Name,
		"host":     dev.Host,
		"port":     dev.Port,
		"detected": detected,
	})

	writeJSON(w, http.StatusCreated, dev)
}

// updateDeviceRequest is the payload for device updates. Pointer fields
// distinguish "not sent" from a deliberate zero value.
type updateDeviceRequest struct {
	Name     *string `json:"name"`
	Host     *string `json:"host"`
	Port     *int    `json:"port"`
	Password *string `json:"password"`
	Type     *string `json:"type"`
}

// handleUpdateDevice updates a device's registration fields.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	var req updateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.Host != nil {
		existing.Host = *req.Host
	}
	if req.Port != nil {
		existing.Port = *req.Port
	}
	if req.Password != nil {
		existing.Password = *req.Password
	}
	if req.Type != nil {
		existing.Type = device.DeviceType(*req.Type)
	}

	if err := s.registry.UpdateDevice(r.Context(), existing); err != nil {
		switch {
		case errors.Is(err, device.ErrDeviceExists):
			writeError(w, http.StatusConflict, ErrCodeConflict, "device with this address already exists")
		case isValidationError(err):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		default:
			writeInternalError(w, "failed to update device")
		}
		return
	}

	s.publishEvent(events.Event{
		Type:     events.TypeDeviceUpdated,
		DeviceID: existing.ID,
		Data: map[string]any{
			"name":     existing.Name,
			"host":     existing.Host,
			"port":     existing.Port,
			"protocol": string(existing.Protocol),
		},
	})
	s.auditWrite(audit.ActionDeviceUpdated, existing.ID, map[string]any{
		"name": existing.Name,
		"host": existing.Host,
		"port": existing.Port,
	})

	writeJSON(w, http.StatusOK, existing)
}

// handleDeleteDevice removes a device by ID.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.registry.DeleteDevice(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to delete device")
		return
	}

	s.publishEvent(events.Event{
		Type:     events.TypeDeviceDeleted,
		DeviceID: id,
	})
	s.auditWrite(audit.ActionDeviceDeleted, id, nil)

	w.WriteHeader(http.StatusNoContent)
}

// handleDeviceCommand dispatches one abstract command to a device over
// its detected transport and reports the outcome synchronously.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	var cmd control.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if cmd.Name == "" {
		writeBadRequest(w, "command name is required")
		return
	}

	started := time.Now()
	result, dispatchErr := s.dispatcher.Dispatch(r.Context(), dev, cmd)
	durationMs := float64(time.Since(started).Milliseconds())

	if dispatchErr != nil {
		// Terminal validation failures never touched the device; everything
		// else was a real attempt and is recorded as such.
		if !isTerminalCommandError(dispatchErr) {
			if s.metrics != nil {
				s.metrics.WriteCommandResult(dev.ID, cmd.Name, durationMs, false)
			}
			s.auditWrite(audit.ActionDeviceCommand, dev.ID, map[string]any{
				"command":   cmd.Name,
				"entity_id": cmd.EntityID,
				"ok":        false,
				"error":     dispatchErr.Error(),
			})
			if isTransportDown(dispatchErr) {
				s.noteReachability(r.Context(), dev, false)
			}
		}
		writeDispatchError(w, dispatchErr)
		return
	}

	if s.metrics != nil {
		s.metrics.WriteCommandResult(dev.ID, cmd.Name, durationMs, true)
	}
	s.auditWrite(audit.ActionDeviceCommand, dev.ID, map[string]any{
		"command":   cmd.Name,
		"entity_id": cmd.EntityID,
		"ok":        true,
	})
	s.noteReachability(r.Context(), dev, true)
	s.publishEvent(events.Event{
		Type:     events.TypeCommandExecuted,
		DeviceID: dev.ID,
		Data: map[string]any{
			"command":     cmd.Name,
			"entity_id":   cmd.EntityID,
			"duration_ms": result.Duration.Milliseconds(),
		},
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"command":     result.Command,
		"device_id":   result.DeviceID,
		"duration_ms": result.Duration.Milliseconds(),
		"detail":      result.Detail,
	})
}

// handleDeviceStatus fetches a live status snapshot from the device.
// Offline is reported in the body, not as an HTTP error; this endpoint
// has no side effects on the stored reachability flag.
func (s *Server) handleDeviceStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	status, err := s.dispatcher.FetchStatus(r.Context(), dev)
	if err != nil {
		// FetchStatus only errors on caller cancellation.
		writeInternalError(w, "status fetch cancelled")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": dev.ID,
		"online":    status.Online,
		"detail":    status.Detail,
	})
}

// handleDetectDevice re-runs protocol detection for a registered device
// and persists a changed port. An unreachable verdict is a 200 with
// reachable=false - it is an answer, not a failure.
func (s *Server) handleDetectDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	portBefore := dev.Port
	result, err := s.detector.Detect(r.Context(), dev.Host, dev.Port, dev.Password)
	if err != nil {
		writeInternalError(w, "detection cancelled")
		return
	}

	if result.Reachable {
		if result.Port != dev.Port {
			dev.Port = result.Port
			if updateErr := s.registry.UpdateDevice(r.Context(), dev); updateErr != nil {
				writeInternalError(w, "failed to persist detected port")
				return
			}
			s.publishEvent(events.Event{
				Type:     events.TypeDeviceUpdated,
				DeviceID: dev.ID,
				Data: map[string]any{
					"port":     dev.Port,
					"protocol": string(dev.Protocol),
				},
			})
		}
		s.noteReachability(r.Context(), dev, true)
	} else {
		s.noteReachability(r.Context(), dev, false)
	}

	s.auditWrite(audit.ActionDetectionRun, dev.ID, map[string]any{
		"host":        dev.Host,
		"port_before": portBefore,
		"reachable":   result.Reachable,
		"port_after":  result.Port,
	})

	resp := map[string]any{
		"device_id": dev.ID,
		"reachable": result.Reachable,
	}
	if result.Reachable {
		resp["port"] = result.Port
		resp["protocol"] = result.Protocol
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDeviceHistory returns the device's reachability samples from the
// metrics store. Requires InfluxDB; without it the endpoint reports 503.
//
// Query parameters:
//   - since: look-back window as a Go duration (default 24h, e.g. 90m, 7h)
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.registry.GetDevice(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	if s.metrics == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeMetricsDisabled,
			"reachability history requires a metrics backend")
		return
	}

	window := defaultHistoryWindow
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			writeBadRequest(w, "since must be a positive duration (e.g. 90m, 24h)")
			return
		}
		window = parsed
	}

	samples, err := s.metrics.QueryReachability(r.Context(), id, time.Now().Add(-window))
	if err != nil {
		if errors.Is(err, influxdb.ErrNotConnected) {
			writeError(w, http.StatusServiceUnavailable, ErrCodeMetricsDisabled,
				"metrics backend not connected")
			return
		}
		s.logger.Error("history query failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to query history")
		return
	}

	if samples == nil {
		samples = []influxdb.ReachabilitySample{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"since":     window.String(),
		"samples":   samples,
		"count":     len(samples),
	})
}

// isValidationError checks whether an error is a device validation error.
// ValidateDevice wraps several sentinel errors, so all of them are checked
// rather than just ErrInvalidDevice.
func isValidationError(err error) bool {
	return errors.Is(err, device.ErrInvalidDevice) ||
		errors.Is(err, device.ErrInvalidName) ||
		errors.Is(err, device.ErrInvalidHost) ||
		errors.Is(err, device.ErrInvalidPort) ||
		errors.Is(err, device.ErrInvalidDeviceType)
}
