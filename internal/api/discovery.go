package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/mitrajunior/esp32-controller-app/internal/audit"
	"github.com/mitrajunior/esp32-controller-app/internal/device"
	"github.com/mitrajunior/esp32-controller-app/internal/discovery"
	"github.com/mitrajunior/esp32-controller-app/internal/events"
)

// handleDiscoveryScan runs one discovery pass over the local network.
//
// Every device found at an address the registry does not know yet raises
// a device_discovered event. With merge=true those devices are also
// registered on the spot (named after their announcement, classified as
// "other" until someone edits them).
//
// Query parameters:
//   - merge: "true" to create registry entries for unknown devices
func (s *Server) handleDiscoveryScan(w http.ResponseWriter, r *http.Request) {
	merge := r.URL.Query().Get("merge") == "true"
	ctx := r.Context()

	started := time.Now()
	found, err := s.discovery.Discover(ctx)
	if err != nil {
		// Only multicast setup failure or cancellation lands here; probe
		// misses are normal results.
		s.logger.Error("discovery scan failed", "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeDiscoveryFailed, err.Error())
		return
	}
	durationMs := float64(time.Since(started).Milliseconds())

	created := 0
	unknown := 0
	for _, d := range found {
		if _, lookupErr := s.registry.GetDeviceByAddress(ctx, d.Host, d.Port); lookupErr == nil {
			continue // already registered
		} else if !errors.Is(lookupErr, device.ErrDeviceNotFound) {
			s.logger.Warn("device lookup failed during scan", "host", d.Host, "error", lookupErr)
			continue
		}

		unknown++
		s.publishEvent(events.Event{
			Type: events.TypeDeviceDiscovered,
			Data: map[string]any{
				"name":   d.Name,
				"host":   d.Host,
				"port":   d.Port,
				"source": d.Source,
			},
		})

		if !merge {
			continue
		}

		name := d.Name
		if name == "" {
			name = d.Host
		}
		now := time.Now().UTC()
		dev := device.Device{
			Name:      name,
			Host:      d.Host,
			Port:      d.Port,
			Type:      device.TypeOther,
			Reachable: true, // it just answered the scan
			LastSeen:  &now,
		}
		if createErr := s.registry.CreateDevice(ctx, &dev); createErr != nil {
			s.logger.Warn("failed to register discovered device",
				"host", d.Host, "port", d.Port, "error", createErr)
			continue
		}
		created++
		s.publishEvent(events.Event{
			Type:     events.TypeDeviceCreated,
			DeviceID: dev.ID,
			Data: map[string]any{
				"name":     dev.Name,
				"host":     dev.Host,
				"port":     dev.Port,
				"protocol": string(dev.Protocol),
				"source":   d.Source,
			},
		})
	}

	if s.metrics != nil {
		s.metrics.WriteDiscoveryRun("scan", len(found), durationMs)
	}
	s.auditWrite(audit.ActionDiscoveryRun, "", map[string]any{
		"found":   len(found),
		"unknown": unknown,
		"created": created,
		"merge":   merge,
	})

	if found == nil {
		found = []discovery.DiscoveredDevice{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices":     found,
		"count":       len(found),
		"unknown":     unknown,
		"created":     created,
		"duration_ms": int64(durationMs),
	})
}
