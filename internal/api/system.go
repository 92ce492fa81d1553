package api

import (
	"net/http"
	"runtime"
	"time"
)

// ComponentHealth reports one backing component's check result.
type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthResponse is the system health envelope. Status is "ok" when every
// configured component passes its check and "degraded" otherwise; absent
// optional components are simply not listed.
type HealthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version"`
	Components map[string]ComponentHealth `json:"components"`
}

// handleSystemHealth runs the component health checks and reports them.
// The endpoint itself answering is the liveness signal, so the HTTP
// status is 200 even when a component is down.
func (s *Server) handleSystemHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	components := make(map[string]ComponentHealth)
	status := "ok"

	check := func(name string, hc HealthChecker) {
		if err := hc.HealthCheck(ctx); err != nil {
			components[name] = ComponentHealth{Status: "error", Error: err.Error()}
			status = "degraded"
			return
		}
		components[name] = ComponentHealth{Status: "ok"}
	}

	if s.db != nil {
		check("database", s.db)
	}
	if s.mqtt != nil {
		check("mqtt", s.mqtt)
	}
	if s.metrics != nil {
		check("influxdb", s.metrics)
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     status,
		Version:    s.version,
		Components: components,
	})
}

// SystemInfo is the controller information response.
type SystemInfo struct {
	Version       string        `json:"version"`
	StartedAt     string        `json:"started_at"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	Runtime       RuntimeInfo   `json:"runtime"`
	Devices       DeviceCounts  `json:"devices"`
	Monitor       *MonitorInfo  `json:"monitor,omitempty"`
	Events        *EventInfo    `json:"events,omitempty"`
	WebSocket     WSInfo        `json:"websocket"`
	Database      *DatabaseInfo `json:"database,omitempty"`
}

// RuntimeInfo contains Go runtime statistics.
type RuntimeInfo struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// DeviceCounts contains device registry statistics.
type DeviceCounts struct {
	Total      int            `json:"total"`
	Reachable  int            `json:"reachable"`
	ByProtocol map[string]int `json:"by_protocol"`
	ByType     map[string]int `json:"by_type"`
}

// MonitorInfo contains reachability monitor counters.
type MonitorInfo struct {
	Rounds      uint64 `json:"rounds"`
	Probes      uint64 `json:"probes"`
	Transitions uint64 `json:"transitions"`
	LastRound   string `json:"last_round,omitempty"`
}

// EventInfo contains event broker statistics.
type EventInfo struct {
	Subscribers int    `json:"subscribers"`
	Dropped     uint64 `json:"dropped"`
}

// WSInfo contains WebSocket hub statistics.
type WSInfo struct {
	ConnectedClients int `json:"connected_clients"`
}

// DatabaseInfo contains database connection pool statistics.
type DatabaseInfo struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// bytesPerMB converts byte counts to megabytes.
const bytesPerMB = 1024 * 1024

// handleSystemInfo returns version, uptime, and component statistics.
func (s *Server) handleSystemInfo(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	info := SystemInfo{
		Version:       s.version,
		StartedAt:     s.startTime.UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeInfo{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / bytesPerMB,
			MemoryTotalMB: float64(memStats.TotalAlloc) / bytesPerMB,
			NumGC:         memStats.NumGC,
		},
	}

	regStats := s.registry.GetStats()
	info.Devices = DeviceCounts{
		Total:      regStats.TotalDevices,
		Reachable:  regStats.Reachable,
		ByProtocol: make(map[string]int),
		ByType:     make(map[string]int),
	}
	for protocol, count := range regStats.ByProtocol {
		info.Devices.ByProtocol[string(protocol)] = count
	}
	for deviceType, count := range regStats.ByType {
		info.Devices.ByType[string(deviceType)] = count
	}

	if s.monitor != nil {
		ms := s.monitor.Stats()
		mi := &MonitorInfo{
			Rounds:      ms.RoundsTotal,
			Probes:      ms.ProbesTotal,
			Transitions: ms.TransitionsTotal,
		}
		if !ms.LastRound.IsZero() {
			mi.LastRound = ms.LastRound.UTC().Format(time.RFC3339)
		}
		info.Monitor = mi
	}

	if s.events != nil {
		info.Events = &EventInfo{
			Subscribers: s.events.Subscribers(),
			Dropped:     s.events.Dropped(),
		}
	}

	if s.hub != nil {
		info.WebSocket = WSInfo{ConnectedClients: s.hub.ClientCount()}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		info.Database = &DatabaseInfo{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, info)
}
