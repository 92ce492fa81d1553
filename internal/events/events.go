package events

import "time"

// Event types published by the controller.
const (
	// TypeDeviceDiscovered is published for each device found by a scan.
	TypeDeviceDiscovered = "device_discovered"

	// TypeDeviceCreated is published when a device is registered.
	TypeDeviceCreated = "device_created"

	// TypeDeviceUpdated is published when a device record changes.
	TypeDeviceUpdated = "device_updated"

	// TypeDeviceDeleted is published when a device is removed.
	TypeDeviceDeleted = "device_deleted"

	// TypeReachabilityChanged is published when the monitor observes a
	// device transition between reachable and unreachable.
	TypeReachabilityChanged = "reachability_changed"

	// TypeCommandExecuted is published after a command dispatch, whether
	// it succeeded or failed.
	TypeCommandExecuted = "command_executed"
)

// Event is a single controller event.
//
// Data carries type-specific detail (the device record for lifecycle
// events, the command name and outcome for command_executed). Keys are
// stable per type; consumers should tolerate additions.
type Event struct {
	Type      string         `json:"type"`
	DeviceID  string         `json:"device_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
