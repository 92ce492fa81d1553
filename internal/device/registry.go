package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mitrajunior/esp32-controller-app/internal/connectivity"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides device management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating CRUD operations.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Device // Cached devices by ID
	cacheMu sync.RWMutex       // Protects cache
	logger  Logger
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	// Clear and rebuild cache with deep copies
	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		d := devices[i]
		r.cache[d.ID] = d.DeepCopy()
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// GetDevice retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	// Try cache first
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		// Return a deep copy to prevent external mutation of cache
		return cached.DeepCopy(), nil
	}

	// Fall back to repository (might be a new device not yet cached)
	device, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Cache for future lookups (store a deep copy)
	r.cacheMu.Lock()
	r.cache[device.ID] = device.DeepCopy()
	r.cacheMu.Unlock()

	return device, nil
}

// GetDeviceByAddress retrieves the device registered at host:port.
// Returns ErrDeviceNotFound if no device has that address.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) GetDeviceByAddress(ctx context.Context, host string, port int) (*Device, error) {
	r.cacheMu.RLock()
	for _, d := range r.cache {
		if d.Host == host && d.Port == port {
			cpy := d.DeepCopy()
			r.cacheMu.RUnlock()
			return cpy, nil
		}
	}
	populated := len(r.cache) > 0
	r.cacheMu.RUnlock()

	if populated {
		return nil, ErrDeviceNotFound
	}
	return r.repo.GetByAddress(ctx, host, port)
}

// ListDevices retrieves all devices ordered by name.
// The returned devices are deep copies; callers can safely modify them.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	populated := len(r.cache) > 0
	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		// Deep copy to prevent external mutation of cache
		devices = append(devices, *d.DeepCopy())
	}
	r.cacheMu.RUnlock()

	if !populated {
		// Fall back to repository
		return r.repo.List(ctx)
	}

	// Match the repository's ORDER BY name so both paths agree
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Name != devices[j].Name {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].ID < devices[j].ID
	})
	return devices, nil
}

// CreateDevice creates a new device.
// It generates an ID if needed, derives the protocol from the port,
// validates, and persists.
func (r *Registry) CreateDevice(ctx context.Context, device *Device) error {
	// Generate ID if not provided
	if device.ID == "" {
		device.ID = GenerateID()
	}

	if device.Type == "" {
		device.Type = TypeOther
	}

	// Protocol is derived from port, never trusted from the caller
	device.Protocol = connectivity.ProtocolForPort(device.Port)

	// Validate
	if err := ValidateDevice(device); err != nil {
		return err
	}

	// Persist
	if err := r.repo.Create(ctx, device); err != nil {
		return err
	}

	// Update cache (store a deep copy to prevent external modification)
	r.cacheMu.Lock()
	r.cache[device.ID] = device.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device created",
		"id", device.ID, "name", device.Name,
		"address", device.Address(), "protocol", device.Protocol)
	return nil
}

// UpdateDevice updates an existing device.
// The protocol is re-derived from the port before validation so a port
// change can never leave a stale protocol behind.
func (r *Registry) UpdateDevice(ctx context.Context, device *Device) error {
	if device.Type == "" {
		device.Type = TypeOther
	}

	device.Protocol = connectivity.ProtocolForPort(device.Port)

	// Validate
	if err := ValidateDevice(device); err != nil {
		return err
	}

	// Persist
	if err := r.repo.Update(ctx, device); err != nil {
		return err
	}

	// Update cache (store a deep copy to prevent external modification)
	r.cacheMu.Lock()
	r.cache[device.ID] = device.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device updated", "id", device.ID, "name", device.Name)
	return nil
}

// DeleteDevice removes a device.
func (r *Registry) DeleteDevice(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	// Update cache
	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("device deleted", "id", id)
	return nil
}

// MarkReachability records a probe verdict for a device. A reachable
// verdict also advances LastSeen; an unreachable one leaves LastSeen at
// the last successful contact.
func (r *Registry) MarkReachability(ctx context.Context, id string, reachable bool) error {
	now := time.Now().UTC()
	if err := r.repo.UpdateReachability(ctx, id, reachable, now); err != nil {
		return err
	}

	// Update cache using deep copy to prevent race conditions
	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		// Create a deep copy with updated reachability (atomic replacement)
		updated := cached.DeepCopy()
		updated.Reachable = reachable
		if reachable {
			updated.LastSeen = &now
		}
		updated.UpdatedAt = now
		r.cache[id] = updated
	}
	r.cacheMu.Unlock()

	r.logger.Debug("device reachability updated", "id", id, "reachable", reachable)
	return nil
}

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	TotalDevices int
	Reachable    int
	ByProtocol   map[connectivity.Protocol]int
	ByType       map[DeviceType]int
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{
		TotalDevices: len(r.cache),
		ByProtocol:   make(map[connectivity.Protocol]int),
		ByType:       make(map[DeviceType]int),
	}

	for _, d := range r.cache {
		if d.Reachable {
			stats.Reachable++
		}
		stats.ByProtocol[d.Protocol]++
		stats.ByType[d.Type]++
	}

	return stats
}
