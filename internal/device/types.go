package device

import (
	"net"
	"strconv"
	"time"

	"github.com/mitrajunior/esp32-controller-app/internal/connectivity"
)

// Device represents one controllable node on the local network.
// This matches the database schema in migrations/20260119_090000_create_devices.up.sql.
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// Addressing. Port is authoritative for protocol selection: the
	// Protocol field is stored denormalised for querying but is always
	// recomputed from Port on write.
	Host     string                `json:"host"`
	Port     int                   `json:"port"`
	Protocol connectivity.Protocol `json:"protocol"`

	// Password is the optional pre-shared native-handshake secret.
	// Never serialised into API responses.
	Password string `json:"-"`

	// Classification
	Type DeviceType `json:"type"`

	// Reachability as of the last probe or command.
	Reachable bool       `json:"reachable"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Address returns the host:port dial address for this device.
func (d *Device) Address() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// DeepCopy creates an independent copy of the Device. The registry cache
// hands copies in and out so callers can never mutate cached entries.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d // Value fields copy cleanly

	// Pointer fields (*time.Time) don't need a deep clone because
	// time.Time is immutable; the pointer itself must not be shared.
	if d.LastSeen != nil {
		seen := *d.LastSeen
		cpy.LastSeen = &seen
	}

	return &cpy
}

// DeviceType classifies what kind of entity a device is.
type DeviceType string

// DeviceType constants.
const (
	TypeLight  DeviceType = "light"
	TypeSwitch DeviceType = "switch"
	TypeSensor DeviceType = "sensor"
	TypeOther  DeviceType = "other"
)

// AllDeviceTypes returns all valid device type values.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{TypeLight, TypeSwitch, TypeSensor, TypeOther}
}
