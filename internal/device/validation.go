package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength = 100
	maxHostLength = 253 // DNS name length ceiling; plenty for IPs
)

// validDeviceTypes is the pre-computed validation set for O(1) lookups.
var validDeviceTypes map[DeviceType]struct{}

func init() {
	validDeviceTypes = make(map[DeviceType]struct{}, len(AllDeviceTypes()))
	for _, t := range AllDeviceTypes() {
		validDeviceTypes[t] = struct{}{}
	}
}

// ValidateDevice performs validation on a device.
// Returns an error describing the first validation failure found.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}

	if err := ValidateName(d.Name); err != nil {
		return err
	}

	if err := ValidateHost(d.Host); err != nil {
		return err
	}

	if err := ValidatePort(d.Port); err != nil {
		return err
	}

	if err := ValidateDeviceType(d.Type); err != nil {
		return err
	}

	return nil
}

// ValidateName checks if a device name is valid.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateHost checks if a host is valid. Both literal IPs and resolvable
// names are accepted; resolution happens at probe time, not here.
func ValidateHost(host string) error {
	host = strings.TrimSpace(host)
	if host == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidHost)
	}
	if len(host) > maxHostLength {
		return fmt.Errorf("%w: host exceeds %d characters", ErrInvalidHost, maxHostLength)
	}
	if strings.ContainsAny(host, " \t\r\n") {
		return fmt.Errorf("%w: host contains whitespace", ErrInvalidHost)
	}
	return nil
}

// ValidatePort checks if a port is within the valid TCP range.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: port %d outside 1-65535", ErrInvalidPort, port)
	}
	return nil
}

// ValidateDeviceType checks if a device type is recognised.
func ValidateDeviceType(t DeviceType) error {
	if _, ok := validDeviceTypes[t]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidDeviceType, t)
	}
	return nil
}

// GenerateID creates a new unique device ID.
func GenerateID() string {
	return uuid.New().String()
}
