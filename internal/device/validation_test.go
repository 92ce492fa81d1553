package device

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateDevice(t *testing.T) {
	valid := func() *Device {
		return &Device{
			ID:   "dev-1",
			Name: "Living Room Lamp",
			Host: "192.168.1.23",
			Port: 6053,
			Type: TypeLight,
		}
	}

	t.Run("accepts a valid device", func(t *testing.T) {
		if err := ValidateDevice(valid()); err != nil {
			t.Errorf("ValidateDevice() error = %v, want nil", err)
		}
	})

	t.Run("rejects nil", func(t *testing.T) {
		if err := ValidateDevice(nil); !errors.Is(err, ErrInvalidDevice) {
			t.Errorf("ValidateDevice(nil) error = %v, want ErrInvalidDevice", err)
		}
	})

	tests := []struct {
		name    string
		mutate  func(*Device)
		wantErr error
	}{
		{"empty name", func(d *Device) { d.Name = "" }, ErrInvalidName},
		{"whitespace name", func(d *Device) { d.Name = "   " }, ErrInvalidName},
		{"name too long", func(d *Device) { d.Name = strings.Repeat("x", 101) }, ErrInvalidName},
		{"empty host", func(d *Device) { d.Host = "" }, ErrInvalidHost},
		{"host with whitespace", func(d *Device) { d.Host = "192.168.1.23 evil" }, ErrInvalidHost},
		{"host too long", func(d *Device) { d.Host = strings.Repeat("a", 254) }, ErrInvalidHost},
		{"zero port", func(d *Device) { d.Port = 0 }, ErrInvalidPort},
		{"negative port", func(d *Device) { d.Port = -1 }, ErrInvalidPort},
		{"port too high", func(d *Device) { d.Port = 65536 }, ErrInvalidPort},
		{"unknown type", func(d *Device) { d.Type = "toaster" }, ErrInvalidDeviceType},
		{"empty type", func(d *Device) { d.Type = "" }, ErrInvalidDeviceType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := valid()
			tt.mutate(device)

			err := ValidateDevice(device)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDevice() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateHost(t *testing.T) {
	// Hostnames are accepted alongside IPs; resolution is the probe
	// layer's problem
	for _, host := range []string{"192.168.1.23", "lamp.local", "fe80::1", "esp-kitchen"} {
		if err := ValidateHost(host); err != nil {
			t.Errorf("ValidateHost(%q) error = %v, want nil", host, err)
		}
	}
}

func TestGenerateID(t *testing.T) {
	a := GenerateID()
	b := GenerateID()

	if a == "" || b == "" {
		t.Fatal("GenerateID() returned empty string")
	}
	if a == b {
		t.Errorf("GenerateID() returned duplicate %q", a)
	}
	if len(a) != 36 {
		t.Errorf("GenerateID() length = %d, want 36 (uuid)", len(a))
	}
}
