package control

import (
	"fmt"
	"strings"

	"github.com/mitrajunior/esp32-controller-app/internal/connectivity"
	"github.com/mitrajunior/esp32-controller-app/internal/esphome"
)

// Command names accepted by the dispatcher.
const (
	CmdToggle        = "toggle"
	CmdSetBrightness = "set_brightness"
	CmdSetColor      = "set_color"
	CmdSetEffect     = "set_effect"
	CmdRestart       = "restart"
	CmdFactoryReset  = "factory_reset"
)

// Command is one abstract device instruction. EntityID names the target
// entity on the device (switch, light) and Value carries the free-form
// payload; both are optional for device-wide commands like restart.
type Command struct {
	Name     string         `json:"name"`
	EntityID string         `json:"entity_id,omitempty"`
	Value    map[string]any `json:"value,omitempty"`
}

// commandDef maps one abstract command onto its native service call.
// This is the single authoritative source for the command vocabulary:
// dispatch, the HTTP API, and audit records all draw from it.
type commandDef struct {
	Name    string
	Service string

	// needsEntity commands address a specific entity; its id becomes the
	// service call's "key" argument.
	needsEntity bool

	// args assembles the command-specific service arguments from the
	// value payload. nil means the service takes no arguments.
	args func(cmd Command) (map[string]any, error)
}

// commandDefs is the exhaustive list of dispatchable commands.
var commandDefs = []commandDef{
	{
		Name:        CmdToggle,
		Service:     esphome.ServiceSwitchState,
		needsEntity: true,
		args: func(cmd Command) (map[string]any, error) {
			on, err := boolArg(cmd, "on")
			if err != nil {
				return nil, err
			}
			return map[string]any{"state": on}, nil
		},
	},
	{
		Name:        CmdSetBrightness,
		Service:     esphome.ServiceLightState,
		needsEntity: true,
		args: func(cmd Command) (map[string]any, error) {
			level, err := numberArg(cmd, "brightness")
			if err != nil {
				return nil, err
			}
			return map[string]any{"brightness": level}, nil
		},
	},
	{
		Name:        CmdSetColor,
		Service:     esphome.ServiceLightState,
		needsEntity: true,
		args: func(cmd Command) (map[string]any, error) {
			color, err := colorArg(cmd)
			if err != nil {
				return nil, err
			}
			return map[string]any{"color": color}, nil
		},
	},
	{
		Name:        CmdSetEffect,
		Service:     esphome.ServiceLightState,
		needsEntity: true,
		args: func(cmd Command) (map[string]any, error) {
			effect, err := stringArg(cmd, "effect")
			if err != nil {
				return nil, err
			}
			return map[string]any{"effect": effect}, nil
		},
	},
	{
		Name:    CmdRestart,
		Service: esphome.ServiceReboot,
	},
	{
		Name:    CmdFactoryReset,
		Service: esphome.ServiceFactoryReset,
	},
}

// Lookup map built once at init.
var commandByName map[string]*commandDef

func init() {
	commandByName = make(map[string]*commandDef, len(commandDefs))
	for i := range commandDefs {
		commandByName[commandDefs[i].Name] = &commandDefs[i]
	}
}

// SupportedCommands returns the accepted command names in declaration
// order. Used by the API layer for error messages and documentation.
func SupportedCommands() []string {
	names := make([]string, len(commandDefs))
	for i, def := range commandDefs {
		names[i] = def.Name
	}
	return names
}

// IsSupportedCommand reports whether name is in the fixed vocabulary.
func IsSupportedCommand(name string) bool {
	_, ok := commandByName[name]
	return ok
}

// translate resolves a command into its native service invocation.
//
// Unknown names fail with connectivity.ErrUnsupportedCommand; recognised
// names with broken payloads fail with ErrInvalidCommand. Both verdicts
// are settled before any I/O, for the HTTP leg as much as the native one.
func translate(cmd Command) (service string, data map[string]any, err error) {
	def, ok := commandByName[cmd.Name]
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", connectivity.ErrUnsupportedCommand, cmd.Name)
	}

	if def.needsEntity && strings.TrimSpace(cmd.EntityID) == "" {
		return "", nil, fmt.Errorf("%w: %s requires an entity id", ErrInvalidCommand, cmd.Name)
	}

	if def.args == nil {
		return def.Service, nil, nil
	}

	data, err = def.args(cmd)
	if err != nil {
		return "", nil, err
	}
	data["key"] = cmd.EntityID
	return def.Service, data, nil
}

// boolArg extracts a required boolean from the value payload.
func boolArg(cmd Command, key string) (bool, error) {
	raw, ok := cmd.Value[key]
	if !ok {
		return false, fmt.Errorf("%w: %s requires value.%s", ErrInvalidCommand, cmd.Name, key)
	}
	b, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("%w: value.%s must be a boolean", ErrInvalidCommand, key)
	}
	return b, nil
}

// numberArg extracts a required number from the value payload. JSON
// decoding yields float64; direct Go callers tend to pass ints, so both
// are accepted.
func numberArg(cmd Command, key string) (float64, error) {
	v, ok := asNumber(cmd.Value[key])
	if !ok {
		return 0, fmt.Errorf("%w: %s requires numeric value.%s", ErrInvalidCommand, cmd.Name, key)
	}
	return v, nil
}

// stringArg extracts a required non-empty string from the value payload.
func stringArg(cmd Command, key string) (string, error) {
	raw, ok := cmd.Value[key]
	if !ok {
		return "", fmt.Errorf("%w: %s requires value.%s", ErrInvalidCommand, cmd.Name, key)
	}
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: value.%s must be a non-empty string", ErrInvalidCommand, key)
	}
	return s, nil
}

// colorArg extracts the r/g/b components from value.color.
func colorArg(cmd Command) (map[string]any, error) {
	raw, ok := cmd.Value["color"]
	if !ok {
		return nil, fmt.Errorf("%w: %s requires value.color", ErrInvalidCommand, cmd.Name)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: value.color must be an object", ErrInvalidCommand)
	}

	color := make(map[string]any, 3)
	for _, component := range []string{"r", "g", "b"} {
		v, ok := asNumber(obj[component])
		if !ok {
			return nil, fmt.Errorf("%w: value.color.%s must be a number", ErrInvalidCommand, component)
		}
		color[component] = v
	}
	return color, nil
}

// asNumber coerces JSON float64 and Go int payloads to float64.
func asNumber(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
