package esphome

// Well-known service names devices expose over the native API.
const (
	ServiceSwitchState  = "switch-state"
	ServiceLightState   = "light-state"
	ServiceReboot       = "reboot"
	ServiceFactoryReset = "factory-reset"
)

// Protocol version advertised during the handshake.
const (
	apiVersionMajor = 1
	apiVersionMinor = 2
)

// helloRequest opens the handshake and identifies the client.
type helloRequest struct {
	ClientInfo      string `json:"client_info"`
	APIVersionMajor int    `json:"api_version_major"`
	APIVersionMinor int    `json:"api_version_minor"`
}

// helloResponse carries the device identity.
type helloResponse struct {
	ServerInfo      string `json:"server_info"`
	Name            string `json:"name"`
	APIVersionMajor int    `json:"api_version_major"`
	APIVersionMinor int    `json:"api_version_minor"`
}

// authRequest presents the pre-shared password. Devices without a
// configured password accept an empty string.
type authRequest struct {
	Password string `json:"password"`
}

// authResponse reports the authentication verdict.
type authResponse struct {
	InvalidPassword bool `json:"invalid_password"`
}

// invokeRequest executes a named service with free-form arguments.
type invokeRequest struct {
	Service string         `json:"service"`
	Data    map[string]any `json:"data,omitempty"`
}

// invokeResponse reports the outcome of a service call.
type invokeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// DeviceInfo is the device self-description returned by DeviceInfo.
type DeviceInfo struct {
	Name         string `json:"name"`
	MACAddress   string `json:"mac_address"`
	Model        string `json:"model"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Version      string `json:"esphome_version"`
	Compilation  string `json:"compilation_time,omitempty"`
	UsesPassword bool   `json:"uses_password"`
}
