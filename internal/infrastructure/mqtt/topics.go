package mqtt

import "fmt"

// Topic prefixes for controller announcements.
//
// The controller publishes on a small flat scheme: espctl/{category}/...
// External automations (Node-RED, Home Assistant) subscribe to these;
// nothing subscribes back into the controller over MQTT.
const (
	// TopicPrefix is the base for all controller topics.
	TopicPrefix = "espctl"
)

// Topics provides builders for controller MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	eventTopic := topics.Event("device_discovered")
//	// Returns: "espctl/event/device_discovered"
type Topics struct{}

// Event returns the topic for a controller event of the given type.
//
// Example: espctl/event/reachability_changed
func (Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, eventType)
}

// Availability returns the retained controller availability topic.
// Carries online/offline status and the Last Will and Testament.
//
// Example: espctl/availability
func (Topics) Availability() string {
	return fmt.Sprintf("%s/availability", TopicPrefix)
}

// AllEvents returns a pattern matching every controller event.
// Intended for external subscribers; documented here so the pattern
// stays in one place.
//
// Pattern: espctl/event/+
func (Topics) AllEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefix)
}
