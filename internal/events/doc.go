// Package events provides the controller's in-process event stream
// and its outbound MQTT announcements.
//
// The Broker fans events out to in-process subscribers (the WebSocket
// stream, the MQTT announcer) over buffered channels. Publishing never
// blocks: a subscriber that falls behind loses events rather than
// stalling the registry or the monitor, and drops are counted.
//
// The Announcer forwards broker events to MQTT as JSON on
// espctl/event/<type>. It is nil-safe: with MQTT disabled the
// controller constructs an Announcer around a nil client and every
// method is a no-op.
package events
