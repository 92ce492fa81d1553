// Package esphome implements the native binary API spoken by the small
// network devices this controller manages, conventionally on TCP port 6053.
//
// The protocol is deliberately small: length-prefixed frames carrying JSON
// payloads, a hello/auth handshake, and a fixed set of request/response
// exchanges. There is no entity model and no server-push subscription;
// everything is a bounded round trip initiated by this side.
//
// # Framing
//
//	Byte 0:  0x00 preamble
//	Varint:  payload length in bytes
//	Varint:  message type
//	Bytes:   JSON payload
//
// # Session Lifecycle
//
// Sessions are short-lived and scoped to a single unit of work: dial,
// exchange, close.
//
//	s, err := esphome.Dial(ctx, "192.168.1.42:6053", esphome.Options{Password: secret})
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	err = s.Invoke(ctx, esphome.ServiceSwitchState, map[string]any{"key": "relay_1", "state": true})
//
// Close is idempotent and must run on every exit path; it sends a
// best-effort goodbye and always releases the underlying connection.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package esphome
