// Package mqtt provides the controller's outbound MQTT announcement channel.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The controller is publish-only on MQTT: events and availability flow
// out to external automations (Home Assistant, Node-RED), and nothing
// subscribes back in. Commands enter through the HTTP API only.
//
//	Controller → MQTT Broker → External subscribers
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.Event("device_discovered")
//	client.PublishJSON(topic, event, 1, false)
package mqtt
