package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteProbeResult records the outcome of a single reachability probe.
//
// The write is non-blocking; data is batched and sent asynchronously.
// One point per probe gives the history endpoint its raw series.
//
// Parameters:
//   - deviceID: Registry identifier for the device
//   - host: The address that was probed
//   - protocol: "native" or "http"
//   - rttMs: Probe round-trip time in milliseconds
//   - reachable: Whether the probe succeeded
//
// Example:
//
//	client.WriteProbeResult("dev-a1b2", "192.168.1.23", "native", 12.4, true)
func (c *Client) WriteProbeResult(deviceID, host, protocol string, rttMs float64, reachable bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"probe",
		map[string]string{
			"device_id": deviceID,
			"host":      host,
			"protocol":  protocol,
		},
		map[string]interface{}{
			"rtt_ms":    rttMs,
			"reachable": reachable,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDiscoveryRun records one discovery scan.
//
// Parameters:
//   - method: "mdns", "sweep" or "combined"
//   - found: Number of distinct devices the scan reported
//   - durationMs: Total scan duration in milliseconds
func (c *Client) WriteDiscoveryRun(method string, found int, durationMs float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"discovery",
		map[string]string{
			"method": method,
		},
		map[string]interface{}{
			"found":       found,
			"duration_ms": durationMs,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteCommandResult records one command dispatch.
//
// Parameters:
//   - deviceID: Registry identifier for the device
//   - command: Abstract command name (e.g. "toggle")
//   - durationMs: Dispatch duration in milliseconds
//   - ok: Whether the dispatch succeeded
func (c *Client) WriteCommandResult(deviceID, command string, durationMs float64, ok bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"command",
		map[string]string{
			"device_id": deviceID,
			"command":   command,
		},
		map[string]interface{}{
			"duration_ms": durationMs,
			"ok":          ok,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
