package influxdb

import (
	"context"
	"fmt"
	"time"
)

// ReachabilitySample is one probe observation from the history series.
type ReachabilitySample struct {
	Time      time.Time `json:"time"`
	Reachable bool      `json:"reachable"`
	RTTMs     float64   `json:"rtt_ms"`
}

// QueryReachability returns the probe history for a device since the
// given time, oldest first.
//
// The query pivots the probe measurement so each row carries both the
// reachable flag and the round-trip time. An empty result is not an
// error; it simply means no probes were recorded in the window.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - deviceID: Registry identifier for the device
//   - since: Start of the history window
//
// Returns:
//   - []ReachabilitySample: Probe observations, oldest first
//   - error: If the client is disconnected or the query fails
func (c *Client) QueryReachability(ctx context.Context, deviceID string, since time.Time) ([]ReachabilitySample, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	// %q quotes and escapes the interpolated strings, which keeps
	// caller-supplied device IDs from breaking out of the Flux literal.
	flux := fmt.Sprintf(`from(bucket: %q)
  |> range(start: %s)
  |> filter(fn: (r) => r._measurement == "probe")
  |> filter(fn: (r) => r.device_id == %q)
  |> filter(fn: (r) => r._field == "reachable" or r._field == "rtt_ms")
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> sort(columns: ["_time"])`,
		c.cfg.Bucket,
		since.UTC().Format(time.RFC3339),
		deviceID,
	)

	result, err := c.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer result.Close() //nolint:errcheck // Result errors surface through result.Err below

	var samples []ReachabilitySample
	for result.Next() {
		record := result.Record()
		sample := ReachabilitySample{Time: record.Time()}
		if v, ok := record.ValueByKey("reachable").(bool); ok {
			sample.Reachable = v
		}
		if v, ok := record.ValueByKey("rtt_ms").(float64); ok {
			sample.RTTMs = v
		}
		samples = append(samples, sample)
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, result.Err())
	}

	return samples, nil
}
