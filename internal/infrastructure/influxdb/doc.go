// Package influxdb provides time-series storage for connectivity metrics.
//
// It wraps the official influxdb-client-go v2 library with the
// controller's patterns for connection management, batched writes, and
// health monitoring.
//
// # Purpose
//
// This package records:
//   - Per-probe reachability results (the history endpoint's raw series)
//   - Discovery scan summaries
//   - Command dispatch outcomes
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "espctl",
//	    Bucket: "metrics",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteProbeResult("dev-a1b2", "192.168.1.23", "native", 12.4, true)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a
// callback. Connection, query, and health check errors are returned
// directly. With metrics disabled the controller holds no client at
// all; call sites nil-guard instead of checking ErrDisabled.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size,
// flush_interval). A probe round across a full /24 produces at most a
// few hundred points, well inside one batch.
package influxdb
