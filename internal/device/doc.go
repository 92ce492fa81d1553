// Package device provides the device registry: the persistent catalogue
// of every node the controller knows about.
//
// Three layers: a Repository interface over SQLite persistence, the
// cached Registry on top of it, and validation helpers shared by both.
// The registry cache hands out deep copies in both directions, so
// callers never alias cached entries.
//
// # Port Convention
//
// A device's Protocol column is derived from its Port (80 means HTTP,
// anything else the native API) and is recomputed on every write. It
// exists as a stored column only so queries and API responses don't
// need to re-derive it.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	dev := &device.Device{
//	    Name: "Living Room Lamp",
//	    Host: "192.168.1.23",
//	    Port: 6053,
//	    Type: device.TypeLight,
//	}
//	if err := registry.CreateDevice(ctx, dev); err != nil {
//	    return err
//	}
//
// # Thread Safety
//
// The Registry is safe for concurrent use. All operations are protected
// by a read-write mutex. The Repository implementation must also be
// thread-safe.
package device
