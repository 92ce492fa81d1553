// Package connectivity answers one question about small network devices:
// can we talk to this thing, and on which port and protocol?
//
// It provides three bounded reachability probes (HTTP, native handshake,
// raw TCP) and a detector that sequences them in a fixed precedence order
// to settle a device's (protocol, port) pair. Probes never return errors
// for negative outcomes - "not reachable" is an expected, frequent answer,
// not a failure.
//
// # Port Convention
//
// Port 80 speaks HTTP; every other accepted port speaks the native binary
// API. The detector preserves this convention and downstream dispatch
// relies on it instead of re-probing.
//
// # Resource Discipline
//
// Every probe opens, fully owns, and closes its own transient connection
// within a strict time budget. Nothing is pooled, shared, or left open.
package connectivity
