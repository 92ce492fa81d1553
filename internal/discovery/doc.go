// Package discovery finds controllable devices on the local network
// without prior knowledge of their addresses.
//
// A discovery run has two phases. The multicast phase browses DNS-SD
// for the device service name over a fixed window, deduplicating
// responders by IP address. Only when that window produces nothing
// does the engine fall back to the sweep phase: a bounded-concurrency
// TCP connect scan across the /24 ranges derived from the host's own
// interface addresses, or two conventional private ranges when none
// can be derived.
//
// Results are transient DiscoveredDevice descriptors, not registry
// records. Callers reconcile them against the device registry
// themselves; the engine never writes anywhere.
package discovery
