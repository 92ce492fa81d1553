// Package monitor runs the background reachability loop.
//
// Every interval it lists the registered devices and probes each one
// with the port-appropriate check, bounded by a worker limit so a
// subnet of dead hosts cannot pile up goroutines. Transitions are
// persisted through the registry and published as reachability_changed
// events; every probe result is written to the metrics store when one
// is configured.
//
// Rounds never overlap: probing runs on a single loop goroutine, and a
// round that outlasts the interval simply delays the next tick. The
// first round is jittered so several controllers on one network do not
// probe in lockstep after a shared power cycle.
package monitor
