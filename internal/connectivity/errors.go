package connectivity

import "errors"

// Failure taxonomy for connectivity and dispatch operations. The request
// layer maps these onto distinct status codes, so they must stay
// distinguishable with errors.Is.
var (
	// ErrUnreachable means every fallback probe was exhausted without
	// success. Detection itself reports this as a normal result; dispatch
	// surfaces it as an error when a command needs an unreachable device.
	ErrUnreachable = errors.New("connectivity: device not reachable")

	// ErrHandshake means the native-protocol session reported an explicit
	// error signal (rejected password, protocol mismatch).
	ErrHandshake = errors.New("connectivity: native handshake failed")

	// ErrTimeout means a bounded operation exceeded its budget. Kept
	// distinct from ErrHandshake for diagnostics.
	ErrTimeout = errors.New("connectivity: operation timed out")

	// ErrUnsupportedCommand means the abstract command name is not in the
	// fixed mapping. Terminal; checked before any network I/O.
	ErrUnsupportedCommand = errors.New("connectivity: unsupported command")
)
