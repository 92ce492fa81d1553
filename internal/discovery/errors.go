package discovery

import "errors"

// ErrMulticastSetup means the multicast listener could not be set up at
// all (socket bind or group join failed). This is an engine-level fault
// and is surfaced to the caller; it must never be conflated with an
// empty window, which is a normal result.
var ErrMulticastSetup = errors.New("discovery: multicast setup failed")
