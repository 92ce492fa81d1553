package control

import "errors"

// ErrInvalidCommand means a recognised command arrived with a malformed
// or incomplete payload (missing entity id, missing or mistyped value
// fields). Terminal, checked before any network I/O; distinct from
// connectivity.ErrUnsupportedCommand, which covers unknown names.
var ErrInvalidCommand = errors.New("control: invalid command payload")
