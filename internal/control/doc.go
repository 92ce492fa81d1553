// Package control executes abstract commands against devices whose
// protocol and port are already known.
//
// Each dispatch owns exactly one short-lived transport: HTTP devices get
// a single bounded POST, native devices get a session spanning dial and
// one service invocation, torn down on every exit path. Nothing here is
// shared between concurrent calls.
//
// Command names form a fixed vocabulary; anything outside it fails with
// connectivity.ErrUnsupportedCommand before any network I/O happens.
package control
