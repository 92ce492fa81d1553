package esphome

import "errors"

// Domain errors for the native device API.
var (
	// ErrConnectionFailed is returned when the TCP dial fails.
	ErrConnectionFailed = errors.New("esphome: connection failed")

	// ErrHandshakeFailed is returned when the hello or auth exchange
	// fails for any reason other than a rejected password.
	ErrHandshakeFailed = errors.New("esphome: handshake failed")

	// ErrInvalidPassword is returned when the device rejects the
	// pre-shared handshake secret.
	ErrInvalidPassword = errors.New("esphome: invalid password")

	// ErrSessionClosed is returned when an exchange is attempted on a
	// session after Close.
	ErrSessionClosed = errors.New("esphome: session closed")

	// ErrInvokeFailed is returned when a service call fails or the
	// device reports it unsuccessful.
	ErrInvokeFailed = errors.New("esphome: service invocation failed")

	// ErrInvalidFrame is returned when a received frame is malformed.
	ErrInvalidFrame = errors.New("esphome: invalid frame")

	// ErrFrameTooLarge is returned when a frame declares a payload
	// beyond the protocol limit. The stream can no longer be trusted.
	ErrFrameTooLarge = errors.New("esphome: frame exceeds size limit")

	// ErrUnexpectedMessage is returned when the device answers an
	// exchange with the wrong message type.
	ErrUnexpectedMessage = errors.New("esphome: unexpected message type")
)
