package esphome

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// framePreamble opens every frame. A nonzero first byte means the peer is
// not speaking this protocol (or the stream has desynced) and the
// connection must be dropped.
const framePreamble = 0x00

// maxPayloadSize caps a single frame payload. Device payloads are tiny;
// anything near this limit indicates desync or a misbehaving peer.
const maxPayloadSize = 64 * 1024

// Message types. Requests carry odd handshake/control types, responses the
// matching +1. Service invocation lives in its own range.
const (
	msgHello        uint64 = 1
	msgHelloOK      uint64 = 2
	msgAuth         uint64 = 3
	msgAuthOK       uint64 = 4
	msgBye          uint64 = 5
	msgByeOK        uint64 = 6
	msgPing         uint64 = 7
	msgPong         uint64 = 8
	msgDeviceInfo   uint64 = 9
	msgDeviceInfoOK uint64 = 10

	msgInvoke   uint64 = 16
	msgInvokeOK uint64 = 17
)

// encodeFrame wraps a payload in the wire framing.
//
// Format:
//
//	Byte 0:  0x00 preamble
//	Varint:  payload length in bytes
//	Varint:  message type
//	Bytes:   payload (may be empty)
//
// Parameters:
//   - msgType: Message type (e.g. msgHello, msgInvoke)
//   - payload: JSON payload (may be nil)
//
// Returns:
//   - []byte: Complete frame ready to write to the socket
func encodeFrame(msgType uint64, payload []byte) []byte {
	buf := make([]byte, 0, 1+2*binary.MaxVarintLen64+len(payload))
	buf = append(buf, framePreamble)
	buf = binary.AppendUvarint(buf, uint64(len(payload)))
	buf = binary.AppendUvarint(buf, msgType)
	buf = append(buf, payload...)
	return buf
}

// readFrame reads a single frame from the stream.
//
// The payload length is validated against maxPayloadSize before any
// allocation; an oversized declaration poisons the stream and the caller
// must close the connection.
//
// Parameters:
//   - r: Buffered reader over the connection
//
// Returns:
//   - msgType: The frame's message type
//   - payload: The frame payload (may be empty)
//   - error: ErrInvalidFrame, ErrFrameTooLarge, or the underlying read error
func readFrame(r *bufio.Reader) (msgType uint64, payload []byte, err error) {
	preamble, err := r.ReadByte()
	if err != nil {
		return 0, nil, fmt.Errorf("read preamble: %w", err)
	}
	if preamble != framePreamble {
		return 0, nil, fmt.Errorf("%w: bad preamble 0x%02X", ErrInvalidFrame, preamble)
	}

	size, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, nil, fmt.Errorf("read payload length: %w", err)
	}
	if size > maxPayloadSize {
		return 0, nil, fmt.Errorf("%w: declared %d bytes, limit %d", ErrFrameTooLarge, size, maxPayloadSize)
	}

	msgType, err = binary.ReadUvarint(r)
	if err != nil {
		return 0, nil, fmt.Errorf("read message type: %w", err)
	}

	payload = make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("read payload: %w", err)
	}

	return msgType, payload, nil
}
