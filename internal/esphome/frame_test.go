package esphome

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		msgType uint64
		payload []byte
	}{
		{"empty payload", msgPing, nil},
		{"small payload", msgHello, []byte(`{"client_info":"test"}`)},
		{"invoke payload", msgInvoke, []byte(`{"service":"switch-state","data":{"key":"relay_1","state":true}}`)},
		{"large type", msgInvokeOK, []byte(`{"success":true}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := encodeFrame(tt.msgType, tt.payload)

			gotType, gotPayload, err := readFrame(bufio.NewReader(bytes.NewReader(frame)))
			if err != nil {
				t.Fatalf("readFrame() error = %v", err)
			}
			if gotType != tt.msgType {
				t.Errorf("msgType = %d, want %d", gotType, tt.msgType)
			}
			if !bytes.Equal(gotPayload, tt.payload) && len(tt.payload) > 0 {
				t.Errorf("payload = %q, want %q", gotPayload, tt.payload)
			}
		})
	}
}

func TestReadFrameBadPreamble(t *testing.T) {
	frame := encodeFrame(msgHello, []byte("{}"))
	frame[0] = 0x42

	_, _, err := readFrame(bufio.NewReader(bytes.NewReader(frame)))
	if !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("readFrame() error = %v, want ErrInvalidFrame", err)
	}
}

func TestReadFrameOversized(t *testing.T) {
	// Hand-build a frame declaring a payload beyond the limit.
	buf := []byte{framePreamble}
	buf = binary.AppendUvarint(buf, maxPayloadSize+1)
	buf = binary.AppendUvarint(buf, msgHello)

	_, _, err := readFrame(bufio.NewReader(bytes.NewReader(buf)))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("readFrame() error = %v, want ErrFrameTooLarge", err)
	}
}

func TestReadFrameTruncated(t *testing.T) {
	frame := encodeFrame(msgHello, []byte(`{"client_info":"test"}`))

	// Cut the frame mid-payload.
	_, _, err := readFrame(bufio.NewReader(bytes.NewReader(frame[:len(frame)-5])))
	if err == nil {
		t.Error("readFrame() on truncated frame expected error, got nil")
	}
}

func TestReadFrameEmpty(t *testing.T) {
	_, _, err := readFrame(bufio.NewReader(bytes.NewReader(nil)))
	if err == nil {
		t.Error("readFrame() on empty stream expected error, got nil")
	}
}
