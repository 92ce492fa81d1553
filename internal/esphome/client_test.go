package esphome

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

// mockDevice simulates a native-API device for testing.
type mockDevice struct {
	t        *testing.T
	listener net.Listener

	password   string
	name       string
	failInvoke bool
	silent     bool // accept connections but never respond

	mu      sync.Mutex
	invokes []invokeRequest
}

func newMockDevice(t *testing.T) *mockDevice {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}

	d := &mockDevice{
		t:        t,
		listener: listener,
		name:     "test-node",
	}
	go d.acceptLoop()
	t.Cleanup(d.close)

	return d
}

func (d *mockDevice) address() string {
	return d.listener.Addr().String()
}

func (d *mockDevice) close() {
	d.listener.Close() //nolint:errcheck // Test cleanup
}

func (d *mockDevice) invokeCalls() []invokeRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]invokeRequest(nil), d.invokes...)
}

func (d *mockDevice) acceptLoop() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return
		}
		go d.serve(conn)
	}
}

func (d *mockDevice) serve(conn net.Conn) {
	defer conn.Close() //nolint:errcheck // Test server

	if d.silent {
		// Swallow everything without answering.
		io.Copy(io.Discard, conn) //nolint:errcheck // Test server
		return
	}

	br := bufio.NewReader(conn)
	for {
		msgType, payload, err := readFrame(br)
		if err != nil {
			return
		}

		switch msgType {
		case msgHello:
			resp, _ := json.Marshal(helloResponse{
				ServerInfo:      "mock (native API v1.2)",
				Name:            d.name,
				APIVersionMajor: apiVersionMajor,
				APIVersionMinor: apiVersionMinor,
			})
			conn.Write(encodeFrame(msgHelloOK, resp)) //nolint:errcheck // Test server

		case msgAuth:
			var req authRequest
			json.Unmarshal(payload, &req) //nolint:errcheck // Test server
			resp, _ := json.Marshal(authResponse{InvalidPassword: req.Password != d.password})
			conn.Write(encodeFrame(msgAuthOK, resp)) //nolint:errcheck // Test server

		case msgPing:
			conn.Write(encodeFrame(msgPong, nil)) //nolint:errcheck // Test server

		case msgDeviceInfo:
			resp, _ := json.Marshal(DeviceInfo{
				Name:         d.name,
				MACAddress:   "AA:BB:CC:DD:EE:FF",
				Model:        "esp32dev",
				Version:      "2026.1.0",
				UsesPassword: d.password != "",
			})
			conn.Write(encodeFrame(msgDeviceInfoOK, resp)) //nolint:errcheck // Test server

		case msgInvoke:
			var req invokeRequest
			json.Unmarshal(payload, &req) //nolint:errcheck // Test server
			d.mu.Lock()
			d.invokes = append(d.invokes, req)
			d.mu.Unlock()

			result := invokeResponse{Success: !d.failInvoke}
			if d.failInvoke {
				result.Message = "unknown service"
			}
			resp, _ := json.Marshal(result)
			conn.Write(encodeFrame(msgInvokeOK, resp)) //nolint:errcheck // Test server

		case msgBye:
			conn.Write(encodeFrame(msgByeOK, nil)) //nolint:errcheck // Test server
			return
		}
	}
}

func TestDialAndClose(t *testing.T) {
	device := newMockDevice(t)

	s, err := Dial(context.Background(), device.address(), Options{})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	if s.Name() != "test-node" {
		t.Errorf("Name() = %q, want %q", s.Name(), "test-node")
	}
	if s.ServerInfo() == "" {
		t.Error("ServerInfo() is empty")
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	// Close is idempotent and returns the same result.
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestDialWithPassword(t *testing.T) {
	device := newMockDevice(t)
	device.password = "hunter2"

	t.Run("correct password", func(t *testing.T) {
		s, err := Dial(context.Background(), device.address(), Options{Password: "hunter2"})
		if err != nil {
			t.Fatalf("Dial() error = %v", err)
		}
		s.Close() //nolint:errcheck // Test cleanup
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := Dial(context.Background(), device.address(), Options{Password: "wrong"})
		if !errors.Is(err, ErrInvalidPassword) {
			t.Errorf("Dial() error = %v, want ErrInvalidPassword", err)
		}
	})

	t.Run("missing password", func(t *testing.T) {
		_, err := Dial(context.Background(), device.address(), Options{})
		if !errors.Is(err, ErrInvalidPassword) {
			t.Errorf("Dial() error = %v, want ErrInvalidPassword", err)
		}
	})
}

func TestDialConnectionRefused(t *testing.T) {
	// Grab a port that is guaranteed closed.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close() //nolint:errcheck // Intentional: we want the port closed

	_, err = Dial(context.Background(), addr, Options{ConnectTimeout: time.Second})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Dial() error = %v, want ErrConnectionFailed", err)
	}
}

func TestDialHandshakeTimeout(t *testing.T) {
	device := newMockDevice(t)
	device.silent = true

	start := time.Now()
	_, err := Dial(context.Background(), device.address(), Options{
		ReadTimeout: 200 * time.Millisecond,
	})
	if !errors.Is(err, ErrHandshakeFailed) {
		t.Errorf("Dial() error = %v, want ErrHandshakeFailed", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Dial() took %v, should respect ReadTimeout", elapsed)
	}
}

func TestInvoke(t *testing.T) {
	device := newMockDevice(t)

	s, err := Dial(context.Background(), device.address(), Options{})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer s.Close() //nolint:errcheck // Test cleanup

	err = s.Invoke(context.Background(), ServiceSwitchState, map[string]any{
		"key":   "relay_1",
		"state": true,
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	calls := device.invokeCalls()
	if len(calls) != 1 {
		t.Fatalf("device recorded %d invocations, want 1", len(calls))
	}
	if calls[0].Service != ServiceSwitchState {
		t.Errorf("service = %q, want %q", calls[0].Service, ServiceSwitchState)
	}
	if calls[0].Data["key"] != "relay_1" {
		t.Errorf("data key = %v, want relay_1", calls[0].Data["key"])
	}
	if calls[0].Data["state"] != true {
		t.Errorf("data state = %v, want true", calls[0].Data["state"])
	}
}

func TestInvokeFailure(t *testing.T) {
	device := newMockDevice(t)
	device.failInvoke = true

	s, err := Dial(context.Background(), device.address(), Options{})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer s.Close() //nolint:errcheck // Test cleanup

	err = s.Invoke(context.Background(), ServiceReboot, nil)
	if !errors.Is(err, ErrInvokeFailed) {
		t.Errorf("Invoke() error = %v, want ErrInvokeFailed", err)
	}
}

func TestInvokeAfterClose(t *testing.T) {
	device := newMockDevice(t)

	s, err := Dial(context.Background(), device.address(), Options{})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	s.Close() //nolint:errcheck // Intentional: testing post-close behaviour

	if err := s.Invoke(context.Background(), ServiceReboot, nil); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Invoke() after close error = %v, want ErrSessionClosed", err)
	}
	if _, err := s.DeviceInfo(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("DeviceInfo() after close error = %v, want ErrSessionClosed", err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Ping() after close error = %v, want ErrSessionClosed", err)
	}
}

func TestDeviceInfo(t *testing.T) {
	device := newMockDevice(t)
	device.password = "secret"

	s, err := Dial(context.Background(), device.address(), Options{Password: "secret"})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer s.Close() //nolint:errcheck // Test cleanup

	info, err := s.DeviceInfo(context.Background())
	if err != nil {
		t.Fatalf("DeviceInfo() error = %v", err)
	}
	if info.Name != "test-node" {
		t.Errorf("Name = %q, want test-node", info.Name)
	}
	if info.MACAddress != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("MACAddress = %q, want AA:BB:CC:DD:EE:FF", info.MACAddress)
	}
	if !info.UsesPassword {
		t.Error("UsesPassword = false, want true")
	}
}

func TestPing(t *testing.T) {
	device := newMockDevice(t)

	s, err := Dial(context.Background(), device.address(), Options{})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer s.Close() //nolint:errcheck // Test cleanup

	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestDialContextCancelled(t *testing.T) {
	device := newMockDevice(t)
	device.silent = true

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Dial(ctx, device.address(), Options{})
	if err == nil {
		t.Fatal("Dial() with expired context expected error, got nil")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Dial() took %v, context deadline not honoured", elapsed)
	}
}
