package esphome

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Default timeouts for native-API sessions.
const (
	// defaultConnectTimeout bounds the TCP dial.
	defaultConnectTimeout = 5 * time.Second

	// defaultReadTimeout bounds each response read.
	defaultReadTimeout = 5 * time.Second

	// defaultWriteTimeout bounds each request write.
	defaultWriteTimeout = 2 * time.Second

	// byeTimeout bounds the best-effort goodbye on Close. Teardown must
	// never stall a caller that is already done with the session.
	byeTimeout = 500 * time.Millisecond
)

// clientInfo is advertised to devices during the handshake.
const clientInfo = "espcontroller"

// DialFunc establishes the underlying transport connection.
// Overridable in tests to avoid real sockets.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Options configures a native-API session. The zero value is usable.
type Options struct {
	// Password is the pre-shared handshake secret. Empty means the
	// device is expected to accept unauthenticated sessions.
	Password string

	// ConnectTimeout bounds the TCP dial. Default: 5 seconds.
	ConnectTimeout time.Duration

	// ReadTimeout bounds each response read. Default: 5 seconds.
	ReadTimeout time.Duration

	// WriteTimeout bounds each request write. Default: 2 seconds.
	WriteTimeout time.Duration

	// Dial overrides the transport dialer. Default: net.Dialer.
	Dial DialFunc
}

// Session is a single authenticated conversation with a device.
//
// Sessions are short-lived: dial, perform one or more exchanges, close.
// Exchanges are serialised on the underlying connection because the
// protocol has no message IDs; responses arrive in request order.
type Session struct {
	conn net.Conn
	br   *bufio.Reader
	opts Options

	mu sync.Mutex // serialises request/response exchanges

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	hello helloResponse
}

// Dial connects to a device's native API endpoint and performs the
// handshake (hello + authentication).
//
// The context bounds the entire acquisition: dial, hello and auth. On any
// handshake failure the connection is closed before returning.
//
// Parameters:
//   - ctx: Context bounding dial + handshake
//   - address: host:port of the device's native API
//   - opts: Session options (zero value is usable)
//
// Returns:
//   - *Session: Ready for Invoke/DeviceInfo/Ping; caller must Close
//   - error: ErrConnectionFailed, ErrHandshakeFailed or ErrInvalidPassword
func Dial(ctx context.Context, address string, opts Options) (*Session, error) {
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Dial == nil {
		var d net.Dialer
		opts.Dial = d.DialContext
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	conn, err := opts.Dial(dialCtx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, address, err)
	}

	s := &Session{
		conn: conn,
		br:   bufio.NewReader(conn),
		opts: opts,
	}

	if err := s.handshake(ctx); err != nil {
		conn.Close() //nolint:errcheck // Handshake error takes precedence
		return nil, err
	}

	return s, nil
}

// handshake performs the hello and auth exchanges.
func (s *Session) handshake(ctx context.Context) error {
	helloPayload, err := json.Marshal(helloRequest{
		ClientInfo:      clientInfo,
		APIVersionMajor: apiVersionMajor,
		APIVersionMinor: apiVersionMinor,
	})
	if err != nil {
		return fmt.Errorf("%w: encoding hello: %w", ErrHandshakeFailed, err)
	}

	resp, err := s.exchange(ctx, msgHello, helloPayload, msgHelloOK)
	if err != nil {
		return fmt.Errorf("%w: hello: %w", ErrHandshakeFailed, err)
	}
	if err := json.Unmarshal(resp, &s.hello); err != nil {
		return fmt.Errorf("%w: decoding hello response: %w", ErrHandshakeFailed, err)
	}

	authPayload, err := json.Marshal(authRequest{Password: s.opts.Password})
	if err != nil {
		return fmt.Errorf("%w: encoding auth: %w", ErrHandshakeFailed, err)
	}

	resp, err = s.exchange(ctx, msgAuth, authPayload, msgAuthOK)
	if err != nil {
		return fmt.Errorf("%w: auth: %w", ErrHandshakeFailed, err)
	}
	var auth authResponse
	if err := json.Unmarshal(resp, &auth); err != nil {
		return fmt.Errorf("%w: decoding auth response: %w", ErrHandshakeFailed, err)
	}
	if auth.InvalidPassword {
		return ErrInvalidPassword
	}

	return nil
}

// Invoke executes a named service on the device.
//
// Parameters:
//   - ctx: Context bounding the exchange
//   - service: Service name (e.g. ServiceSwitchState)
//   - data: Free-form service arguments (may be nil)
//
// Returns:
//   - error: ErrSessionClosed, ErrInvokeFailed, or a transport error
func (s *Session) Invoke(ctx context.Context, service string, data map[string]any) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	payload, err := json.Marshal(invokeRequest{Service: service, Data: data})
	if err != nil {
		return fmt.Errorf("encoding invoke request: %w", err)
	}

	resp, err := s.exchange(ctx, msgInvoke, payload, msgInvokeOK)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvokeFailed, service, err)
	}

	var result invokeResponse
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("%w: %s: decoding response: %w", ErrInvokeFailed, service, err)
	}
	if !result.Success {
		msg := result.Message
		if msg == "" {
			msg = "device rejected service call"
		}
		return fmt.Errorf("%w: %s: %s", ErrInvokeFailed, service, msg)
	}

	return nil
}

// DeviceInfo requests the device's self-description.
func (s *Session) DeviceInfo(ctx context.Context) (*DeviceInfo, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}

	resp, err := s.exchange(ctx, msgDeviceInfo, nil, msgDeviceInfoOK)
	if err != nil {
		return nil, fmt.Errorf("device info: %w", err)
	}

	var info DeviceInfo
	if err := json.Unmarshal(resp, &info); err != nil {
		return nil, fmt.Errorf("decoding device info: %w", err)
	}
	return &info, nil
}

// Ping verifies the session is still live.
func (s *Session) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	if _, err := s.exchange(ctx, msgPing, nil, msgPong); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Name returns the device-reported node name from the handshake.
func (s *Session) Name() string {
	return s.hello.Name
}

// ServerInfo returns the device-reported server identification string.
func (s *Session) ServerInfo() string {
	return s.hello.ServerInfo
}

// Close terminates the session with a best-effort goodbye.
//
// Safe to call multiple times; only the first call does work and every
// call returns the same result. The underlying connection is always
// closed, even when the goodbye fails.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)

		// Best-effort goodbye: no response is awaited and write errors
		// are ignored because the connection closes regardless.
		if err := s.conn.SetWriteDeadline(time.Now().Add(byeTimeout)); err == nil {
			s.conn.Write(encodeFrame(msgBye, nil)) //nolint:errcheck // best-effort
		}

		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// exchange writes one request frame and reads one response frame.
//
// Responses must arrive in request order; the protocol has no message IDs,
// so exchanges hold s.mu for their full duration. Deadlines combine the
// configured per-operation timeouts with any context deadline, whichever
// is sooner.
func (s *Session) exchange(ctx context.Context, sendType uint64, payload []byte, wantType uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	writeDeadline := time.Now().Add(s.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(writeDeadline) {
		writeDeadline = d
	}
	if err := s.conn.SetWriteDeadline(writeDeadline); err != nil {
		return nil, fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := s.conn.Write(encodeFrame(sendType, payload)); err != nil {
		return nil, fmt.Errorf("write frame: %w", err)
	}

	readDeadline := time.Now().Add(s.opts.ReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(readDeadline) {
		readDeadline = d
	}
	if err := s.conn.SetReadDeadline(readDeadline); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}

	gotType, resp, err := readFrame(s.br)
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	if gotType != wantType {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnexpectedMessage, gotType, wantType)
	}

	return resp, nil
}
