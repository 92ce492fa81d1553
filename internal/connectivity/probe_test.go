package connectivity

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/mitrajunior/esp32-controller-app/internal/esphome"
)

// fakeSession satisfies nativeSession and counts Close calls.
type fakeSession struct {
	closes *int
}

func (s fakeSession) Close() error {
	*s.closes++
	return nil
}

// serverHostPort splits an httptest server URL into host and port.
func serverHostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parsing server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parsing server port: %v", err)
	}
	return u.Hostname(), port
}

func TestProbeHTTP(t *testing.T) {
	t.Run("2xx response is reachable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		host, port := serverHostPort(t, server.URL)
		p := NewProber(Config{})

		if !p.HTTP(context.Background(), host, port) {
			t.Error("HTTP() = false for responding server, want true")
		}
	})

	t.Run("error status is still reachable", func(t *testing.T) {
		// A 500 responder proves a live HTTP stack; only transport
		// failure is a negative verdict.
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		host, port := serverHostPort(t, server.URL)
		p := NewProber(Config{})

		if !p.HTTP(context.Background(), host, port) {
			t.Error("HTTP() = false for 500 responder, want true")
		}
	})

	t.Run("closed port is unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		host, port := serverHostPort(t, server.URL)
		server.Close()

		p := NewProber(Config{HTTPProbeTimeout: time.Second})

		if p.HTTP(context.Background(), host, port) {
			t.Error("HTTP() = true for closed port, want false")
		}
	})

	t.Run("slow server exceeds budget", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(500 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		host, port := serverHostPort(t, server.URL)
		p := NewProber(Config{HTTPProbeTimeout: 100 * time.Millisecond})

		start := time.Now()
		if p.HTTP(context.Background(), host, port) {
			t.Error("HTTP() = true for server slower than budget, want false")
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("probe took %v, budget not enforced", elapsed)
		}
	})
}

func TestProbeNative(t *testing.T) {
	t.Run("handshake success", func(t *testing.T) {
		closes := 0
		p := NewProber(Config{})
		p.dial = func(_ context.Context, _ string, _ esphome.Options) (nativeSession, error) {
			return fakeSession{closes: &closes}, nil
		}

		if !p.Native(context.Background(), "10.0.0.7", 6053, "") {
			t.Error("Native() = false on handshake success, want true")
		}
		if closes != 1 {
			t.Errorf("session closed %d times, want exactly 1", closes)
		}
	})

	t.Run("handshake failure", func(t *testing.T) {
		p := NewProber(Config{})
		p.dial = func(_ context.Context, _ string, _ esphome.Options) (nativeSession, error) {
			return nil, esphome.ErrInvalidPassword
		}

		if p.Native(context.Background(), "10.0.0.7", 6053, "wrong") {
			t.Error("Native() = true on handshake failure, want false")
		}
	})

	t.Run("timeout resolves to false", func(t *testing.T) {
		p := NewProber(Config{NativeProbeTimeout: 100 * time.Millisecond})
		p.dial = func(ctx context.Context, _ string, _ esphome.Options) (nativeSession, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}

		start := time.Now()
		if p.Native(context.Background(), "10.0.0.7", 6053, "") {
			t.Error("Native() = true on timeout, want false")
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("probe took %v, budget not enforced", elapsed)
		}
	})

	t.Run("no leak across repeated timeouts", func(t *testing.T) {
		closes := 0
		opens := 0
		p := NewProber(Config{NativeProbeTimeout: 50 * time.Millisecond})
		p.dial = func(_ context.Context, _ string, _ esphome.Options) (nativeSession, error) {
			opens++
			return fakeSession{closes: &closes}, nil
		}

		for range 5 {
			p.Native(context.Background(), "10.0.0.7", 6053, "")
		}
		if closes != opens {
			t.Errorf("opened %d sessions, closed %d; every session must close exactly once", opens, closes)
		}
	})
}

func TestProbeTCP(t *testing.T) {
	t.Run("open port", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
		defer listener.Close() //nolint:errcheck // Test cleanup

		host, portStr, _ := net.SplitHostPort(listener.Addr().String())
		port, _ := strconv.Atoi(portStr)

		p := NewProber(Config{})
		if !p.TCP(context.Background(), host, port) {
			t.Error("TCP() = false for listening port, want true")
		}
	})

	t.Run("closed port", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
		host, portStr, _ := net.SplitHostPort(listener.Addr().String())
		port, _ := strconv.Atoi(portStr)
		listener.Close() //nolint:errcheck // Intentional: we want the port closed

		p := NewProber(Config{TCPProbeTimeout: time.Second})
		if p.TCP(context.Background(), host, port) {
			t.Error("TCP() = true for closed port, want false")
		}
	})
}

func TestResolveHost(t *testing.T) {
	ctx := context.Background()

	t.Run("literal IP passes through", func(t *testing.T) {
		if got := resolveHost(ctx, "192.168.1.42"); got != "192.168.1.42" {
			t.Errorf("resolveHost() = %q, want literal passthrough", got)
		}
	})

	t.Run("localhost resolves", func(t *testing.T) {
		got := resolveHost(ctx, "localhost")
		if net.ParseIP(got) == nil {
			t.Errorf("resolveHost(localhost) = %q, want an IP", got)
		}
	})

	t.Run("unresolvable name degrades to original", func(t *testing.T) {
		host := "definitely-not-a-real-host.invalid"
		if got := resolveHost(ctx, host); got != host {
			t.Errorf("resolveHost() = %q, want original %q", got, host)
		}
	})
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()

	if cfg.HTTPProbeTimeout != 3*time.Second {
		t.Errorf("HTTPProbeTimeout = %v, want 3s", cfg.HTTPProbeTimeout)
	}
	if cfg.NativeProbeTimeout != 5*time.Second {
		t.Errorf("NativeProbeTimeout = %v, want 5s", cfg.NativeProbeTimeout)
	}
	if cfg.TCPProbeTimeout != 3*time.Second {
		t.Errorf("TCPProbeTimeout = %v, want 3s", cfg.TCPProbeTimeout)
	}
	if cfg.HTTPPort != 80 {
		t.Errorf("HTTPPort = %d, want 80", cfg.HTTPPort)
	}
	if cfg.NativePort != 6053 {
		t.Errorf("NativePort = %d, want 6053", cfg.NativePort)
	}
}
