package errors

import (
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
)

func TestNetworkError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  NetworkError
		want string
	}{
		{
			name: "retryable",
			err:  NetworkError{Op: "dial", Addr: "127.0.0.1:25334", Err: io.EOF, Retryable: true},
			want: "dial 127.0.0.1:25334: EOF (retryable)",
		},
		{
			name: "bind failure",
			err:  NetworkError{Op: "listen", Addr: ":25333", Err: fmt.Errorf("address already in use")},
			want: "listen :25333: address already in use",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNetworkError_Unwrap(t *testing.T) {
	err := &NetworkError{Op: "accept", Addr: "x", Err: net.ErrClosed}
	if !Is(err, net.ErrClosed) {
		t.Error("should unwrap to net.ErrClosed")
	}
}

func TestWrapTimeout(t *testing.T) {
	err := WrapTimeout("accept", "[::]:25333", os.ErrDeadlineExceeded)
	if !Is(err, ErrTimeout) {
		t.Error("should match ErrTimeout")
	}
	if !Is(err, os.ErrDeadlineExceeded) {
		t.Error("should keep the original cause")
	}
	if !IsTimeout(err) {
		t.Error("IsTimeout should report true")
	}
}

func TestIsTimeout(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", os.ErrDeadlineExceeded, true},
		{"wrapped sentinel", fmt.Errorf("x: %w", ErrTimeout), true},
		{"closed", net.ErrClosed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTimeout(tt.err); got != tt.want {
				t.Errorf("IsTimeout() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSSHError_Format(t *testing.T) {
	err := WrapSSH("handshake", "bastion.example.com", 22, fmt.Errorf("connection refused"))
	want := "ssh handshake bastion.example.com:22: connection refused"
	if got := err.Error(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestConfigError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  ConfigError
		want string
	}{
		{
			name: "with value and hint",
			err: ConfigError{
				Field:   "port",
				Value:   99999,
				Message: "out of range 0-65535",
				Hint:    "use 0 for an ephemeral port",
			},
			want: "config: --port=99999: out of range 0-65535\n  hint: use 0 for an ephemeral port",
		},
		{
			name: "missing value no hint",
			err: ConfigError{
				Field:   "callback-port",
				Message: "required",
			},
			want: "config: --callback-port: required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"retryable network", &NetworkError{Op: "dial", Addr: "x", Err: io.EOF, Retryable: true}, true},
		{"non-retryable network", &NetworkError{Op: "dial", Addr: "x", Err: io.EOF}, false},
		{"plain error", fmt.Errorf("boom"), false},
		{"refused", Wrap("dial", "127.0.0.1:25334", syscall.ECONNREFUSED), true},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"closed", Wrap("accept", "x", net.ErrClosed), false},
		{"deadline", os.ErrDeadlineExceeded, true},
		{"temporary dns", &net.DNSError{Err: "server misbehaving", IsTemporary: true}, true},
		{"missing host", &net.DNSError{Err: "no such host", IsNotFound: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSentinels(t *testing.T) {
	sentinels := []error{
		ErrClientClosed, ErrNotConnected, ErrCircuitOpen, ErrTimeout,
		ErrAuthFailed, ErrHostKeyMismatch, ErrAlreadyStarted,
		ErrServerStopped, ErrUnknownCommand,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && Is(a, b) {
				t.Errorf("sentinel %d and %d should not match", i, j)
			}
		}
	}
}
