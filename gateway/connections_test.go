package gateway

import (
	"errors"
	"net"
	"os"
	"testing"
	"time"
)

func TestConnRegistry_CloseAll(t *testing.T) {
	r := newConnRegistry()

	var peers []net.Conn
	for i := 0; i < 3; i++ {
		a, b := net.Pipe()
		peers = append(peers, b)
		if !r.Add(a) {
			t.Fatal("Add refused before CloseAll")
		}
	}
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}

	if n := r.CloseAll(); n != 3 {
		t.Errorf("CloseAll() = %d, want 3", n)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d after CloseAll", r.Len())
	}
	for i, p := range peers {
		p.SetReadDeadline(time.Now().Add(time.Second)) //nolint:errcheck
		if _, err := p.Read(make([]byte, 1)); err == nil {
			t.Errorf("peer %d still open", i)
		}
	}
}

func TestConnRegistry_SealedAfterCloseAll(t *testing.T) {
	r := newConnRegistry()
	r.CloseAll()

	a, b := net.Pipe()
	defer b.Close()
	if r.Add(a) {
		t.Fatal("Add should refuse once sealed")
	}
	if _, err := a.Write([]byte("x")); err == nil {
		t.Error("conn added after CloseAll should be closed")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d", r.Len())
	}
}

func TestConnRegistry_ClosedConnTolerated(t *testing.T) {
	r := newConnRegistry()
	a, b := net.Pipe()
	b.Close()
	a.Close()
	r.Add(a)

	if n := r.CloseAll(); n != 1 {
		t.Errorf("CloseAll() = %d, want 1", n)
	}
}

func TestIdleConn_RearmsDeadline(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	c := withIdleTimeout(a, 80*time.Millisecond)
	defer c.Close()

	go func() {
		for i := 0; i < 3; i++ {
			time.Sleep(40 * time.Millisecond)
			b.Write([]byte("k")) //nolint:errcheck
		}
	}()

	// Three reads spaced under the timeout succeed although their sum
	// exceeds it.
	buf := make([]byte, 1)
	for i := 0; i < 3; i++ {
		if _, err := c.Read(buf); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
	}

	_, err := c.Read(buf)
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestIdleConn_ZeroDisabled(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	if withIdleTimeout(a, 0) != a {
		t.Error("zero idle timeout should not wrap the conn")
	}
}
