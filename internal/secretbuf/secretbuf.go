// Package secretbuf provides an owning byte buffer for cryptographic
// key material that is zeroed by an explicit Destroy, with a
// finalizer as backstop. Its constructors never return an error.
package secretbuf

import (
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
)

// Buffer owns a slice of secret bytes. It must never be cloned except
// for explicit hand-off (see Take), and its String/GoString/MarshalJSON
// formatters always redact.
type Buffer struct {
	mu        sync.Mutex
	data      []byte
	destroyed bool
}

// New takes ownership of b. The caller must not retain or mutate b
// after this call.
func New(b []byte) *Buffer {
	sb := &Buffer{data: b}
	runtime.SetFinalizer(sb, func(s *Buffer) { s.Destroy() })
	return sb
}

// Zero allocates a fresh Buffer of n zero bytes.
func Zero(n int) *Buffer {
	return New(make([]byte, n))
}

// Len returns the number of bytes held, or 0 once destroyed.
func (s *Buffer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// View returns a read-only view of the held bytes. The slice aliases
// internal storage: callers must not retain it past the Buffer's
// lifetime, must not write through it, and must treat it as invalid
// the instant Destroy runs (including via finalizer).
func (s *Buffer) View() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil, fmt.Errorf("secretbuf: use after destroy")
	}
	return s.data, nil
}

// Take hands ownership of a copy of the held bytes to the caller,
// destroying this Buffer. This is the one explicit clone path allowed:
// the caller becomes responsible for zeroizing the returned slice.
func (s *Buffer) Take() ([]byte, error) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil, fmt.Errorf("secretbuf: use after destroy")
	}
	out := make([]byte, len(s.data))
	copy(out, s.data)
	s.mu.Unlock()
	s.Destroy()
	return out, nil
}

// Destroy zeroes the held bytes. Idempotent.
func (s *Buffer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data {
		s.data[i] = 0
	}
	s.data = nil
	s.destroyed = true
}

// String never reveals the held bytes; fmt.Stringer callers (loggers
// included) only ever see this redacted form.
func (s *Buffer) String() string { return "secretbuf.Buffer(REDACTED)" }

// GoString redacts for %#v the same way String redacts for %v/%s.
func (s *Buffer) GoString() string { return s.String() }

// MarshalJSON redacts; a Buffer must never round-trip through JSON.
func (s *Buffer) MarshalJSON() ([]byte, error) {
	return json.Marshal("REDACTED")
}

// Wipe zeroes an arbitrary byte slice in place. Used for transient
// key-schedule intermediates that are not worth wrapping in a Buffer.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
