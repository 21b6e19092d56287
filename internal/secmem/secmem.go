package secmem

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// SecureString holds sensitive data with best-effort memory zeroing and
// redacts itself across every common formatting and serialization path, so
// a token can be threaded through configs, logs, and structs without an
// accidental plaintext leak. Go's GC may copy the backing array, so the
// zeroing here is defense-in-depth, not a guarantee.
type SecureString struct {
	mu         sync.Mutex
	data       []byte
	warnedOnce atomic.Bool
}

// NewSecureString creates a SecureString from the given string.
func NewSecureString(s string) *SecureString {
	b := make([]byte, len(s))
	copy(b, s)
	return &SecureString{data: b}
}

// Reveal returns the plaintext value. Callers should hold onto the result
// for as little time as possible. Returns "" once Zero has been called, or
// on a nil receiver.
func (s *SecureString) Reveal() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		if s.warnedOnce.CompareAndSwap(false, true) {
			slog.Warn("secmem: Reveal called after Zero")
		}
		return ""
	}
	return string(s.data)
}

// IsZeroed reports whether Zero has already wiped the backing data.
func (s *SecureString) IsZeroed() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data == nil
}

// Zero overwrites the backing byte slice with zeros and drops the
// reference so the backing array becomes eligible for collection.
func (s *SecureString) Zero() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data {
		s.data[i] = 0
	}
	s.data = nil
}

// String always returns the redacted placeholder so that accidental use in
// string concatenation or %v logging never leaks the plaintext. Use Reveal
// when the real value is actually needed.
func (s *SecureString) String() string {
	return "[REDACTED]"
}

// GoString redacts %#v the same way String redacts %v.
func (s *SecureString) GoString() string {
	return "[REDACTED]"
}

// Format implements fmt.Formatter so every verb - %s, %v, %+v, %#v, %q -
// redacts, not just the ones the String/GoString hooks cover individually.
func (s *SecureString) Format(f fmt.State, verb rune) {
	fmt.Fprint(f, "[REDACTED]")
}

// MarshalJSON redacts the token so a SecureString embedded in a config
// struct never round-trips plaintext through json.Marshal.
func (s *SecureString) MarshalJSON() ([]byte, error) {
	return json.Marshal("[REDACTED]")
}

// UnmarshalJSON always fails: a redacted value can never be decoded back
// into a live token, so silently accepting input here would produce a
// SecureString that wraps the literal string "[REDACTED]".
func (s *SecureString) UnmarshalJSON(data []byte) error {
	return fmt.Errorf("secmem: SecureString cannot be unmarshaled from JSON")
}

// MarshalText redacts the same way MarshalJSON does, for encoders that use
// the encoding.TextMarshaler path instead (e.g. viper's YAML codec).
func (s *SecureString) MarshalText() ([]byte, error) {
	return []byte("[REDACTED]"), nil
}
