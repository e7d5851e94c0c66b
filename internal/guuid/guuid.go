// Package guuid generates a 128-bit connection identity used to correlate
// a connection's tracing spans, stats, and debug log lines with each
// other. It is distinct from the wire protocol's 16-bit conn_id (see
// internal/wire), which only needs to disambiguate sockets on one port.
package guuid

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"
)

// GUUID is a 16-byte identifier.
type GUUID [16]byte

// New generates a GUUID from crypto/rand.
func New() (GUUID, error) {
	var g GUUID
	if _, err := rand.Read(g[:]); err != nil {
		return GUUID{}, fmt.Errorf("guuid: generate: %w", err)
	}
	return g, nil
}

// NewOrdered generates a GUUID whose first 8 bytes are the current Unix
// nanosecond timestamp, so identifiers sort in creation order — used for
// the connection identity so log lines and trace spans from the same
// handshake naturally group together.
func NewOrdered() (GUUID, error) {
	var g GUUID
	binary.BigEndian.PutUint64(g[:8], uint64(time.Now().UnixNano()))
	if _, err := rand.Read(g[8:]); err != nil {
		return GUUID{}, fmt.Errorf("guuid: generate ordered: %w", err)
	}
	return g, nil
}

// FromString parses a GUUID from a hex string, hyphens optional.
func FromString(s string) (GUUID, error) {
	cleaned := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '-' {
			cleaned = append(cleaned, s[i])
		}
	}
	if len(cleaned) != 32 {
		return GUUID{}, fmt.Errorf("guuid: invalid length: expected 32 hex chars, got %d", len(cleaned))
	}
	raw, err := hex.DecodeString(string(cleaned))
	if err != nil {
		return GUUID{}, fmt.Errorf("guuid: invalid hex: %w", err)
	}
	var g GUUID
	copy(g[:], raw)
	return g, nil
}

// String returns the compact hex representation.
func (g GUUID) String() string {
	return hex.EncodeToString(g[:])
}

// Bytes returns the raw 16 bytes.
func (g GUUID) Bytes() []byte {
	return g[:]
}

// IsZero reports whether g is the zero value.
func (g GUUID) IsZero() bool {
	return g == GUUID{}
}

// CreatedAt extracts the embedded timestamp from a NewOrdered GUUID. The
// result is meaningless for one produced by New.
func (g GUUID) CreatedAt() time.Time {
	return time.Unix(0, int64(binary.BigEndian.Uint64(g[:8])))
}

// MarshalText implements encoding.TextMarshaler.
func (g GUUID) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *GUUID) UnmarshalText(text []byte) error {
	parsed, err := FromString(string(text))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}
