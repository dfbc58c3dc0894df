// Package cache stores compilation results by content address.
//
// A key is derived from everything that determines a result: the document
// bytes, the dialect and generator options, and fingerprints of the sidecar
// and plugin scripts. Entries therefore never go stale and carry no expiry.
//
//	c := cache.NewMemoryCache()
//	key := cache.Key(string(src), "postgresql")
//	if entry, ok := c.Get(ctx, key); ok {
//	    // reuse entry.SQL and entry.Diagnostics
//	}
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/electwix/erd-catalyst/internal/diagnostics"
)

// Entry is one cached compilation.
type Entry struct {
	SQL         string                   `json:"sql"`
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics,omitempty"`
	Generated   bool                     `json:"generated"`
	Valid       bool                     `json:"valid"`
}

// Cache is implemented by MemoryCache and FileCache. Implementations are
// safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool)
	Put(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Key returns the hex SHA-256 content address of parts. Parts are length
// prefixed, so ("ab", "c") and ("a", "bc") differ.
func Key(parts ...string) string {
	h := sha256.New()
	var n [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
