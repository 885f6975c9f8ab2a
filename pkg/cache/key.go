package cache

import (
	"crypto/sha256"
	"fmt"
	"net/url"
)

// Key identifies a cached upstream record set.
type Key struct {
	// Source is the dataset namespace (e.g., "transactions", "diagnostics").
	Source string

	// Params are the normalized query parameters of the upstream call.
	Params url.Values
}

// String generates a deterministic cache key string.
// Format: ecoimmo:<source>:<sha256 of sorted query params, first 8 bytes hex>
//
// url.Values.Encode sorts parameters by key, so two parameter sets that
// differ only in construction order hash identically.
func (k Key) String() string {
	sum := sha256.Sum256([]byte(k.Params.Encode()))
	return fmt.Sprintf("ecoimmo:%s:%x", k.Source, sum[:8])
}
