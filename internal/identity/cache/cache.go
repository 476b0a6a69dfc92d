// Package cache defines the key/value contract the engines share for
// cross-request ephemeral state: invalidation markers, TOTP replay markers,
// failed-auth counters, and pending OAuth2 registrations. Keys are
// content-derived (hashes or random tokens), so get/set/remove is all the
// coordination required. No transactions and no atomic increment are assumed.
package cache

import (
	"context"
	"time"
)

type Cache interface {
	// Get returns the value for key, with ok=false when the key is absent
	// or its TTL elapsed.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}
