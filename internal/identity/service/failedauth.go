package service

import (
	"context"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/hightide-labs/identity/internal/identity/cache"
	"github.com/hightide-labs/identity/pkg/cryptox"
)

const failedAuthKeyPrefix = "failed-auth:"

// FailedAuthService counts failed login attempts per login identifier so the
// edge can demand a captcha after repeated failures. Counters live only in
// the cache; the identifier itself is never stored, only its digest. Counts
// persist until an explicit Reset (a successful login), not via TTL.
//
// The counter is read-increment-write without coordination. Concurrent
// failures may undercount, which only delays the captcha by a request or two.
type FailedAuthService struct {
	Cache cache.Cache

	// CaptchaThreshold is the failure count at which RequiresCaptcha starts
	// reporting true. Zero disables captcha gating entirely.
	CaptchaThreshold uint64
}

// Get returns the current failure count for an identifier.
func (s *FailedAuthService) Get(ctx context.Context, nameOrEmail string) (uint64, error) {
	raw, ok, err := s.Cache.Get(ctx, failedAuthKey(nameOrEmail))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		// Corrupt counter; treat as absent rather than poisoning logins.
		return 0, nil
	}
	return n, nil
}

// Increment records one more failure and returns the new count.
func (s *FailedAuthService) Increment(ctx context.Context, nameOrEmail string) (uint64, error) {
	n, err := s.Get(ctx, nameOrEmail)
	if err != nil {
		return 0, err
	}
	n++

	key := failedAuthKey(nameOrEmail)
	if err := s.Cache.Set(ctx, key, []byte(strconv.FormatUint(n, 10)), 0); err != nil {
		return 0, err
	}
	return n, nil
}

// Reset clears the counter, called on successful authentication.
func (s *FailedAuthService) Reset(ctx context.Context, nameOrEmail string) error {
	return s.Cache.Remove(ctx, failedAuthKey(nameOrEmail))
}

// RequiresCaptcha reports whether the identifier has failed often enough that
// the edge should demand a captcha before attempting authentication.
func (s *FailedAuthService) RequiresCaptcha(ctx context.Context, nameOrEmail string) (bool, error) {
	if s.CaptchaThreshold == 0 {
		return false, nil
	}
	n, err := s.Get(ctx, nameOrEmail)
	if err != nil {
		return false, err
	}
	return n >= s.CaptchaThreshold, nil
}

// failedAuthKey normalizes the identifier the same way login resolution does
// (email lookup is case-insensitive) and digests it so raw identifiers never
// reach the cache.
func failedAuthKey(nameOrEmail string) string {
	digest := cryptox.DigestString(strings.ToLower(strings.TrimSpace(nameOrEmail)))
	return failedAuthKeyPrefix + hex.EncodeToString(digest[:])
}
