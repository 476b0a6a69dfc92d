// Package tokenx signs and verifies compact, expiring, tamper-evident claim
// blobs (JWTs with a keyed MAC). It knows nothing about storage or caches;
// higher layers decide what the claims mean.
package tokenx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	// Short-lived for security - typical range is 5m to 1h.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the default inactivity window for refresh
	// tokens, measured from the session's last refresh.
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
)

// Claims are the signed access-token claims. Custom fields mirror the
// authorization-relevant snapshot taken at issuance time; nothing here is
// ever persisted server-side.
type Claims struct {
	jwt.RegisteredClaims

	// SID is the owning session's id.
	SID string `json:"sid,omitempty"`

	// RTH is the base64url SHA-256 hash of the session's refresh token.
	// Invalidation markers are keyed by this value, which is what makes
	// logout instantaneous even while the signature stays valid.
	RTH string `json:"rth,omitempty"`

	// Admin mirrors the user's admin flag at issuance.
	Admin bool `json:"adm,omitempty"`

	// EmailVerified mirrors the user's email_verified flag at issuance.
	EmailVerified bool `json:"emv,omitempty"`
}

// NewClaims builds minimally-correct claims with an absolute expiry of
// now + ttl.
func NewClaims(
	subject, sid, rth string,
	admin, emailVerified bool,
	ttl time.Duration,
	issuer string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        newJTI(),
		},
		SID:           sid,
		RTH:           rth,
		Admin:         admin,
		EmailVerified: emailVerified,
	}
}

// newJTI returns a URL-safe random identifier for the "jti" claim.
func newJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
