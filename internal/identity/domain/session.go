package domain

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"

	"github.com/hightide-labs/identity/pkg/idx"
)

// DeviceNameMaxLen bounds the user-supplied device label. Longer values are
// truncated rather than rejected.
const DeviceNameMaxLen = 64

// DeviceName is an optional, length-bounded session label ("Sarah's phone").
type DeviceName string

// NewDeviceName builds a DeviceName, truncating to DeviceNameMaxLen runes.
func NewDeviceName(s string) DeviceName {
	runes := []rune(s)
	if len(runes) > DeviceNameMaxLen {
		runes = runes[:DeviceNameMaxLen]
	}
	return DeviceName(runes)
}

func (d DeviceName) String() string { return string(d) }

// Session is a refreshable login. Each session owns exactly one refresh-token
// hash, persisted separately because the opaque secret itself never is.
// UpdatedAt advances monotonically on every refresh.
type Session struct {
	ID         idx.ID
	UserID     idx.ID
	DeviceName *DeviceName
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TokenHash is a raw SHA-256 digest of an opaque secret (refresh token or MFA
// recovery code). This raw 32-byte form is what gets persisted.
type TokenHash [32]byte

// ErrInvalidTokenHash reports a malformed encoded or raw hash value.
var ErrInvalidTokenHash = errors.New("domain: invalid token hash")

// HashSecret digests an opaque secret into its persisted hash form.
func HashSecret(secret string) TokenHash {
	return TokenHash(sha256.Sum256([]byte(secret)))
}

// Encode returns the base64url form used inside access-token claims.
func (h TokenHash) Encode() string {
	return base64.RawURLEncoding.EncodeToString(h[:])
}

// Bytes returns the raw digest for persistence.
func (h TokenHash) Bytes() []byte { return h[:] }

// DecodeTokenHash parses the base64url claim form back into a TokenHash.
func DecodeTokenHash(s string) (TokenHash, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil || len(raw) != len(TokenHash{}) {
		return TokenHash{}, ErrInvalidTokenHash
	}
	var h TokenHash
	copy(h[:], raw)
	return h, nil
}

// TokenHashFromBytes converts a raw stored digest into a TokenHash.
func TokenHashFromBytes(raw []byte) (TokenHash, error) {
	if len(raw) != len(TokenHash{}) {
		return TokenHash{}, ErrInvalidTokenHash
	}
	var h TokenHash
	copy(h[:], raw)
	return h, nil
}

// Authentication is the ephemeral authorization snapshot embedded in an
// access token at issuance time. It is never persisted.
type Authentication struct {
	UserID           idx.ID
	SessionID        idx.ID
	RefreshTokenHash TokenHash
	Admin            bool
	EmailVerified    bool
}

// TokenPair is the result of minting tokens for a session: the signed access
// token, the opaque refresh secret handed to the client, and the refresh
// secret's hash for persistence.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshTokenHash TokenHash
}

// Login is what a successful session create/refresh returns to the caller.
type Login struct {
	SessionID    idx.ID `json:"session_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
