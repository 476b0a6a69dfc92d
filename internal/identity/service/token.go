package service

import (
	"context"
	"time"

	"github.com/hightide-labs/identity/internal/identity/cache"
	"github.com/hightide-labs/identity/internal/identity/domain"
	"github.com/hightide-labs/identity/pkg/cryptox"
	"github.com/hightide-labs/identity/pkg/idx"
	"github.com/hightide-labs/identity/pkg/tokenx"
)

const invalidatedKeyPrefix = "invalidated:"

// AccessTokenIssuer mints and verifies access tokens carrying an
// Authentication snapshot, and maintains the cache-backed denylist that makes
// logout instantaneous despite tokens staying cryptographically valid until
// expiry.
type AccessTokenIssuer struct {
	Codec     *tokenx.Codec
	Cache     cache.Cache
	AccessTTL time.Duration

	now func() time.Time // test hook
}

func (i *AccessTokenIssuer) clock() time.Time {
	if i.now != nil {
		return i.now()
	}
	return time.Now().UTC()
}

// Issue signs an access token embedding the user's authorization-relevant
// fields at this moment. Pure, no I/O.
func (i *AccessTokenIssuer) Issue(
	user domain.User,
	sessionID idx.ID,
	refreshTokenHash domain.TokenHash,
) (string, error) {
	claims := tokenx.NewClaims(
		user.ID.String(),
		sessionID.String(),
		refreshTokenHash.Encode(),
		user.Admin,
		user.EmailVerified,
		i.AccessTTL,
		i.Codec.Issuer(),
		i.clock(),
	)
	return i.Codec.Sign(claims)
}

// Verify parses a token back into its Authentication snapshot. Signature
// failure, expiry, and malformed claims all yield ok=false with no further
// detail.
func (i *AccessTokenIssuer) Verify(token string) (domain.Authentication, bool) {
	claims, ok := i.Codec.Verify(token)
	if !ok {
		return domain.Authentication{}, false
	}

	userID, err := idx.Parse(claims.Subject)
	if err != nil {
		return domain.Authentication{}, false
	}
	sessionID, err := idx.Parse(claims.SID)
	if err != nil {
		return domain.Authentication{}, false
	}
	hash, err := domain.DecodeTokenHash(claims.RTH)
	if err != nil {
		return domain.Authentication{}, false
	}

	return domain.Authentication{
		UserID:           userID,
		SessionID:        sessionID,
		RefreshTokenHash: hash,
		Admin:            claims.Admin,
		EmailVerified:    claims.EmailVerified,
	}, true
}

// Invalidate writes a denylist marker for every access token carrying this
// refresh-token hash. The marker only needs to outlive the longest-lived
// access token it could invalidate, so its TTL is the access TTL.
func (i *AccessTokenIssuer) Invalidate(ctx context.Context, hash domain.TokenHash) error {
	return i.Cache.Set(ctx, invalidatedKey(hash), []byte{1}, i.AccessTTL)
}

// IsInvalidated reports whether a denylist marker exists for the hash.
func (i *AccessTokenIssuer) IsInvalidated(ctx context.Context, hash domain.TokenHash) (bool, error) {
	_, ok, err := i.Cache.Get(ctx, invalidatedKey(hash))
	return ok, err
}

func invalidatedKey(hash domain.TokenHash) string {
	return invalidatedKeyPrefix + hash.Encode()
}

// RefreshTokenIssuer generates opaque refresh secrets. Only the hash is ever
// persisted; the plaintext goes to the client once and is then forgotten.
type RefreshTokenIssuer struct {
	// SecretLength is the secret size in bytes before encoding. Zero means
	// cryptox.TokenSize256.
	SecretLength int
}

func (i *RefreshTokenIssuer) Issue() (secret string, hash domain.TokenHash, err error) {
	size := i.SecretLength
	if size <= 0 {
		size = cryptox.TokenSize256
	}

	secret, err = cryptox.GenerateToken(size)
	if err != nil {
		return "", domain.TokenHash{}, err
	}
	return secret, domain.HashSecret(secret), nil
}
