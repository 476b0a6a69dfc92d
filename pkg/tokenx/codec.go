package tokenx

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// MinKeyLen is the smallest accepted MAC key. HS256 keys shorter than the
// hash output weaken the MAC.
const MinKeyLen = 32

// ErrShortKey reports a signing key below MinKeyLen bytes.
var ErrShortKey = errors.New("tokenx: signing key too short")

// Codec signs and verifies claims with HMAC-SHA256. The zero value is not
// usable; construct with NewCodec.
type Codec struct {
	key    []byte
	issuer string
}

func NewCodec(key []byte, issuer string) (*Codec, error) {
	if len(key) < MinKeyLen {
		return nil, ErrShortKey
	}
	return &Codec{key: key, issuer: issuer}, nil
}

// Issuer returns the issuer stamped into signed claims.
func (c *Codec) Issuer() string { return c.issuer }

// Sign produces the compact serialized token for claims.
func (c *Codec) Sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
}

// Verify parses and validates a token. A bad signature, wrong algorithm,
// wrong issuer, or expiry all yield ok=false with no further detail, so
// callers cannot distinguish tampering from natural expiry.
func (c *Codec) Verify(token string) (Claims, bool) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(
		token,
		&claims,
		func(t *jwt.Token) (any, error) { return c.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, false
	}
	return claims, true
}
