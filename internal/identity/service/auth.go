package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hightide-labs/identity/internal/identity/domain"
	"github.com/hightide-labs/identity/internal/identity/store"
	"github.com/hightide-labs/identity/pkg/cryptox"
	"github.com/hightide-labs/identity/pkg/idx"
	"github.com/hightide-labs/identity/pkg/slogx"
)

var (
	ErrInvalidAccessToken  = errors.New("invalid_access_token")
	ErrInvalidCredentials  = errors.New("invalid_credentials")
	ErrInvalidRefreshToken = errors.New("invalid_refresh_token")
)

// ExpiredSessionError reports a refresh token whose session sat idle past the
// refresh TTL. It carries the session id so callers can garbage-collect the
// dead session before surfacing a generic invalid-token error to the client.
type ExpiredSessionError struct {
	SessionID idx.ID
}

func (e *ExpiredSessionError) Error() string {
	return fmt.Sprintf("refresh token expired for session %s", e.SessionID)
}

// AuthService owns credential checks and token issuance. Session lifecycle
// lives in SessionService, which composes this.
type AuthService struct {
	Store         store.Store
	AccessTokens  *AccessTokenIssuer
	RefreshTokens *RefreshTokenIssuer
	RefreshTTL    time.Duration

	now func() time.Time // test hook
}

func (s *AuthService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

// Authenticate verifies an access token and checks the invalidation denylist.
// Signature failure, expiry, and invalidation are indistinguishable to the
// caller.
func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.Authentication, error) {
	auth, ok := s.AccessTokens.Verify(token)
	if !ok {
		return domain.Authentication{}, ErrInvalidAccessToken
	}

	invalidated, err := s.AccessTokens.IsInvalidated(ctx, auth.RefreshTokenHash)
	if err != nil {
		return domain.Authentication{}, err
	}
	if invalidated {
		return domain.Authentication{}, ErrInvalidAccessToken
	}

	return auth, nil
}

// AuthenticateByPassword checks a password against a user's stored hash. A
// missing user, a user with no password, and a mismatch all report
// ErrInvalidCredentials so the caller cannot distinguish them.
func (s *AuthService) AuthenticateByPassword(ctx context.Context, userID idx.ID, password string) error {
	l := slogx.FromContext(ctx)

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}

	if !user.HasPassword() {
		return ErrInvalidCredentials
	}

	if err := cryptox.VerifyPassword(password, *user.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			// Malformed stored hash. Still reported as a credential failure,
			// but worth a log line since it means the row is corrupt.
			l.Warn("stored password hash is malformed",
				slog.String("user_id", userID.String()),
				slog.Any("error", err))
		}
		return ErrInvalidCredentials
	}

	return nil
}

// AuthenticateByRefreshToken resolves an opaque refresh secret to its owning
// session and checks the inactivity window. An unknown secret yields
// ErrInvalidRefreshToken; a known-but-lapsed one yields *ExpiredSessionError
// so the caller can clean up.
func (s *AuthService) AuthenticateByRefreshToken(ctx context.Context, secret string) (idx.ID, error) {
	hash := domain.HashSecret(secret)

	sessionID, err := s.Store.RefreshTokenHashes().GetSessionIDByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return idx.Zero, ErrInvalidRefreshToken
		}
		return idx.Zero, err
	}

	session, err := s.Store.Sessions().GetSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return idx.Zero, ErrInvalidRefreshToken
		}
		return idx.Zero, err
	}

	if !s.clock().Before(session.UpdatedAt.Add(s.RefreshTTL)) {
		return idx.Zero, &ExpiredSessionError{SessionID: sessionID}
	}

	return sessionID, nil
}

// IssueTokens mints a fresh refresh secret and an access token bound to it.
// Pure token work, no persistence; the caller stores the hash.
func (s *AuthService) IssueTokens(user domain.User, sessionID idx.ID) (domain.TokenPair, error) {
	secret, hash, err := s.RefreshTokens.Issue()
	if err != nil {
		return domain.TokenPair{}, err
	}

	access, err := s.AccessTokens.Issue(user, sessionID, hash)
	if err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     secret,
		RefreshTokenHash: hash,
	}, nil
}

// InvalidateAccessTokens denylists the access tokens of every session the
// user owns. Best effort across sessions: the first cache failure aborts.
func (s *AuthService) InvalidateAccessTokens(ctx context.Context, userID idx.ID) error {
	hashes, err := s.Store.RefreshTokenHashes().ListTokenHashesByUser(ctx, userID)
	if err != nil {
		return err
	}

	for _, hash := range hashes {
		if err := s.AccessTokens.Invalidate(ctx, hash); err != nil {
			return err
		}
	}
	return nil
}
