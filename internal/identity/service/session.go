package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hightide-labs/identity/internal/identity/domain"
	"github.com/hightide-labs/identity/internal/identity/store"
	"github.com/hightide-labs/identity/pkg/idx"
	"github.com/hightide-labs/identity/pkg/slogx"
)

var ErrSessionNotFound = errors.New("session_not_found")

// SessionService manages session lifecycle: create, refresh (with token
// rotation), and delete. Every mutation that touches more than one row runs
// inside a single store transaction.
type SessionService struct {
	Store store.Store
	Auth  *AuthService

	now func() time.Time // test hook
}

func (s *SessionService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

// Create opens a new session for an already-authenticated user and returns
// its first token pair. Credential and MFA checks are the caller's problem;
// this only records the result. updateLastLogin stamps the user's last_login
// in the same transaction, which OAuth2 and password logins want but internal
// session minting (e.g. completing a registration) may not.
func (s *SessionService) Create(
	ctx context.Context,
	user domain.User,
	deviceName *domain.DeviceName,
	updateLastLogin bool,
) (domain.Login, error) {
	now := s.clock()
	sessionID := idx.NewAt(now)

	pair, err := s.Auth.IssueTokens(user, sessionID)
	if err != nil {
		return domain.Login{}, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Sessions().CreateSession(ctx, domain.Session{
			ID:         sessionID,
			UserID:     user.ID,
			DeviceName: deviceName,
			CreatedAt:  now,
			UpdatedAt:  now,
		}); err != nil {
			return err
		}

		if err := tx.RefreshTokenHashes().SetSessionTokenHash(ctx, sessionID, pair.RefreshTokenHash); err != nil {
			return err
		}

		if updateLastLogin {
			if err := tx.Users().UpdateLastLogin(ctx, user.ID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Login{}, err
	}

	return domain.Login{
		SessionID:    sessionID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// Refresh rotates a session's tokens: the old refresh secret stops working,
// outstanding access tokens bound to it are denylisted, and a fresh pair is
// issued. Rotation is atomic; a session deleted mid-refresh surfaces
// ErrSessionNotFound and nothing is rotated.
func (s *SessionService) Refresh(ctx context.Context, sessionID idx.ID) (domain.Login, error) {
	var login domain.Login

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		oldHash, err := tx.RefreshTokenHashes().GetSessionTokenHash(ctx, sessionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrSessionNotFound
			}
			return err
		}

		session, err := tx.Sessions().GetSessionByID(ctx, sessionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrSessionNotFound
			}
			return err
		}

		user, err := tx.Users().GetUserByID(ctx, session.UserID)
		if err != nil {
			return err
		}

		pair, err := s.Auth.IssueTokens(user, sessionID)
		if err != nil {
			return err
		}

		if err := tx.Sessions().TouchSession(ctx, sessionID, s.clock()); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrSessionNotFound
			}
			return err
		}

		if err := tx.RefreshTokenHashes().SetSessionTokenHash(ctx, sessionID, pair.RefreshTokenHash); err != nil {
			return err
		}

		// Access tokens minted against the old hash die with it. Done inside
		// the tx callback so a rollback never orphans live tokens, though the
		// cache write itself is not transactional.
		if err := s.Auth.AccessTokens.Invalidate(ctx, oldHash); err != nil {
			return err
		}

		login = domain.Login{
			SessionID:    sessionID,
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
		}
		return nil
	})
	if err != nil {
		return domain.Login{}, err
	}

	return login, nil
}

// RefreshByToken resolves an opaque refresh secret and rotates its session.
// A secret belonging to a lapsed session gets the session deleted before the
// generic invalid-token error is returned, so dead sessions do not accumulate.
func (s *SessionService) RefreshByToken(ctx context.Context, secret string) (domain.Login, error) {
	sessionID, err := s.Auth.AuthenticateByRefreshToken(ctx, secret)
	if err != nil {
		var expired *ExpiredSessionError
		if errors.As(err, &expired) {
			if _, delErr := s.Delete(ctx, expired.SessionID); delErr != nil {
				slogx.FromContext(ctx).Warn("failed to delete expired session",
					slog.String("session_id", expired.SessionID.String()),
					slog.Any("error", delErr))
			}
			return domain.Login{}, ErrInvalidRefreshToken
		}
		return domain.Login{}, err
	}

	return s.Refresh(ctx, sessionID)
}

// Get returns a session by id.
func (s *SessionService) Get(ctx context.Context, sessionID idx.ID) (domain.Session, error) {
	session, err := s.Store.Sessions().GetSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Session{}, ErrSessionNotFound
		}
		return domain.Session{}, err
	}
	return session, nil
}

// ListByUser returns all of a user's sessions, newest first.
func (s *SessionService) ListByUser(ctx context.Context, userID idx.ID) ([]domain.Session, error) {
	return s.Store.Sessions().ListSessionsByUser(ctx, userID)
}

// Delete ends a session: its access tokens are denylisted and the row (plus
// its refresh hash, by cascade) removed. Reports whether the session existed.
// Deleting an absent session is not an error.
func (s *SessionService) Delete(ctx context.Context, sessionID idx.ID) (bool, error) {
	var existed bool

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		hash, err := tx.RefreshTokenHashes().GetSessionTokenHash(ctx, sessionID)
		switch {
		case err == nil:
			if err := s.Auth.AccessTokens.Invalidate(ctx, hash); err != nil {
				return err
			}
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		existed, err = tx.Sessions().DeleteSession(ctx, sessionID)
		return err
	})
	if err != nil {
		return false, err
	}

	return existed, nil
}

// DeleteByUser ends every session the user owns, denylisting all their access
// tokens first. Returns the number of sessions removed.
func (s *SessionService) DeleteByUser(ctx context.Context, userID idx.ID) (int64, error) {
	if err := s.Auth.InvalidateAccessTokens(ctx, userID); err != nil {
		return 0, err
	}
	return s.Store.Sessions().DeleteSessionsByUser(ctx, userID)
}
