package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hightide-labs/identity/internal/identity/cache"
	"github.com/hightide-labs/identity/internal/identity/domain"
	"github.com/hightide-labs/identity/internal/identity/store"
	"github.com/hightide-labs/identity/pkg/cryptox"
	"github.com/hightide-labs/identity/pkg/idx"
	"github.com/hightide-labs/identity/pkg/slogx"
)

const (
	registrationKeyPrefix = "oauth2-registration:"

	// DefaultRegistrationTTL bounds how long a verified-but-unlinked remote
	// identity waits in the cache for signup completion.
	DefaultRegistrationTTL = 15 * time.Minute
)

var (
	ErrInvalidProvider          = errors.New("invalid_provider")
	ErrInvalidAuthorizationCode = errors.New("invalid_authorization_code")
	ErrRemoteAlreadyLinked      = errors.New("remote_already_linked")
	ErrLinkNotFound             = errors.New("link_not_found")
	ErrCannotRemoveLink         = errors.New("cannot_remove_link")
	ErrUserDisabled             = errors.New("user_disabled")
	ErrRegistrationNotFound     = errors.New("registration_not_found")
)

// ProviderClient is the outbound half of the OAuth2 flow: building the
// authorize redirect, exchanging the callback code, and fetching the remote
// identity. provider.Client is the production implementation.
type ProviderClient interface {
	AuthorizationURL(p domain.OAuth2Provider, redirectURI, state string) string
	Exchange(ctx context.Context, p domain.OAuth2Provider, code, redirectURI string) (string, error)
	FetchUser(ctx context.Context, p domain.OAuth2Provider, accessToken string) (domain.RemoteUser, error)
}

// OAuth2Service resolves third-party logins to local accounts and manages the
// links between them.
type OAuth2Service struct {
	Store     store.Store
	Cache     cache.Cache
	Sessions  *SessionService
	Provider  ProviderClient
	Providers map[string]domain.OAuth2Provider

	// RegistrationTTL overrides DefaultRegistrationTTL when positive.
	RegistrationTTL time.Duration
}

func (s *OAuth2Service) registrationTTL() time.Duration {
	if s.RegistrationTTL > 0 {
		return s.RegistrationTTL
	}
	return DefaultRegistrationTTL
}

// ProviderIDs lists the configured provider ids, for client discovery.
func (s *OAuth2Service) ProviderIDs() []string {
	ids := make([]string, 0, len(s.Providers))
	for id := range s.Providers {
		ids = append(ids, id)
	}
	return ids
}

// AuthorizationURL builds the provider's authorize redirect for a login or
// link attempt.
func (s *OAuth2Service) AuthorizationURL(providerID, redirectURI, state string) (string, error) {
	p, ok := s.Providers[providerID]
	if !ok {
		return "", ErrInvalidProvider
	}
	return s.Provider.AuthorizationURL(p, redirectURI, state), nil
}

// Login resolves an authorization-code callback to the remote identity it
// proves. A failed code exchange reports ErrInvalidAuthorizationCode; the
// provider's own error detail stays in the logs.
func (s *OAuth2Service) Login(ctx context.Context, login domain.OAuth2Login) (domain.RemoteUser, error) {
	l := slogx.FromContext(ctx)

	p, ok := s.Providers[login.ProviderID]
	if !ok {
		return domain.RemoteUser{}, ErrInvalidProvider
	}

	accessToken, err := s.Provider.Exchange(ctx, p, login.Code, login.RedirectURI)
	if err != nil {
		l.Info("oauth2 code exchange failed",
			slog.String("provider_id", login.ProviderID),
			slog.Any("error", err))
		return domain.RemoteUser{}, ErrInvalidAuthorizationCode
	}

	remote, err := s.Provider.FetchUser(ctx, p, accessToken)
	if err != nil {
		l.Error("oauth2 userinfo fetch failed",
			slog.String("provider_id", login.ProviderID),
			slog.Any("error", err))
		return domain.RemoteUser{}, err
	}

	return remote, nil
}

// CreateLink ties a resolved remote identity to a local user. A remote
// identity already linked (to anyone) reports ErrRemoteAlreadyLinked.
func (s *OAuth2Service) CreateLink(
	ctx context.Context,
	userID idx.ID,
	providerID string,
	remote domain.RemoteUser,
) (domain.OAuth2Link, error) {
	if _, ok := s.Providers[providerID]; !ok {
		return domain.OAuth2Link{}, ErrInvalidProvider
	}

	link := domain.OAuth2Link{
		ID:         idx.New(),
		UserID:     userID,
		ProviderID: providerID,
		RemoteUser: remote,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.Store.OAuth2Links().CreateLink(ctx, link); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.OAuth2Link{}, ErrRemoteAlreadyLinked
		}
		return domain.OAuth2Link{}, err
	}

	return link, nil
}

// GetLink returns one of a user's links.
func (s *OAuth2Service) GetLink(ctx context.Context, userID, linkID idx.ID) (domain.OAuth2Link, error) {
	link, err := s.Store.OAuth2Links().GetLinkByID(ctx, userID, linkID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.OAuth2Link{}, ErrLinkNotFound
		}
		return domain.OAuth2Link{}, err
	}
	return link, nil
}

// ListLinks returns all of a user's links, newest first.
func (s *OAuth2Service) ListLinks(ctx context.Context, userID idx.ID) ([]domain.OAuth2Link, error) {
	return s.Store.OAuth2Links().ListLinksByUser(ctx, userID)
}

// DeleteLink removes one of a user's links unless doing so would leave the
// account with no way to log in. The guard runs after the delete, inside the
// same transaction, so two concurrent deletes of a password-less user's last
// two links cannot both succeed.
func (s *OAuth2Service) DeleteLink(ctx context.Context, userID, linkID idx.ID) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		existed, err := tx.OAuth2Links().DeleteLink(ctx, userID, linkID)
		if err != nil {
			return err
		}
		if !existed {
			return ErrLinkNotFound
		}

		user, err := tx.Users().GetUserByID(ctx, userID)
		if err != nil {
			return err
		}
		if user.HasPassword() {
			return nil
		}

		remaining, err := tx.OAuth2Links().CountLinksByUser(ctx, userID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			// Rolling back resurrects the link.
			return ErrCannotRemoveLink
		}
		return nil
	})
}

// CreateSession turns an authorization-code callback into either a full login
// (the remote identity is already linked to an enabled local account) or a
// registration token parking the verified identity for signup completion.
func (s *OAuth2Service) CreateSession(
	ctx context.Context,
	login domain.OAuth2Login,
	deviceName *domain.DeviceName,
) (domain.OAuth2SessionResult, error) {
	remote, err := s.Login(ctx, login)
	if err != nil {
		return domain.OAuth2SessionResult{}, err
	}

	link, err := s.Store.OAuth2Links().GetLinkByRemote(ctx, login.ProviderID, remote.ID)
	switch {
	case err == nil:
		user, err := s.Store.Users().GetUserByID(ctx, link.UserID)
		if err != nil {
			return domain.OAuth2SessionResult{}, err
		}
		if !user.Enabled {
			return domain.OAuth2SessionResult{}, ErrUserDisabled
		}

		result, err := s.Sessions.Create(ctx, user, deviceName, true)
		if err != nil {
			return domain.OAuth2SessionResult{}, err
		}
		return domain.OAuth2SessionResult{Login: &result}, nil

	case errors.Is(err, store.ErrNotFound):
		token, err := s.parkRegistration(ctx, login.ProviderID, remote)
		if err != nil {
			return domain.OAuth2SessionResult{}, err
		}
		return domain.OAuth2SessionResult{RegistrationToken: token}, nil

	default:
		return domain.OAuth2SessionResult{}, err
	}
}

// Registration returns the parked remote identity for a registration token.
func (s *OAuth2Service) Registration(ctx context.Context, token string) (domain.OAuth2Registration, error) {
	payload, ok, err := s.Cache.Get(ctx, registrationKey(token))
	if err != nil {
		return domain.OAuth2Registration{}, err
	}
	if !ok {
		return domain.OAuth2Registration{}, ErrRegistrationNotFound
	}

	var reg domain.OAuth2Registration
	if err := json.Unmarshal(payload, &reg); err != nil {
		return domain.OAuth2Registration{}, err
	}
	return reg, nil
}

// CompleteRegistration consumes a registration token: the new user and the
// link to the proven remote identity are created in one transaction, the
// token is dropped, and a first session is opened.
func (s *OAuth2Service) CompleteRegistration(
	ctx context.Context,
	token string,
	user domain.User,
	deviceName *domain.DeviceName,
) (domain.Login, error) {
	reg, err := s.Registration(ctx, token)
	if err != nil {
		return domain.Login{}, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, user); err != nil {
			return err
		}
		if err := tx.OAuth2Links().CreateLink(ctx, domain.OAuth2Link{
			ID:         idx.New(),
			UserID:     user.ID,
			ProviderID: reg.ProviderID,
			RemoteUser: reg.RemoteUser,
			CreatedAt:  time.Now().UTC(),
		}); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				// Someone linked this remote identity while the token sat in
				// the cache.
				return ErrRemoteAlreadyLinked
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.Login{}, err
	}

	if err := s.Cache.Remove(ctx, registrationKey(token)); err != nil {
		slogx.FromContext(ctx).Warn("failed to drop consumed registration token",
			slog.Any("error", err))
	}

	return s.Sessions.Create(ctx, user, deviceName, true)
}

func (s *OAuth2Service) parkRegistration(
	ctx context.Context,
	providerID string,
	remote domain.RemoteUser,
) (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(domain.OAuth2Registration{
		ProviderID: providerID,
		RemoteUser: remote,
	})
	if err != nil {
		return "", err
	}

	if err := s.Cache.Set(ctx, registrationKey(token), payload, s.registrationTTL()); err != nil {
		return "", err
	}
	return token, nil
}

func registrationKey(token string) string {
	return registrationKeyPrefix + token
}
