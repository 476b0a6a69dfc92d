package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hightide-labs/identity/internal/identity/domain"
	"github.com/hightide-labs/identity/pkg/idx"
)

// stubProvider fakes the outbound OAuth2 legs: one authorization code is
// valid and resolves to one remote user. The HTTP plumbing itself is covered
// in the provider package.
type stubProvider struct {
	validCode string
	remote    domain.RemoteUser
}

func (s *stubProvider) AuthorizationURL(p domain.OAuth2Provider, redirectURI, state string) string {
	return p.AuthURL + "?state=" + state
}

func (s *stubProvider) Exchange(_ context.Context, _ domain.OAuth2Provider, code, _ string) (string, error) {
	if code != s.validCode {
		return "", errors.New("provider rejected code")
	}
	return "remote-access-token", nil
}

func (s *stubProvider) FetchUser(_ context.Context, _ domain.OAuth2Provider, accessToken string) (domain.RemoteUser, error) {
	if accessToken != "remote-access-token" {
		return domain.RemoteUser{}, errors.New("bad access token")
	}
	return s.remote, nil
}

func newOAuth2Service(env *testEnv, stub *stubProvider) *OAuth2Service {
	return &OAuth2Service{
		Store:    env.store,
		Cache:    env.cache,
		Sessions: env.sessions,
		Provider: stub,
		Providers: map[string]domain.OAuth2Provider{
			"github": {
				ID:      "github",
				Name:    "GitHub",
				AuthURL: "https://example.com/authorize",
			},
		},
	}
}

func TestOAuth2Service_AuthorizationURL(t *testing.T) {
	env := newTestEnv(t)
	svc := newOAuth2Service(env, &stubProvider{})

	url, err := svc.AuthorizationURL("github", "https://app.example.com/cb", "xyzzy")
	require.NoError(t, err)
	require.Contains(t, url, "state=xyzzy")

	_, err = svc.AuthorizationURL("gitlab", "https://app.example.com/cb", "xyzzy")
	require.ErrorIs(t, err, ErrInvalidProvider)
}

func TestOAuth2Service_Login(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	stub := &stubProvider{validCode: "good-code", remote: domain.RemoteUser{ID: "r-1", Name: "octo"}}
	svc := newOAuth2Service(env, stub)

	remote, err := svc.Login(ctx, domain.OAuth2Login{ProviderID: "github", Code: "good-code"})
	require.NoError(t, err)
	require.Equal(t, stub.remote, remote)

	_, err = svc.Login(ctx, domain.OAuth2Login{ProviderID: "github", Code: "bad-code"})
	require.ErrorIs(t, err, ErrInvalidAuthorizationCode)

	_, err = svc.Login(ctx, domain.OAuth2Login{ProviderID: "gitlab", Code: "good-code"})
	require.ErrorIs(t, err, ErrInvalidProvider)
}

func TestOAuth2Service_CreateLink_Uniqueness(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := newOAuth2Service(env, &stubProvider{})

	alice := env.seedUser(t, "alice", "")
	bob := env.seedUser(t, "bob", "")
	remote := domain.RemoteUser{ID: "r-1", Name: "octo"}

	link, err := svc.CreateLink(ctx, alice.ID, "github", remote)
	require.NoError(t, err)
	require.Equal(t, alice.ID, link.UserID)

	// The same remote identity cannot link to anyone else, including the
	// same user twice.
	_, err = svc.CreateLink(ctx, bob.ID, "github", remote)
	require.ErrorIs(t, err, ErrRemoteAlreadyLinked)
	_, err = svc.CreateLink(ctx, alice.ID, "github", remote)
	require.ErrorIs(t, err, ErrRemoteAlreadyLinked)

	_, err = svc.CreateLink(ctx, alice.ID, "gitlab", remote)
	require.ErrorIs(t, err, ErrInvalidProvider)
}

func TestOAuth2Service_DeleteLink_LastLoginMethodGuard(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := newOAuth2Service(env, &stubProvider{})

	// Password-less user with a single link: removing it would lock them out.
	alice := env.seedUser(t, "alice", "")
	link, err := svc.CreateLink(ctx, alice.ID, "github", domain.RemoteUser{ID: "r-1"})
	require.NoError(t, err)

	err = svc.DeleteLink(ctx, alice.ID, link.ID)
	require.ErrorIs(t, err, ErrCannotRemoveLink)

	// The rollback resurrected the link.
	_, err = svc.GetLink(ctx, alice.ID, link.ID)
	require.NoError(t, err)

	// With a password the same delete goes through.
	bob := env.seedUser(t, "bob", "hunter2 but longer")
	bobLink, err := svc.CreateLink(ctx, bob.ID, "github", domain.RemoteUser{ID: "r-2"})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteLink(ctx, bob.ID, bobLink.ID))

	require.ErrorIs(t, svc.DeleteLink(ctx, bob.ID, bobLink.ID), ErrLinkNotFound)
}

func TestOAuth2Service_DeleteLink_OtherLinkRemains(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := newOAuth2Service(env, &stubProvider{})

	alice := env.seedUser(t, "alice", "")
	first, err := svc.CreateLink(ctx, alice.ID, "github", domain.RemoteUser{ID: "r-1"})
	require.NoError(t, err)
	_, err = svc.CreateLink(ctx, alice.ID, "github", domain.RemoteUser{ID: "r-2"})
	require.NoError(t, err)

	// Two links, no password: one may go.
	require.NoError(t, svc.DeleteLink(ctx, alice.ID, first.ID))

	links, err := svc.ListLinks(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
}

func TestOAuth2Service_CreateSession_LinkedUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	stub := &stubProvider{validCode: "good-code", remote: domain.RemoteUser{ID: "r-1", Name: "octo"}}
	svc := newOAuth2Service(env, stub)

	alice := env.seedUser(t, "alice", "")
	_, err := svc.CreateLink(ctx, alice.ID, "github", stub.remote)
	require.NoError(t, err)

	result, err := svc.CreateSession(ctx, domain.OAuth2Login{ProviderID: "github", Code: "good-code"}, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Login)
	require.Empty(t, result.RegistrationToken)

	auth, err := env.auth.Authenticate(ctx, result.Login.AccessToken)
	require.NoError(t, err)
	require.Equal(t, alice.ID, auth.UserID)
}

func TestOAuth2Service_CreateSession_DisabledUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	stub := &stubProvider{validCode: "good-code", remote: domain.RemoteUser{ID: "r-1"}}
	svc := newOAuth2Service(env, stub)

	disabled := domain.User{ID: idx.New(), Name: "mallory", Enabled: false, CreatedAt: time.Now().UTC()}
	require.NoError(t, env.store.Users().CreateUser(ctx, disabled))
	_, err := svc.CreateLink(ctx, disabled.ID, "github", stub.remote)
	require.NoError(t, err)

	_, err = svc.CreateSession(ctx, domain.OAuth2Login{ProviderID: "github", Code: "good-code"}, nil)
	require.ErrorIs(t, err, ErrUserDisabled)
}

func TestOAuth2Service_RegistrationFlow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	stub := &stubProvider{validCode: "good-code", remote: domain.RemoteUser{ID: "r-9", Name: "newcomer"}}
	svc := newOAuth2Service(env, stub)

	// Unlinked remote identity parks a registration instead of logging in.
	result, err := svc.CreateSession(ctx, domain.OAuth2Login{ProviderID: "github", Code: "good-code"}, nil)
	require.NoError(t, err)
	require.Nil(t, result.Login)
	require.NotEmpty(t, result.RegistrationToken)

	reg, err := svc.Registration(ctx, result.RegistrationToken)
	require.NoError(t, err)
	require.Equal(t, "github", reg.ProviderID)
	require.Equal(t, stub.remote, reg.RemoteUser)

	newUser := domain.User{ID: idx.New(), Name: "newcomer", Enabled: true, CreatedAt: time.Now().UTC()}
	login, err := svc.CompleteRegistration(ctx, result.RegistrationToken, newUser, nil)
	require.NoError(t, err)
	require.NotEmpty(t, login.AccessToken)

	// The token was consumed and the link persisted: the next callback is a
	// plain login.
	_, err = svc.Registration(ctx, result.RegistrationToken)
	require.ErrorIs(t, err, ErrRegistrationNotFound)

	again, err := svc.CreateSession(ctx, domain.OAuth2Login{ProviderID: "github", Code: "good-code"}, nil)
	require.NoError(t, err)
	require.NotNil(t, again.Login)
	require.Equal(t, newUser.ID, mustAuth(t, env, again.Login.AccessToken).UserID)
}

func TestOAuth2Service_Registration_Expiry(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	stub := &stubProvider{validCode: "good-code", remote: domain.RemoteUser{ID: "r-9"}}
	svc := newOAuth2Service(env, stub)

	result, err := svc.CreateSession(ctx, domain.OAuth2Login{ProviderID: "github", Code: "good-code"}, nil)
	require.NoError(t, err)

	env.mr.FastForward(DefaultRegistrationTTL + time.Second)

	_, err = svc.Registration(ctx, result.RegistrationToken)
	require.ErrorIs(t, err, ErrRegistrationNotFound)

	newUser := domain.User{ID: idx.New(), Name: "late", Enabled: true, CreatedAt: time.Now().UTC()}
	_, err = svc.CompleteRegistration(ctx, result.RegistrationToken, newUser, nil)
	require.ErrorIs(t, err, ErrRegistrationNotFound)
}

func mustAuth(t *testing.T, env *testEnv, accessToken string) domain.Authentication {
	t.Helper()

	auth, err := env.auth.Authenticate(context.Background(), accessToken)
	require.NoError(t, err)
	return auth
}
