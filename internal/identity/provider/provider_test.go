package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hightide-labs/identity/internal/identity/domain"
)

func testProvider(authURL, tokenURL, userinfoURL string) domain.OAuth2Provider {
	return domain.OAuth2Provider{
		ID:           "acme",
		Name:         "Acme ID",
		AuthURL:      authURL,
		TokenURL:     tokenURL,
		UserinfoURL:  userinfoURL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Scopes:       []string{"openid", "profile"},
		IDField:      "sub",
		NameField:    "preferred_username",
	}
}

func TestAuthorizationURL(t *testing.T) {
	t.Parallel()

	c := NewClient(nil)
	p := testProvider("https://acme.test/authorize", "https://acme.test/token", "https://acme.test/userinfo")

	u := c.AuthorizationURL(p, "https://app.test/callback", "state-123")
	require.Contains(t, u, "https://acme.test/authorize?")
	require.Contains(t, u, "client_id=client-id")
	require.Contains(t, u, "state=state-123")
	require.Contains(t, u, "redirect_uri=https%3A%2F%2Fapp.test%2Fcallback")
	require.Contains(t, u, "scope=openid+profile")
}

func TestExchange(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "remote-access-token",
			"token_type":   "bearer",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.Client())
	p := testProvider(srv.URL+"/authorize", srv.URL+"/token", srv.URL+"/userinfo")

	token, err := c.Exchange(context.Background(), p, "good-code", "https://app.test/callback")
	require.NoError(t, err)
	require.Equal(t, "remote-access-token", token)

	_, err = c.Exchange(context.Background(), p, "bad-code", "https://app.test/callback")
	require.Error(t, err)
}

func TestFetchUser(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer remote-access-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":                "remote-7",
			"preferred_username": "octocat",
			"email":              "octo@example.com",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.Client())
	p := testProvider(srv.URL+"/authorize", srv.URL+"/token", srv.URL)

	remote, err := c.FetchUser(context.Background(), p, "remote-access-token")
	require.NoError(t, err)
	require.Equal(t, domain.RemoteUser{ID: "remote-7", Name: "octocat"}, remote)
}

func TestFetchUser_MissingID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"preferred_username": "ghost"})
	}))
	defer srv.Close()

	c := NewClient(srv.Client())
	p := testProvider(srv.URL+"/authorize", srv.URL+"/token", srv.URL)

	_, err := c.FetchUser(context.Background(), p, "tok")
	require.ErrorIs(t, err, ErrMissingRemoteID)
}

func TestFetchUser_Non200(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.Client())
	p := testProvider(srv.URL+"/authorize", srv.URL+"/token", srv.URL)

	_, err := c.FetchUser(context.Background(), p, "expired")
	require.Error(t, err)
}
