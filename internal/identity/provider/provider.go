// Package provider talks to remote OAuth2 identity providers: authorization
// URL construction, authorization-code exchange, and userinfo retrieval.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/hightide-labs/identity/internal/identity/domain"
)

const (
	// maxUserinfoBody bounds how much of a userinfo response gets read.
	maxUserinfoBody = 1 << 20

	defaultTimeout = 10 * time.Second
)

var (
	// ErrNoAccessToken reports a token response without an access token.
	ErrNoAccessToken = errors.New("provider: token response carried no access token")

	// ErrMissingRemoteID reports a userinfo document missing the configured
	// id field. A remote identity without an id cannot be linked.
	ErrMissingRemoteID = errors.New("provider: userinfo response missing id field")
)

// Client resolves authorization codes and fetches remote user identities.
type Client struct {
	httpClient *http.Client
}

func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{httpClient: httpClient}
}

// AuthorizationURL builds the provider's authorization endpoint URL for the
// given redirect URI and state. Pure construction, no I/O.
func (c *Client) AuthorizationURL(p domain.OAuth2Provider, redirectURI, state string) string {
	return oauthConfig(p, redirectURI).AuthCodeURL(state)
}

// Exchange swaps an authorization code for the provider's access token.
func (c *Client) Exchange(
	ctx context.Context,
	p domain.OAuth2Provider,
	code, redirectURI string,
) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := oauthConfig(p, redirectURI).Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange authorization code with %s: %w", p.ID, err)
	}
	if tok.AccessToken == "" {
		return "", ErrNoAccessToken
	}
	return tok.AccessToken, nil
}

// FetchUser retrieves the remote user's id and display name from the
// provider's userinfo endpoint. Field names come from the provider config
// since providers disagree on them.
func (c *Client) FetchUser(
	ctx context.Context,
	p domain.OAuth2Provider,
	accessToken string,
) (domain.RemoteUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserinfoURL, nil)
	if err != nil {
		return domain.RemoteUser{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.RemoteUser{}, fmt.Errorf("fetch userinfo from %s: %w", p.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.RemoteUser{}, fmt.Errorf("fetch userinfo from %s: unexpected status %d", p.ID, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserinfoBody))
	if err != nil {
		return domain.RemoteUser{}, fmt.Errorf("read userinfo from %s: %w", p.ID, err)
	}

	id := gjson.GetBytes(body, fieldOrDefault(p.IDField, "id"))
	if !id.Exists() || id.String() == "" {
		return domain.RemoteUser{}, ErrMissingRemoteID
	}
	name := gjson.GetBytes(body, fieldOrDefault(p.NameField, "name"))

	return domain.RemoteUser{
		ID:   id.String(),
		Name: name.String(),
	}, nil
}

func oauthConfig(p domain.OAuth2Provider, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       p.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.AuthURL,
			TokenURL:  p.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func fieldOrDefault(field, fallback string) string {
	if field == "" {
		return fallback
	}
	return field
}
