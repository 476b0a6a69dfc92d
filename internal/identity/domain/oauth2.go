package domain

import (
	"time"

	"github.com/hightide-labs/identity/pkg/idx"
)

// OAuth2Provider is the static configuration for one remote identity
// provider. IDField and NameField are gjson paths into the userinfo response,
// since providers disagree on field naming ("id" vs "sub", "name" vs "login").
type OAuth2Provider struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	AuthURL      string   `json:"auth_url"`
	TokenURL     string   `json:"token_url"`
	UserinfoURL  string   `json:"userinfo_url"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes"`
	IDField      string   `json:"id_field"`
	NameField    string   `json:"name_field"`
}

// RemoteUser identifies an account at a remote provider.
type RemoteUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// OAuth2Link ties a remote identity to a local user. (ProviderID,
// RemoteUser.ID) is unique: a remote identity links to at most one local user.
type OAuth2Link struct {
	ID         idx.ID
	UserID     idx.ID
	ProviderID string
	RemoteUser RemoteUser
	CreatedAt  time.Time
}

// OAuth2Login is a resolved authorization-code callback.
type OAuth2Login struct {
	ProviderID  string `json:"provider_id"`
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
}

// OAuth2Registration is a verified-but-unlinked remote identity parked in the
// cache under a short-lived random token until the client completes account
// creation or linking.
type OAuth2Registration struct {
	ProviderID string     `json:"provider_id"`
	RemoteUser RemoteUser `json:"remote_user"`
}

// OAuth2SessionResult is the outcome of an OAuth2 session creation: either a
// full login (the remote identity mapped to a local account) or a
// registration token for completing signup.
type OAuth2SessionResult struct {
	Login             *Login `json:"login,omitempty"`
	RegistrationToken string `json:"registration_token,omitempty"`
}
