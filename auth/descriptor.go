package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/openetl/connection"
	"github.com/relloyd/openetl/constants"
	"golang.org/x/oauth2"
)

// Applier adds credentials to an outbound request.
type Applier interface {
	Apply(req *http.Request) error
}

// OAuth2Settings holds the client registration used for the authorization code flow.
type OAuth2Settings struct {
	ClientID     string
	ClientSecret string
	AuthorizeURL string
	TokenURL     string
	RefreshURL   string
	RevokeURL    string
	RedirectURL  string
	Scope        string
}

// Config returns the golang.org/x/oauth2 configuration for s.
// When a separate refresh URL is configured it is used as the token endpoint for refreshes.
func (s OAuth2Settings) Config(forRefresh bool) *oauth2.Config {
	tokenURL := s.TokenURL
	if forRefresh && s.RefreshURL != "" {
		tokenURL = s.RefreshURL
	}
	var scopes []string
	if s.Scope != "" {
		scopes = strings.Fields(strings.ReplaceAll(s.Scope, ",", " "))
	}
	return &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		Endpoint:     oauth2.Endpoint{AuthURL: s.AuthorizeURL, TokenURL: tokenURL},
		RedirectURL:  s.RedirectURL,
		Scopes:       scopes,
	}
}

// Descriptor describes how to authenticate requests to a remote API.
type Descriptor struct {
	Kind     string // none|basic|bearer|oauth2
	Username string
	Password string
	Token    string
	OAuth2   OAuth2Settings
	Store    TokenStore // required for oauth2
	StoreKey string     // key of the token in Store, usually the connection name
}

// Apply implements Applier.
func (d Descriptor) Apply(req *http.Request) error {
	switch d.Kind {
	case "", constants.AuthTypeNone:
		return nil
	case constants.AuthTypeBasic:
		req.SetBasicAuth(d.Username, d.Password)
		return nil
	case constants.AuthTypeBearer:
		if d.Token == "" {
			return errors.New("missing bearer token")
		}
		req.Header.Set("Authorization", "Bearer "+d.Token)
		return nil
	case constants.AuthTypeOAuth2:
		tok, err := d.validToken(req.Context())
		if err != nil {
			return err
		}
		tok.SetAuthHeader(req)
		return nil
	}
	return fmt.Errorf("unsupported authentication type %q", d.Kind)
}

// validToken fetches the stored token and refreshes it when it has expired.
func (d Descriptor) validToken(ctx context.Context) (*oauth2.Token, error) {
	if d.Store == nil {
		return nil, errors.New("oauth2 authentication requires a token store")
	}
	t, err := d.Store.Get(ctx, d.StoreKey)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to load oauth2 token %q", d.StoreKey)
	}
	if t.Valid() {
		return t.OAuth2(), nil
	}
	if t.RefreshToken == "" {
		return nil, fmt.Errorf("oauth2 token %q has expired and cannot be refreshed", d.StoreKey)
	}
	t, err = d.Store.Refresh(ctx, d.StoreKey, d.OAuth2.Config(true))
	if err != nil {
		return nil, errors.Wrapf(err, "unable to refresh oauth2 token %q", d.StoreKey)
	}
	return t.OAuth2(), nil
}

// FromDetails builds a Descriptor from a stored API connection.
// The store is only used for oauth2 connections.
func FromDetails(d connection.Details, store TokenStore) (Descriptor, error) {
	kind := strings.ToLower(d.Data[connection.KeyAuthType])
	desc := Descriptor{Kind: kind, StoreKey: d.LogicalName, Store: store}
	switch kind {
	case "", constants.AuthTypeNone:
		desc.Kind = constants.AuthTypeNone
	case constants.AuthTypeBasic:
		desc.Username = d.Data[connection.KeyUsername]
		desc.Password = d.Data[connection.KeyPassword]
	case constants.AuthTypeBearer:
		desc.Token = d.Data[connection.KeyToken]
		if desc.Token == "" {
			return desc, fmt.Errorf("connection %q is missing a bearer token", d.LogicalName)
		}
	case constants.AuthTypeOAuth2:
		desc.OAuth2 = OAuth2Settings{
			ClientID:     d.Data[connection.KeyClientID],
			ClientSecret: d.Data[connection.KeyClientSecret],
			AuthorizeURL: d.Data[connection.KeyAuthorizeURL],
			TokenURL:     d.Data[connection.KeyTokenURL],
			RefreshURL:   d.Data[connection.KeyRefreshURL],
			RevokeURL:    d.Data[connection.KeyRevokeURL],
			RedirectURL:  d.Data[connection.KeyRedirectURL],
			Scope:        d.Data[connection.KeyScope],
		}
		if store == nil {
			return desc, fmt.Errorf("connection %q uses oauth2 but no token store was supplied", d.LogicalName)
		}
	default:
		return desc, fmt.Errorf("unsupported authentication type %q for connection %q", kind, d.LogicalName)
	}
	return desc, nil
}
