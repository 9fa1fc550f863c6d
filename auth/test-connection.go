package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"golang.org/x/net/context/ctxhttp"
	"golang.org/x/oauth2"
)

// TestResult is the outcome of a connection test.
// Body holds the decoded JSON response when possible, otherwise the raw text.
type TestResult struct {
	StatusCode int         `json:"status_code"`
	OK         bool        `json:"ok"`
	Body       interface{} `json:"body"`
}

// TestConnection sends a single authenticated GET to url.
// An error is returned only when the request could not be made; a rejected
// credential shows up as a non-200 status in the result.
func TestConnection(ctx context.Context, client *http.Client, url string, a Applier) (TestResult, error) {
	res := TestResult{}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return res, errors.Wrapf(err, "bad url %q", url)
	}
	if a != nil {
		if err = a.Apply(req); err != nil {
			return res, errors.Wrap(err, "unable to apply credentials")
		}
	}
	resp, err := ctxhttp.Do(ctx, client, req)
	if err != nil {
		return res, errors.Wrapf(err, "request to %q failed", url)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return res, errors.Wrap(err, "unable to read response body")
	}
	res.StatusCode = resp.StatusCode
	res.OK = resp.StatusCode == http.StatusOK
	var v interface{}
	if err = json.NewDecoder(bytes.NewReader(b)).Decode(&v); err == nil {
		res.Body = v
	} else {
		res.Body = string(b)
	}
	return res, nil
}

// AuthCodeURL returns the URL a user must visit to grant access.
func AuthCodeURL(s OAuth2Settings, state string) string {
	return s.Config(false).AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange swaps an authorization code for a token and saves it in store under key.
func Exchange(ctx context.Context, s OAuth2Settings, store TokenStore, key string, code string) (Token, error) {
	o, err := s.Config(false).Exchange(ctx, code)
	if err != nil {
		return Token{}, errors.Wrap(err, "oauth2 code exchange failed")
	}
	t := TokenFromOAuth2(o, Token{Scope: s.Scope})
	if err = store.Set(ctx, key, t); err != nil {
		return Token{}, errors.Wrapf(err, "unable to save token %q", key)
	}
	return t, nil
}
