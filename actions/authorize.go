package actions

import (
	"context"
	"fmt"
	"io"

	"github.com/relloyd/openetl/auth"
	"github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/logger"
	"github.com/rs/xid"
)

type AuthorizeConfig struct {
	Log            logger.Logger
	Connections    ConnectionLoader
	Tokens         auth.TokenStore
	ConnectionName string
	Code           string // authorization code returned to the redirect url; empty to print the consent url.
	Out            io.Writer
}

// RunAuthorize completes the oauth2 authorization code flow for an API connection.
// Without a code it prints the url the user must visit; with one it exchanges the code and
// saves the token under the connection name.
func RunAuthorize(ctx context.Context, cfg *AuthorizeConfig) error {
	d, err := cfg.Connections.LoadConnection(cfg.ConnectionName)
	if err != nil {
		return err
	}
	desc, err := auth.FromDetails(d, cfg.Tokens)
	if err != nil {
		return err
	}
	if desc.Kind != constants.AuthTypeOAuth2 {
		return fmt.Errorf("connection %q uses %q authentication; only %q connections need authorizing", cfg.ConnectionName, desc.Kind, constants.AuthTypeOAuth2)
	}
	out := stdout(cfg.Out)
	if cfg.Code == "" {
		fmt.Fprintf(out, "Visit this url to grant access, then supply the returned code:\n%v\n", auth.AuthCodeURL(desc.OAuth2, xid.New().String()))
		return nil
	}
	t, err := auth.Exchange(ctx, desc.OAuth2, cfg.Tokens, desc.StoreKey, cfg.Code)
	if err != nil {
		return err
	}
	if t.Expiry.IsZero() {
		fmt.Fprintf(out, "Token saved for connection %q\n", cfg.ConnectionName)
	} else {
		fmt.Fprintf(out, "Token saved for connection %q, expires %v\n", cfg.ConnectionName, t.Expiry.Format(constants.TimeFormatYearSecondsTZ))
	}
	return nil
}
