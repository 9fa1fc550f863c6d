package cmd

import (
	"fmt"

	"github.com/relloyd/openetl/actions"
	"github.com/relloyd/openetl/config"
	"github.com/spf13/cobra"
)

var connAuthorizeCfg = actions.AuthorizeConfig{}

var configConnAuthorizeCmd = &cobra.Command{
	Use:   "authorize",
	Short: "Authorize an OAuth2 API connection",
	Long: fmt.Sprintf(`Authorize an OAuth2 API connection in two steps:

1. Run without a code to print the URL where access is granted.
2. Run again with the code returned to the redirect URL to exchange it for a token.

Tokens are saved in %q and refreshed automatically.`, config.Tokens.FullPath),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		log := newCliLogger("warn")
		svc, err := newServices(log)
		if err != nil {
			return err
		}
		defer svc.Close()
		connAuthorizeCfg.Log = log
		connAuthorizeCfg.Connections = getConnectionLoader()
		connAuthorizeCfg.Out = cmd.OutOrStdout()
		if connAuthorizeCfg.Tokens, err = svc.tokenStore(cmd.Context()); err != nil {
			return err
		}
		return actions.RunAuthorize(cmd.Context(), &connAuthorizeCfg)
	},
}

func initConnAuthorize() {
	configConnCmd.AddCommand(configConnAuthorizeCmd)
	configConnAuthorizeCmd.Flags().SortFlags = false
	switches.addFlag(configConnAuthorizeCmd, &connAuthorizeCfg.ConnectionName, "connection-name", "", true, "")
	switches.addFlag(configConnAuthorizeCmd, &connAuthorizeCfg.Code, "code", "", false, "")
}
