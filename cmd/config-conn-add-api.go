package cmd

import (
	"fmt"

	"github.com/relloyd/openetl/actions"
	"github.com/relloyd/openetl/config"
	"github.com/relloyd/openetl/connection"
	"github.com/relloyd/openetl/constants"
	"github.com/spf13/cobra"
)

var configConnAPICfg = &actions.ConnectionConfig{}
var apiDefinitionFile string
var apiConn = make(map[string]*string) // connection data key -> flag value

var configConnAddAPICmd = &cobra.Command{
	Use:   "api",
	Short: "Add a REST API",
	Long: fmt.Sprintf(`Add a REST API to the config store %q.

Supply an API definition file or individual flags. Tables are named by <table>:<relative-path>
pairs and pages are requested by replacing %v in the path or pagination parameters.
For example:

openetl config connections add api -c shop -u https://api.example.com/v1 \
  -t "orders:orders,customers:customers" -p "page:%v,per_page:100" -a bearer -T <token>

OAuth2 connections must be authorized once they are saved, see "config connections authorize".`,
		config.Connections.FullPath, constants.PagePlaceholder, constants.PagePlaceholder),
	RunE: func(cmd *cobra.Command, args []string) error {
		data := make(map[string]string)
		if apiDefinitionFile != "" {
			def, err := actions.LoadAPIDefinitionFile(apiDefinitionFile)
			if err != nil {
				return err
			}
			data = def.ToDetails(configConnAPICfg.LogicalName).Data
		}
		for k, v := range apiConn { // flags take priority over the file.
			if *v != "" {
				data[k] = *v
			}
		}
		configConnAPICfg.Data = data
		return addConnection(cmd, configConnAPICfg, constants.ConnectionTypeAPI)
	},
}

func init() {
	configConnAddCmd.AddCommand(configConnAddAPICmd)
	configConnAddAPICmd.Flags().SortFlags = false
	switches.addFlag(configConnAddAPICmd, &configConnAPICfg.LogicalName, "connection-name", "", true, "")
	switches.addFlag(configConnAddAPICmd, &configConnAPICfg.Force, "force-connection", "", false, "")
	switches.addFlag(configConnAddAPICmd, &apiDefinitionFile, "api-file", "", false, "")
	_ = configConnAddAPICmd.MarkFlagFilename("file", "json", "xml")
	for _, f := range []struct{ key, switchName string }{
		{connection.KeyBaseURL, "base-url"},
		{connection.KeyTables, "tables"},
		{connection.KeyPagination, "pagination"},
		{connection.KeyFormat, "api-format"},
		{connection.KeyAuthType, "auth-type"},
		{connection.KeyUsername, "username"},
		{connection.KeyPassword, "password"},
		{connection.KeyToken, "token"},
		{connection.KeyClientID, "client-id"},
		{connection.KeyClientSecret, "client-secret"},
		{connection.KeyAuthorizeURL, "authorize-url"},
		{connection.KeyTokenURL, "token-url"},
		{connection.KeyRefreshURL, "refresh-url"},
		{connection.KeyRevokeURL, "revoke-url"},
		{connection.KeyRedirectURL, "redirect-url"},
		{connection.KeyScope, "scope"},
	} {
		v := new(string)
		apiConn[f.key] = v
		switches.addFlag(configConnAddAPICmd, v, f.switchName, "", false, "")
	}
}
