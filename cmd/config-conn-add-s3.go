package cmd

import (
	"fmt"

	"github.com/relloyd/openetl/actions"
	"github.com/relloyd/openetl/aws/s3"
	"github.com/relloyd/openetl/config"
	"github.com/relloyd/openetl/constants"
	"github.com/spf13/cobra"
)

var configConnS3 = &actions.ConnectionConfig{}
var s3Conn = struct{ dsn, name, prefix, region string }{}

var configConnAddS3Cmd = &cobra.Command{
	Use:   "s3",
	Short: "Add an AWS S3 bucket",
	Long: fmt.Sprintf(`Add an AWS S3 bucket to the config store %q.

Provide a URL or supply individual flags.
Trailing slashes are trimmed and cleaned up internally.
The URL takes precedence and should be of the form:

s3://<bucket name>/<prefix>`,
		config.Connections.FullPath),
	RunE: func(cmd *cobra.Command, args []string) error {
		b := s3.Bucket{Name: s3Conn.name, Prefix: s3Conn.prefix, Region: s3Conn.region}
		if s3Conn.dsn != "" {
			var err error
			if b, err = s3.ParseDSN(s3Conn.dsn, s3Conn.region); err != nil {
				return err
			}
		}
		configConnS3.Data = b.ToDetails(configConnS3.LogicalName).Data
		return addConnection(cmd, configConnS3, constants.ConnectionTypeS3)
	},
}

func init() {
	configConnAddCmd.AddCommand(configConnAddS3Cmd)
	configConnAddS3Cmd.Flags().SortFlags = false
	switches.addFlag(configConnAddS3Cmd, &configConnS3.LogicalName, "connection-name", "", true, "")
	switches.addFlag(configConnAddS3Cmd, &configConnS3.Force, "force-connection", "", false, "")
	switches.addFlag(configConnAddS3Cmd, &s3Conn.dsn, "s3-dsn", "", false, "")
	switches.addFlag(configConnAddS3Cmd, &s3Conn.name, "s3-bucket", "", false, "")
	switches.addFlag(configConnAddS3Cmd, &s3Conn.prefix, "s3-prefix", "", false, "")
	switches.addFlag(configConnAddS3Cmd, &s3Conn.region, "s3-region", "eu-west-1", false, "")
}
