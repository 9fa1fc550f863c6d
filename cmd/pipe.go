package cmd

import (
	"github.com/relloyd/openetl/actions"
	"github.com/relloyd/openetl/config"
	"github.com/spf13/cobra"
)

var pipeCfg = actions.PipeConfig{}
var pipeLogLevel string

var pipeCmd = &cobra.Command{
	Use:   "pipe",
	Short: "Run a pipeline described in a YAML or JSON file",
	Long: `Run a pipeline described in a YAML or JSON file holding the same fields as a
task payload, for example:

sourceConnection: shop
sourceTable: orders
recordsKey: items
target:
  connection: csv
  directory: /tmp/orders

Optionally run a web server to monitor progress and health remotely.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		log := newCliLogger(pipeLogLevel)
		svc, err := newServices(log)
		if err != nil {
			return err
		}
		defer svc.Close()
		pipeCfg.Run.Log = log
		pipeCfg.Run.Connections = getConnectionLoader()
		pipeCfg.Run.Client = svc.httpClient()
		pipeCfg.Run.Out = cmd.OutOrStdout()
		if pipeCfg.Run.Tokens, err = svc.tokenStore(cmd.Context()); err != nil {
			return err
		}
		if pipeCfg.Run.Batches, err = svc.batchStore(cmd.Context()); err != nil {
			return err
		}
		serveCfg.Log = log
		serveCfg.Connections = config.Connections
		serveCfg.Tokens = pipeCfg.Run.Tokens
		serveCfg.Client = pipeCfg.Run.Client
		serveCfg.Batches = pipeCfg.Run.Batches
		return actions.RunPipeFromFile(cmd.Context(), &pipeCfg, &serveCfg)
	},
}

func init() {
	rootCmd.AddCommand(pipeCmd)
	pipeCmd.Flags().SortFlags = false
	switches.addFlag(pipeCmd, &pipeCfg.RunFile, "file", "", true, "")
	_ = pipeCmd.MarkFlagFilename("file", "json", "yaml", "yml")
	switches.addFlag(pipeCmd, &pipeCfg.WithWebService, "web-service", "false", false, "")
	switches.addFlag(pipeCmd, &serveCfg.Addr, "address", "0.0.0.0", false, "")
	switches.addFlag(pipeCmd, &serveCfg.Port, "port", "8080", false, "")
	switches.addFlag(pipeCmd, &serveCfg.StatsDumpFrequencySeconds, "stats", "5", false, "")
	switches.addFlag(pipeCmd, &pipeLogLevel, "log-level", "info", false, "")
}
