package cmd

import (
	"strconv"

	"github.com/relloyd/openetl/actions"
	"github.com/relloyd/openetl/config"
	"github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/logger"
	"github.com/spf13/cobra"
)

var serveCfg = actions.WebServerConfig{Scheme: "http"}
var serveLogLevel string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a web service that exposes connections, previews, tasks and pipes",
	Long: `Start a web service that exposes saved connections, cached table previews, task
submission and status, integration submission and locally launched pipes as JSON.
Task routes need Redis and integration routes need an orchestrator, both configured by the
runtime settings; without them those routes answer 503.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		log := logger.NewWebLogger(constants.ServiceName, serveLogLevel, stackDumpOnPanic, nil)
		svc, err := newServices(log)
		if err != nil {
			return err
		}
		defer svc.Close()
		serveCfg.Log = log
		serveCfg.Connections = config.Connections
		serveCfg.Client = svc.httpClient()
		serveCfg.Retry = svc.retryPolicy()
		serveCfg.FetchTimeout = svc.settings.FetchTimeout()
		if serveCfg.Tokens, err = svc.tokenStore(cmd.Context()); err != nil {
			return err
		}
		if serveCfg.Batches, err = svc.batchStore(cmd.Context()); err != nil {
			return err
		}
		if serveCfg.Orchestrator, err = svc.orchestrator(); err != nil {
			return err
		}
		if serveCfg.Queue, err = svc.queue(cmd.Context()); err != nil {
			log.Warn("task routes are disabled: ", err)
		}
		return actions.RunWebServer(&serveCfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().SortFlags = false
	switches.addFlag(serveCmd, &serveCfg.Addr, "address", "0.0.0.0", false, "")
	switches.addFlag(serveCmd, &serveCfg.Port, "port", "8080", false, "")
	switches.addFlag(serveCmd, &serveCfg.PreviewRows, "preview-rows", "20", false, "")
	switches.addFlag(serveCmd, &serveCfg.PreviewMaxPages, "max-pages", strconv.Itoa(constants.MaxPagesDefault), false, "")
	switches.addFlag(serveCmd, &serveCfg.StatsDumpFrequencySeconds, "stats", "5", false, "")
	switches.addFlag(serveCmd, &serveLogLevel, "log-level", "info", false, "")
}
