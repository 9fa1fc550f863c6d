package cmd

import (
	"context"
	"strconv"

	"github.com/relloyd/openetl/actions"
	"github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/retry"
	"github.com/spf13/cobra"
)

var fetchCfg = actions.FetchConfig{}

var fetchOpts = struct {
	logLevel   string
	retryTries int
	retryDelay int
	timeout    int
}{}

var fetchCmd = &cobra.Command{
	Use:   "fetch " + sourceArgTxt,
	Short: "Fetch every page of an API table and print the rows",
	Long: `Fetch every page of a table served by a saved API connection, flatten the records
into columns and print them as CSV or JSON. Pages are requested until the API returns an
empty or repeated page, an error page or the maximum number of pages is reached.`,
	Args: getSourceArgsFunc(&fetchCfg.SourceString, ""),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		fetchCfg.Out = cmd.OutOrStdout()
		return runFetch(cmd.Context())
	},
}

func runFetch(ctx context.Context) error {
	log := newCliLogger(fetchOpts.logLevel)
	svc, err := newServices(log)
	if err != nil {
		return err
	}
	defer svc.Close()
	fetchCfg.Log = log
	fetchCfg.Connections = getConnectionLoader()
	fetchCfg.Client = svc.httpClient()
	fetchCfg.Retry = retry.Policy{Tries: fetchOpts.retryTries, Delay: seconds(fetchOpts.retryDelay)}
	fetchCfg.Timeout = seconds(fetchOpts.timeout)
	if fetchCfg.Tokens, err = svc.tokenStore(ctx); err != nil {
		return err
	}
	return actions.RunFetch(ctx, &fetchCfg)
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().SortFlags = false
	switches.addFlag(fetchCmd, &fetchCfg.RecordsKey, "records-key", "", false, "")
	switches.addFlag(fetchCmd, &fetchCfg.Format, "format", actions.OutputFormatCSV, false, "")
	switches.addFlag(fetchCmd, &fetchCfg.MaxPages, "max-pages", strconv.Itoa(constants.MaxPagesDefault), false, "")
	switches.addFlag(fetchCmd, &fetchOpts.retryTries, "retry-tries", strconv.Itoa(constants.TaskRetryTriesDefault), false, "")
	switches.addFlag(fetchCmd, &fetchOpts.retryDelay, "retry-delay", strconv.Itoa(constants.TaskRetryDelayDefault), false, "")
	switches.addFlag(fetchCmd, &fetchOpts.timeout, "timeout", "300", false, "")
	switches.addFlag(fetchCmd, &fetchOpts.logLevel, "log-level", "warn", false, "")
}
