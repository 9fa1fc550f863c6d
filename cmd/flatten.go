package cmd

import (
	"github.com/relloyd/openetl/actions"
	"github.com/spf13/cobra"
)

var flattenCfg = actions.FlattenConfig{}

var flattenCmd = &cobra.Command{
	Use:   "flatten <file>",
	Short: "Flatten a local JSON or XML document into rows",
	Long: `Flatten a JSON or XML document into columns named by the path to each value, for
example order_items_0_sku. Supply a records key to produce one row per record, or use --rows
to print a single key and value row per leaf. XML is detected from the file name or content.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		flattenCfg.FileName = args[0]
		flattenCfg.Out = cmd.OutOrStdout()
		return actions.RunFlatten(&flattenCfg)
	},
}

func init() {
	rootCmd.AddCommand(flattenCmd)
	flattenCmd.Flags().SortFlags = false
	switches.addFlag(flattenCmd, &flattenCfg.RecordsKey, "records-key", "", false, "")
	switches.addFlag(flattenCmd, &flattenCfg.Rows, "rows", "false", false, "")
	switches.addFlag(flattenCmd, &flattenCfg.Format, "format", actions.OutputFormatCSV, false, "")
}
