package cmd

import (
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Generate integration definitions",
	Long: `Generate integration definitions that schedule a source table to be copied to a
target by an external Spark-based scheduler.`,
}

func init() {
	rootCmd.AddCommand(createCmd)
}
