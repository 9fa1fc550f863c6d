package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"
)

var (
	// Default values may be set at compile time.
	version          = "0.1.0"
	buildDate        = "2026-01-02T03:04+0000"
	osArch           = "linux"
	stackDumpOnPanic bool
	envPath          string // directory holding the optional .env settings file
)

var rootCmd = &cobra.Command{
	Use: "openetl",
	Long: `
  ___                   _____ _____ _
 / _ \ _ __   ___ _ __ | ____|_   _| |
| | | | '_ \ / _ \ '_ \|  _|   | | | |
| |_| | |_) |  __/ | | | |___  | | | |___
 \___/| .__/ \___|_| |_|_____| |_| |_____|
      |_|

OpenETL pulls paginated JSON and XML from REST APIs, flattens it into tables and
streams the rows to stdout, CSV files, S3 or a database.
Save API and database connections once, then fetch, run pipelines locally, queue them
for workers or hand integration definitions to a scheduler. Start an HTTP server to
expose the same actions via a RESTful API.`,
}

func init() {
	cobra.EnableCommandSorting = false
	// Global flags.
	rootCmd.PersistentFlags().BoolVar(&stackDumpOnPanic, "print-stack", false, "Print a stack dump if there is a panic")
	_ = rootCmd.PersistentFlags().MarkHidden("print-stack")
	rootCmd.PersistentFlags().StringVar(&envPath, "env-path", ".", "Directory containing an optional .env file of runtime settings")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if twelveFactorMode { // if we are running based on environment variables...
		if lambdaMode { // if we should handle lambda execution...
			lambda.Start(func(ctx context.Context) error { return execute12FactorMode(ctx, twelveFactorActions) })
		} else if err := execute12FactorMode(ctx, twelveFactorActions); err != nil {
			// execute12FactorMode logs the error.
			stop()
			os.Exit(1)
		}
	} else { // else we're using CLI args and flags via Cobra...
		if err := rootCmd.ExecuteContext(ctx); err != nil {
			// Execute() prints the error.
			stop()
			os.Exit(1)
		}
	}
}
