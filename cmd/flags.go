package cmd

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/relloyd/openetl/config"
	"github.com/relloyd/openetl/connection"
	"github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/helper"
	"github.com/relloyd/openetl/pipeline"
	"github.com/relloyd/openetl/rdbms"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	sourceArgTxt        = "<source-connection>.<table>"
	targetArgTxt        = "stdout|csv|<target-connection>.[<schema>.]<object>"
	sourceTargetArgsTxt = sourceArgTxt + " " + targetArgTxt
)

type cliFlag struct {
	name      string // name of flag
	val       string // default value
	shortHand string // single character name for the flag
	desc      string // description of the flag; the long text
}

type cliFlags map[string]cliFlag

var switches = cliFlags{
	"mock": cliFlag{name: "mock", shortHand: "m", desc: "mock switch for testing"},
	// Connections.
	"connection-name": cliFlag{name: "connection-name", shortHand: "c",
		desc: "Connection name referred to by fetch, run and task actions"},
	"force-connection": cliFlag{name: "force", shortHand: "f",
		desc: "Allow overwrite of existing connections"},
	"dsn": cliFlag{name: "dsn", shortHand: "d",
		desc: "Database connect string (see the command help for the form it takes)"},
	"base-url": cliFlag{name: "base-url", shortHand: "u",
		desc: "Base URL of the API, for example https://api.example.com/v1"},
	"tables": cliFlag{name: "tables", shortHand: "t",
		desc: "CSV of <table>:<relative-path> pairs that name the API's resources, where the path may \n" +
			"contain the page placeholder " + constants.PagePlaceholder},
	"pagination": cliFlag{name: "pagination", shortHand: "p",
		desc: "CSV of <query-param>:<value> pairs appended to each request, where a value of \n" +
			constants.PagePlaceholder + " is replaced by the page number"},
	"api-format": cliFlag{name: "api-format", shortHand: "",
		desc: "Format of API responses: \"json | xml\""},
	"api-file": cliFlag{name: "file", shortHand: "i",
		desc: "API definition file (.json or .xml) holding the base URL, tables and credentials; \n" +
			"flags supplied alongside the file take priority"},
	"auth-type": cliFlag{name: "auth-type", shortHand: "a",
		desc: "Authentication used by the API: \"none | basic | bearer | oauth2\" (guessed from the \n" +
			"credentials supplied when omitted)"},
	"username": cliFlag{name: "username", shortHand: "U",
		desc: "Username for basic authentication"},
	"password": cliFlag{name: "password", shortHand: "P",
		desc: "Password for basic authentication"},
	"token": cliFlag{name: "token", shortHand: "T",
		desc: "Bearer token"},
	"client-id":     cliFlag{name: "client-id", desc: "OAuth2 client ID"},
	"client-secret": cliFlag{name: "client-secret", desc: "OAuth2 client secret"},
	"authorize-url": cliFlag{name: "authorize-url", desc: "OAuth2 authorization endpoint"},
	"token-url":     cliFlag{name: "token-url", desc: "OAuth2 token endpoint"},
	"refresh-url": cliFlag{name: "refresh-url",
		desc: "OAuth2 refresh endpoint (omit to refresh using the token endpoint)"},
	"revoke-url":   cliFlag{name: "revoke-url", desc: "OAuth2 revocation endpoint"},
	"redirect-url": cliFlag{name: "redirect-url", desc: "OAuth2 redirect URL registered with the client"},
	"scope":        cliFlag{name: "scope", desc: "Space or comma separated OAuth2 scopes"},
	"code": cliFlag{name: "code", shortHand: "",
		desc: "Authorization code returned to the redirect URL (omit to print the URL to visit)"},
	"snowflake-account":   cliFlag{name: "account", shortHand: "a", desc: "Snowflake account"},
	"snowflake-user":      cliFlag{name: "user", shortHand: "U", desc: "Snowflake user"},
	"snowflake-database":  cliFlag{name: "database-name", shortHand: "D", desc: "Database name (omit to use default)"},
	"snowflake-schema":    cliFlag{name: "schema", shortHand: "s", desc: "Schema name (omit to use default)"},
	"snowflake-warehouse": cliFlag{name: "warehouse", shortHand: "w", desc: "Snowflake compute warehouse name (omit to use default)"},
	"snowflake-role":      cliFlag{name: "role", shortHand: "r", desc: "Snowflake role (omit to use default)"},
	"s3-dsn": cliFlag{name: "dsn", shortHand: "d",
		desc: "DSN of the form s3://<bucket name>/<prefix> (takes priority over individual flags)"},
	"s3-bucket": cliFlag{name: "s3-bucket", shortHand: "b",
		desc: "AWS S3 bucket name (set AWS environment variables for access)"},
	"s3-prefix": cliFlag{name: "s3-prefix", shortHand: "P",
		desc: "AWS S3 bucket prefix"},
	"s3-region": cliFlag{name: "s3-region", shortHand: "R",
		desc: "AWS S3 bucket region"},
	"table": cliFlag{name: "table", shortHand: "t",
		desc: "API table to request (defaults to the first table of the connection)"},
	// Fetching.
	"records-key": cliFlag{name: "records-key", shortHand: "k",
		desc: "Key of the array in each page that holds the records (omit to treat each page as one record)"},
	"format": cliFlag{name: "format", shortHand: "F",
		desc: "Output format: \"csv | json\""},
	"rows": cliFlag{name: "rows", shortHand: "R",
		desc: "Print one key and value row per leaf instead of accumulating columns"},
	"max-pages": cliFlag{name: "max-pages", shortHand: "M",
		desc: "Maximum number of pages to request (use a negative number for unlimited)"},
	"retry-tries": cliFlag{name: "retry-tries", desc: "Number of attempts made to fetch before giving up"},
	"retry-delay": cliFlag{name: "retry-delay", desc: "Number of seconds to wait between attempts"},
	"timeout":     cliFlag{name: "timeout", desc: "Number of seconds allowed for the fetch (0 for unlimited)"},
	// Targets.
	"target-directory": cliFlag{name: "directory", shortHand: "D",
		desc: "Directory to write CSV files into when the target is csv (omit for a temporary directory)"},
	"csv-rows": cliFlag{name: "csv-rows", shortHand: "r",
		desc: "Max number of rows to store in a single CSV file (0 for unlimited)"},
	"gzip": cliFlag{name: "gzip", shortHand: "z",
		desc: "Compress CSV files with gzip"},
	"create-table": cliFlag{name: "create-table", shortHand: "C",
		desc: "Create the target database table from the fetched columns if it does not exist"},
	"filter-type": cliFlag{name: "filter-type",
		desc: "Row filter applied before the target: \"getmax | jsonlogic\""},
	"filter-metadata": cliFlag{name: "filter-metadata",
		desc: "Field name for getmax filters, or the JsonLogic rule for jsonlogic filters"},
	// Integrations.
	"integration-name": cliFlag{name: "name", shortHand: "n",
		desc: "Integration name (defaults to <source>_<table>_to_<target>_<table>)"},
	"frequency": cliFlag{name: "frequency",
		desc: fmt.Sprintf("Schedule frequency, one of %q (omit to run on selected dates)", strings.Join(pipeline.Frequencies, ", "))},
	"schedule-time": cliFlag{name: "schedule-time", desc: "Time of day to run, of the form HH:MM:SS"},
	"schedule-date": cliFlag{name: "schedule-date", desc: "First date to run, of the form YYYY-MM-DD"},
	"selected-dates": cliFlag{name: "selected-dates",
		desc: "CSV of dates of the form YYYY-MM-DD to run on when no frequency is supplied"},
	"spark-config": cliFlag{name: "spark-config",
		desc: "CSV of <key>=<value> Spark settings merged over the defaults"},
	"hadoop-config": cliFlag{name: "hadoop-config",
		desc: "CSV of <key>=<value> Hadoop settings merged over the defaults"},
	"output": cliFlag{name: "output", shortHand: "o",
		desc: "Specify \"yaml\" or \"json\" to print the definition instead of submitting it"},
	// Processes.
	"log-level": cliFlag{name: "log-level", shortHand: "l",
		desc: "Log level: \"error | warn | info | debug\""},
	"concurrency": cliFlag{name: "concurrency", shortHand: "n",
		desc: "Number of tasks the worker executes at once (overrides the runtime settings)"},
	"address": cliFlag{name: "address", shortHand: "a",
		desc: "Address to listen on"},
	"port": cliFlag{name: "port", shortHand: "p",
		desc: "Port to listen on"},
	"stats": cliFlag{name: "stats", shortHand: "L",
		desc: "Number of seconds between dumping step statistics (use 0 to disable)"},
	"preview-rows": cliFlag{name: "preview-rows",
		desc: "Number of rows returned by table previews"},
	"file": cliFlag{name: "file", shortHand: "f",
		desc: "File containing the run configuration (.yaml or .json)"},
	"web-service": cliFlag{name: "web-service", shortHand: "w",
		desc: "Launch a web service to monitor the run"},
	"print-header": cliFlag{name: "print-header", shortHand: "x",
		desc: "Print a header for SQL query results"},
	"dry-run": cliFlag{name: "dry-run", shortHand: "d",
		desc: "Print the SQL query without executing it"},
}

// addFlag add a flag to cobra.Command c, based on the type of targetVar (which must be a pointer).
// The name of the flag is looked up in map, cliFlags.
// When running in twelveFactorMode, the targetVar is populated using the value of environment variable for the supplied
// name, or if not set then the supplied default value is used.
// When NOT running in twelveFactorMode, the default value is fetched from config if it exists else the supplied
// defaultValue is applied.
// Slices and maps take CSV values of the form a,b and k1=v1,k2=v2 respectively.
// The flag is marked as required in Cobra based on the value of required.
// Supply a value for desc2 to append to the existing description found in map cliFlags.
func (f *cliFlags) addFlag(c *cobra.Command, targetVar interface{}, name string, defaultValue string, required bool, desc2 string) {
	v := reflect.ValueOf(targetVar)
	if v.Kind() != reflect.Ptr {
		fmt.Println("error adding flag: targetVar must be a pointer")
		os.Exit(1)
	}
	sw := f.getCliFlag(name, defaultValue, config.Main.Get) // get the cliFlag details, with defaults taken from config or the supplied defaultValue
	desc := sw.desc + desc2
	switch p := targetVar.(type) {
	case *string:
		if twelveFactorMode {
			*p = sw.val
		} else {
			c.Flags().StringVarP(p, sw.name, sw.shortHand, sw.val, desc)
			if sw.val != "" { // if there is a value via config or default...
				mustSetFlag(c.Flags(), sw.name, sw.val)
			}
		}
	case *bool:
		defaultBool := false
		if b, err := strconv.ParseBool(sw.val); err == nil {
			defaultBool = b
		} else if twelveFactorMode && sw.val != "" { // any other non-empty env value switches the flag on.
			defaultBool = true
		}
		if twelveFactorMode {
			*p = defaultBool
		} else {
			c.Flags().BoolVarP(p, sw.name, sw.shortHand, defaultBool, desc)
			mustSetFlag(c.Flags(), sw.name, strconv.FormatBool(defaultBool))
		}
	case *int:
		defaultInt := 0
		if sw.val != "" {
			var err error
			if defaultInt, err = strconv.Atoi(sw.val); err != nil {
				fmt.Printf("the value for flag %q must be an integer: %v\n", sw.name, err)
				os.Exit(1)
			}
		}
		if twelveFactorMode {
			*p = defaultInt
		} else {
			c.Flags().IntVarP(p, sw.name, sw.shortHand, defaultInt, desc)
			if sw.val != "" {
				mustSetFlag(c.Flags(), sw.name, sw.val)
			}
		}
	case *[]string:
		if twelveFactorMode {
			*p = helper.CsvToStringSliceTrimSpaces(sw.val)
		} else {
			c.Flags().StringSliceVarP(p, sw.name, sw.shortHand, nil, desc)
			if sw.val != "" {
				mustSetFlag(c.Flags(), sw.name, sw.val)
			}
		}
	case *map[string]string:
		if twelveFactorMode {
			m, err := keyValuesToMap(sw.val)
			if err != nil {
				fmt.Printf("the value for flag %q is invalid: %v\n", sw.name, err)
				os.Exit(1)
			}
			*p = m
		} else {
			c.Flags().StringToStringVarP(p, sw.name, sw.shortHand, nil, desc)
			if sw.val != "" {
				mustSetFlag(c.Flags(), sw.name, sw.val)
			}
		}
	default:
		panic("Error: unhandled CLI flag target value type")
	}
	// Optionally mark the flag as mandatory.
	if required && !twelveFactorMode {
		_ = c.MarkFlagRequired(sw.name)
	}
}

// getCliFlag fetches the value of name from the environment, when running in twelveFactorMode,
// else read the Main config file to find it.
// If a value cannot be found then use the supplied defaultValue in its place.
func (f *cliFlags) getCliFlag(name string, defaultValue string, fnGetConfig func(key string, out interface{}) error) cliFlag {
	s, ok := (*f)[name]
	if !ok {
		panic(fmt.Sprintf("unregistered CLI flag, %q", name))
	}
	if twelveFactorMode { // if we should read env vars...
		if err := helper.ReadValueFromEnv(flagNameToEnvVar(name), &s.val); err != nil {
			s.val = defaultValue
		}
	} else { // else check the config file or apply default...
		err := fnGetConfig(s.name, &s.val)
		if errors.As(err, &config.KeyNotFoundError{}) || s.val == "" {
			s.val = defaultValue
		}
	}
	return s
}

// flagNameToEnvVar will form a sanitised environment variable name using constants.EnvVarPrefix.
func flagNameToEnvVar(name string) string {
	return helper.EnvVarName(name)
}

func mustSetFlag(f *pflag.FlagSet, name string, val string) {
	if err := f.Set(name, val); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// keyValuesToMap parses k1=v1,k2=v2.
func keyValuesToMap(s string) (map[string]string, error) {
	m := make(map[string]string)
	for _, kv := range helper.CsvToStringSliceTrimSpaces(s) {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("expected <key>=<value>, got %q", kv)
		}
		m[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return m, nil
}

// getSourceArgsFunc returns a func that cobra uses to validate that we have 1 arg.
// It saves arg[0] as the source.
func getSourceArgsFunc(src *connection.ConnectionObject, customErrMsg string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			if customErrMsg != "" {
				return errors.New(customErrMsg)
			}
			return errors.New("requires source " + sourceArgTxt)
		}
		*src = connection.ConnectionObject{ConnectionObject: args[0]}
		return nil
	}
}

// getSourceTargetArgsFunc returns a func that cobra uses to validate that we have 2 args.
// It saves arg[0] as the source and arg[1] as the target.
func getSourceTargetArgsFunc(src *connection.ConnectionObject, tgt *connection.ConnectionObject, customErrMsg string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			if customErrMsg != "" {
				return errors.New(customErrMsg)
			}
			return errors.New("requires " + sourceTargetArgsTxt)
		}
		*src = connection.ConnectionObject{ConnectionObject: args[0]}
		*tgt = connection.ConnectionObject{ConnectionObject: args[1]}
		return nil
	}
}

// getQueryFromArgsFunc saves the connection in arg[0] and concatenates the remaining args into the query.
// Returns an error if there are fewer than 2 args.
func getQueryFromArgsFunc(connectionName *string, query *string, customErrMsg string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < 2 {
			if customErrMsg != "" {
				return errors.New(customErrMsg)
			}
			return errors.New("please supply a connection and a SQL query")
		}
		*connectionName = args[0]
		*query = strings.Join(args[1:], " ")
		return nil
	}
}

// applyTarget copies the target connection, schema and object into t.
// A quoted "dotted.name" after the connection is kept whole as the table.
func applyTarget(t *pipeline.Target, tgt connection.ConnectionObject) {
	var rest string
	t.Connection, rest = helper.Split(tgt.ConnectionObject, ".")
	t.Schema, t.Table = rdbms.SchemaTable{SchemaTable: rest}.Unquoted()
}
