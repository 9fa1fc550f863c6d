package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/relloyd/openetl/actions"
	"github.com/relloyd/openetl/aws/s3"
	"github.com/relloyd/openetl/config"
	"github.com/relloyd/openetl/connection"
	c "github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/helper"
	"github.com/relloyd/openetl/rdbms"
)

// init will be called first due to the lexical order in which these functions are executed.
// This ensures the value of twelveFactorMode is set before the init() functions that configure
// Cobra read flag values from the environment.
func init() {
	setupTwelveFactorMode()
}

// setupTwelveFactorMode will enable or disable 12 factor mode based on environment variable.
func setupTwelveFactorMode() {
	mode := os.Getenv(envVarTwelveFactorMode)
	if mode != "" {
		twelveFactorMode = true
		lambdaMode = strings.ToLower(mode) == "lambda"
	} else {
		twelveFactorMode = false // explicitly turn off this mode since tests may have turned it on while others require it off.
		lambdaMode = false
	}
}

const (
	defaultConnectionNameSource = "SOURCE"
	defaultConnectionNameTarget = "TARGET"
)

var (
	envVarTwelveFactorMode = helper.EnvVarName("12FACTOR_MODE")
	envVarCommand          = helper.EnvVarName("COMMAND")
	envVarSubcommand       = helper.EnvVarName("SUBCOMMAND")
	envVarSourceObject     = helper.EnvVarName(defaultConnectionNameSource, "OBJECT") // <table>
	envVarSourceType       = helper.EnvVarName(defaultConnectionNameSource, "TYPE")   // api
	envVarTargetObject     = helper.EnvVarName(defaultConnectionNameTarget, "OBJECT") // [<schema>.]<object>
	envVarTargetType       = helper.EnvVarName(defaultConnectionNameTarget, "TYPE")   // stdout|csv|s3|postgres|etc
	envVarTargetS3Region   = helper.EnvVarName(defaultConnectionNameTarget, "S3_REGION")
	envVarLogLevel         = helper.EnvVarName("LOG_LEVEL")
	envVarStackDump        = helper.EnvVarName("STACK_DUMP")
)

var (
	twelveFactorMode bool // true if os env var envVarTwelveFactorMode is set
	lambdaMode       bool // true if os env var envVarTwelveFactorMode is "lambda"
	twelveFactorVars = map[string]string{
		envVarCommand:    "",
		envVarSubcommand: "",
		// Source
		envVarSourceType:   "",
		envVarSourceObject: "",
		helper.GetURLEnvVarName(defaultConnectionNameSource): "",
		// Target
		envVarTargetType:     "",
		envVarTargetObject:   "",
		envVarTargetS3Region: "",
		helper.GetDsnEnvVarName(defaultConnectionNameTarget): "",
		// Misc
		envVarLogLevel:  "",
		envVarStackDump: "",
	}
	twelveFactorVarsSensitive = map[string]string{
		helper.GetDsnEnvVarName(defaultConnectionNameTarget): "",
	}
	// apiEnvKeys are read as OETL_<CONNECTION>_<KEY> for API connections.
	apiEnvKeys = []string{
		connection.KeyTables, connection.KeyPagination, connection.KeyFormat, connection.KeyAuthType,
		connection.KeyUsername, connection.KeyPassword, connection.KeyToken,
		connection.KeyClientID, connection.KeyClientSecret, connection.KeyAuthorizeURL, connection.KeyTokenURL,
		connection.KeyRefreshURL, connection.KeyRevokeURL, connection.KeyRedirectURL, connection.KeyScope,
	}
	apiEnvKeysSensitive = map[string]bool{
		connection.KeyPassword:     true,
		connection.KeyToken:        true,
		connection.KeyClientSecret: true,
	}
)

type twelveFactorAction struct {
	setupFunc  func(src string, tgt string)
	runnerFunc func(ctx context.Context) error
}

var twelveFactorActions = map[string]twelveFactorAction{
	"fetch": {
		setupFunc: func(src string, _ string) {
			fetchCfg.SourceString.ConnectionObject = src
		},
		runnerFunc: runFetch,
	},
	"run": {
		setupFunc: func(src string, tgt string) {
			runCfg.SourceString.ConnectionObject = src
			runTargetString.ConnectionObject = tgt
		},
		runnerFunc: runRun,
	},
	"task-submit": {
		setupFunc: func(src string, tgt string) {
			taskSubmitCfg.Run.SourceString.ConnectionObject = src
			taskTargetString.ConnectionObject = tgt
		},
		runnerFunc: runTaskSubmit,
	},
}

func init() {
	for _, k := range apiEnvKeys {
		name := helper.EnvVarName(defaultConnectionNameSource, k)
		twelveFactorVars[name] = ""
		if apiEnvKeysSensitive[k] {
			twelveFactorVarsSensitive[name] = ""
		}
	}
}

func getConnectionLoader() actions.ConnectionLoader {
	if twelveFactorMode {
		return &TwelveFactorConnections{}
	}
	return config.Connections
}

func getConnectionGetterSetter() actions.ConnectionGetterSetter {
	if twelveFactorMode {
		fmt.Printf("Error: connections cannot be configured when %v is set (supply them using %v and %v instead)",
			envVarTwelveFactorMode,
			helper.GetURLEnvVarName(defaultConnectionNameSource),
			helper.GetDsnEnvVarName(defaultConnectionNameTarget))
		os.Exit(1)
	}
	return config.Connections
}

// twelveFactorActionName joins the command and optional subcommand, e.g. task-submit.
func twelveFactorActionName(command, subcommand string) string {
	if subcommand == "" {
		return command
	}
	return command + "-" + subcommand
}

// twelveFactorTarget returns the target string Cobra would have received as an argument.
// stdout and csv targets have no connection so their type is used in place of the name.
func twelveFactorTarget(targetType, object string) string {
	name := defaultConnectionNameTarget
	if targetType == c.ConnectionTypeStdout || targetType == c.ConnectionTypeCSV {
		name = targetType
	}
	if object == "" {
		return name
	}
	return name + "." + object
}

func execute12FactorMode(ctx context.Context, acts map[string]twelveFactorAction) (err error) {
	logLevel := helper.ReadValueFromEnvWithDefault(envVarLogLevel, "warn")
	stackDumpOnPanic = helper.GetTrueFalseStringAsBool(os.Getenv(envVarStackDump))
	log := newCliLogger(logLevel)
	log.Info("OpenETL is running in 12 Factor mode...")
	keys := make([]string, 0, len(twelveFactorVars))
	for k := range twelveFactorVars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys { // for each env variable that we need...
		twelveFactorVars[k] = os.Getenv(k)
		if _, sensitive := twelveFactorVarsSensitive[k]; !sensitive {
			log.Debug(k, "=", twelveFactorVars[k])
		} else {
			log.Debug(k, "=", "<obfuscated>")
		}
	}
	action := twelveFactorActionName(twelveFactorVars[envVarCommand], twelveFactorVars[envVarSubcommand])
	a, ok := acts[action]
	if !ok {
		err = fmt.Errorf("invalid combination of command (%v) and subcommand (%v)", twelveFactorVars[envVarCommand], twelveFactorVars[envVarSubcommand])
		log.Error(err.Error())
		return
	}
	// Setup the source and target strings as Cobra would have with CLI args.
	a.setupFunc(
		fmt.Sprintf("%v.%v", defaultConnectionNameSource, twelveFactorVars[envVarSourceObject]), // e.g. SOURCE.items
		twelveFactorTarget(twelveFactorVars[envVarTargetType], twelveFactorVars[envVarTargetObject]),
	)
	if err = a.runnerFunc(ctx); err != nil {
		log.Error("Error: ", err)
	}
	return err
}

// TwelveFactorConnections loads the SOURCE and TARGET connections from the environment.
type TwelveFactorConnections struct{}

// GetConnectionType returns the value of envVarSourceType or envVarTargetType based on the supplied connectionName,
// where connectionName is expected to be either defaultConnectionNameSource or defaultConnectionNameTarget.
// It reads the global map twelveFactorVars[] which should have been setup using environment variables.
func (t *TwelveFactorConnections) GetConnectionType(connectionName string) (connectionType string, err error) {
	var k string
	switch connectionName {
	case defaultConnectionNameSource:
		k = envVarSourceType
	case defaultConnectionNameTarget:
		k = envVarTargetType
	default:
		return "", fmt.Errorf("unexpected connectionName %v while running in twelveFactorMode", connectionName)
	}
	connectionType = strings.ToLower(strings.TrimSpace(twelveFactorVars[k]))
	if connectionType == "" {
		err = fmt.Errorf("missing value for %v", k)
	}
	return
}

// LoadConnection builds connection details from the environment instead of the connections file.
// API connections read OETL_<NAME>_URL plus optional OETL_<NAME>_<KEY> values; the table defaults to the
// source object. Databases read OETL_<NAME>_DSN. S3 buckets read the DSN and OETL_<NAME>_S3_REGION.
func (t *TwelveFactorConnections) LoadConnection(connectionName string) (connection.Details, error) {
	vType, err := t.GetConnectionType(connectionName)
	if err != nil {
		return connection.Details{}, err
	}
	switch {
	case vType == c.ConnectionTypeAPI:
		return t.loadAPIConnection(connectionName)
	case vType == c.ConnectionTypeS3:
		var vDsn string
		if err = helper.ReadValueFromEnv(helper.GetDsnEnvVarName(connectionName), &vDsn); err != nil {
			return connection.Details{}, err
		}
		region := helper.ReadValueFromEnvWithDefault(helper.EnvVarName(connectionName, "S3_REGION"), "")
		b, err := s3.ParseDSN(vDsn, region)
		if err != nil {
			return connection.Details{}, err
		}
		return b.ToDetails(connectionName), nil
	case rdbms.IsSupportedConnection(vType):
		var vDsn string
		if err = helper.ReadValueFromEnv(helper.GetDsnEnvVarName(connectionName), &vDsn); err != nil {
			return connection.Details{}, err
		}
		if _, _, err = rdbms.ParseDSN(vType, vDsn); err != nil {
			return connection.Details{}, err
		}
		return connection.Details{
			Type:        vType,
			LogicalName: connectionName,
			Data:        map[string]string{connection.KeyDSN: vDsn},
		}, nil
	}
	return connection.Details{}, fmt.Errorf("unsupported connection type %q for connection %v", vType, connectionName)
}

func (t *TwelveFactorConnections) loadAPIConnection(connectionName string) (connection.Details, error) {
	var baseURL string
	if err := helper.ReadValueFromEnv(helper.GetURLEnvVarName(connectionName), &baseURL); err != nil {
		return connection.Details{}, err
	}
	data := map[string]string{connection.KeyBaseURL: baseURL}
	for _, k := range apiEnvKeys {
		if v := os.Getenv(helper.EnvVarName(connectionName, k)); v != "" {
			data[k] = v
		}
	}
	if data[connection.KeyTables] == "" { // if no tables were given the object is fetched from the base url...
		data[connection.KeyTables] = os.Getenv(envVarSourceObject) + ":"
	}
	return connection.Details{Type: c.ConnectionTypeAPI, LogicalName: connectionName, Data: data}, nil
}
