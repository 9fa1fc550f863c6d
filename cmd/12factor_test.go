package cmd

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"

	"github.com/relloyd/openetl/config"
	"github.com/relloyd/openetl/connection"
	"github.com/relloyd/openetl/constants"
)

var mockSource, mockTarget string

var results = map[string]int{
	"run":         0,
	"task-submit": 0,
}

var mockTwelveFactorActions = map[string]twelveFactorAction{
	"run": {
		setupFunc: func(src string, tgt string) {
			mockSource, mockTarget = src, tgt
		},
		runnerFunc: getMock12FactorExecutor("run", nil),
	},
	"task-submit": {
		setupFunc:  func(src string, tgt string) {},
		runnerFunc: getMock12FactorExecutor("task-submit", errors.New("queue unavailable")),
	},
}

func getMock12FactorExecutor(action string, err error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		results[action]++
		return err
	}
}

func TestSetupTwelveFactorMode(t *testing.T) {
	defer func() {
		_ = os.Unsetenv(envVarTwelveFactorMode)
		setupTwelveFactorMode()
	}()
	if twelveFactorMode {
		t.Fatal("expected twelveFactorMode to be false; got true")
	}
	_ = os.Setenv(envVarTwelveFactorMode, "1")
	setupTwelveFactorMode()
	if !twelveFactorMode || lambdaMode {
		t.Fatal("expected twelveFactorMode to be true without lambdaMode")
	}
	_ = os.Setenv(envVarTwelveFactorMode, "Lambda")
	setupTwelveFactorMode()
	if !twelveFactorMode || !lambdaMode {
		t.Fatal("expected twelveFactorMode and lambdaMode to be true")
	}
}

func TestExecute12FactorMode(t *testing.T) {
	osVars := map[string]string{
		"OETL_LOG_LEVEL":        "error",
		"OETL_SOURCE_TYPE":      "api",
		"OETL_SOURCE_URL":       "https://api.example.com/v1/orders",
		"OETL_SOURCE_OBJECT":    "orders",
		"OETL_SOURCE_TOKEN":     "secret",
		"OETL_TARGET_TYPE":      "postgres",
		"OETL_TARGET_DSN":       "postgres://u:p@localhost:5432/shop",
		"OETL_TARGET_OBJECT":    "public.orders",
		"OETL_TARGET_S3_REGION": "eu-west-2",
	}
	for k, v := range osVars {
		t.Setenv(k, v)
	}

	// Test 1 - action runner function is called.
	t.Setenv("OETL_COMMAND", "run")
	t.Setenv("OETL_SUBCOMMAND", "")
	if err := execute12FactorMode(context.Background(), mockTwelveFactorActions); err != nil {
		t.Fatalf("test 1 failed: expected nil error got error: %v", err)
	}
	if results["run"] == 0 {
		t.Fatal("test 1 failed: expected the run action to be executed")
	}

	// Test 2 - source and target strings are set as cobra would have.
	if mockSource != "SOURCE.orders" || mockTarget != "TARGET.public.orders" {
		t.Fatalf("test 2 failed: got source %q target %q", mockSource, mockTarget)
	}

	// Test 3 - invalid command and subcommand.
	t.Setenv("OETL_COMMAND", "invalidCommand")
	t.Setenv("OETL_SUBCOMMAND", "invalidSubcommand")
	if err := execute12FactorMode(context.Background(), mockTwelveFactorActions); err == nil {
		t.Fatal("test 3 failed, expected: error; got: nil")
	}

	// Test 4 - errors from the action are returned.
	t.Setenv("OETL_COMMAND", "task")
	t.Setenv("OETL_SUBCOMMAND", "submit")
	if err := execute12FactorMode(context.Background(), mockTwelveFactorActions); err == nil || results["task-submit"] != 1 {
		t.Fatalf("test 4 failed: expected the task-submit error, got %v", err)
	}

	// Test 5 - all twelveFactorVars are fetched from the environment.
	for k, expected := range osVars {
		if got := twelveFactorVars[k]; got != expected {
			t.Fatalf("test 5 failed: expected %v = %v; got: %v", k, expected, got)
		}
	}

	// Test 6 - sensitive vars are registered.
	for _, k := range []string{"OETL_SOURCE_TOKEN", "OETL_SOURCE_PASSWORD", "OETL_SOURCE_CLIENT_SECRET", "OETL_TARGET_DSN"} {
		if _, sensitive := twelveFactorVarsSensitive[k]; !sensitive {
			t.Fatalf("test 6 failed: expected %v to be registered in map twelveFactorVarsSensitive", k)
		}
	}

	// Test 7 - GetConnectionType reads the source and target types.
	ts := TwelveFactorConnections{}
	if _, err := ts.GetConnectionType("junk"); err == nil {
		t.Fatal("test 7 failed: expected an error for an unknown connection")
	}
	if got, err := ts.GetConnectionType(defaultConnectionNameSource); err != nil || got != constants.ConnectionTypeAPI {
		t.Fatalf("test 7 failed: got source type %q, %v", got, err)
	}
	if got, err := ts.GetConnectionType(defaultConnectionNameTarget); err != nil || got != constants.ConnectionTypePostgres {
		t.Fatalf("test 7 failed: got target type %q, %v", got, err)
	}
}

func TestTwelveFactorTarget(t *testing.T) {
	cases := []struct{ targetType, object, expected string }{
		{"stdout", "", "stdout"},
		{"csv", "orders", "csv.orders"},
		{"s3", "exports/orders", "TARGET.exports/orders"},
		{"postgres", "public.orders", "TARGET.public.orders"},
	}
	for _, c := range cases {
		if got := twelveFactorTarget(c.targetType, c.object); got != c.expected {
			t.Fatalf("twelveFactorTarget(%q, %q) = %q; expected %q", c.targetType, c.object, got, c.expected)
		}
	}
	if got := twelveFactorActionName("task", "submit"); got != "task-submit" {
		t.Fatalf("unexpected action name %q", got)
	}
}

func TestTwelveFactorLoadConnection(t *testing.T) {
	ts := &TwelveFactorConnections{}
	t.Setenv("OETL_SOURCE_URL", "https://api.example.com/v1/orders")
	t.Setenv("OETL_SOURCE_OBJECT", "orders")
	t.Setenv("OETL_SOURCE_AUTH_TYPE", "bearer")
	t.Setenv("OETL_SOURCE_TOKEN", "xyz")

	// Test 1 - API source built from the environment.
	twelveFactorVars[envVarSourceType] = "api"
	d, err := ts.LoadConnection(defaultConnectionNameSource)
	if err != nil {
		t.Fatal(err)
	}
	expected := map[string]string{
		connection.KeyBaseURL:  "https://api.example.com/v1/orders",
		connection.KeyTables:   "orders:",
		connection.KeyAuthType: "bearer",
		connection.KeyToken:    "xyz",
	}
	if d.Type != constants.ConnectionTypeAPI || !reflect.DeepEqual(d.Data, expected) {
		t.Fatalf("test 1 failed: got %+v", d)
	}

	// Test 2 - database target.
	twelveFactorVars[envVarTargetType] = "postgres"
	t.Setenv("OETL_TARGET_DSN", "postgres://u:p@localhost:5432/shop")
	if d, err = ts.LoadConnection(defaultConnectionNameTarget); err != nil || d.Data[connection.KeyDSN] == "" {
		t.Fatalf("test 2 failed: got %+v, %v", d, err)
	}

	// Test 3 - a DSN that does not match the type fails.
	twelveFactorVars[envVarTargetType] = "sqlserver"
	if _, err = ts.LoadConnection(defaultConnectionNameTarget); err == nil {
		t.Fatal("test 3 failed: expected an error for a mismatched DSN")
	}

	// Test 4 - s3 target with its region.
	twelveFactorVars[envVarTargetType] = "s3"
	t.Setenv("OETL_TARGET_DSN", "s3://my-bucket/exports")
	t.Setenv("OETL_TARGET_S3_REGION", "eu-west-2")
	if d, err = ts.LoadConnection(defaultConnectionNameTarget); err != nil {
		t.Fatal(err)
	}
	if d.Data[connection.KeyBucket] != "my-bucket" || d.Data[connection.KeyPrefix] != "exports" || d.Data[connection.KeyRegion] != "eu-west-2" {
		t.Fatalf("test 4 failed: got %+v", d)
	}

	// Test 5 - unsupported types.
	twelveFactorVars[envVarTargetType] = "oracle"
	if _, err = ts.LoadConnection(defaultConnectionNameTarget); err == nil {
		t.Fatal("test 5 failed: expected an error for an unsupported type")
	}
	twelveFactorVars[envVarSourceType] = ""
	twelveFactorVars[envVarTargetType] = ""
}

func TestGetConnectionLoader(t *testing.T) {
	defer func() { twelveFactorMode = false }()
	// Test 1
	twelveFactorMode = true
	tx := reflect.TypeOf(getConnectionLoader())
	if tx != reflect.TypeOf(&TwelveFactorConnections{}) {
		t.Fatalf("TestGetConnectionLoader test 1 failed - expected: *cmd.TwelveFactorConnections; got: %v", tx.String())
	}
	// Test 2
	twelveFactorMode = false
	tx = reflect.TypeOf(getConnectionLoader())
	if tx != reflect.TypeOf(config.Connections) {
		t.Fatalf("TestGetConnectionLoader test 2 failed - expected: config.Connections; got: %v", tx.String())
	}
}

func TestTwelveFactorActions(t *testing.T) {
	// Every action must be reachable as a cobra command too.
	commands := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		commands[c.Name()] = true
		for _, sub := range c.Commands() {
			commands[twelveFactorActionName(c.Name(), sub.Name())] = true
		}
	}
	for k := range twelveFactorActions {
		if !commands[k] {
			t.Fatalf("twelveFactorActions handles %v which is not a cobra command", k)
		}
	}
}
