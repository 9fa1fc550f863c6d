package cmd

import (
	"testing"

	"github.com/relloyd/openetl/connection"
	"github.com/relloyd/openetl/pipeline"
	"github.com/spf13/cobra"
)

func TestGetCliFlag(t *testing.T) {
	defer func() { twelveFactorMode = false }()
	fnGetConfig := func(key string, out interface{}) error {
		return nil
	}
	flagName := "mock"
	mockEnvVar := flagNameToEnvVar(flagName)
	expected := "envTest"
	d := "myDefault"
	// Test 1 - test default value applied to mock CLI flag.
	got := switches.getCliFlag(flagName, d, fnGetConfig)
	if got.val != d {
		t.Fatalf("test 1 failed: expected default value %v to be applied to mock CLI flag", got.val)
	}
	// Test 2 - fetch flag value from environment when it is not set - expect default value to be applied.
	twelveFactorMode = true
	got = switches.getCliFlag(flagName, d, fnGetConfig)
	if got.val != d {
		t.Fatalf("test 2 failed: expected default value (%v) to be applied to mock CLI flag fetched via environment variable (%v)", got.val, mockEnvVar)
	}
	// Test 3 - fetch flag value from environment after setting it explicitly.
	t.Setenv(mockEnvVar, expected)
	got = switches.getCliFlag(flagName, d, fnGetConfig)
	if got.val != expected {
		t.Fatalf("test 3 failed: expected value (%v) to be applied to mock CLI flag (%v) fetched from environment variable (%v); got: %v", expected, flagName, mockEnvVar, got.val)
	}
	// Test 4 - config values take effect outside twelveFactorMode.
	twelveFactorMode = false
	fnGetConfig = func(key string, out interface{}) error {
		*out.(*string) = "fromConfig"
		return nil
	}
	if got = switches.getCliFlag(flagName, d, fnGetConfig); got.val != "fromConfig" {
		t.Fatalf("test 4 failed: expected the config value; got: %v", got.val)
	}
}

func TestFlagNameToEnvVar(t *testing.T) {
	if got := flagNameToEnvVar("records-key"); got != "OETL_RECORDS_KEY" {
		t.Fatalf("unexpected env var name %v", got)
	}
}

func TestAddFlagTwelveFactorMode(t *testing.T) {
	twelveFactorMode = true
	defer func() { twelveFactorMode = false }()
	t.Setenv("OETL_MAX_PAGES", "7")
	t.Setenv("OETL_GZIP", "yes")
	t.Setenv("OETL_SELECTED_DATES", "2026-01-01, 2026-01-02")
	t.Setenv("OETL_SPARK_CONFIG", "a=1, b = 2")
	c := &cobra.Command{Use: "test"}
	var maxPages int
	var gzip bool
	var dates []string
	var spark map[string]string
	switches.addFlag(c, &maxPages, "max-pages", "1000", false, "")
	switches.addFlag(c, &gzip, "gzip", "false", false, "")
	switches.addFlag(c, &dates, "selected-dates", "", false, "")
	switches.addFlag(c, &spark, "spark-config", "", false, "")
	// Test 1 - values are read from the environment.
	if maxPages != 7 || !gzip {
		t.Fatalf("test 1 failed: got maxPages %v gzip %v", maxPages, gzip)
	}
	// Test 2 - slices and maps are parsed from CSV.
	if len(dates) != 2 || dates[1] != "2026-01-02" {
		t.Fatalf("test 2 failed: got dates %v", dates)
	}
	if len(spark) != 2 || spark["a"] != "1" || spark["b"] != "2" {
		t.Fatalf("test 2 failed: got spark config %v", spark)
	}
	// Test 3 - no flags are registered with cobra.
	if c.Flags().HasFlags() {
		t.Fatal("test 3 failed: expected no cobra flags in twelveFactorMode")
	}
}

func TestAddFlagDefaults(t *testing.T) {
	c := &cobra.Command{Use: "test"}
	var level string
	var gzip bool
	var dates []string
	switches.addFlag(c, &level, "log-level", "warn", false, "")
	switches.addFlag(c, &gzip, "gzip", "true", false, "")
	switches.addFlag(c, &dates, "selected-dates", "2026-01-01,2026-01-02", false, "")
	// Test 1 - defaults are applied to the target variables.
	if level != "warn" || !gzip || len(dates) != 2 {
		t.Fatalf("test 1 failed: got level %q gzip %v dates %v", level, gzip, dates)
	}
	// Test 2 - parsed flags override the defaults.
	if err := c.ParseFlags([]string{"-l", "debug", "--gzip=false"}); err != nil {
		t.Fatal(err)
	}
	if level != "debug" || gzip {
		t.Fatalf("test 2 failed: got level %q gzip %v", level, gzip)
	}
}

func TestKeyValuesToMap(t *testing.T) {
	m, err := keyValuesToMap("x=1,y=a=b")
	if err != nil || m["x"] != "1" || m["y"] != "a=b" {
		t.Fatalf("unexpected map %v, %v", m, err)
	}
	if m, err = keyValuesToMap(""); err != nil || len(m) != 0 {
		t.Fatalf("expected an empty map, got %v, %v", m, err)
	}
	if _, err = keyValuesToMap("novalue"); err == nil {
		t.Fatal("expected an error for a token without '='")
	}
}

func TestSourceTargetArgs(t *testing.T) {
	var src, tgt connection.ConnectionObject
	fn := getSourceTargetArgsFunc(&src, &tgt, "")
	// Test 1 - wrong number of args.
	if err := fn(nil, []string{"shop.orders"}); err == nil {
		t.Fatal("test 1 failed: expected an error")
	}
	// Test 2 - target is split into connection, schema and object.
	if err := fn(nil, []string{"shop.orders", "warehouse.public.orders"}); err != nil {
		t.Fatal(err)
	}
	target := pipeline.Target{}
	applyTarget(&target, tgt)
	if src.ConnectionObject != "shop.orders" || target.Connection != "warehouse" || target.Schema != "public" || target.Table != "orders" {
		t.Fatalf("test 2 failed: got source %v target %+v", src, target)
	}
	// Test 3 - stdout has no object.
	applyTarget(&target, connection.ConnectionObject{ConnectionObject: "stdout"})
	if target.Connection != "stdout" || target.Schema != "" || target.Table != "" {
		t.Fatalf("test 3 failed: got target %+v", target)
	}
	// Test 4 - a quoted dotted table name is not split.
	applyTarget(&target, connection.ConnectionObject{ConnectionObject: `warehouse."daily.orders"`})
	if target.Connection != "warehouse" || target.Schema != "" || target.Table != "daily.orders" {
		t.Fatalf("test 4 failed: got target %+v", target)
	}
}

func TestQueryArgs(t *testing.T) {
	var name, query string
	fn := getQueryFromArgsFunc(&name, &query, "")
	if err := fn(nil, []string{"warehouse"}); err == nil {
		t.Fatal("expected an error without a query")
	}
	if err := fn(nil, []string{"warehouse", "select", "*", "from", "orders"}); err != nil {
		t.Fatal(err)
	}
	if name != "warehouse" || query != "select * from orders" {
		t.Fatalf("unexpected connection %q query %q", name, query)
	}
}

func TestIsKnownFlagName(t *testing.T) {
	if !isKnownFlagName("records-key") || !isKnownFlagName("force") {
		t.Fatal("expected registered flag names to be known")
	}
	if isKnownFlagName("api-file") { // switch keys are not flag names.
		t.Fatal("expected a switch key that differs from its flag name to be unknown")
	}
}
