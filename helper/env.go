package helper

import (
	"fmt"
	"os"
	"strings"

	"github.com/relloyd/openetl/constants"
)

// ReadValueFromEnv reads the environment variable name into val.
// If the env var is not set then return an error and leave val alone.
func ReadValueFromEnv(name string, val *string) error {
	v := os.Getenv(name)
	if v != "" { // if the environment variable was set...
		*val = v // update the callers value
		return nil
	}
	return fmt.Errorf("value for environment variable %v not found", name)
}

// ReadValueFromEnvWithDefault will read the value of name from the environment into v.
// If it's not set then it will apply the supplied defaultValue and return v.
func ReadValueFromEnvWithDefault(name string, defaultValue string) (v string) {
	_ = ReadValueFromEnv(name, &v)
	if v == "" && defaultValue != "" { // if the environment variable is not set and we have been given a default value...
		v = defaultValue
	}
	return
}

// EnvVarName builds OETL_<PARTS> from the supplied parts, upper-casing them and converting dashes to underscores.
func EnvVarName(parts ...string) string {
	b := strings.Builder{}
	b.WriteString(constants.EnvVarPrefix)
	for _, p := range parts {
		b.WriteString("_")
		b.WriteString(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(p), "-", "_")))
	}
	return b.String()
}

// GetDsnEnvVarName returns the variable that holds the DSN of a database connection in twelveFactorMode.
func GetDsnEnvVarName(connectionName string) string {
	return EnvVarName(connectionName, "DSN")
}

// GetURLEnvVarName returns the variable that holds the page URL template of an API connection in twelveFactorMode.
func GetURLEnvVarName(connectionName string) string {
	return EnvVarName(connectionName, "URL")
}
