package config

import (
	"fmt"
	"os"
	"path"

	"github.com/mitchellh/go-homedir"
	"github.com/relloyd/openetl/helper"
)

var openEtlHomeDir string

// mustGetConfigHomeDir returns the directory that stores all config files.
// OETL_HOME overrides the default of ~/.openetl.
func mustGetConfigHomeDir() string {
	if openEtlHomeDir == "" {
		if d := os.Getenv(helper.EnvVarName("HOME")); d != "" {
			openEtlHomeDir = d
			return openEtlHomeDir
		}
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		openEtlHomeDir = path.Join(home, MainDir)
	}
	return openEtlHomeDir
}

// makeDir will make the given directory if it does not already exist.
func makeDir(dir string) error {
	_, err := os.Stat(dir)
	if os.IsNotExist(err) { // if it doesn't exist...
		if err = os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating directory %v: %w", dir, err)
		}
	} else if err != nil {
		return err
	}
	return nil
}
