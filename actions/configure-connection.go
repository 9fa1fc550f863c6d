package actions

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/openetl/config"
	"github.com/relloyd/openetl/connection"
	"github.com/relloyd/openetl/helper"
	"github.com/relloyd/openetl/logger"
)

type ConnectionConfig struct {
	Log         logger.Logger
	ConfigFile  ConnectionGetterSetter `errorTxt:"config file" mandatory:"yes"`
	LogicalName string                 `errorTxt:"connection name" mandatory:"yes"`
	Type        string                 `errorTxt:"connection type" mandatory:"yes"`
	Data        map[string]string
	Force       bool
	Out         io.Writer
}

// RunConnectionAdd validates and saves a connection.
// An existing connection is only replaced when cfg.Force is set.
func RunConnectionAdd(cfg *ConnectionConfig) error {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil { // if the basics were not supplied...
		return err
	}
	if strings.Contains(cfg.LogicalName, ".") {
		return fmt.Errorf("connection name cannot contain period characters '.' as they're used to split data sources e.g. <connection>[.<schema>].<object>")
	}
	d := connection.Details{LogicalName: cfg.LogicalName, Type: cfg.Type, Data: make(map[string]string)}
	for k, v := range cfg.Data {
		if v != "" {
			d.Data[k] = v
		}
	}
	if err := validateConnection(cfg.Log, d); err != nil {
		return errors.Wrap(err, "unable to create connection")
	}
	// Check for an existing saved connection.
	existing := &connection.Details{}
	err := cfg.ConfigFile.Get(cfg.LogicalName, existing)
	if err != nil {
		if !errors.As(err, &config.KeyNotFoundError{}) && !errors.As(err, &config.FileNotFoundError{}) {
			return err
		}
	} else if existing.LogicalName != "" && !cfg.Force { // else if the connection exists, but we are not allowed to overwrite it...
		return fmt.Errorf("connection exists, use force to update the connection or remove it first")
	}
	if err = cfg.ConfigFile.Set(cfg.LogicalName, d); err != nil {
		return fmt.Errorf("error writing connections config file after adding: %v", err)
	}
	fmt.Fprintf(stdout(cfg.Out), "Connection %q added\n", cfg.LogicalName)
	return nil
}

func RunConnectionRemove(cfg *ConnectionConfig) error {
	if cfg.ConfigFile == nil || cfg.LogicalName == "" {
		return errors.New("please supply a connection name")
	}
	if err := cfg.ConfigFile.Delete(cfg.LogicalName); err != nil {
		return fmt.Errorf("unable to delete connection %q from config: %v", cfg.LogicalName, err)
	}
	fmt.Fprintf(stdout(cfg.Out), "Connection %q removed\n", cfg.LogicalName)
	return nil
}

// RunConnectionList prints every connection with sensitive values redacted.
func RunConnectionList(cfg *ConnectionConfig) error {
	keys, err := cfg.ConfigFile.GetAllKeys()
	if err != nil {
		if errors.As(err, &config.FileNotFoundError{}) {
			return nil
		}
		return err
	}
	w := stdout(cfg.Out)
	for _, k := range keys {
		d := connection.Details{}
		if err = cfg.ConfigFile.Get(k, &d); err != nil {
			return err
		}
		fmt.Fprintf(w, "%v:\n%v\n", k, d)
	}
	return nil
}

// ListConnections returns the stored connections.
func ListConnections(c ConnectionGetterSetter) ([]connection.Details, error) {
	keys, err := c.GetAllKeys()
	if err != nil {
		if errors.As(err, &config.FileNotFoundError{}) {
			return []connection.Details{}, nil
		}
		return nil, err
	}
	retval := make([]connection.Details, 0, len(keys))
	for _, k := range keys {
		d := connection.Details{}
		if err = c.Get(k, &d); err != nil {
			return nil, err
		}
		retval = append(retval, d)
	}
	return retval, nil
}

// LoadAPIDefinitionFile reads an API definition in JSON, or XML when the file name ends in .xml.
func LoadAPIDefinitionFile(fileName string) (connection.APIDefinition, error) {
	b, err := os.ReadFile(fileName)
	if err != nil {
		return connection.APIDefinition{}, errors.Wrapf(err, "unable to read API definition %q", fileName)
	}
	if strings.ToLower(filepath.Ext(fileName)) == ".xml" {
		return connection.ParseAPIDefinitionXML(b)
	}
	return connection.ParseAPIDefinitionJSON(b)
}

func stdout(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}
