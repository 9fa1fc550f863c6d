package config

import (
	"fmt"
	"path"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/relloyd/openetl/connection"
	"gopkg.in/yaml.v2"
)

var Main *File
var Connections *File
var Tokens *File

func init() {
	Main = NewConfigFileWithDir(mustGetConfigHomeDir(), MainFileFullName)
	Connections = NewConfigFileWithDir(mustGetConfigHomeDir(), ConnectionsConfigFileFullName)
	Tokens = NewConfigFileWithDir(mustGetConfigHomeDir(), TokensConfigFileFullName)
}

const (
	MainDir                       = ".openetl"
	MainFileFullName              = "config.yaml"
	ConnectionsConfigFileFullName = "connections.yaml"
	TokensConfigFileFullName      = "tokens.yaml"
)

// FileNotFoundError denotes failing to find configuration file.
type FileNotFoundError struct {
	name string
}

func (f FileNotFoundError) Error() string {
	return fmt.Sprintf("config file %q not found", f.name)
}

type KeyNotFoundError struct {
	configFile string
	key        string
}

func (k KeyNotFoundError) Error() string {
	return fmt.Sprintf("key %q not found in config file %q", k.key, k.configFile)
}

// File is a YAML map of keys to values persisted in an EncryptedFile.
type File struct {
	Dirname      string
	FileName     string
	FullPath     string
	data         map[string]interface{}
	dataIsLoaded bool
	f            *EncryptedFile
	mu           sync.Mutex
}

func NewConfigFileWithDir(dirName string, filename string) *File {
	return &File{
		Dirname:  dirName,
		FileName: filename,
		FullPath: path.Join(dirName, filename),
		data:     make(map[string]interface{}),
		f:        NewEncryptedFile(dirName, filename),
	}
}

// Get will fetch the key from the config File into variable, out, which must be a pointer.
// Return KeyNotFoundError if we can't find the key.
func (c *File) Get(key string, out interface{}) error {
	if reflect.ValueOf(out).Kind() != reflect.Ptr {
		return errors.New("out must be a pointer")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadData(); err != nil {
		return err
	}
	d, ok := c.data[key]
	if !ok { // if the key was not found...
		return KeyNotFoundError{c.FullPath, key}
	}
	if err := mapstructure.Decode(normalise(d), out); err != nil {
		return errors.Wrapf(err, "error decoding key %q in config file %q", key, c.FullPath)
	}
	return nil
}

// Set saves val under key and writes the whole file.
func (c *File) Set(key string, val interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadData(); err != nil {
		return err
	}
	c.data[key] = val
	return c.save(key)
}

// Delete removes key and writes the whole file.
func (c *File) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadData(); err != nil {
		return err
	}
	if _, keyExists := c.data[key]; !keyExists {
		return KeyNotFoundError{c.FullPath, key}
	}
	delete(c.data, key)
	return c.save(key)
}

// GetAllKeys returns all keys sorted alphabetically.
func (c *File) GetAllKeys() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadData(); err != nil {
		return nil, err
	}
	retval := make([]string, 0, len(c.data))
	for k := range c.data {
		retval = append(retval, k)
	}
	sort.Strings(retval)
	return retval, nil
}

// GetConnectionDetails fetches the connection called connectionName.
func (c *File) GetConnectionDetails(connectionName string) (*connection.Details, error) {
	d := &connection.Details{}
	if err := c.Get(connectionName, d); err != nil {
		if errors.As(err, &KeyNotFoundError{}) {
			return nil, fmt.Errorf("connection %q is not configured: use 'config connections add' to create it", connectionName)
		}
		return nil, err
	}
	if d.Type == "" {
		return nil, fmt.Errorf("unknown type for connection %q", connectionName)
	}
	if d.LogicalName == "" {
		d.LogicalName = connectionName
	}
	return d, nil
}

// LoadConnection implements the connection loader used by actions.
func (c *File) LoadConnection(connectionName string) (connection.Details, error) {
	d, err := c.GetConnectionDetails(connectionName)
	if err != nil {
		return connection.Details{}, err
	}
	return *d, nil
}

// SaveConnection stores d under its logical name.
func (c *File) SaveConnection(d connection.Details) error {
	return c.Set(d.LogicalName, d)
}

func (c *File) save(key string) error {
	b, err := yaml.Marshal(c.data)
	if err != nil {
		return errors.Wrapf(err, "error marshalling data while writing key %v to config file %v", key, c.FullPath)
	}
	return c.f.Set(b)
}

// loadData reads the file once; a missing file is treated as empty.
func (c *File) loadData() error {
	if c.dataIsLoaded {
		return nil
	}
	b, err := c.f.Get()
	if err != nil {
		if errors.As(err, &FileNotFoundError{}) {
			c.dataIsLoaded = true
			return nil
		}
		return err
	}
	if err = yaml.Unmarshal(b, &c.data); err != nil {
		return errors.Wrapf(err, "error reading config file %v", c.FullPath)
	}
	if c.data == nil {
		c.data = make(map[string]interface{})
	}
	c.dataIsLoaded = true
	return nil
}

// normalise converts the map[interface{}]interface{} values produced by yaml.v2 into
// map[string]interface{} so mapstructure can decode them into structs by field name.
func normalise(v interface{}) interface{} {
	switch x := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(x))
		for k, val := range x {
			m[strings.TrimSpace(fmt.Sprint(k))] = normalise(val)
		}
		return m
	case map[string]interface{}:
		m := make(map[string]interface{}, len(x))
		for k, val := range x {
			m[k] = normalise(val)
		}
		return m
	case []interface{}:
		for i := range x {
			x[i] = normalise(x[i])
		}
		return x
	}
	return v
}
