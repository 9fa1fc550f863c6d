package actions

import (
	"github.com/relloyd/openetl/connection"
)

// ConnectionLoader loads stored connection details by name.
type ConnectionLoader interface {
	LoadConnection(connectionName string) (connection.Details, error)
}

type ConnectionGetterSetter interface {
	Get(key string, out interface{}) error
	Set(key string, val interface{}) error
	Delete(key string) error
	GetAllKeys() ([]string, error)
}
