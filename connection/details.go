package connection

import (
	"fmt"
	"sort"
	"strings"

	"github.com/relloyd/openetl/constants"
	"github.com/xo/dburl"
)

// Keys used in Details.Data.
const (
	KeyDSN          = "dsn"
	KeyBaseURL      = "base_url"
	KeyAuthType     = "auth_type"
	KeyUsername     = "username"
	KeyPassword     = "password"
	KeyToken        = "token"
	KeyClientID     = "client_id"
	KeyClientSecret = "client_secret"
	KeyAuthorizeURL = "authorize_url"
	KeyTokenURL     = "token_url"
	KeyRefreshURL   = "refresh_url"
	KeyRevokeURL    = "revoke_url"
	KeyRedirectURL  = "redirect_url"
	KeyScope        = "scope"
	KeyTables       = "tables"     // CSV of <logical-name>:<relative-path> tokens
	KeyPagination   = "pagination" // CSV of <query-param>:<value> tokens
	KeyFormat       = "format"     // json|xml
	KeyBucket       = "name"
	KeyPrefix       = "prefix"
	KeyRegion       = "region"
)

var sensitiveKeys = map[string]struct{}{
	KeyPassword:     {},
	KeyToken:        {},
	KeyClientSecret: {},
}

// Details holds credentials for a logical connection: an API, a database or an S3 bucket.
type Details struct {
	Type        string            `json:"type" errorTxt:"connection type" mandatory:"yes" yaml:"type"`
	LogicalName string            `json:"logicalName" errorTxt:"connection logical name" mandatory:"yes" yaml:"logicalName"`
	Data        map[string]string `json:"data" yaml:"data"`
}

// String redacts passwords and pretty-prints the contents of Details.
func (c Details) String() string {
	x := []string{fmt.Sprintf("  type = %v", c.Type)}
	keys := make([]string, 0, len(c.Data))
	for k := range c.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := c.Data[k]
		if k == KeyDSN {
			if u, err := dburl.Parse(v); err == nil {
				v = u.Redacted()
			} else {
				v = "<unparsable dsn>"
			}
		} else if _, ok := sensitiveKeys[k]; ok && v != "" {
			v = "xxxxx"
		}
		x = append(x, fmt.Sprintf("  %v = %v", k, v))
	}
	return strings.Join(x, "\n")
}

// IsDatabase returns true if the connection type is served by package rdbms.
func (c Details) IsDatabase() bool {
	switch c.Type {
	case constants.ConnectionTypePostgres, constants.ConnectionTypeSqlite,
		constants.ConnectionTypeSqlServer, constants.ConnectionTypeSnowflake:
		return true
	}
	return false
}

// ConnectionObject is of the form <connection>[.<schema>].<object> as supplied on the command line.
type ConnectionObject struct {
	ConnectionObject string
}

// Split separates the connection name from the rest of the object, which is returned as schema and object.
func (c ConnectionObject) Split() (connection, schema, object string) {
	parts := strings.SplitN(c.ConnectionObject, ".", 3)
	switch len(parts) {
	case 1:
		connection = parts[0]
	case 2:
		connection, object = parts[0], parts[1]
	default:
		connection, schema, object = parts[0], parts[1], parts[2]
	}
	return
}
