package actions

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/relloyd/openetl/auth"
	"github.com/relloyd/openetl/aws/s3"
	"github.com/relloyd/openetl/connection"
	"github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/rdbms"
)

// connectionType holds the keys a connection of one type must supply and a function to check them.
type connectionType struct {
	required   []string
	fnValidate func(log logger.Logger, d connection.Details) error
}

var connectionTypes = map[string]connectionType{
	constants.ConnectionTypeAPI:       {required: []string{connection.KeyBaseURL, connection.KeyTables}, fnValidate: validateAPIConnection},
	constants.ConnectionTypePostgres:  {required: []string{connection.KeyDSN}, fnValidate: validateDSNConnection},
	constants.ConnectionTypeSqlite:    {required: []string{connection.KeyDSN}, fnValidate: validateDSNConnection},
	constants.ConnectionTypeSqlServer: {required: []string{connection.KeyDSN}, fnValidate: validateDSNConnection},
	constants.ConnectionTypeSnowflake: {required: []string{connection.KeyDSN}, fnValidate: validateDSNConnection},
	constants.ConnectionTypeS3:        {required: []string{connection.KeyBucket, connection.KeyRegion}, fnValidate: validateS3Connection},
}

// IsSupportedConnectionType returns true if connections of type t can be saved.
func IsSupportedConnectionType(t string) bool {
	_, ok := connectionTypes[t]
	return ok
}

// GetSupportedConnectionTypes returns a comma separated list of the types that can be saved.
func GetSupportedConnectionTypes() string {
	s := make([]string, 0, len(connectionTypes))
	for k := range connectionTypes {
		s = append(s, k)
	}
	sort.Strings(s)
	return strings.Join(s, ", ")
}

// validateConnection checks d has the keys its type requires and that they parse.
func validateConnection(log logger.Logger, d connection.Details) error {
	ct, ok := connectionTypes[d.Type]
	if !ok {
		return fmt.Errorf("unsupported connection type %q, please use one of: %v", d.Type, GetSupportedConnectionTypes())
	}
	missing := make([]string, 0)
	for _, k := range ct.required {
		if strings.TrimSpace(d.Data[k]) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("connection type %q requires values for %v", d.Type, strings.Join(missing, ", "))
	}
	return ct.fnValidate(log, d)
}

func validateAPIConnection(log logger.Logger, d connection.Details) error {
	def, err := connection.APIDefinitionFromDetails(log, d)
	if err != nil {
		return err
	}
	u, err := url.Parse(def.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base url %q", def.BaseURL)
	}
	if len(def.Tables) == 0 {
		return fmt.Errorf("API connection %q has no tables", d.LogicalName)
	}
	// Credentials are checked here; oauth2 tokens are only needed when the API is called.
	_, err = auth.FromDetails(d, auth.NewMemoryTokenStore())
	return err
}

func validateDSNConnection(_ logger.Logger, d connection.Details) error {
	_, _, err := rdbms.ParseDSN(d.Type, d.Data[connection.KeyDSN])
	return err
}

func validateS3Connection(_ logger.Logger, d connection.Details) error {
	_, err := s3.BucketFromDetails(d)
	return err
}
