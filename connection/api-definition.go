package connection

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/helper"
	"github.com/relloyd/openetl/logger"
)

// APIDefinition describes a REST API source: where it lives, how to authenticate and which tables it serves.
type APIDefinition struct {
	SourceName            string            `json:"source_name" errorTxt:"source name" mandatory:"yes"`
	BaseURL               string            `json:"base_url" errorTxt:"base url" mandatory:"yes"`
	Tables                map[string]string `json:"tables" errorTxt:"tables" mandatory:"yes"`
	AuthType              string            `json:"authentication_type"`
	AuthenticationDetails map[string]string `json:"authentication_details"`
	Pagination            map[string]string `json:"pagination"`
	Format                string            `json:"format"`
}

// AuthKeys returns the names of the authentication details sorted alphabetically.
func (a APIDefinition) AuthKeys() []string {
	keys := make([]string, 0, len(a.AuthenticationDetails))
	for k := range a.AuthenticationDetails {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TableNames returns the logical table names sorted alphabetically.
func (a APIDefinition) TableNames() []string {
	names := make([]string, 0, len(a.Tables))
	for k := range a.Tables {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ParseAPIDefinitionJSON decodes an API definition document.
func ParseAPIDefinitionJSON(b []byte) (APIDefinition, error) {
	d := APIDefinition{}
	if err := json.Unmarshal(b, &d); err != nil {
		return d, errors.Wrap(err, "invalid JSON API definition")
	}
	if d.AuthType == "" {
		d.AuthType = guessAuthType(d.AuthenticationDetails)
	}
	return d, nil
}

type xmlDefinition struct {
	XMLName        xml.Name `xml:"api"`
	SourceName     string   `xml:"source_name"`
	BaseURL        string   `xml:"base_url"`
	Authentication string   `xml:"authentication"`
	Tables         struct {
		Items []xmlElement `xml:",any"`
	} `xml:"tables"`
	Pagination struct {
		Items []xmlElement `xml:",any"`
	} `xml:"pagination"`
}

type xmlElement struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// ParseAPIDefinitionXML decodes an XML API definition whose <tables> children map table names to paths.
func ParseAPIDefinitionXML(b []byte) (APIDefinition, error) {
	x := xmlDefinition{}
	if err := xml.Unmarshal(b, &x); err != nil {
		return APIDefinition{}, errors.Wrap(err, "invalid XML API definition")
	}
	d := APIDefinition{
		SourceName: strings.TrimSpace(x.SourceName),
		BaseURL:    strings.TrimSpace(x.BaseURL),
		AuthType:   strings.ToLower(strings.TrimSpace(x.Authentication)),
		Tables:     make(map[string]string),
		Pagination: make(map[string]string),
	}
	for _, e := range x.Tables.Items {
		d.Tables[e.XMLName.Local] = strings.TrimSpace(e.Value)
	}
	for _, e := range x.Pagination.Items {
		d.Pagination[e.XMLName.Local] = strings.TrimSpace(e.Value)
	}
	return d, nil
}

func guessAuthType(details map[string]string) string {
	if _, ok := details[KeyToken]; ok {
		return constants.AuthTypeBearer
	}
	if _, ok := details[KeyUsername]; ok {
		return constants.AuthTypeBasic
	}
	if _, ok := details[KeyClientID]; ok {
		return constants.AuthTypeOAuth2
	}
	return constants.AuthTypeNone
}

// ToDetails converts the definition into Details that can be saved in the connections store.
func (a APIDefinition) ToDetails(logicalName string) Details {
	data := map[string]string{
		KeyBaseURL:  strings.TrimRight(a.BaseURL, "/"),
		KeyAuthType: a.AuthType,
		KeyFormat:   a.Format,
		KeyTables:   mapToTokens(a.Tables),
	}
	if len(a.Pagination) > 0 {
		data[KeyPagination] = mapToTokens(a.Pagination)
	}
	for k, v := range a.AuthenticationDetails {
		data[k] = v
	}
	return Details{Type: constants.ConnectionTypeAPI, LogicalName: logicalName, Data: data}
}

// mapToTokens renders m as a single CSV line of key:value tokens sorted by key.
func mapToTokens(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tokens := make([]string, len(keys))
	for idx, k := range keys {
		tokens[idx] = k + ":" + m[k]
	}
	b := &bytes.Buffer{}
	w := csv.NewWriter(b)
	_ = w.Write(tokens) // writes to a buffer cannot fail
	w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

// APIDefinitionFromDetails rebuilds the definition from Details saved by ToDetails.
func APIDefinitionFromDetails(log logger.Logger, d Details) (APIDefinition, error) {
	if d.Type != constants.ConnectionTypeAPI {
		return APIDefinition{}, fmt.Errorf("connection %q is of type %q, expected %q", d.LogicalName, d.Type, constants.ConnectionTypeAPI)
	}
	a := APIDefinition{
		SourceName:            d.LogicalName,
		BaseURL:               d.Data[KeyBaseURL],
		AuthType:              d.Data[KeyAuthType],
		Format:                d.Data[KeyFormat],
		AuthenticationDetails: make(map[string]string),
		Pagination:            make(map[string]string),
	}
	var err error
	if a.Tables, err = helper.CsvStringOfTokensToMap(log, d.Data[KeyTables]); err != nil {
		return a, errors.Wrapf(err, "bad tables for connection %q", d.LogicalName)
	}
	if v := d.Data[KeyPagination]; v != "" {
		if a.Pagination, err = helper.CsvStringOfTokensToMap(log, v); err != nil {
			return a, errors.Wrapf(err, "bad pagination for connection %q", d.LogicalName)
		}
	}
	for _, k := range []string{KeyUsername, KeyPassword, KeyToken, KeyClientID, KeyClientSecret,
		KeyAuthorizeURL, KeyTokenURL, KeyRefreshURL, KeyRevokeURL, KeyRedirectURL, KeyScope} {
		if v, ok := d.Data[k]; ok {
			a.AuthenticationDetails[k] = v
		}
	}
	if a.AuthType == "" {
		a.AuthType = guessAuthType(a.AuthenticationDetails)
	}
	return a, nil
}
