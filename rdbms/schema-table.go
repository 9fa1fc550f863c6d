package rdbms

import (
	"regexp"
	"strings"
)

var (
	reQuotedDottedName = regexp.MustCompile(`^".+\..+"$`) // "random.table"
	reQuotedSchemaName = regexp.MustCompile(`".+"\.".+"`) // "schema"."table"
	reQuoted           = regexp.MustCompile(`^".+"$`)
)

// SchemaTable holds a [<schema>.]<table> name as typed by a user.
type SchemaTable struct {
	SchemaTable string `errorTxt:"[<schema>.]<object>" mandatory:"yes"`
}

func NewSchemaTable(schema string, table string) SchemaTable {
	if schema == "" {
		return SchemaTable{table}
	}
	return SchemaTable{schema + "." + table}
}

// isQuotedTable is true for a quoted "random.table" that isn't a regular "schema"."table".
func (st SchemaTable) isQuotedTable() bool {
	return reQuotedDottedName.MatchString(st.SchemaTable) && !reQuotedSchemaName.MatchString(st.SchemaTable)
}

func (st SchemaTable) GetTable() string {
	if st.isQuotedTable() {
		return st.SchemaTable
	}
	i := strings.Index(st.SchemaTable, ".")
	if i < 0 {
		return st.SchemaTable
	}
	return st.SchemaTable[i+1:]
}

func (st SchemaTable) GetSchema() string {
	if st.isQuotedTable() {
		return ""
	}
	i := strings.Index(st.SchemaTable, ".")
	if i < 0 {
		return ""
	}
	return st.SchemaTable[:i]
}

// Unquoted returns the schema and table with surrounding double quotes removed.
func (st SchemaTable) Unquoted() (schema string, table string) {
	return unquote(st.GetSchema()), unquote(st.GetTable())
}

func unquote(s string) string {
	if reQuoted.MatchString(s) {
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	}
	return s
}

func (st SchemaTable) String() string {
	return st.SchemaTable
}
