package table

import (
	"fmt"
	"strings"

	"github.com/relloyd/openetl/constants"
)

// dialectConfigT holds the target data types used when generating DDL for a database type.
type dialectConfigT struct {
	numericType string
	stringType  string
	quote       func(string) string
}

type mapDialectConfigT map[string]dialectConfigT

var dialects = mapDialectConfigT{
	constants.ConnectionTypePostgres: {
		numericType: "numeric",
		stringType:  "text",
		quote:       doubleQuote,
	},
	constants.ConnectionTypeSqlite: {
		numericType: "real",
		stringType:  "text",
		quote:       doubleQuote,
	},
	constants.ConnectionTypeSqlServer: {
		numericType: "float",
		stringType:  "nvarchar(max)",
		quote:       func(s string) string { return "[" + strings.ReplaceAll(s, "]", "]]") + "]" },
	},
	constants.ConnectionTypeSnowflake: {
		numericType: "number(38,10)",
		stringType:  "varchar",
		quote:       doubleQuote,
	},
}

func doubleQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (m mapDialectConfigT) get(dialect string) (dialectConfigT, error) {
	d, ok := m[strings.ToLower(dialect)]
	if !ok {
		return dialectConfigT{}, fmt.Errorf("unsupported database type %q for table DDL", dialect)
	}
	return d, nil
}

// QuoteIdentifier quotes name for dialect.
func QuoteIdentifier(dialect string, name string) (string, error) {
	d, err := dialects.get(dialect)
	if err != nil {
		return "", err
	}
	return d.quote(name), nil
}

// QualifiedName returns the quoted [<schema>.]<name> for dialect.
func QualifiedName(dialect string, schema string, name string) (string, error) {
	d, err := dialects.get(dialect)
	if err != nil {
		return "", err
	}
	if schema == "" {
		return d.quote(name), nil
	}
	return d.quote(schema) + "." + d.quote(name), nil
}

// CreateTableDDL returns a CREATE TABLE statement for t in the given dialect.
// Numeric columns map to the dialect's numeric type and all others to its text type.
func CreateTableDDL(dialect string, schema string, name string, t *Table) (string, error) {
	d, err := dialects.get(dialect)
	if err != nil {
		return "", err
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("no columns found to build CREATE TABLE DDL for %q", name)
	}
	fields := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		dataType := d.stringType
		if c.Type == Numeric {
			dataType = d.numericType
		}
		fields = append(fields, fmt.Sprintf("%v %v", d.quote(c.Name), dataType))
	}
	qn, _ := QualifiedName(dialect, schema, name)
	return fmt.Sprintf("CREATE TABLE %v ( %v )", qn, strings.Join(fields, ", ")), nil
}
