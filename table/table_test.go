package table

import (
	"strings"
	"testing"

	"github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/flatten"
)

func mustDocs(t *testing.T, docs ...string) []interface{} {
	out := make([]interface{}, 0, len(docs))
	for _, d := range docs {
		v, err := flatten.DecodeOrdered(strings.NewReader(d))
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, v)
	}
	return out
}

func mustRowSet(t *testing.T, docs ...string) *flatten.RowSet {
	return flatten.AccumulateRecords(mustDocs(t, docs...)...)
}

func TestFromRowSet(t *testing.T) {
	rs := mustRowSet(t,
		`{"id": 1, "name": "a", "active": true, "score": 1.5}`,
		`{"id": 2, "name": null, "active": false}`,
		`{"id": 3, "name": 7, "active": null, "score": null}`,
	)
	tab := FromRowSet(rs)

	// Test 1 - header in first-seen order and row count.
	if got := strings.Join(tab.Header(), ","); got != "id,name,active,score" {
		t.Fatalf("unexpected header %q", got)
	}
	if tab.NumRows() != 3 {
		t.Fatalf("expected 3 rows, got %v", tab.NumRows())
	}

	// Test 2 - all-number column stays numeric.
	id, _ := tab.Column("id")
	if id.Type != Numeric || id.Values[2] != int64(3) {
		t.Fatalf("unexpected id column %+v", id)
	}

	// Test 3 - mixed column is coerced to string.
	name, _ := tab.Column("name")
	if name.Type != String || name.Values[0] != "a" || name.Values[1] != "" || name.Values[2] != "7" {
		t.Fatalf("unexpected name column %+v", name)
	}

	// Test 4 - bool column is coerced to string.
	active, _ := tab.Column("active")
	if active.Type != String || active.Values[0] != "true" || active.Values[1] != "false" || active.Values[2] != "" {
		t.Fatalf("unexpected active column %+v", active)
	}

	// Test 5 - numeric column with nulls keeps nil.
	score, _ := tab.Column("score")
	if score.Type != Numeric || score.Values[0] != 1.5 || score.Values[1] != nil {
		t.Fatalf("unexpected score column %+v", score)
	}

	// Test 6 - records and string rows.
	recs := tab.Records()
	if len(recs) != 3 || recs[1].GetData("active") != "false" {
		t.Fatalf("unexpected records %v", recs)
	}
	rows := tab.StringRows()
	if strings.Join(rows[0], ",") != "1,a,true,1.5" {
		t.Fatalf("unexpected first row %v", rows[0])
	}
}

func TestFromRowSetPadsShortColumns(t *testing.T) {
	rs := flatten.Accumulate(mustDocs(t, `{"a": 1}`, `{"a": 2, "b": "x"}`)...)
	tab := FromRowSet(rs)
	b, _ := tab.Column("b")
	if tab.NumRows() != 2 || len(b.Values) != 2 || b.Values[0] != "x" || b.Values[1] != "" {
		t.Fatalf("unexpected padded column %+v", b)
	}
}

func TestFromRowSetSparseRecords(t *testing.T) {
	tab := FromRowSet(mustRowSet(t, `{"a": 1}`, `{"a": 3, "b": "x"}`))

	// Test 1 - a key missing from the first record leaves that row empty.
	rows := tab.StringRows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %v", rows)
	}
	if got := strings.Join(rows[0], "|"); got != "1|" {
		t.Fatalf("unexpected first row %q", got)
	}
	if got := strings.Join(rows[1], "|"); got != "3|x" {
		t.Fatalf("unexpected second row %q", got)
	}

	// Test 2 - a key missing from a later record.
	rows = FromRowSet(mustRowSet(t, `{"a": 1, "b": "x"}`, `{"a": 2}`)).StringRows()
	if got := strings.Join(rows[1], "|"); got != "2|" {
		t.Fatalf("unexpected second row %q", got)
	}
}

func TestFromRowSetLargeIntegers(t *testing.T) {
	tab := FromRowSet(mustRowSet(t,
		`{"id": 12345678901234567, "big": 123456789012345678901234567890, "f": 0.1}`,
		`{"id": -9007199254740993, "big": 1, "f": 2}`,
	))

	// Test 1 - whole numbers beyond 2^53 keep every digit.
	id, _ := tab.Column("id")
	if id.Type != Numeric || id.Values[0] != int64(12345678901234567) || id.Values[1] != int64(-9007199254740993) {
		t.Fatalf("unexpected id column %+v", id)
	}
	rows := tab.StringRows()
	if rows[0][0] != "12345678901234567" || rows[1][0] != "-9007199254740993" {
		t.Fatalf("unexpected id cells %v", rows)
	}

	// Test 2 - whole numbers beyond int64 are kept as their literal.
	if rows[0][1] != "123456789012345678901234567890" {
		t.Fatalf("unexpected big cell %q", rows[0][1])
	}

	// Test 3 - fractions stay float64.
	f, _ := tab.Column("f")
	if f.Values[0] != 0.1 || f.Values[1] != int64(2) || rows[0][2] != "0.1" {
		t.Fatalf("unexpected f column %+v", f)
	}
}

func TestCreateTableDDL(t *testing.T) {
	tab := FromRowSet(mustRowSet(t, `{"id": 1, "name": "a"}`))

	// Test 1 - postgres with schema.
	ddl, err := CreateTableDDL(constants.ConnectionTypePostgres, "public", "orders", tab)
	if err != nil {
		t.Fatal(err)
	}
	expected := `CREATE TABLE "public"."orders" ( "id" numeric, "name" text )`
	if ddl != expected {
		t.Fatalf("unexpected DDL. Expected: '%v'; got: '%v'", expected, ddl)
	}

	// Test 2 - sqlserver quoting.
	ddl, _ = CreateTableDDL(constants.ConnectionTypeSqlServer, "", "orders", tab)
	expected = `CREATE TABLE [orders] ( [id] float, [name] nvarchar(max) )`
	if ddl != expected {
		t.Fatalf("unexpected DDL. Expected: '%v'; got: '%v'", expected, ddl)
	}

	// Test 3 - unknown dialect and empty table.
	if _, err = CreateTableDDL("oracle", "", "x", tab); err == nil {
		t.Fatal("expected error for unsupported dialect")
	}
	if _, err = CreateTableDDL(constants.ConnectionTypeSqlite, "", "x", &Table{}); err == nil {
		t.Fatal("expected error for table without columns")
	}
}
