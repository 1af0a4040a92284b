package main

import (
	"context"
	"strings"
	"testing"
)

func TestParseColumnsFlag(t *testing.T) {
	got, err := ParseColumnsFlag("csv_a:db_a, csv_b:db_b")
	if err != nil {
		t.Fatal(err)
	}
	if got["csv_a"] != "db_a" || got["csv_b"] != "db_b" {
		t.Errorf("got %v", got)
	}
}

func TestParseColumnsFlagEmpty(t *testing.T) {
	got, err := ParseColumnsFlag("   ")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty mapping, got %v", got)
	}
}

func TestParseColumnsFlagRejectsMalformedEntry(t *testing.T) {
	if _, err := ParseColumnsFlag("csv_a"); err == nil {
		t.Error("expected an error for a mapping entry with no ':'")
	}
}

func TestClassifyCellPriority(t *testing.T) {
	cases := []struct {
		cell string
		want AbstractType
	}{
		{"42", AbstractInt},
		{"-7", AbstractInt},
		{"3.14", AbstractFloat},
		{"-0.5", AbstractFloat},
		{"true", AbstractBool},
		{"NO", AbstractBool},
		{"2024-01-15T10:30:00Z", AbstractTimestamp},
		{"2024-01-15 10:30:00", AbstractTimestamp},
		{"2024-01-15", AbstractDate},
		{"hello world", AbstractText},
	}
	for _, c := range cases {
		if got := classifyCell(c.cell); got != c.want {
			t.Errorf("classifyCell(%q) = %v, want %v", c.cell, got, c.want)
		}
	}
}

func TestClassifyCellDecimalPrecision(t *testing.T) {
	if got := classifyCell("12345678901.123456"); got != AbstractDecimal {
		t.Errorf("classifyCell(high precision float) = %v, want Decimal", got)
	}
	if got := classifyCell("3.14"); got != AbstractFloat {
		t.Errorf("classifyCell(3.14) = %v, want Float", got)
	}
}

func TestIsNullSentinel(t *testing.T) {
	for _, s := range []string{"", "NULL", "null", "None", "  "} {
		if !isNullSentinel(s) {
			t.Errorf("isNullSentinel(%q) = false, want true", s)
		}
	}
	if isNullSentinel("0") {
		t.Error("isNullSentinel(\"0\") should be false")
	}
}

func TestInferColumnTypesMajorityVote(t *testing.T) {
	csvBody := "id,flag,day\n1,true,2024-01-01\n2,false,2024-01-02\n3,yes,not-a-date\n"
	types, err := inferColumnTypes(strings.NewReader(csvBody), 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []AbstractType{AbstractInt, AbstractBool, AbstractDate}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("column %d = %v, want %v", i, types[i], want[i])
		}
	}
}

func TestReadCSVHeaderAppliesMapping(t *testing.T) {
	header, dbCols, err := readCSVHeader(strings.NewReader("id,name,price\n"), map[string]string{"name": "full_name"})
	if err != nil {
		t.Fatal(err)
	}
	if len(header) != 3 {
		t.Fatalf("header = %v", header)
	}
	want := []string{"id", "full_name", "price"}
	for i := range want {
		if dbCols[i] != want[i] {
			t.Errorf("dbColumns[%d] = %q, want %q", i, dbCols[i], want[i])
		}
	}
}

func TestSynthesizeImportCreateTableMySQLPrimaryKeyAndEngine(t *testing.T) {
	table := Table{Name: "products", Columns: []Column{
		{Name: "id", Abstract: AbstractInt, HasAbstract: true},
		{Name: "name", Abstract: AbstractText, HasAbstract: true},
		{Name: "price", Abstract: AbstractFloat, HasAbstract: true},
	}}
	ddl := synthesizeImportCreateTable(ProviderMySQL, table)
	if !strings.Contains(ddl, "`id` INT PRIMARY KEY") {
		t.Errorf("missing id primary key: %s", ddl)
	}
	if !strings.Contains(ddl, "ENGINE=InnoDB DEFAULT CHARSET=utf8mb4") {
		t.Errorf("missing engine clause: %s", ddl)
	}
	if !strings.Contains(ddl, "`price` FLOAT") {
		t.Errorf("missing price column: %s", ddl)
	}
}

func TestSynthesizeImportCreateTablePostgresTypes(t *testing.T) {
	table := Table{Name: "products", Columns: []Column{
		{Name: "id", Abstract: AbstractInt, HasAbstract: true},
		{Name: "active", Abstract: AbstractBool, HasAbstract: true},
	}}
	ddl := synthesizeImportCreateTable(ProviderPostgres, table)
	if !strings.Contains(ddl, `"active" BOOLEAN`) {
		t.Errorf("missing boolean column: %s", ddl)
	}
	if strings.Contains(ddl, "ENGINE") {
		t.Errorf("postgres DDL should not carry a MySQL engine clause: %s", ddl)
	}
}

func TestCellToValueNullSentinel(t *testing.T) {
	v, err := cellToValue("NULL", AbstractInt)
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != KindNull {
		t.Errorf("expected Null, got %v", v.Kind)
	}
}

func TestCellToValueTimestampWithOffset(t *testing.T) {
	v, err := cellToValue("2024-03-05T12:00:00+02:00", AbstractTimestamp)
	if err != nil {
		t.Fatal(err)
	}
	if !v.HasOffset || v.OffsetMinutes != 120 {
		t.Errorf("got HasOffset=%v OffsetMinutes=%d", v.HasOffset, v.OffsetMinutes)
	}
}

func TestCellToValueBadDateIsAnError(t *testing.T) {
	if _, err := cellToValue("not-a-date", AbstractDate); err == nil {
		t.Error("expected a parse error")
	}
}

func TestIngestCSVSkipErrorsCountsFailures(t *testing.T) {
	table := Table{Name: "widgets", Columns: []Column{
		{Name: "id", Abstract: AbstractInt, HasAbstract: true},
		{Name: "born", Abstract: AbstractDate, HasAbstract: true},
	}}
	body := "id,born\n1,2024-01-01\n2,2024-01-02\n3,not-a-date\n4,2024-01-04\n"
	dest := &fakeSession{dialect: mysqlDialect{}}
	opts := ImportOptions{BatchRows: 10, SkipErrors: true}

	summary, err := ingestCSV(context.Background(), dest, table, strings.NewReader(body), opts, newLogProgress())
	if err != nil {
		t.Fatalf("ingestCSV: %v", err)
	}
	if summary.Total != 4 || summary.Inserted != 3 || summary.Failed != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if len(summary.FailureLines) != 1 || !strings.Contains(summary.FailureLines[0], "Line 4") {
		t.Errorf("failure lines = %v", summary.FailureLines)
	}
}

func TestIngestCSVAbortsWithoutSkipErrors(t *testing.T) {
	table := Table{Name: "widgets", Columns: []Column{
		{Name: "id", Abstract: AbstractInt, HasAbstract: true},
	}}
	body := "id\n1\nnot-an-int\n3\n"
	dest := &fakeSession{dialect: mysqlDialect{}}
	opts := ImportOptions{BatchRows: 10, SkipErrors: false}

	_, err := ingestCSV(context.Background(), dest, table, strings.NewReader(body), opts, newLogProgress())
	if err == nil {
		t.Fatal("expected an error to abort ingestion")
	}
}
