package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
)

type fakeCursor struct {
	rows []Row
	i    int
}

func (c *fakeCursor) Next(_ context.Context) (Row, bool, error) {
	if c.i >= len(c.rows) {
		return nil, false, nil
	}
	r := c.rows[c.i]
	c.i++
	return r, true, nil
}

func (c *fakeCursor) Close() error { return nil }

// fakeSession is an in-memory Session stand-in used to exercise RunPipeline
// without a live database connection.
type fakeSession struct {
	dialect Dialect
	tables  []Table
	rows    map[string][]Row

	snapshotBegun bool
	snapshotEnded bool
}

func (s *fakeSession) Dialect() Dialect { return s.dialect }

func (s *fakeSession) ListTables(_ context.Context, include, exclude []string) ([]TableRef, error) {
	var refs []TableRef
	for _, t := range s.tables {
		refs = append(refs, TableRef{Schema: t.Schema, Name: t.Name})
	}
	return filterTables(refs, include, exclude), nil
}

func (s *fakeSession) IntrospectTable(_ context.Context, ref TableRef) (Table, error) {
	for _, t := range s.tables {
		if t.Name == ref.Name {
			return t, nil
		}
	}
	return Table{}, fmt.Errorf("fakeSession: no such table %q", ref.Name)
}

func (s *fakeSession) StreamRows(_ context.Context, table Table) (RowCursor, error) {
	return &fakeCursor{rows: s.rows[table.Name]}, nil
}

func (s *fakeSession) Execute(_ context.Context, _ string) error { return nil }

func (s *fakeSession) InsertBatch(_ context.Context, _ Table, _ []Row) error { return nil }

func (s *fakeSession) SnapshotBegin(_ context.Context) error {
	s.snapshotBegun = true
	return nil
}

func (s *fakeSession) SnapshotEnd(_ context.Context) error {
	s.snapshotEnded = true
	return nil
}

func (s *fakeSession) DisableConstraints(_ context.Context, _ []Table) error { return nil }
func (s *fakeSession) EnableConstraints(_ context.Context, _ []Table) error  { return nil }
func (s *fakeSession) Redacted() string                                     { return "fake://session" }
func (s *fakeSession) Close() error                                         { return nil }

// spySink records the order DisableConstraints/EnableConstraints/WriteBatch
// are invoked, to verify the pipeline's cleanup discipline.
type spySink struct {
	dialect Dialect
	calls   []string
}

func (s *spySink) Dialect() Dialect { return s.dialect }

func (s *spySink) BeginTable(_ context.Context, table Table) error {
	s.calls = append(s.calls, "begin:"+table.Name)
	return nil
}

func (s *spySink) EndTable(_ context.Context, table Table) error {
	s.calls = append(s.calls, "end:"+table.Name)
	return nil
}

func (s *spySink) WriteCreateTable(_ context.Context, table Table) error {
	s.calls = append(s.calls, "create:"+table.Name)
	return nil
}

func (s *spySink) WriteBatch(_ context.Context, table Table, rows []Row) error {
	s.calls = append(s.calls, fmt.Sprintf("batch:%s:%d", table.Name, len(rows)))
	return nil
}

func (s *spySink) DisableConstraints(_ context.Context, _ []Table) error {
	s.calls = append(s.calls, "disable")
	return nil
}

func (s *spySink) EnableConstraints(_ context.Context, _ []Table) error {
	s.calls = append(s.calls, "enable")
	return nil
}

func oneIntColumn(name string) []Column {
	return []Column{{Name: name, DeclaredType: "int"}}
}

func TestRunPipelineRejectsSchemaOnlyAndDataOnlyTogether(t *testing.T) {
	source := &fakeSession{dialect: mysqlDialect{}}
	sink := &spySink{dialect: mysqlDialect{}}
	err := RunPipeline(context.Background(), source, sink, PipelineOptions{SchemaOnly: true, DataOnly: true})
	if err == nil {
		t.Fatal("expected an error for schema-only + data-only")
	}
}

func TestRunPipelineWritesDDLThenBatchesPerTable(t *testing.T) {
	table := Table{Name: "widgets", Columns: oneIntColumn("id"), CreateTable: "CREATE TABLE widgets (id int)"}
	source := &fakeSession{
		dialect: mysqlDialect{},
		tables:  []Table{table},
		rows: map[string][]Row{
			"widgets": {{IntValue(1)}, {IntValue(2)}, {IntValue(3)}},
		},
	}
	sink := &spySink{dialect: mysqlDialect{}}

	if err := RunPipeline(context.Background(), source, sink, PipelineOptions{BatchRows: 2}); err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}

	want := []string{"begin:widgets", "create:widgets", "batch:widgets:2", "batch:widgets:1", "end:widgets"}
	if len(sink.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", sink.calls, want)
	}
	for i := range want {
		if sink.calls[i] != want[i] {
			t.Errorf("call[%d] = %q, want %q", i, sink.calls[i], want[i])
		}
	}
}

func TestRunPipelineSkipsDDLWhenDataOnly(t *testing.T) {
	table := Table{Name: "widgets", Columns: oneIntColumn("id")}
	source := &fakeSession{
		dialect: mysqlDialect{},
		tables:  []Table{table},
		rows:    map[string][]Row{"widgets": {{IntValue(1)}}},
	}
	sink := &spySink{dialect: mysqlDialect{}}

	if err := RunPipeline(context.Background(), source, sink, PipelineOptions{DataOnly: true}); err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	for _, c := range sink.calls {
		if strings.HasPrefix(c, "create:") {
			t.Errorf("unexpected DDL write in data-only mode: %v", sink.calls)
		}
	}
}

func TestRunPipelineSkipsRowsWhenSchemaOnly(t *testing.T) {
	table := Table{Name: "widgets", Columns: oneIntColumn("id"), CreateTable: "CREATE TABLE widgets (id int)"}
	source := &fakeSession{
		dialect: mysqlDialect{},
		tables:  []Table{table},
		rows:    map[string][]Row{"widgets": {{IntValue(1)}}},
	}
	sink := &spySink{dialect: mysqlDialect{}}

	if err := RunPipeline(context.Background(), source, sink, PipelineOptions{SchemaOnly: true}); err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	for _, c := range sink.calls {
		if strings.HasPrefix(c, "batch:") {
			t.Errorf("unexpected batch write in schema-only mode: %v", sink.calls)
		}
	}
}

func TestRunPipelineSnapshotAndConstraintCleanupAlwaysRun(t *testing.T) {
	source := &fakeSession{dialect: postgresDialect{}}
	sink := &spySink{dialect: postgresDialect{}}

	opts := PipelineOptions{ConsistentSnapshot: true, DisableFK: true}
	if err := RunPipeline(context.Background(), source, sink, opts); err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if !source.snapshotBegun || !source.snapshotEnded {
		t.Error("expected snapshot begin and end to both run")
	}
	if len(sink.calls) != 2 || sink.calls[0] != "disable" || sink.calls[1] != "enable" {
		t.Errorf("calls = %v, want [disable enable]", sink.calls)
	}
}

func TestRunPipelineCancelledContextStopsBeforeNextTable(t *testing.T) {
	source := &fakeSession{
		dialect: mysqlDialect{},
		tables: []Table{
			{Name: "a", Columns: oneIntColumn("id")},
			{Name: "b", Columns: oneIntColumn("id")},
		},
	}
	sink := &spySink{dialect: mysqlDialect{}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunPipeline(ctx, source, sink, PipelineOptions{})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestSplitForSizeKeepsSmallBatchWhole(t *testing.T) {
	rows := []Row{{IntValue(1)}, {IntValue(2)}, {IntValue(3)}}
	chunks := splitForSize(mysqlDialect{}, rows)
	if len(chunks) != 1 || len(chunks[0]) != 3 {
		t.Fatalf("splitForSize = %v, want one chunk of 3", chunks)
	}
}

func TestSplitForSizeSplitsOversizedRows(t *testing.T) {
	big := TextValue(strings.Repeat("x", 3<<20))
	rows := []Row{{big}, {big}, {big}}
	chunks := splitForSize(mysqlDialect{}, rows) // mysql cap is 4MiB
	if len(chunks) < 2 {
		t.Fatalf("expected rows to split across multiple INSERTs, got %d chunk(s)", len(chunks))
	}
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	if total != len(rows) {
		t.Errorf("split lost rows: total %d, want %d", total, len(rows))
	}
}

func TestSplitForSizeEmptyInput(t *testing.T) {
	if chunks := splitForSize(mysqlDialect{}, nil); chunks != nil {
		t.Errorf("splitForSize(nil) = %v, want nil", chunks)
	}
}

func TestFileSinkRendersCreateTableAndInsert(t *testing.T) {
	var buf bytes.Buffer
	sink := &fileSink{w: bufio.NewWriter(&buf), dialect: mysqlDialect{}}
	table := Table{Name: "widgets", Columns: oneIntColumn("id"), CreateTable: "CREATE TABLE widgets (id int)"}

	if err := sink.WriteCreateTable(context.Background(), table); err != nil {
		t.Fatal(err)
	}
	if err := sink.WriteBatch(context.Background(), table, []Row{{IntValue(1)}}); err != nil {
		t.Fatal(err)
	}
	sink.w.Flush()

	out := buf.String()
	if !strings.Contains(out, "CREATE TABLE IF NOT EXISTS widgets") {
		t.Errorf("missing CREATE TABLE: %s", out)
	}
	if !strings.Contains(out, "INSERT INTO `widgets`") {
		t.Errorf("missing INSERT: %s", out)
	}
}

func TestFileSinkTableFramingMatchesDumpFormat(t *testing.T) {
	var buf bytes.Buffer
	sink := &fileSink{w: bufio.NewWriter(&buf), dialect: mysqlDialect{}}
	table := Table{Schema: "shop", Name: "widgets", Columns: oneIntColumn("id"), CreateTable: "CREATE TABLE widgets (id int)"}

	ctx := context.Background()
	if err := sink.BeginTable(ctx, table); err != nil {
		t.Fatal(err)
	}
	if err := sink.WriteCreateTable(ctx, table); err != nil {
		t.Fatal(err)
	}
	if err := sink.WriteBatch(ctx, table, []Row{{IntValue(1)}}); err != nil {
		t.Fatal(err)
	}
	if err := sink.EndTable(ctx, table); err != nil {
		t.Fatal(err)
	}
	sink.w.Flush()

	want := "-- Table: shop.widgets\n" +
		"CREATE TABLE IF NOT EXISTS widgets (id int);\n\n" +
		"INSERT INTO `widgets` (`id`) VALUES (1);\n" +
		"\n"
	if got := buf.String(); got != want {
		t.Errorf("table framing =\n%q\nwant\n%q", got, want)
	}
}
