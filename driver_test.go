package main

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"strings"
	"testing"
)

func TestFileSinkMSSQLDisableConstraintsIsPerTable(t *testing.T) {
	var buf bytes.Buffer
	sink := &fileSink{w: bufio.NewWriter(&buf), dialect: mssqlDialect{}}
	tables := []Table{{Name: "a"}, {Name: "b"}}

	if err := sink.DisableConstraints(context.Background(), tables); err != nil {
		t.Fatal(err)
	}
	sink.w.Flush()

	out := buf.String()
	if strings.Count(out, "NOCHECK CONSTRAINT ALL") != 2 {
		t.Errorf("expected one NOCHECK statement per table, got: %s", out)
	}
}

func TestFileSinkMySQLDisableConstraintsIsNoOp(t *testing.T) {
	var buf bytes.Buffer
	sink := &fileSink{w: bufio.NewWriter(&buf), dialect: mysqlDialect{}}

	if err := sink.DisableConstraints(context.Background(), []Table{{Name: "a"}}); err != nil {
		t.Fatal(err)
	}
	sink.w.Flush()
	if buf.Len() != 0 {
		t.Errorf("expected no output, MySQL disables FK checks unconditionally via Header(): %q", buf.String())
	}
}

func TestSessionSinkDelegatesToSession(t *testing.T) {
	source := &fakeSession{dialect: mysqlDialect{}}
	sink := &sessionSink{session: source}

	table := Table{Name: "widgets", Columns: oneIntColumn("id"), CreateTable: "CREATE TABLE widgets (id int)"}
	if err := sink.WriteCreateTable(context.Background(), table); err != nil {
		t.Fatal(err)
	}
	if err := sink.WriteBatch(context.Background(), table, []Row{{IntValue(1)}}); err != nil {
		t.Fatal(err)
	}
	if err := sink.DisableConstraints(context.Background(), []Table{table}); err != nil {
		t.Fatal(err)
	}
	if err := sink.EnableConstraints(context.Background(), []Table{table}); err != nil {
		t.Fatal(err)
	}
	if sink.Dialect() != source.dialect {
		t.Error("sessionSink.Dialect() should delegate to the wrapped session")
	}
}

func TestMaybeDecompressDetectsGzip(t *testing.T) {
	var gzBuf bytes.Buffer
	gz := gzip.NewWriter(&gzBuf)
	gz.Write([]byte("SELECT 1;\n"))
	gz.Close()

	r, err := maybeDecompress(bufio.NewReader(&gzBuf))
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	out.ReadFrom(r)
	if out.String() != "SELECT 1;\n" {
		t.Errorf("decompressed = %q", out.String())
	}
}

func TestMaybeDecompressPassesThroughPlainText(t *testing.T) {
	r, err := maybeDecompress(bufio.NewReader(strings.NewReader("SELECT 1;\n")))
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	out.ReadFrom(r)
	if out.String() != "SELECT 1;\n" {
		t.Errorf("plain = %q", out.String())
	}
}

func TestMaybeDecompressEmptyInput(t *testing.T) {
	r, err := maybeDecompress(bufio.NewReader(strings.NewReader("")))
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	out.ReadFrom(r)
	if out.Len() != 0 {
		t.Errorf("expected empty output, got %q", out.String())
	}
}
