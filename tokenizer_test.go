package main

import (
	"bufio"
	"strings"
	"testing"
)

func scanAll(t *testing.T, d Dialect, script string) []string {
	t.Helper()
	sc := d.TokenizeScript(bufio.NewReader(strings.NewReader(script)))
	var out []string
	for {
		stmt, ok := sc.Next()
		if !ok {
			break
		}
		out = append(out, stmt)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scanner error: %v", err)
	}
	return out
}

func TestTokenizeSimpleStatements(t *testing.T) {
	my, _ := NewDialect(ProviderMySQL)
	script := "INSERT INTO t VALUES (1);\nINSERT INTO t VALUES (2);\n"
	got := scanAll(t, my, script)
	if len(got) != 2 {
		t.Fatalf("got %d statements, want 2: %#v", len(got), got)
	}
	if got[0] != "INSERT INTO t VALUES (1);\n" {
		t.Errorf("stmt[0] = %q", got[0])
	}
}

func TestTokenizeIgnoresSemicolonInsideString(t *testing.T) {
	my, _ := NewDialect(ProviderMySQL)
	script := "INSERT INTO t VALUES ('a;b');\n"
	got := scanAll(t, my, script)
	if len(got) != 1 {
		t.Fatalf("got %d statements, want 1: %#v", len(got), got)
	}
}

func TestTokenizeIgnoresSemicolonInsideQuotedIdentifier(t *testing.T) {
	pg, _ := NewDialect(ProviderPostgres)
	script := "SELECT \"weird;col\" FROM t;\n"
	got := scanAll(t, pg, script)
	if len(got) != 1 {
		t.Fatalf("got %d statements, want 1: %#v", len(got), got)
	}
}

func TestTokenizeHandlesDoubledQuoteEscape(t *testing.T) {
	my, _ := NewDialect(ProviderMySQL)
	script := "INSERT INTO t VALUES ('it''s; here');\n"
	got := scanAll(t, my, script)
	if len(got) != 1 {
		t.Fatalf("got %d statements, want 1: %#v", len(got), got)
	}
}

func TestTokenizeHandlesBackslashEscapeForMySQL(t *testing.T) {
	my, _ := NewDialect(ProviderMySQL)
	script := `INSERT INTO t VALUES ('a\';b');` + "\n"
	got := scanAll(t, my, script)
	if len(got) != 1 {
		t.Fatalf("got %d statements, want 1: %#v", len(got), got)
	}
}

func TestTokenizeStripsLineAndBlockComments(t *testing.T) {
	my, _ := NewDialect(ProviderMySQL)
	script := "-- comment with ; inside\nINSERT INTO t VALUES (1);\n/* block ; comment */\nINSERT INTO t VALUES (2);\n"
	got := scanAll(t, my, script)
	if len(got) != 2 {
		t.Fatalf("got %d statements, want 2: %#v", len(got), got)
	}
	for i, s := range got {
		if strings.Contains(s, "comment") {
			t.Errorf("stmt[%d] = %q, comment text not stripped", i, s)
		}
	}
}

func TestTokenizeDollarQuotedBodyWithEmbeddedSemicolon(t *testing.T) {
	pg, _ := NewDialect(ProviderPostgres)
	script := "CREATE FUNCTION f() RETURNS void AS $fn$ BEGIN DELETE FROM t; END; $fn$ LANGUAGE plpgsql;\n"
	got := scanAll(t, pg, script)
	if len(got) != 1 {
		t.Fatalf("got %d statements, want 1: %#v", len(got), got)
	}
}

func TestTokenizeMultipleStatementsConcatenated(t *testing.T) {
	pg, _ := NewDialect(ProviderPostgres)
	stmts := []string{
		"CREATE TABLE t (id integer);",
		"INSERT INTO t VALUES (1);",
		"INSERT INTO t VALUES (2);",
	}
	script := strings.Join(stmts, "\n") + "\n"
	got := scanAll(t, pg, script)
	if len(got) != len(stmts) {
		t.Fatalf("got %d statements, want %d: %#v", len(got), len(stmts), got)
	}
	for i, s := range stmts {
		if strings.TrimSpace(got[i]) != s {
			t.Errorf("stmt[%d] = %q, want %q", i, strings.TrimSpace(got[i]), s)
		}
	}
}

func TestTokenizeEmptyScriptYieldsNoStatements(t *testing.T) {
	my, _ := NewDialect(ProviderMySQL)
	got := scanAll(t, my, "")
	if len(got) != 0 {
		t.Errorf("got %d statements for empty script, want 0", len(got))
	}
}
