package main

import (
	"bufio"
	"fmt"
)

// Provider tags one of the three supported dialect families.
type Provider string

const (
	ProviderMySQL    Provider = "mysql"
	ProviderPostgres Provider = "postgres"
	ProviderMSSQL    Provider = "sqlserver"
)

// maxInsertBytes is the conservative per-dialect cap on a single rendered
// INSERT, enforced by the pipeline (spec §5, "batch-size safety").
func (p Provider) maxInsertBytes() int {
	switch p {
	case ProviderMySQL:
		return 4 << 20
	default:
		return 8 << 20
	}
}

// Dialect is the capability set the pipeline and drivers dispatch through.
// Implementations never leak provider-specific types to callers — every
// method takes and returns either text or the dialect-neutral Value model.
type Dialect interface {
	Provider() Provider

	// QuoteIdentifier wraps name in the dialect's quote character, doubling
	// any embedded quote. Identifiers are never interpolated except here.
	QuoteIdentifier(name string) string

	// FormatLiteral renders v as a SQL literal for this dialect.
	FormatLiteral(v Value) (string, error)

	// RenderInsert renders one multi-row INSERT statement ending in ";\n".
	RenderInsert(table Table, rows []Row) (string, error)

	// RenderCreateTable returns dialect-appropriate CREATE TABLE DDL for a
	// table captured at dump time.
	RenderCreateTable(t Table) string

	// Header/Footer bracket a dump file, preserving session variables so a
	// restore can recreate the same execution context.
	Header() string
	Footer() string

	// TokenizeScript splits r into individual statement texts.
	TokenizeScript(r *bufio.Reader) *StatementScanner

	// MaxInsertBytes is the conservative per-statement size cap (§5).
	MaxInsertBytes() int
}

// NewDialect returns the Dialect implementation for a Provider.
func NewDialect(p Provider) (Dialect, error) {
	switch p {
	case ProviderMySQL:
		return mysqlDialect{}, nil
	case ProviderPostgres:
		return postgresDialect{}, nil
	case ProviderMSSQL:
		return mssqlDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported provider %q (must be mysql, postgres, or sqlserver)", p)
	}
}

// renderInsertGeneric implements the shared multi-row INSERT shape used by
// all three dialects: INSERT INTO <target> (<qid>,...) VALUES (...),(...);
// target must already be the fully quoted INSERT-into reference — each
// dialect builds it the same way it qualifies the SELECT in StreamRows, so
// a restore always lands in the table a dump actually read from.
func renderInsertGeneric(d Dialect, target string, table Table, rows []Row) (string, error) {
	if len(rows) == 0 {
		return "", fmt.Errorf("render_insert: empty batch")
	}

	var b []byte
	b = append(b, "INSERT INTO "...)
	b = append(b, target...)
	b = append(b, " ("...)
	for i, c := range table.Columns {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, d.QuoteIdentifier(c.Name)...)
	}
	b = append(b, ") VALUES "...)

	for ri, row := range rows {
		if len(row) != len(table.Columns) {
			return "", fmt.Errorf("render_insert: row %d has arity %d, want %d", ri, len(row), len(table.Columns))
		}
		if ri > 0 {
			b = append(b, ',')
		}
		b = append(b, '(')
		for ci, v := range row {
			if ci > 0 {
				b = append(b, ',')
			}
			lit, err := d.FormatLiteral(v)
			if err != nil {
				return "", fmt.Errorf("render_insert: column %s: %w", table.Columns[ci].Name, err)
			}
			b = append(b, lit...)
		}
		b = append(b, ')')
	}
	b = append(b, ";\n"...)
	return string(b), nil
}
