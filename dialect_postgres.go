package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

type postgresDialect struct{}

func (postgresDialect) Provider() Provider { return ProviderPostgres }

func (postgresDialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d postgresDialect) FormatLiteral(v Value) (string, error) {
	switch v.Kind {
	case KindNull:
		return "NULL", nil
	case KindBool:
		if v.Bool {
			return "TRUE", nil
		}
		return "FALSE", nil
	case KindInt64:
		return strconv.FormatInt(v.Int64, 10), nil
	case KindUint64:
		return strconv.FormatUint(v.Uint64, 10), nil
	case KindFloat64:
		switch {
		case v.IsNaN():
			return "'NaN'::float8", nil
		case v.IsInf() && v.Float64 > 0:
			return "'Infinity'::float8", nil
		case v.IsInf():
			return "'-Infinity'::float8", nil
		default:
			return strconv.FormatFloat(v.Float64, 'g', 17, 64), nil
		}
	case KindDecimal:
		return v.Decimal.String(), nil
	case KindText:
		return postgresQuoteText(v.Text)
	case KindBytes:
		return "'\\x" + hex.EncodeToString(v.Bytes) + "'::bytea", nil
	case KindDate:
		return fmt.Sprintf("'%04d-%02d-%02d'", v.Year, v.Month, v.Day), nil
	case KindTime:
		return "'" + formatTimeOfDay(v) + "'", nil
	case KindTimestamp:
		base := fmt.Sprintf("%04d-%02d-%02d %s", v.Year, v.Month, v.Day, formatTimeOfDay(v))
		if v.HasOffset {
			sign := "+"
			off := v.OffsetMinutes
			if off < 0 {
				sign = "-"
				off = -off
			}
			base += fmt.Sprintf("%s%02d:%02d", sign, off/60, off%60)
		}
		return "'" + base + "'", nil
	default:
		return "", fmt.Errorf("format_literal: unknown value kind %d", v.Kind)
	}
}

func postgresQuoteText(s string) (string, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return "", fmt.Errorf("format_literal: NUL byte in text value is not representable")
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'", nil
}

// RenderInsert schema-qualifies the INSERT target exactly as StreamRows
// qualifies its SELECT, so a table outside the default schema restores into
// the schema it was dumped from rather than whichever one is on search_path.
func (d postgresDialect) RenderInsert(table Table, rows []Row) (string, error) {
	target := d.QuoteIdentifier(table.Schema) + "." + d.QuoteIdentifier(table.Name)
	if table.Schema == "" {
		target = d.QuoteIdentifier(table.Name)
	}
	return renderInsertGeneric(d, target, table, rows)
}

func (postgresDialect) RenderCreateTable(t Table) string {
	return strings.TrimSpace(t.CreateTable)
}

func (postgresDialect) Header() string {
	return "" +
		"SET client_encoding = 'UTF8';\n" +
		"SET standard_conforming_strings = on;\n" +
		"SET session_replication_role = replica;\n"
}

func (postgresDialect) Footer() string {
	return "SET session_replication_role = origin;\n"
}

func (postgresDialect) TokenizeScript(r *bufio.Reader) *StatementScanner {
	return newStatementScanner(r, tokenizerOpts{
		identQuote:      '"',
		backslashEscape: false,
		dollarQuoting:   true,
	})
}

func (postgresDialect) MaxInsertBytes() int { return ProviderPostgres.maxInsertBytes() }

const (
	postgresDisableFKChecks = "SET session_replication_role = replica"
	postgresEnableFKChecks  = "SET session_replication_role = origin"
)

const (
	postgresSnapshotBegin = "BEGIN ISOLATION LEVEL REPEATABLE READ READ ONLY"
	postgresSnapshotEnd   = "COMMIT"
)
