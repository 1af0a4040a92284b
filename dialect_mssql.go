package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"log"
	"strconv"
	"strings"
)

type mssqlDialect struct{}

func (mssqlDialect) Provider() Provider { return ProviderMSSQL }

func (mssqlDialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d mssqlDialect) FormatLiteral(v Value) (string, error) {
	switch v.Kind {
	case KindNull:
		return "NULL", nil
	case KindBool:
		if v.Bool {
			return "1", nil
		}
		return "0", nil
	case KindInt64:
		return strconv.FormatInt(v.Int64, 10), nil
	case KindUint64:
		return strconv.FormatUint(v.Uint64, 10), nil
	case KindFloat64:
		if v.IsNaN() || v.IsInf() {
			// SQL Server float has no NaN/Inf literal; spec chooses NULL + diagnostic.
			log.Printf("WARN: float %v has no SQL Server literal; writing NULL", v.Float64)
			return "NULL", nil
		}
		return strconv.FormatFloat(v.Float64, 'g', 17, 64), nil
	case KindDecimal:
		return v.Decimal.String(), nil
	case KindText:
		return mssqlQuoteText(v.Text)
	case KindBytes:
		if len(v.Bytes) == 0 {
			return "0x", nil
		}
		return "0x" + hex.EncodeToString(v.Bytes), nil
	case KindDate:
		return fmt.Sprintf("'%04d-%02d-%02d'", v.Year, v.Month, v.Day), nil
	case KindTime:
		return "'" + formatTimeOfDay(v) + "'", nil
	case KindTimestamp:
		// SQL Server drops any UTC offset and emits wall-clock time.
		return fmt.Sprintf("'%04d-%02d-%02d %s'", v.Year, v.Month, v.Day, formatTimeOfDay(v)), nil
	default:
		return "", fmt.Errorf("format_literal: unknown value kind %d", v.Kind)
	}
}

func mssqlQuoteText(s string) (string, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return "", fmt.Errorf("format_literal: NUL byte in text value is not representable")
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'", nil
}

// RenderInsert schema-qualifies the INSERT target exactly as StreamRows
// qualifies its SELECT, so a table outside dbo restores into the schema it
// was dumped from.
func (d mssqlDialect) RenderInsert(table Table, rows []Row) (string, error) {
	target := d.QuoteIdentifier(table.Schema) + "." + d.QuoteIdentifier(table.Name)
	if table.Schema == "" {
		target = d.QuoteIdentifier(table.Name)
	}
	return renderInsertGeneric(d, target, table, rows)
}

func (mssqlDialect) RenderCreateTable(t Table) string {
	return strings.TrimSpace(t.CreateTable)
}

func (mssqlDialect) Header() string {
	return "" +
		"SET XACT_ABORT ON;\n" +
		"SET QUOTED_IDENTIFIER ON;\n"
}

func (mssqlDialect) Footer() string {
	return ""
}

func (mssqlDialect) TokenizeScript(r *bufio.Reader) *StatementScanner {
	return newStatementScanner(r, tokenizerOpts{
		identQuote:      '"',
		backslashEscape: false,
		dollarQuoting:   false,
	})
}

func (mssqlDialect) MaxInsertBytes() int { return ProviderMSSQL.maxInsertBytes() }

const (
	mssqlNoCheckConstraintAll = "ALTER TABLE %s NOCHECK CONSTRAINT ALL"
	mssqlCheckConstraintAll   = "ALTER TABLE %s WITH CHECK CHECK CONSTRAINT ALL"
)

const (
	mssqlSnapshotBegin = "SET TRANSACTION ISOLATION LEVEL SNAPSHOT; BEGIN TRANSACTION"
	mssqlSnapshotEnd   = "COMMIT"
)
