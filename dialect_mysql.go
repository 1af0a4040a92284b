package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"log"
	"strconv"
	"strings"
)

type mysqlDialect struct{}

func (mysqlDialect) Provider() Provider { return ProviderMySQL }

func (mysqlDialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d mysqlDialect) FormatLiteral(v Value) (string, error) {
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
			// MySQL has no literal for NaN/Inf; spec chooses NULL + diagnostic.
			log.Printf("WARN: float %v has no MySQL literal; writing NULL", v.Float64)
			return "NULL", nil
		}
		return strconv.FormatFloat(v.Float64, 'g', 17, 64), nil
	case KindDecimal:
		return v.Decimal.String(), nil
	case KindText:
		return mysqlQuoteText(v.Text)
	case KindBytes:
		if len(v.Bytes) == 0 {
			return "''", nil
		}
		return "0x" + strings.ToUpper(hex.EncodeToString(v.Bytes)), nil
	case KindDate:
		return fmt.Sprintf("'%04d-%02d-%02d'", v.Year, v.Month, v.Day), nil
	case KindTime:
		return "'" + formatTimeOfDay(v) + "'", nil
	case KindTimestamp:
		// MySQL drops any UTC offset and emits wall-clock time.
		return fmt.Sprintf("'%04d-%02d-%02d %s'", v.Year, v.Month, v.Day, formatTimeOfDay(v)), nil
	default:
		return "", fmt.Errorf("format_literal: unknown value kind %d", v.Kind)
	}
}

func mysqlQuoteText(s string) (string, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return "", fmt.Errorf("format_literal: NUL byte in text value is not representable")
	}
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString("''")
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String(), nil
}

// RenderInsert targets the bare table name, matching StreamRows' unqualified
// SELECT — MySQL resolves an unqualified name against the connection's
// active database, not a schema prefix on the statement itself.
func (d mysqlDialect) RenderInsert(table Table, rows []Row) (string, error) {
	return renderInsertGeneric(d, d.QuoteIdentifier(table.Name), table, rows)
}

func (mysqlDialect) RenderCreateTable(t Table) string {
	stmt := strings.TrimSpace(t.CreateTable)
	upper := strings.ToUpper(stmt)
	if strings.HasPrefix(upper, "CREATE TABLE ") && !strings.Contains(upper, "IF NOT EXISTS") {
		return "CREATE TABLE IF NOT EXISTS " + stmt[len("CREATE TABLE "):]
	}
	return stmt
}

func (mysqlDialect) Header() string {
	return "" +
		"SET @OLD_FOREIGN_KEY_CHECKS=@@FOREIGN_KEY_CHECKS;\n" +
		"SET @OLD_SQL_MODE=@@SQL_MODE;\n" +
		"SET NAMES utf8mb4;\n" +
		"SET FOREIGN_KEY_CHECKS=0;\n"
}

func (mysqlDialect) Footer() string {
	return "" +
		"SET FOREIGN_KEY_CHECKS=@OLD_FOREIGN_KEY_CHECKS;\n" +
		"SET SQL_MODE=@OLD_SQL_MODE;\n"
}

func (mysqlDialect) TokenizeScript(r *bufio.Reader) *StatementScanner {
	return newStatementScanner(r, tokenizerOpts{
		identQuote:      '`',
		backslashEscape: true,
		dollarQuoting:   false,
	})
}

func (mysqlDialect) MaxInsertBytes() int { return ProviderMySQL.maxInsertBytes() }

// mysqlDisableFKChecks and mysqlEnableFKChecks are exercised by
// mysqlSession.DisableConstraints/EnableConstraints (session_mysql.go).
const (
	mysqlDisableFKChecks = "SET FOREIGN_KEY_CHECKS=0"
	mysqlEnableFKChecks  = "SET FOREIGN_KEY_CHECKS=1"
)

const (
	mysqlSnapshotBegin = "SET TRANSACTION ISOLATION LEVEL REPEATABLE READ; START TRANSACTION WITH CONSISTENT SNAPSHOT"
	mysqlSnapshotEnd   = "COMMIT"
)

func formatTimeOfDay(v Value) string {
	if v.Micro == 0 {
		return fmt.Sprintf("%02d:%02d:%02d", v.Hour, v.Min, v.Sec)
	}
	return fmt.Sprintf("%02d:%02d:%02d.%06d", v.Hour, v.Min, v.Sec, v.Micro)
}
