package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/migrasquiel/migrasquiel/migraerr"
	"github.com/shopspring/decimal"
)

// ImportOptions configures Import (spec §4.5).
type ImportOptions struct {
	Table      string
	Columns    map[string]string // csv column name -> destination column name
	BatchRows  int
	SkipErrors bool
	Progress   Progress
}

// ImportSummary reports the outcome of one import run.
type ImportSummary struct {
	Total        int
	Inserted     int
	Failed       int
	FailureLines []string // "Line N: reason", capped at 10
	Duration     time.Duration
}

// ParseColumnsFlag parses the --columns flag's "csv_a:db_a,csv_b:db_b" form.
func ParseColumnsFlag(s string) (map[string]string, error) {
	mapping := make(map[string]string)
	s = strings.TrimSpace(s)
	if s == "" {
		return mapping, nil
	}
	for _, pair := range strings.Split(s, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid --columns entry %q, want csv_col:db_col", pair)
		}
		mapping[parts[0]] = parts[1]
	}
	return mapping, nil
}

// columnsFile is the --columns-file layout (a SPEC_FULL.md addition for
// mappings too large to comfortably write as a single CLI flag).
type columnsFile struct {
	Columns map[string]string `toml:"columns"`
}

// LoadColumnsFile reads a TOML column-mapping file for --columns-file.
func LoadColumnsFile(path string) (map[string]string, error) {
	var cf columnsFile
	if _, err := toml.DecodeFile(path, &cf); err != nil {
		return nil, fmt.Errorf("parse columns file %s: %w", path, err)
	}
	return cf.Columns, nil
}

// Import runs the CSV import pipeline: header mapping, a 100-row
// type-inference sample, DDL synthesis when the table is new, then a
// second ingestion pass.
func Import(ctx context.Context, provider Provider, dsn string, path string, opts ImportOptions) (*ImportSummary, error) {
	dest, err := OpenSession(ctx, provider, dsn)
	if err != nil {
		return nil, err
	}
	defer dest.Close()

	progress := opts.Progress
	if progress == nil {
		progress = newLogProgress()
	}
	if opts.BatchRows <= 0 {
		opts.BatchRows = 1000
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, migraerr.Source("open csv file", err)
	}
	defer f.Close()

	csvHeader, dbColumns, err := readCSVHeader(f, opts.Columns)
	if err != nil {
		return nil, migraerr.Source("read csv header", err)
	}

	// readCSVHeader's csv.Reader buffers well past the header line before
	// returning it, so f's OS offset is already deep into the data by the
	// time inference would start; rewind and let inferColumnTypes discard
	// the header itself from a fresh reader, the same way ingestCSV does
	// after its own rewind below.
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, migraerr.Source("rewind csv file", err)
	}
	abstracts, err := inferColumnTypes(f, len(csvHeader))
	if err != nil {
		return nil, migraerr.Source("infer column types", err)
	}

	columns := make([]Column, len(dbColumns))
	for i, name := range dbColumns {
		columns[i] = Column{Name: name, Nullable: true, Abstract: abstracts[i], HasAbstract: true}
	}
	table := Table{Name: opts.Table, Columns: columns, RowEstimate: -1}

	exists, err := tableExists(ctx, dest, opts.Table)
	if err != nil {
		return nil, err
	}
	if !exists {
		ddl := synthesizeImportCreateTable(dest.Dialect().Provider(), table)
		if err := dest.Execute(ctx, ddl); err != nil {
			return nil, migraerr.Sink("create imported table", err).WithTable(opts.Table)
		}
		progress.Table(opts.Table + " (created)")
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, migraerr.Source("rewind csv file", err)
	}
	started := time.Now()
	summary, err := ingestCSV(ctx, dest, table, f, opts, progress)
	if summary != nil {
		summary.Duration = time.Since(started)
	}
	return summary, err
}

func tableExists(ctx context.Context, dest Session, name string) (bool, error) {
	refs, err := dest.ListTables(ctx, []string{name}, nil)
	if err != nil {
		return false, err
	}
	return len(refs) > 0, nil
}

func readCSVHeader(r io.Reader, mapping map[string]string) (csvHeader, dbColumns []string, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	record, err := cr.Read()
	if err != nil {
		return nil, nil, err
	}
	csvHeader = append([]string(nil), record...)
	dbColumns = make([]string, len(csvHeader))
	for i, name := range csvHeader {
		if mapped, ok := mapping[name]; ok {
			dbColumns[i] = mapped
		} else {
			dbColumns[i] = name
		}
	}
	return csvHeader, dbColumns, nil
}

const inferenceSampleRows = 100

// inferColumnTypes reads up to inferenceSampleRows records from a fresh
// read of r (starting at its header line, which this discards first) and
// scores each column against the typed patterns in priority order, per
// spec §4.5.
func inferColumnTypes(r io.Reader, numColumns int) ([]AbstractType, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	if _, err := cr.Read(); err != nil { // discard header
		return nil, err
	}

	scores := make([][7]int, numColumns)
	for i := 0; i < inferenceSampleRows; i++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		for col := 0; col < numColumns && col < len(record); col++ {
			cell := record[col]
			if isNullSentinel(cell) {
				continue
			}
			scores[col][classifyCell(cell)]++
		}
	}

	types := make([]AbstractType, numColumns)
	for col := range types {
		types[col] = argmaxType(scores[col])
	}
	return types, nil
}

// inferencePriority doubles as both the match order (spec §4.5's table)
// and the tie-break order for argmaxType.
var inferencePriority = []AbstractType{
	AbstractInt, AbstractFloat, AbstractDecimal, AbstractBool, AbstractTimestamp, AbstractDate, AbstractText,
}

func argmaxType(scores [7]int) AbstractType {
	best := AbstractText
	bestScore := -1
	for _, t := range inferencePriority {
		if scores[t] > bestScore {
			bestScore = scores[t]
			best = t
		}
	}
	return best
}

var (
	intCellPattern       = regexp.MustCompile(`^[+-]?\d+$`)
	floatCellPattern     = regexp.MustCompile(`^[+-]?(\d+\.\d*|\.\d+)$`)
	timestampCellPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(\.\d{1,6})?(Z|[+-]\d{2}:\d{2})?$`)
	dateCellPattern      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

func isNullSentinel(s string) bool {
	t := strings.TrimSpace(s)
	return t == "" || strings.EqualFold(t, "null") || strings.EqualFold(t, "none")
}

// classifyCell matches one cell against the typed patterns in priority
// order and returns the first match; Text always matches as the fallback.
func classifyCell(s string) AbstractType {
	if intCellPattern.MatchString(s) {
		return AbstractInt
	}
	if floatCellPattern.MatchString(s) {
		if exceedsFloat64Precision(s) {
			return AbstractDecimal
		}
		return AbstractFloat
	}
	if isBoolCell(s) {
		return AbstractBool
	}
	if timestampCellPattern.MatchString(s) {
		return AbstractTimestamp
	}
	if dateCellPattern.MatchString(s) {
		return AbstractDate
	}
	return AbstractText
}

func isBoolCell(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false", "yes", "no":
		return true
	default:
		return false
	}
}

// exceedsFloat64Precision reports whether s carries more significant
// digits than a float64 mantissa can represent exactly (~15-17 decimal
// digits), in which case the column should be scored Decimal, not Float.
func exceedsFloat64Precision(s string) bool {
	digits := 0
	leadingZero := true
	for _, r := range s {
		if r < '0' || r > '9' {
			continue
		}
		if r == '0' && leadingZero {
			continue
		}
		leadingZero = false
		digits++
	}
	return digits > 15
}

// synthesizeImportCreateTable builds dialect-specific DDL for a newly
// discovered CSV table, per the concrete-type table in spec §4.5.
func synthesizeImportCreateTable(p Provider, t Table) string {
	var b strings.Builder
	dialect, _ := NewDialect(p)
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", dialect.QuoteIdentifier(t.Name))
	for i, c := range t.Columns {
		fmt.Fprintf(&b, "  %s %s", dialect.QuoteIdentifier(c.Name), importConcreteType(p, c.Abstract))
		if c.Name == "id" && c.Abstract == AbstractInt {
			b.WriteString(" PRIMARY KEY")
		}
		if i < len(t.Columns)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString(")")
	if p == ProviderMySQL {
		b.WriteString(" ENGINE=InnoDB DEFAULT CHARSET=utf8mb4")
	}
	return b.String()
}

func importConcreteType(p Provider, t AbstractType) string {
	switch p {
	case ProviderMySQL:
		switch t {
		case AbstractInt:
			return "INT"
		case AbstractFloat:
			return "FLOAT"
		case AbstractDecimal:
			return "DECIMAL(10,2)"
		case AbstractBool:
			return "TINYINT(1)"
		case AbstractDate:
			return "DATE"
		case AbstractTimestamp:
			return "TIMESTAMP"
		default:
			return "VARCHAR(255)"
		}
	case ProviderMSSQL:
		switch t {
		case AbstractInt:
			return "INT"
		case AbstractFloat:
			return "FLOAT"
		case AbstractDecimal:
			return "DECIMAL(10,2)"
		case AbstractBool:
			return "BIT"
		case AbstractDate:
			return "DATE"
		case AbstractTimestamp:
			return "DATETIME2"
		default:
			return "VARCHAR(255)"
		}
	default: // PostgreSQL
		switch t {
		case AbstractInt:
			return "INTEGER"
		case AbstractFloat:
			return "REAL"
		case AbstractDecimal:
			return "NUMERIC(10,2)"
		case AbstractBool:
			return "BOOLEAN"
		case AbstractDate:
			return "DATE"
		case AbstractTimestamp:
			return "TIMESTAMP"
		default:
			return "VARCHAR(255)"
		}
	}
}

// ingestCSV re-reads the file from the header, converts each row to a
// Row of Values using the inferred column types, and flushes batches
// through InsertBatch, tolerating per-row failures when SkipErrors is set.
func ingestCSV(ctx context.Context, dest Session, table Table, r io.Reader, opts ImportOptions, progress Progress) (*ImportSummary, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	if _, err := cr.Read(); err != nil { // discard header
		return nil, migraerr.Source("read csv header", err)
	}

	summary := &ImportSummary{}
	batch := Batch{Columns: table.Columns}
	line := 1 // header was line 1; first data row is line 2

	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		if err := dest.InsertBatch(ctx, table, batch.Rows); err != nil {
			return migraerr.Sink("insert batch", err).WithTable(table.Name)
		}
		summary.Inserted += batch.Len()
		progress.Rows(table.Name, batch.Len())
		batch.Reset()
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return summary, migraerr.Cancelled("import", err)
		}
		line++
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return summary, migraerr.Source("read csv row", err)
		}
		summary.Total++

		row, err := csvRecordToRow(record, table.Columns)
		if err != nil {
			summary.Failed++
			if len(summary.FailureLines) < 10 {
				summary.FailureLines = append(summary.FailureLines, fmt.Sprintf("Line %d: %v", line, err))
			}
			if !opts.SkipErrors {
				return summary, migraerr.Source("parse csv row", err).WithTable(table.Name)
			}
			continue
		}

		if err := batch.Add(row); err != nil {
			return summary, migraerr.Source("accumulate batch", err).WithTable(table.Name)
		}
		if batch.Len() == opts.BatchRows {
			if err := flush(); err != nil {
				return summary, err
			}
		}
	}
	if err := flush(); err != nil {
		return summary, err
	}
	return summary, nil
}

func csvRecordToRow(record []string, columns []Column) (Row, error) {
	if len(record) != len(columns) {
		return nil, fmt.Errorf("row has %d field(s), want %d", len(record), len(columns))
	}
	row := make(Row, len(columns))
	for i, cell := range record {
		v, err := cellToValue(cell, columns[i].Abstract)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", columns[i].Name, err)
		}
		row[i] = v
	}
	return row, nil
}

func cellToValue(s string, t AbstractType) (Value, error) {
	if isNullSentinel(s) {
		return NullValue(), nil
	}
	switch t {
	case AbstractInt:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return Value{}, err
		}
		return IntValue(n), nil
	case AbstractFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Value{}, err
		}
		return FloatValue(f), nil
	case AbstractDecimal:
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return Value{}, err
		}
		return DecimalValue(d), nil
	case AbstractBool:
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes", "1":
			return BoolValue(true), nil
		case "false", "no", "0":
			return BoolValue(false), nil
		default:
			return Value{}, fmt.Errorf("not a recognized bool: %q", s)
		}
	case AbstractTimestamp:
		return parseTimestampCell(s)
	case AbstractDate:
		return parseDateCell(s)
	default:
		return TextValue(s), nil
	}
}

var timestampLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
}

func parseTimestampCell(s string) (Value, error) {
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		hasOffset := strings.Contains(layout, "Z07:00")
		offsetMinutes := 0
		if hasOffset {
			_, offsetSec := t.Zone()
			offsetMinutes = offsetSec / 60
		}
		return TimestampValue(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/1000, hasOffset, offsetMinutes), nil
	}
	return Value{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}

func parseDateCell(s string) (Value, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Value{}, fmt.Errorf("unrecognized date format: %q", s)
	}
	return DateValue(t.Year(), int(t.Month()), t.Day()), nil
}

// FormatSummary renders the spec §4.5 ingestion summary line.
func (s *ImportSummary) FormatSummary() string {
	msg := fmt.Sprintf("total=%d inserted=%d failed=%d duration=%s", s.Total, s.Inserted, s.Failed, s.Duration)
	for _, line := range s.FailureLines {
		msg += "\n  " + line
	}
	return msg
}
