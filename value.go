package main

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Kind tags the variant carried by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindUint64
	KindFloat64
	KindDecimal
	KindText
	KindBytes
	KindDate
	KindTime
	KindTimestamp
)

// Value is the dialect-neutral representation of a single column cell.
// Exactly one of the typed fields is meaningful, selected by Kind.
type Value struct {
	Kind Kind

	Bool    bool
	Int64   int64
	Uint64  uint64
	Float64 float64
	Decimal decimal.Decimal
	Text    string
	Bytes   []byte

	Year, Month, Day          int
	Hour, Min, Sec, Micro     int
	HasOffset                 bool
	OffsetMinutes             int
}

// NullValue returns a Value carrying SQL NULL.
func NullValue() Value { return Value{Kind: KindNull} }

// BoolValue wraps a boolean.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// IntValue wraps a signed 64-bit integer.
func IntValue(v int64) Value { return Value{Kind: KindInt64, Int64: v} }

// UintValue wraps an unsigned 64-bit integer (e.g. MySQL BIGINT UNSIGNED).
func UintValue(v uint64) Value { return Value{Kind: KindUint64, Uint64: v} }

// FloatValue wraps an IEEE-754 double, preserving NaN/Inf bit patterns.
func FloatValue(v float64) Value { return Value{Kind: KindFloat64, Float64: v} }

// DecimalValue wraps an arbitrary-precision decimal.
func DecimalValue(d decimal.Decimal) Value { return Value{Kind: KindDecimal, Decimal: d} }

// TextValue wraps a UTF-8 string. Panics on ill-formed input — callers at
// the session boundary are responsible for validating driver output.
func TextValue(s string) Value {
	if !utf8.ValidString(s) {
		panic(fmt.Sprintf("migrasquiel: text value is not valid UTF-8: %q", s))
	}
	return Value{Kind: KindText, Text: s}
}

// BytesValue wraps an opaque byte sequence.
func BytesValue(b []byte) Value { return Value{Kind: KindBytes, Bytes: b} }

// DateValue wraps a calendar date.
func DateValue(year, month, day int) Value {
	return Value{Kind: KindDate, Year: year, Month: month, Day: day}
}

// TimeValue wraps a time-of-day with microsecond precision.
func TimeValue(h, m, s, micro int) Value {
	return Value{Kind: KindTime, Hour: h, Min: m, Sec: s, Micro: micro}
}

// TimestampValue wraps a date+time, with an optional UTC offset in minutes.
func TimestampValue(year, month, day, h, m, s, micro int, hasOffset bool, offsetMinutes int) Value {
	return Value{
		Kind: KindTimestamp,
		Year: year, Month: month, Day: day,
		Hour: h, Min: m, Sec: s, Micro: micro,
		HasOffset: hasOffset, OffsetMinutes: offsetMinutes,
	}
}

// IsNaN reports whether this is a Float64 value carrying NaN.
func (v Value) IsNaN() bool { return v.Kind == KindFloat64 && math.IsNaN(v.Float64) }

// IsInf reports whether this is a Float64 value carrying +Inf or -Inf.
func (v Value) IsInf() bool { return v.Kind == KindFloat64 && math.IsInf(v.Float64, 0) }

// AbstractType is the type inferred by the CSV importer (C6). It is never
// mixed with a dialect's opaque declared-type text.
type AbstractType int

const (
	AbstractText AbstractType = iota
	AbstractInt
	AbstractFloat
	AbstractDecimal
	AbstractBool
	AbstractDate
	AbstractTimestamp
)

func (t AbstractType) String() string {
	switch t {
	case AbstractInt:
		return "Int"
	case AbstractFloat:
		return "Float"
	case AbstractDecimal:
		return "Decimal"
	case AbstractBool:
		return "Bool"
	case AbstractDate:
		return "Date"
	case AbstractTimestamp:
		return "Timestamp"
	default:
		return "Text"
	}
}

// Column describes one column of a Table. DeclaredType is opaque,
// dialect-specific text carried verbatim from source to sink; Abstract is
// populated only by the CSV import path and is never mixed with
// DeclaredType.
type Column struct {
	Name         string
	Nullable     bool
	DeclaredType string
	Abstract     AbstractType
	HasAbstract  bool
}

// Table is the qualified descriptor of one table, captured by a Session at
// introspection time and owned by the Pipeline for the duration of that
// table's processing.
type Table struct {
	Schema       string
	Name         string
	Columns      []Column
	CreateTable  string // verbatim CREATE TABLE text, dialect-specific
	RowEstimate  int64  // -1 when unknown
}

// QualifiedName renders "schema.table", or just "table" when Schema is empty.
func (t Table) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Row is an ordered sequence of Values matching the arity of a Column list.
type Row []Value

// Batch is an ordered, size-capped sequence of rows destined for one INSERT.
type Batch struct {
	Columns []Column
	Rows    []Row
}

// Len reports the number of rows currently buffered.
func (b *Batch) Len() int { return len(b.Rows) }

// Add appends a row, validating its arity against the batch's columns.
func (b *Batch) Add(r Row) error {
	if len(r) != len(b.Columns) {
		return fmt.Errorf("row arity %d does not match column count %d", len(r), len(b.Columns))
	}
	b.Rows = append(b.Rows, r)
	return nil
}

// Reset empties the batch while keeping its column list.
func (b *Batch) Reset() {
	b.Rows = b.Rows[:0]
}
