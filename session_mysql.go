package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/migrasquiel/migrasquiel/migraerr"
)

type mysqlSession struct {
	stateMachine
	db      *sql.DB
	conn    *sql.Conn // held only while InSnapshot, so the whole run sees one consistent view
	dialect mysqlDialect
	dsn     string
	dbName  string
}

func openMySQLSession(ctx context.Context, dsn string) (Session, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, migraerr.Connect("parse mysql dsn", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, migraerr.Connect("open mysql", err)
	}
	// One physical connection for the session's whole lifetime: FK-disable
	// (DisableConstraints) and the REPEATABLE READ snapshot are both
	// connection-scoped state, so Execute/InsertBatch must always land on
	// the same connection that set them, not whichever one the pool hands
	// back next.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, migraerr.Connect("ping mysql", err)
	}

	s := &mysqlSession{db: db, dsn: dsn, dbName: cfg.DBName}
	if err := s.openFromClosed(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *mysqlSession) Dialect() Dialect { return s.dialect }

func (s *mysqlSession) querier() interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
} {
	if s.conn != nil {
		return s.conn
	}
	return s.db
}

func (s *mysqlSession) ListTables(ctx context.Context, include, exclude []string) ([]TableRef, error) {
	rows, err := s.querier().QueryContext(ctx,
		`SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		 WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
		 ORDER BY TABLE_NAME`, s.dbName)
	if err != nil {
		return nil, migraerr.Source("list tables", err)
	}
	defer rows.Close()

	var all []TableRef
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, migraerr.Source("list tables", err)
		}
		all = append(all, TableRef{Schema: s.dbName, Name: name})
	}
	if err := rows.Err(); err != nil {
		return nil, migraerr.Source("list tables", err)
	}
	return filterTables(all, include, exclude), nil
}

func (s *mysqlSession) IntrospectTable(ctx context.Context, ref TableRef) (Table, error) {
	t := Table{Schema: ref.Schema, Name: ref.Name, RowEstimate: -1}

	rows, err := s.querier().QueryContext(ctx,
		`SELECT COLUMN_NAME, IS_NULLABLE, COLUMN_TYPE
		 FROM INFORMATION_SCHEMA.COLUMNS
		 WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		 ORDER BY ORDINAL_POSITION`, ref.Schema, ref.Name)
	if err != nil {
		return t, migraerr.Source("introspect columns", err).WithTable(ref.QualifiedName())
	}
	for rows.Next() {
		var name, nullable, colType string
		if err := rows.Scan(&name, &nullable, &colType); err != nil {
			rows.Close()
			return t, migraerr.Source("introspect columns", err).WithTable(ref.QualifiedName())
		}
		t.Columns = append(t.Columns, Column{
			Name:         name,
			Nullable:     nullable == "YES",
			DeclaredType: colType,
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return t, migraerr.Source("introspect columns", err).WithTable(ref.QualifiedName())
	}

	var createStmt, ignoreName string
	r := s.querier().QueryRowContext(ctx, fmt.Sprintf("SHOW CREATE TABLE %s", s.dialect.QuoteIdentifier(ref.Name)))
	if err := r.Scan(&ignoreName, &createStmt); err != nil {
		return t, migraerr.Source("show create table", err).WithTable(ref.QualifiedName())
	}
	t.CreateTable = createStmt

	var estimate sql.NullInt64
	er := s.querier().QueryRowContext(ctx,
		`SELECT TABLE_ROWS FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?`,
		ref.Schema, ref.Name)
	if err := er.Scan(&estimate); err == nil && estimate.Valid {
		t.RowEstimate = estimate.Int64
	}

	return t, nil
}

func (s *mysqlSession) StreamRows(ctx context.Context, table Table) (RowCursor, error) {
	cols := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		cols[i] = s.dialect.QuoteIdentifier(c.Name)
	}
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ","), s.dialect.QuoteIdentifier(table.Name))
	rows, err := s.querier().QueryContext(ctx, q)
	if err != nil {
		return nil, migraerr.Source("stream rows", err).WithTable(table.QualifiedName())
	}
	return &mysqlRowCursor{rows: rows, columns: table.Columns, table: table}, nil
}

type mysqlRowCursor struct {
	rows    *sql.Rows
	columns []Column
	table   Table
}

func (c *mysqlRowCursor) Next(ctx context.Context) (Row, bool, error) {
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			return nil, false, migraerr.Source("read row", err).WithTable(c.table.QualifiedName())
		}
		return nil, false, nil
	}
	raw := make([]any, len(c.columns))
	ptrs := make([]any, len(c.columns))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		return nil, false, migraerr.Source("scan row", err).WithTable(c.table.QualifiedName())
	}
	row := make(Row, len(c.columns))
	for i, v := range raw {
		val, err := mysqlValueFromDriver(v, c.columns[i])
		if err != nil {
			return nil, false, migraerr.Source("convert value", err).WithTable(c.table.QualifiedName())
		}
		row[i] = val
	}
	return row, true, nil
}

func (c *mysqlRowCursor) Close() error { return c.rows.Close() }

// mysqlValueFromDriver converts a go-sql-driver/mysql scanned value to the
// dialect-neutral Value model, keyed by the column's declared type text
// (e.g. "tinyint(1)" -> Bool).
func mysqlValueFromDriver(v any, col Column) (Value, error) {
	if v == nil {
		return NullValue(), nil
	}
	lowerType := strings.ToLower(col.DeclaredType)
	switch {
	case strings.HasPrefix(lowerType, "tinyint(1)"):
		switch x := v.(type) {
		case int64:
			return BoolValue(x != 0), nil
		case []byte:
			return BoolValue(string(x) != "0"), nil
		}
	case strings.Contains(lowerType, "unsigned") && (strings.HasPrefix(lowerType, "bigint") || strings.HasPrefix(lowerType, "int")):
		switch x := v.(type) {
		case uint64:
			return UintValue(x), nil
		case int64:
			return UintValue(uint64(x)), nil
		case []byte:
			return TextValue(string(x)), nil
		}
	}

	switch x := v.(type) {
	case int64:
		return IntValue(x), nil
	case uint64:
		return UintValue(x), nil
	case float64:
		return FloatValue(x), nil
	case float32:
		return FloatValue(float64(x)), nil
	case bool:
		return BoolValue(x), nil
	case []byte:
		if isBinaryColumnType(lowerType) {
			return BytesValue(append([]byte(nil), x...)), nil
		}
		return TextValue(string(x)), nil
	case string:
		return TextValue(x), nil
	case time.Time:
		return valueFromTime(x, lowerType), nil
	default:
		return Value{}, fmt.Errorf("unsupported mysql driver value type %T", v)
	}
}

func isBinaryColumnType(lowerType string) bool {
	for _, p := range []string{"binary", "varbinary", "blob"} {
		if strings.HasPrefix(lowerType, p) {
			return true
		}
	}
	return false
}

func valueFromTime(t time.Time, lowerType string) Value {
	if t.IsZero() {
		return NullValue()
	}
	if strings.HasPrefix(lowerType, "date") && !strings.Contains(lowerType, "time") {
		return DateValue(t.Year(), int(t.Month()), t.Day())
	}
	if strings.HasPrefix(lowerType, "time") && !strings.Contains(lowerType, "timestamp") && !strings.Contains(lowerType, "datetime") {
		return TimeValue(t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/1000)
	}
	return TimestampValue(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/1000, false, 0)
}

func (s *mysqlSession) Execute(ctx context.Context, stmt string) error {
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return migraerr.SQLExecution("execute statement", err).WithStatement(stmt)
	}
	return nil
}

func (s *mysqlSession) InsertBatch(ctx context.Context, table Table, rows []Row) error {
	stmt, err := s.dialect.RenderInsert(table, rows)
	if err != nil {
		return migraerr.Sink("render insert", err).WithTable(table.QualifiedName())
	}
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return migraerr.Sink("insert batch", err).WithTable(table.QualifiedName()).WithStatement(stmt)
	}
	return nil
}

func (s *mysqlSession) SnapshotBegin(ctx context.Context) error {
	if err := s.beginSnapshot(); err != nil {
		return err
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return migraerr.Source("snapshot_begin", err)
	}
	if _, err := conn.ExecContext(ctx, "SET TRANSACTION ISOLATION LEVEL REPEATABLE READ"); err != nil {
		conn.Close()
		return migraerr.Source("snapshot_begin", err)
	}
	if _, err := conn.ExecContext(ctx, "START TRANSACTION WITH CONSISTENT SNAPSHOT"); err != nil {
		conn.Close()
		return migraerr.Source("snapshot_begin", err)
	}
	s.conn = conn
	return nil
}

func (s *mysqlSession) SnapshotEnd(ctx context.Context) error {
	if err := s.endSnapshot(); err != nil {
		return err
	}
	if s.conn == nil {
		return nil
	}
	_, err := s.conn.ExecContext(ctx, "COMMIT")
	closeErr := s.conn.Close()
	s.conn = nil
	if err != nil {
		return migraerr.Source("snapshot_end", err)
	}
	if closeErr != nil {
		return migraerr.Source("snapshot_end", closeErr)
	}
	return nil
}

func (s *mysqlSession) DisableConstraints(ctx context.Context, _ []Table) error {
	return s.Execute(ctx, mysqlDisableFKChecks)
}

func (s *mysqlSession) EnableConstraints(ctx context.Context, _ []Table) error {
	return s.Execute(ctx, mysqlEnableFKChecks)
}

func (s *mysqlSession) Redacted() string { return redactDSN(s.dsn) }

func (s *mysqlSession) Close() error {
	defer s.close()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	return s.db.Close()
}
