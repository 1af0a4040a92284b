package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/migrasquiel/migrasquiel/migraerr"
)

type mssqlSession struct {
	stateMachine
	db      *sql.DB
	conn    *sql.Conn // held only while InSnapshot, so tx pins one connection
	tx      *sql.Tx   // held only while InSnapshot
	dialect mssqlDialect
	dsn     string
}

// querier returns the pinned snapshot transaction while one is open, so
// ListTables/IntrospectTable/StreamRows see the same consistent view
// SnapshotBegin established, instead of a fresh connection from the pool.
func (s *mssqlSession) querier() interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
} {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func openMSSQLSession(ctx context.Context, dsn string) (Session, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, migraerr.Connect("open sqlserver", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, migraerr.Connect("ping sqlserver", err)
	}
	s := &mssqlSession{db: db, dsn: dsn}
	if err := s.openFromClosed(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *mssqlSession) Dialect() Dialect { return s.dialect }

func (s *mssqlSession) ListTables(ctx context.Context, include, exclude []string) ([]TableRef, error) {
	rows, err := s.querier().QueryContext(ctx,
		`SELECT TABLE_SCHEMA, TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		 WHERE TABLE_TYPE = 'BASE TABLE'
		 ORDER BY TABLE_SCHEMA, TABLE_NAME`)
	if err != nil {
		return nil, migraerr.Source("list tables", err)
	}
	defer rows.Close()

	var all []TableRef
	for rows.Next() {
		var schema, name string
		if err := rows.Scan(&schema, &name); err != nil {
			return nil, migraerr.Source("list tables", err)
		}
		all = append(all, TableRef{Schema: schema, Name: name})
	}
	if err := rows.Err(); err != nil {
		return nil, migraerr.Source("list tables", err)
	}
	return filterTables(all, include, exclude), nil
}

func (s *mssqlSession) IntrospectTable(ctx context.Context, ref TableRef) (Table, error) {
	t := Table{Schema: ref.Schema, Name: ref.Name, RowEstimate: -1}

	rows, err := s.querier().QueryContext(ctx,
		`SELECT COLUMN_NAME, IS_NULLABLE, DATA_TYPE FROM INFORMATION_SCHEMA.COLUMNS
		 WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2 ORDER BY ORDINAL_POSITION`,
		ref.Schema, ref.Name)
	if err != nil {
		return t, migraerr.Source("introspect columns", err).WithTable(ref.QualifiedName())
	}
	for rows.Next() {
		var name, nullable, dataType string
		if err := rows.Scan(&name, &nullable, &dataType); err != nil {
			rows.Close()
			return t, migraerr.Source("introspect columns", err).WithTable(ref.QualifiedName())
		}
		t.Columns = append(t.Columns, Column{
			Name:         name,
			Nullable:     nullable == "YES",
			DeclaredType: dataType,
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return t, migraerr.Source("introspect columns", err).WithTable(ref.QualifiedName())
	}

	// SQL Server has no single native "SHOW CREATE TABLE"; synthesize, as
	// with PostgreSQL (see session_postgres.go), since restore targets the
	// same dialect.
	t.CreateTable = synthesizeMSSQLCreateTable(t)

	var estimate sql.NullInt64
	er := s.querier().QueryRowContext(ctx,
		`SELECT SUM(p.rows) FROM sys.partitions p
		 JOIN sys.tables tb ON tb.object_id = p.object_id
		 JOIN sys.schemas sc ON sc.schema_id = tb.schema_id
		 WHERE sc.name = @p1 AND tb.name = @p2 AND p.index_id IN (0,1)`,
		ref.Schema, ref.Name)
	if err := er.Scan(&estimate); err == nil && estimate.Valid {
		t.RowEstimate = estimate.Int64
	}

	return t, nil
}

func synthesizeMSSQLCreateTable(t Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", mssqlDialect{}.QuoteIdentifier(t.Name))
	for i, c := range t.Columns {
		fmt.Fprintf(&b, "  %s %s", mssqlDialect{}.QuoteIdentifier(c.Name), c.DeclaredType)
		if !c.Nullable {
			b.WriteString(" NOT NULL")
		}
		if i < len(t.Columns)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString(")")
	return b.String()
}

func (s *mssqlSession) StreamRows(ctx context.Context, table Table) (RowCursor, error) {
	cols := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		cols[i] = mssqlDialect{}.QuoteIdentifier(c.Name)
	}
	q := fmt.Sprintf("SELECT %s FROM %s.%s",
		strings.Join(cols, ","),
		mssqlDialect{}.QuoteIdentifier(table.Schema),
		mssqlDialect{}.QuoteIdentifier(table.Name))
	rows, err := s.querier().QueryContext(ctx, q)
	if err != nil {
		return nil, migraerr.Source("stream rows", err).WithTable(table.QualifiedName())
	}
	return &mssqlRowCursor{rows: rows, columns: table.Columns, table: table}, nil
}

type mssqlRowCursor struct {
	rows    *sql.Rows
	columns []Column
	table   Table
}

func (c *mssqlRowCursor) Next(ctx context.Context) (Row, bool, error) {
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
		val, err := mssqlValueFromDriver(v, c.columns[i])
		if err != nil {
			return nil, false, migraerr.Source("convert value", err).WithTable(c.table.QualifiedName())
		}
		row[i] = val
	}
	return row, true, nil
}

func (c *mssqlRowCursor) Close() error { return c.rows.Close() }

func mssqlValueFromDriver(v any, col Column) (Value, error) {
	if v == nil {
		return NullValue(), nil
	}
	lowerType := strings.ToLower(col.DeclaredType)
	switch x := v.(type) {
	case int64:
		return IntValue(x), nil
	case float64:
		return FloatValue(x), nil
	case bool:
		return BoolValue(x), nil
	case []byte:
		if lowerType == "uniqueidentifier" {
			return TextValue(formatMSSQLUniqueIdentifier(x)), nil
		}
		if isBinaryColumnType(lowerType) {
			return BytesValue(append([]byte(nil), x...)), nil
		}
		return TextValue(string(x)), nil
	case string:
		return TextValue(x), nil
	case time.Time:
		return valueFromTime(x, lowerType), nil
	default:
		return Value{}, fmt.Errorf("unsupported sqlserver driver value type %T", v)
	}
}

// formatMSSQLUniqueIdentifier renders the canonical text form of a
// uniqueidentifier column, which go-mssqldb returns as raw bytes.
func formatMSSQLUniqueIdentifier(b []byte) string {
	if len(b) != 16 {
		return fmt.Sprintf("%x", b)
	}
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

func (s *mssqlSession) Execute(ctx context.Context, stmt string) error {
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return migraerr.SQLExecution("execute statement", err).WithStatement(stmt)
	}
	return nil
}

func (s *mssqlSession) InsertBatch(ctx context.Context, table Table, rows []Row) error {
	stmt, err := s.dialect.RenderInsert(table, rows)
	if err != nil {
		return migraerr.Sink("render insert", err).WithTable(table.QualifiedName())
	}
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return migraerr.Sink("insert batch", err).WithTable(table.QualifiedName()).WithStatement(stmt)
	}
	return nil
}

func (s *mssqlSession) SnapshotBegin(ctx context.Context) error {
	if err := s.beginSnapshot(); err != nil {
		return err
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return migraerr.Source("snapshot_begin", err)
	}
	// SET TRANSACTION ISOLATION LEVEL and BeginTx must run on the same
	// connection, or the isolation level applies to a session the
	// transaction never uses.
	if _, err := conn.ExecContext(ctx, "SET TRANSACTION ISOLATION LEVEL SNAPSHOT"); err != nil {
		conn.Close()
		return migraerr.Source("snapshot_begin", err)
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		conn.Close()
		return migraerr.Source("snapshot_begin", err)
	}
	s.conn = conn
	s.tx = tx
	return nil
}

func (s *mssqlSession) SnapshotEnd(ctx context.Context) error {
	if err := s.endSnapshot(); err != nil {
		return err
	}
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
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

// DisableConstraints applies the per-table NOCHECK window the spec
// requires for SQL Server (no session-wide FK switch exists).
func (s *mssqlSession) DisableConstraints(ctx context.Context, tables []Table) error {
	for _, t := range tables {
		q := fmt.Sprintf(mssqlNoCheckConstraintAll, s.dialect.QuoteIdentifier(t.Name))
		if err := s.Execute(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *mssqlSession) EnableConstraints(ctx context.Context, tables []Table) error {
	for _, t := range tables {
		q := fmt.Sprintf(mssqlCheckConstraintAll, s.dialect.QuoteIdentifier(t.Name))
		if err := s.Execute(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *mssqlSession) Redacted() string { return redactDSN(s.dsn) }

func (s *mssqlSession) Close() error {
	defer s.close()
	return s.db.Close()
}
