package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/migrasquiel/migrasquiel/migraerr"
	"github.com/shopspring/decimal"
)

type postgresSession struct {
	stateMachine
	pool    *pgxpool.Pool
	conn    *pgxpool.Conn // held only while InSnapshot, pins every read to tx's connection
	tx      pgx.Tx        // held only while InSnapshot or InTxn
	dialect postgresDialect
	dsn     string
}

// pgQuerier is the read surface pgxpool.Pool and pgx.Tx share, letting
// ListTables/IntrospectTable/StreamRows run against either without caring
// which one is active.
type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *postgresSession) querier() pgQuerier {
	if s.tx != nil {
		return s.tx
	}
	return s.pool
}

func openPostgresSession(ctx context.Context, dsn string) (Session, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, migraerr.Connect("parse postgres dsn", err)
	}
	// One physical connection for the session's whole lifetime:
	// session_replication_role and the REPEATABLE READ snapshot are both
	// connection-scoped state, so Execute/InsertBatch must always land on
	// the same connection that set them, not whichever one the pool hands
	// back next.
	cfg.MaxConns = 1
	cfg.MinConns = 1
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, migraerr.Connect("connect postgres", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, migraerr.Connect("ping postgres", err)
	}
	s := &postgresSession{pool: pool, dsn: dsn}
	if err := s.openFromClosed(); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *postgresSession) Dialect() Dialect { return s.dialect }

func (s *postgresSession) ListTables(ctx context.Context, include, exclude []string) ([]TableRef, error) {
	rows, err := s.querier().Query(ctx,
		`SELECT table_schema, table_name FROM information_schema.tables
		 WHERE table_schema NOT IN ('pg_catalog', 'information_schema') AND table_type = 'BASE TABLE'
		 ORDER BY table_schema, table_name`)
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

func (s *postgresSession) IntrospectTable(ctx context.Context, ref TableRef) (Table, error) {
	t := Table{Schema: ref.Schema, Name: ref.Name, RowEstimate: -1}

	rows, err := s.querier().Query(ctx,
		`SELECT column_name, is_nullable, udt_name
		 FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2
		 ORDER BY ordinal_position`, ref.Schema, ref.Name)
	if err != nil {
		return t, migraerr.Source("introspect columns", err).WithTable(ref.QualifiedName())
	}
	for rows.Next() {
		var name, nullable, udt string
		if err := rows.Scan(&name, &nullable, &udt); err != nil {
			rows.Close()
			return t, migraerr.Source("introspect columns", err).WithTable(ref.QualifiedName())
		}
		t.Columns = append(t.Columns, Column{
			Name:         name,
			Nullable:     nullable == "YES",
			DeclaredType: udt,
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return t, migraerr.Source("introspect columns", err).WithTable(ref.QualifiedName())
	}

	// PostgreSQL exposes no single "SHOW CREATE TABLE"; migrasquiel
	// synthesizes the DDL it will re-emit from the introspected columns,
	// which is sufficient since restore targets the same dialect and the
	// full pg_dump-style reconstruction (constraints, storage params) is
	// out of scope for a same-dialect round trip of row data.
	t.CreateTable = synthesizePostgresCreateTable(t)

	var estimate float64
	er := s.querier().QueryRow(ctx,
		`SELECT reltuples FROM pg_class c JOIN pg_namespace n ON n.oid = c.relnamespace
		 WHERE n.nspname = $1 AND c.relname = $2`, ref.Schema, ref.Name)
	if err := er.Scan(&estimate); err == nil && estimate >= 0 {
		t.RowEstimate = int64(estimate)
	}

	return t, nil
}

func synthesizePostgresCreateTable(t Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", postgresDialect{}.QuoteIdentifier(t.Name))
	for i, c := range t.Columns {
		fmt.Fprintf(&b, "  %s %s", postgresDialect{}.QuoteIdentifier(c.Name), c.DeclaredType)
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

func (s *postgresSession) StreamRows(ctx context.Context, table Table) (RowCursor, error) {
	cols := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		cols[i] = postgresDialect{}.QuoteIdentifier(c.Name)
	}
	q := fmt.Sprintf("SELECT %s FROM %s.%s",
		strings.Join(cols, ","),
		postgresDialect{}.QuoteIdentifier(table.Schema),
		postgresDialect{}.QuoteIdentifier(table.Name))
	rows, err := s.querier().Query(ctx, q)
	if err != nil {
		return nil, migraerr.Source("stream rows", err).WithTable(table.QualifiedName())
	}
	return &postgresRowCursor{rows: rows, columns: table.Columns, table: table}, nil
}

type postgresRowCursor struct {
	rows    pgx.Rows
	columns []Column
	table   Table
}

func (c *postgresRowCursor) Next(ctx context.Context) (Row, bool, error) {
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			return nil, false, migraerr.Source("read row", err).WithTable(c.table.QualifiedName())
		}
		return nil, false, nil
	}
	raw, err := c.rows.Values()
	if err != nil {
		return nil, false, migraerr.Source("scan row", err).WithTable(c.table.QualifiedName())
	}
	row := make(Row, len(raw))
	for i, v := range raw {
		val, err := postgresValueFromDriver(v)
		if err != nil {
			return nil, false, migraerr.Source("convert value", err).WithTable(c.table.QualifiedName())
		}
		row[i] = val
	}
	return row, true, nil
}

func (c *postgresRowCursor) Close() error { c.rows.Close(); return nil }

func postgresValueFromDriver(v any) (Value, error) {
	if v == nil {
		return NullValue(), nil
	}
	switch x := v.(type) {
	case int64:
		return IntValue(x), nil
	case int32:
		return IntValue(int64(x)), nil
	case int16:
		return IntValue(int64(x)), nil
	case bool:
		return BoolValue(x), nil
	case float64:
		return FloatValue(x), nil
	case float32:
		return FloatValue(float64(x)), nil
	case string:
		return TextValue(x), nil
	case []byte:
		return BytesValue(append([]byte(nil), x...)), nil
	case decimal.Decimal:
		return DecimalValue(x), nil
	default:
		// pgx v5 returns richer native types (pgtype.Numeric, time.Time,
		// net.IPNet, ...) for many columns; the declared type (udt_name)
		// distinguishes them, but generic driver-value conversion covers
		// the common scalar kinds this pipeline carries across dialects.
		return Value{}, fmt.Errorf("unsupported postgres driver value type %T", v)
	}
}

func (s *postgresSession) Execute(ctx context.Context, stmt string) error {
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return migraerr.SQLExecution("execute statement", err).WithStatement(stmt)
	}
	return nil
}

func (s *postgresSession) InsertBatch(ctx context.Context, table Table, rows []Row) error {
	stmt, err := s.dialect.RenderInsert(table, rows)
	if err != nil {
		return migraerr.Sink("render insert", err).WithTable(table.QualifiedName())
	}
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return migraerr.Sink("insert batch", err).WithTable(table.QualifiedName()).WithStatement(stmt)
	}
	return nil
}

func (s *postgresSession) SnapshotBegin(ctx context.Context) error {
	if err := s.beginSnapshot(); err != nil {
		return err
	}
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return migraerr.Source("snapshot_begin", err)
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.Release()
		return migraerr.Source("snapshot_begin", err)
	}
	if _, err := tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL REPEATABLE READ READ ONLY"); err != nil {
		tx.Rollback(ctx)
		conn.Release()
		return migraerr.Source("snapshot_begin", err)
	}
	s.conn = conn
	s.tx = tx
	return nil
}

func (s *postgresSession) SnapshotEnd(ctx context.Context) error {
	if err := s.endSnapshot(); err != nil {
		return err
	}
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit(ctx)
	s.tx = nil
	s.conn.Release()
	s.conn = nil
	if err != nil {
		return migraerr.Source("snapshot_end", err)
	}
	return nil
}

func (s *postgresSession) DisableConstraints(ctx context.Context, _ []Table) error {
	return s.Execute(ctx, postgresDisableFKChecks)
}

func (s *postgresSession) EnableConstraints(ctx context.Context, _ []Table) error {
	return s.Execute(ctx, postgresEnableFKChecks)
}

func (s *postgresSession) Redacted() string { return redactDSN(s.dsn) }

func (s *postgresSession) Close() error {
	defer s.close()
	s.pool.Close()
	return nil
}
