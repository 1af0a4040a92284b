package main

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"

	"github.com/migrasquiel/migrasquiel/migraerr"
)

// DumpOptions bundles pipeline configuration with the dump-specific output
// framing (spec §4.4, dump).
type DumpOptions struct {
	Pipeline PipelineOptions
	Gzip     bool
}

// Dump opens a session against provider/dsn, streams every selected table's
// DDL and rows into w through RunPipeline, and always closes the session —
// even when the pipeline returns an error or ctx is cancelled.
func Dump(ctx context.Context, provider Provider, dsn string, w io.Writer, opts DumpOptions) error {
	source, err := OpenSession(ctx, provider, dsn)
	if err != nil {
		return err
	}
	defer source.Close()

	out := w
	var gz *gzip.Writer
	if opts.Gzip {
		gz = gzip.NewWriter(w)
		out = gz
	}
	bw := bufio.NewWriter(out)

	if _, err := bw.WriteString(source.Dialect().Header()); err != nil {
		return migraerr.Sink("write header", err)
	}

	sink := &fileSink{w: bw, dialect: source.Dialect()}
	if err := RunPipeline(ctx, source, sink, opts.Pipeline); err != nil {
		return err
	}

	if _, err := bw.WriteString(source.Dialect().Footer()); err != nil {
		return migraerr.Sink("write footer", err)
	}
	if err := bw.Flush(); err != nil {
		return migraerr.Sink("flush dump", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return migraerr.Sink("close gzip writer", err)
		}
	}
	return nil
}

// fileSink renders DDL and row batches as SQL text for whichever dialect
// produced them. It never opens a connection; it is pure text rendering
// over a buffered writer, so the same Sink shape that drives migrate's
// live session target also drives a dump file (pipeline.go is agnostic).
type fileSink struct {
	w       *bufio.Writer
	dialect Dialect
}

func (s *fileSink) Dialect() Dialect { return s.dialect }

// BeginTable writes the `-- Table: <qualified name>` comment spec §6
// requires ahead of every table's section.
func (s *fileSink) BeginTable(_ context.Context, table Table) error {
	_, err := fmt.Fprintf(s.w, "-- Table: %s\n", table.QualifiedName())
	return err
}

// EndTable writes the blank line spec §6 requires after a table's
// INSERT statements (or its CREATE TABLE alone, in schema-only mode),
// separating it from the next table's comment or the dialect footer.
func (s *fileSink) EndTable(_ context.Context, _ Table) error {
	_, err := s.w.WriteString("\n")
	return err
}

func (s *fileSink) WriteCreateTable(_ context.Context, table Table) error {
	if _, err := s.w.WriteString(s.dialect.RenderCreateTable(table)); err != nil {
		return err
	}
	// The blank line here is spec §6's separator between the CREATE
	// TABLE statement and the INSERT block that follows it.
	_, err := s.w.WriteString(";\n\n")
	return err
}

func (s *fileSink) WriteBatch(_ context.Context, table Table, rows []Row) error {
	stmt, err := s.dialect.RenderInsert(table, rows)
	if err != nil {
		return err
	}
	_, err = s.w.WriteString(stmt)
	return err
}

// DisableConstraints and EnableConstraints are no-ops for MySQL and
// PostgreSQL: their Header/Footer already toggle the session-wide switch
// unconditionally (FOREIGN_KEY_CHECKS / session_replication_role), so a
// dump file never needs a second statement for it. SQL Server has no
// session-wide switch, so the per-table NOCHECK window is written here
// instead, exactly as session_mssql.go applies it live during migrate.
func (s *fileSink) DisableConstraints(_ context.Context, tables []Table) error {
	if s.dialect.Provider() != ProviderMSSQL {
		return nil
	}
	for _, t := range tables {
		if err := s.writeStmt(fmt.Sprintf(mssqlNoCheckConstraintAll, s.dialect.QuoteIdentifier(t.Name))); err != nil {
			return err
		}
	}
	return nil
}

func (s *fileSink) EnableConstraints(_ context.Context, tables []Table) error {
	if s.dialect.Provider() != ProviderMSSQL {
		return nil
	}
	for _, t := range tables {
		if err := s.writeStmt(fmt.Sprintf(mssqlCheckConstraintAll, s.dialect.QuoteIdentifier(t.Name))); err != nil {
			return err
		}
	}
	return nil
}

func (s *fileSink) writeStmt(stmt string) error {
	_, err := s.w.WriteString(stmt + ";\n")
	return err
}
