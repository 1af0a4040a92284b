package main

import (
	"context"
	"fmt"
	"log"

	"github.com/migrasquiel/migrasquiel/migraerr"
)

// Sink is where the pipeline delivers rendered DDL and row batches: a byte
// writer for dump, or a destination Session for migrate/restore-adjacent
// flows. Drivers adapt their concrete target to this interface so the
// pipeline never knows which one it is talking to.
type Sink interface {
	Dialect() Dialect
	// BeginTable and EndTable bracket one table's DDL+DML section (spec
	// §6's dump-file framing: a `-- Table:` comment, then the statements,
	// then a blank line). Session-backed sinks (migrate) no-op both.
	BeginTable(ctx context.Context, table Table) error
	EndTable(ctx context.Context, table Table) error
	WriteCreateTable(ctx context.Context, table Table) error
	WriteBatch(ctx context.Context, table Table, rows []Row) error
	DisableConstraints(ctx context.Context, tables []Table) error
	EnableConstraints(ctx context.Context, tables []Table) error
}

// PipelineOptions configures one run of RunPipeline (spec §4.3).
type PipelineOptions struct {
	Include            []string
	Exclude            []string
	SchemaOnly         bool
	DataOnly           bool
	ConsistentSnapshot bool
	DisableFK          bool
	BatchRows          int
	Progress           Progress
}

// cleanupScope runs registered actions in LIFO order on every exit path —
// normal return, error propagation, or cancellation — matching spec §5's
// "guarded cleanup" requirement that FK re-enable and snapshot commit are
// never skipped. Cleanup failures are logged but never override the
// primary error (spec §7).
type cleanupScope struct {
	fns []func() error
}

func (c *cleanupScope) register(fn func() error) {
	c.fns = append(c.fns, fn)
}

func (c *cleanupScope) run() {
	for i := len(c.fns) - 1; i >= 0; i-- {
		if err := c.fns[i](); err != nil {
			log.Printf("cleanup: %v", err)
		}
	}
}

// RunPipeline executes the table-selection, snapshot, DDL+DML streaming,
// and constraint-toggle algorithm of spec §4.3 against an already-open
// source session and sink. It does not open or close either endpoint —
// that is the driver's responsibility (spec §4.4), so the same pipeline
// serves dump, restore's inverse direction is not applicable, and migrate.
func RunPipeline(ctx context.Context, source Session, sink Sink, opts PipelineOptions) error {
	if opts.SchemaOnly && opts.DataOnly {
		return migraerr.Usage("pipeline", fmt.Errorf("schema-only and data-only are mutually exclusive"))
	}
	if opts.BatchRows <= 0 {
		opts.BatchRows = 1000
	}
	progress := opts.Progress
	if progress == nil {
		progress = newLogProgress()
	}

	var scope cleanupScope
	defer scope.run()
	// Cleanup actions ignore ctx's cancellation, so they still reach the
	// server after SIGINT/SIGTERM instead of failing on a done context.
	cleanupCtx := context.WithoutCancel(ctx)

	if opts.ConsistentSnapshot {
		if err := source.SnapshotBegin(ctx); err != nil {
			return migraerr.Source("snapshot_begin", err)
		}
		scope.register(func() error { return source.SnapshotEnd(cleanupCtx) })
	}

	refs, err := source.ListTables(ctx, opts.Include, opts.Exclude)
	if err != nil {
		return err
	}

	tables := make([]Table, 0, len(refs))
	for _, ref := range refs {
		t, err := source.IntrospectTable(ctx, ref)
		if err != nil {
			return err
		}
		tables = append(tables, t)
	}
	progress.Tables(len(tables))

	if opts.DisableFK {
		if err := sink.DisableConstraints(ctx, tables); err != nil {
			return migraerr.Sink("disable_constraints", err)
		}
		scope.register(func() error { return sink.EnableConstraints(cleanupCtx, tables) })
	}

	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return migraerr.Cancelled("pipeline", err)
		}

		progress.Table(table.QualifiedName())

		if err := sink.BeginTable(ctx, table); err != nil {
			return migraerr.Sink("begin table", err).WithTable(table.QualifiedName())
		}

		if !opts.DataOnly {
			if err := sink.WriteCreateTable(ctx, table); err != nil {
				return migraerr.Sink("write create table", err).WithTable(table.QualifiedName())
			}
		}

		if !opts.SchemaOnly {
			if err := streamTableData(ctx, source, sink, table, opts.BatchRows, progress); err != nil {
				return err
			}
		}

		if err := sink.EndTable(ctx, table); err != nil {
			return migraerr.Sink("end table", err).WithTable(table.QualifiedName())
		}
	}

	return nil
}

// streamTableData pulls rows one at a time from the source cursor,
// accumulates them into a Batch capped at batchRows, and flushes to sink
// at the cap and at end-of-stream (spec §4.3 step 4b). Each flush completes
// before the next row is pulled, so at most batchRows rows are resident at
// once.
func streamTableData(ctx context.Context, source Session, sink Sink, table Table, batchRows int, progress Progress) error {
	cursor, err := source.StreamRows(ctx, table)
	if err != nil {
		return err
	}
	defer cursor.Close()

	batch := Batch{Columns: table.Columns}
	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		for _, chunk := range splitForSize(sink.Dialect(), batch.Rows) {
			if err := sink.WriteBatch(ctx, table, chunk); err != nil {
				return migraerr.Sink("write batch", err).WithTable(table.QualifiedName())
			}
		}
		progress.Rows(table.QualifiedName(), batch.Len())
		batch.Reset()
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return migraerr.Cancelled("stream rows", err)
		}

		row, ok, err := cursor.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := batch.Add(row); err != nil {
			return migraerr.Source("accumulate batch", err).WithTable(table.QualifiedName())
		}
		if batch.Len() == batchRows {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// splitForSize further divides rows so no single rendered INSERT exceeds
// the dialect's conservative byte cap (spec §5, batch-size safety),
// preserving row order. The per-row size estimate avoids rendering every
// literal twice (once to size, once to write); it is deliberately
// conservative rather than exact.
func splitForSize(d Dialect, rows []Row) [][]Row {
	if len(rows) == 0 {
		return nil
	}
	capBytes := d.MaxInsertBytes()

	var chunks [][]Row
	var current []Row
	currentSize := 0
	for _, row := range rows {
		rowSize := estimateRowBytes(row)
		if len(current) > 0 && currentSize+rowSize > capBytes {
			chunks = append(chunks, current)
			current = nil
			currentSize = 0
		}
		current = append(current, row)
		currentSize += rowSize
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

func estimateRowBytes(row Row) int {
	n := 2 // parens
	for _, v := range row {
		switch v.Kind {
		case KindText:
			n += len(v.Text) + 4
		case KindBytes:
			n += len(v.Bytes)*2 + 4
		default:
			n += 24
		}
	}
	return n
}
