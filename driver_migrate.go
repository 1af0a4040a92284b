package main

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Migrate opens both endpoints, wires a sessionSink over the destination,
// and runs RunPipeline directly between them with no file in the middle.
// CreateTable text is carried verbatim from the source dialect (see
// Column.DeclaredType) — migrating across dialects with schema creation
// enabled only succeeds when the destination accepts the source's DDL
// syntax; a genuine cross-dialect migration should pass --data-only
// against an already-provisioned destination schema.
func Migrate(ctx context.Context, srcProvider Provider, srcDSN string, dstProvider Provider, dstDSN string, opts PipelineOptions) error {
	var source, dest Session
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := OpenSession(gctx, srcProvider, srcDSN)
		if err != nil {
			return err
		}
		source = s
		return nil
	})
	g.Go(func() error {
		s, err := OpenSession(gctx, dstProvider, dstDSN)
		if err != nil {
			return err
		}
		dest = s
		return nil
	})
	if err := g.Wait(); err != nil {
		if source != nil {
			source.Close()
		}
		if dest != nil {
			dest.Close()
		}
		return err
	}
	defer source.Close()
	defer dest.Close()

	sink := &sessionSink{session: dest}
	return RunPipeline(ctx, source, sink, opts)
}

// sessionSink adapts a live destination Session to the Sink interface so
// the pipeline can write directly into it without ever rendering SQL text
// to an intermediate file.
type sessionSink struct {
	session Session
}

func (s *sessionSink) Dialect() Dialect { return s.session.Dialect() }

// BeginTable and EndTable are no-ops: the dump-file framing they bracket
// for fileSink has no meaning against a live destination session.
func (s *sessionSink) BeginTable(_ context.Context, _ Table) error { return nil }
func (s *sessionSink) EndTable(_ context.Context, _ Table) error   { return nil }

func (s *sessionSink) WriteCreateTable(ctx context.Context, table Table) error {
	return s.session.Execute(ctx, s.session.Dialect().RenderCreateTable(table))
}

func (s *sessionSink) WriteBatch(ctx context.Context, table Table, rows []Row) error {
	return s.session.InsertBatch(ctx, table, rows)
}

func (s *sessionSink) DisableConstraints(ctx context.Context, tables []Table) error {
	return s.session.DisableConstraints(ctx, tables)
}

func (s *sessionSink) EnableConstraints(ctx context.Context, tables []Table) error {
	return s.session.EnableConstraints(ctx, tables)
}
