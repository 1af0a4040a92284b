package main

import (
	"bufio"
	"compress/gzip"
	"context"
	"io"
	"strings"

	"github.com/migrasquiel/migrasquiel/migraerr"
)

var gzipMagic = [2]byte{0x1f, 0x8b}

// RestoreOptions configures Restore (spec §4.4, restore).
type RestoreOptions struct {
	DisableFK bool
	Progress  Progress
}

// Restore reads a dump produced by Dump from r, tokenizes it with the
// destination dialect's statement boundaries, and executes each statement
// in order against provider/dsn. Compression is detected from the stream's
// leading bytes rather than trusted to a flag or file extension, so a
// restore works the same whether the caller piped a file or stdin.
func Restore(ctx context.Context, provider Provider, dsn string, r io.Reader, opts RestoreOptions) error {
	dest, err := OpenSession(ctx, provider, dsn)
	if err != nil {
		return err
	}
	defer dest.Close()

	progress := opts.Progress
	if progress == nil {
		progress = newLogProgress()
	}

	var scope cleanupScope
	defer scope.run()

	if opts.DisableFK {
		if err := dest.DisableConstraints(ctx, nil); err != nil {
			return migraerr.Sink("disable_constraints", err)
		}
		// Re-enable on a context that ignores cancellation, so it still runs
		// after SIGINT/SIGTERM.
		cleanupCtx := context.WithoutCancel(ctx)
		scope.register(func() error { return dest.EnableConstraints(cleanupCtx, nil) })
	}

	br := bufio.NewReader(r)
	plain, err := maybeDecompress(br)
	if err != nil {
		return migraerr.Source("detect compression", err)
	}

	scanner := dest.Dialect().TokenizeScript(bufio.NewReader(plain))
	executed := 0
	for {
		if err := ctx.Err(); err != nil {
			return migraerr.Cancelled("restore", err)
		}
		stmt, ok := scanner.Next()
		if !ok {
			break
		}
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if err := dest.Execute(ctx, stmt); err != nil {
			return err
		}
		executed++
	}
	if err := scanner.Err(); err != nil {
		return migraerr.Source("tokenize script", err)
	}
	progress.Statement("restore", executed)
	return nil
}

// maybeDecompress peeks the stream's first two bytes for the gzip magic
// number and transparently wraps it in a gzip.Reader when present.
func maybeDecompress(br *bufio.Reader) (io.Reader, error) {
	magic, err := br.Peek(2)
	if err != nil {
		if err == io.EOF {
			return br, nil
		}
		return nil, err
	}
	if magic[0] == gzipMagic[0] && magic[1] == gzipMagic[1] {
		return gzip.NewReader(br)
	}
	return br, nil
}
