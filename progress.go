package main

import "log"

// Progress is the pipeline's only cross-cutting shared object (spec §5);
// it must be safe to call from the one pipeline task (the pipeline never
// calls it concurrently, so no internal locking is required).
type Progress interface {
	Tables(n int)
	Table(name string)
	Rows(table string, delta int)
	Statement(table string, n int)
	Warn(msg string)
}

// logProgress is the default Progress implementation: line-oriented
// log.Printf narration, indented two spaces per nesting level (table under
// the overall run, rows/statements under their table).
type logProgress struct {
	rowTotals map[string]int
}

func newLogProgress() *logProgress {
	return &logProgress{rowTotals: make(map[string]int)}
}

func (p *logProgress) Tables(n int) {
	log.Printf("found %d table(s)", n)
}

func (p *logProgress) Table(name string) {
	log.Printf("  %s", name)
}

func (p *logProgress) Rows(table string, delta int) {
	p.rowTotals[table] += delta
	log.Printf("    %s: %d row(s)", table, p.rowTotals[table])
}

func (p *logProgress) Statement(table string, n int) {
	log.Printf("    %s: %d statement(s) executed", table, n)
}

func (p *logProgress) Warn(msg string) {
	log.Printf("  WARN: %s", msg)
}
