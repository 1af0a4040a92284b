package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/migrasquiel/migrasquiel/migraerr"
)

// sessionState implements the state machine from spec §4.2:
// Closed -> Open -> {InSnapshot, InTxn, Idle} -> Closed.
type sessionState int

const (
	stateClosed sessionState = iota
	stateOpen
	stateInSnapshot
	stateInTxn
)

// stateMachine is embedded by every concrete session and guards the
// transitions the spec forbids (re-entering InSnapshot/InTxn is an error).
type stateMachine struct {
	state sessionState
}

func (m *stateMachine) openFromClosed() error {
	if m.state != stateClosed {
		return migraerr.IllegalState("open session", fmt.Errorf("session is not closed (state=%d)", m.state))
	}
	m.state = stateOpen
	return nil
}

func (m *stateMachine) beginSnapshot() error {
	if m.state != stateOpen {
		return migraerr.IllegalState("snapshot_begin", fmt.Errorf("cannot begin snapshot from state %d", m.state))
	}
	m.state = stateInSnapshot
	return nil
}

func (m *stateMachine) endSnapshot() error {
	if m.state != stateInSnapshot {
		return migraerr.IllegalState("snapshot_end", fmt.Errorf("no open snapshot (state=%d)", m.state))
	}
	m.state = stateOpen
	return nil
}

func (m *stateMachine) beginTxn() error {
	if m.state != stateOpen {
		return migraerr.IllegalState("begin transaction", fmt.Errorf("cannot begin transaction from state %d", m.state))
	}
	m.state = stateInTxn
	return nil
}

func (m *stateMachine) endTxn() error {
	if m.state != stateInTxn {
		return migraerr.IllegalState("end transaction", fmt.Errorf("no open transaction (state=%d)", m.state))
	}
	m.state = stateOpen
	return nil
}

func (m *stateMachine) close() {
	m.state = stateClosed
}

// TableRef names a table without yet paying for full introspection.
type TableRef struct {
	Schema string
	Name   string
}

func (r TableRef) QualifiedName() string {
	if r.Schema == "" {
		return r.Name
	}
	return r.Schema + "." + r.Name
}

// RowCursor is the pull-based, finite, lazy sequence of rows streamed from
// one table. Next yields (row, true, nil), or (nil, false, nil) at
// end-of-stream; a non-nil error reports a read failure.
type RowCursor interface {
	Next(ctx context.Context) (Row, bool, error)
	Close() error
}

// Session is the per-provider connection the pipeline and drivers consume.
// Implementations hold one network connection, at most one open
// transaction, and a reference to their Dialect.
type Session interface {
	Dialect() Dialect

	// ListTables enumerates tables, applying include/exclude filters
	// (include is exact-match; exclude is applied after include), in
	// stable alphabetical order by qualified name.
	ListTables(ctx context.Context, include, exclude []string) ([]TableRef, error)

	// IntrospectTable reads full column/DDL/row-count metadata for one table.
	IntrospectTable(ctx context.Context, ref TableRef) (Table, error)

	// StreamRows opens a server-side streaming cursor over one table.
	StreamRows(ctx context.Context, table Table) (RowCursor, error)

	// Execute runs an arbitrary statement (used by restore, CREATE TABLE
	// during migrate and import, and the constraint toggles).
	Execute(ctx context.Context, stmt string) error

	// InsertBatch renders and executes exactly one multi-row INSERT.
	InsertBatch(ctx context.Context, table Table, rows []Row) error

	SnapshotBegin(ctx context.Context) error
	SnapshotEnd(ctx context.Context) error

	DisableConstraints(ctx context.Context, tables []Table) error
	EnableConstraints(ctx context.Context, tables []Table) error

	// Redacted renders this session's identity with credentials replaced
	// by `:***@`, safe to place in logs and error messages.
	Redacted() string

	Close() error
}

// OpenSession dials dsn for the given provider and returns an Open session.
func OpenSession(ctx context.Context, provider Provider, dsn string) (Session, error) {
	switch provider {
	case ProviderMySQL:
		return openMySQLSession(ctx, dsn)
	case ProviderPostgres:
		return openPostgresSession(ctx, dsn)
	case ProviderMSSQL:
		return openMSSQLSession(ctx, dsn)
	default:
		return nil, migraerr.Usage("open session", fmt.Errorf("unsupported provider %q", provider))
	}
}

// filterTables applies the spec §4.3 filter-composition rule:
// result = (include_set ∪ all_if_none) ∖ exclude_set, alphabetical order.
func filterTables(all []TableRef, include, exclude []string) []TableRef {
	includeSet := toSet(include)
	excludeSet := toSet(exclude)

	var kept []TableRef
	for _, t := range all {
		if len(includeSet) > 0 && !includeSet[t.QualifiedName()] && !includeSet[t.Name] {
			continue
		}
		if excludeSet[t.QualifiedName()] || excludeSet[t.Name] {
			continue
		}
		kept = append(kept, t)
	}
	sort.Slice(kept, func(i, j int) bool {
		return kept[i].QualifiedName() < kept[j].QualifiedName()
	})
	return kept
}

func toSet(ss []string) map[string]bool {
	if len(ss) == 0 {
		return nil
	}
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[strings.TrimSpace(s)] = true
	}
	return m
}
