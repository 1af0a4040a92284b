package main

import "testing"

func refs(names ...string) []TableRef {
	out := make([]TableRef, len(names))
	for i, n := range names {
		out[i] = TableRef{Name: n}
	}
	return out
}

func qualNames(ts []TableRef) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.QualifiedName()
	}
	return out
}

func TestFilterTablesNoFilters(t *testing.T) {
	all := refs("zebra", "apple", "mango")
	got := qualNames(filterTables(all, nil, nil))
	want := []string{"apple", "mango", "zebra"}
	if !equalStrings(got, want) {
		t.Errorf("filterTables = %v, want %v", got, want)
	}
}

func TestFilterTablesIncludeThenExclude(t *testing.T) {
	all := refs("a", "b", "c", "d")
	got := qualNames(filterTables(all, []string{"a", "b", "c"}, []string{"b"}))
	want := []string{"a", "c"}
	if !equalStrings(got, want) {
		t.Errorf("filterTables = %v, want %v", got, want)
	}
}

func TestFilterTablesExcludeOnlyAppliesToAll(t *testing.T) {
	all := refs("a", "b", "c")
	got := qualNames(filterTables(all, nil, []string{"b"}))
	want := []string{"a", "c"}
	if !equalStrings(got, want) {
		t.Errorf("filterTables = %v, want %v", got, want)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStateMachineTransitions(t *testing.T) {
	var m stateMachine
	if err := m.openFromClosed(); err != nil {
		t.Fatal(err)
	}
	if err := m.beginSnapshot(); err != nil {
		t.Fatal(err)
	}
	if err := m.beginSnapshot(); err == nil {
		t.Error("expected error re-entering snapshot")
	}
	if err := m.endSnapshot(); err != nil {
		t.Fatal(err)
	}
	if err := m.beginTxn(); err != nil {
		t.Fatal(err)
	}
	if err := m.endTxn(); err != nil {
		t.Fatal(err)
	}
	m.close()
	if err := m.beginSnapshot(); err == nil {
		t.Error("expected error entering snapshot from closed state")
	}
}

func TestStateMachineRejectsDoubleOpen(t *testing.T) {
	var m stateMachine
	if err := m.openFromClosed(); err != nil {
		t.Fatal(err)
	}
	if err := m.openFromClosed(); err == nil {
		t.Error("expected error re-opening an already-open session")
	}
}
