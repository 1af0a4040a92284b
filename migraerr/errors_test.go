package migraerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestExitCodes(t *testing.T) {
	cases := []struct {
		class Class
		want  int
	}{
		{ClassUsage, 2},
		{ClassConnect, 3},
		{ClassSource, 4},
		{ClassSink, 5},
		{ClassSQLExecution, 6},
		{ClassCancelled, 7},
		{ClassIllegalState, 6},
	}
	for _, c := range cases {
		if got := c.class.ExitCode(); got != c.want {
			t.Errorf("%s.ExitCode() = %d, want %d", c.class, got, c.want)
		}
	}
}

func TestExitCodeUnwraps(t *testing.T) {
	base := errors.New("connection refused")
	err := Connect("open session", base)
	wrapped := fmt.Errorf("top level: %w", err)
	if ExitCode(wrapped) != 3 {
		t.Errorf("ExitCode(wrapped) = %d, want 3", ExitCode(wrapped))
	}
	if !errors.Is(wrapped, base) {
		t.Errorf("expected wrapped error to unwrap to base cause")
	}
}

func TestStatementTruncation(t *testing.T) {
	long := strings.Repeat("x", 200)
	err := SQLExecution("restore", errors.New("boom")).WithStatement(long)
	if len(err.Statement) != 80 {
		t.Errorf("statement length = %d, want 80", len(err.Statement))
	}
}

func TestExitCodeDefaultsToOneForUnrecognizedError(t *testing.T) {
	if ExitCode(errors.New("plain error")) != 1 {
		t.Error("expected default exit code 1 for a plain error")
	}
}

func TestExitCodeZeroForNil(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Error("expected exit code 0 for nil error")
	}
}
