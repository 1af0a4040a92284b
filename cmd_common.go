package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
)

// rootContext returns a context cancelled on SIGINT/SIGTERM, so a
// subcommand's next suspension point (§5) observes the cancellation and
// runs its guarded cleanup instead of leaving the process to be killed
// mid-batch.
func rootContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// splitCSVList parses a comma-separated --tables/--exclude flag value,
// trimming whitespace and dropping empty entries.
func splitCSVList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
