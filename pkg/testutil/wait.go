package testutil

import (
	"fmt"
	"testing"
	"time"
)

const writeDeadline = 2 * time.Second

// WaitFor polls condition until it is true or the timeout elapses.
func WaitFor(t *testing.T, description string, timeout time.Duration, condition func() bool) error {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("condition %q not met within %v", description, timeout)
}

// RequireWithin is WaitFor with a fatal failure on timeout.
func RequireWithin(t *testing.T, description string, timeout time.Duration, condition func() bool) {
	t.Helper()
	if err := WaitFor(t, description, timeout, condition); err != nil {
		t.Fatal(err)
	}
}
