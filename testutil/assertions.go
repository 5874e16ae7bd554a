// Package testutil provides shared test helpers: hand-rolled assertions and a
// mock capture engine speaking the real WebSocket protocol.
package testutil

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// AssertEqual checks if two values are equal
func AssertEqual(t *testing.T, expected, actual interface{}, msg string) {
	t.Helper()
	if expected != actual {
		t.Fatalf("%s: expected %v, got %v", msg, expected, actual)
	}
}

// AssertTrue checks if a condition is true
func AssertTrue(t *testing.T, condition bool, msg string) {
	t.Helper()
	if !condition {
		t.Fatalf("%s: expected true, got false", msg)
	}
}

// AssertFalse checks if a condition is false
func AssertFalse(t *testing.T, condition bool, msg string) {
	t.Helper()
	if condition {
		t.Fatalf("%s: expected false, got true", msg)
	}
}

// AssertNoError checks if an error is nil
func AssertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", msg, err)
	}
}

// AssertError checks if an error is not nil
func AssertError(t *testing.T, err error, msg string) {
	t.Helper()
	if err == nil {
		t.Fatalf("%s: expected an error but got nil", msg)
	}
}

// AssertErrorIs checks if err wraps target
func AssertErrorIs(t *testing.T, err, target error, msg string) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("%s: error %v does not wrap %v", msg, err, target)
	}
}

// AssertErrorContains checks if an error contains a specific substring
func AssertErrorContains(t *testing.T, err error, substr string, msg string) {
	t.Helper()
	if err == nil {
		t.Fatalf("%s: expected an error but got nil", msg)
	}
	if !strings.Contains(err.Error(), substr) {
		t.Fatalf("%s: error %q does not contain %q", msg, err.Error(), substr)
	}
}

// WithinDuration checks if a duration is within expected range
func WithinDuration(t *testing.T, actual, expected, tolerance time.Duration, msg string) {
	t.Helper()
	diff := actual - expected
	if diff < 0 {
		diff = -diff
	}

	if diff > tolerance {
		t.Fatalf("%s: duration %v not within %v of expected %v (diff: %v)",
			msg, actual, tolerance, expected, diff)
	}
}

// WaitForCondition waits for a condition to become true within timeout
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("%s: condition not met within %v", msg, timeout)
}
