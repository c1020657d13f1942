// =============================================================================
// CONFIG VALIDATION - FAIL FAST, ACCUMULATE ALL ERRORS
// =============================================================================
//
// WHY VALIDATE CONFIG AT STARTUP?
//
//   Bad config is the #1 cause of production outages. Catching it at startup
//   (fail-fast) is much better than discovering it at 3 AM.
//
//   PATTERN: ACCUMULATE ERRORS
//   Collect every validation failure and return them together so the
//   operator can fix everything in one pass instead of playing whack-a-mole.
//
// =============================================================================

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidationError holds one or more configuration validation failures.
type ValidationError struct {
	Errors []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0])
	}
	var b strings.Builder
	b.WriteString("configuration validation failed:\n")
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, err)
	}
	return b.String()
}

// Validate checks a config File for common mistakes, returning nil if valid
// or a *ValidationError with every problem found.
func (f *File) Validate() error {
	var errs []string

	if f.DataDir == "" {
		errs = append(errs, "data_dir: must not be empty")
	} else {
		errs = append(errs, validateDataDir(f.DataDir)...)
	}

	if f.NodeID != "" && strings.ContainsAny(f.NodeID, " \t\n\r") {
		errs = append(errs, "node_id: must not contain whitespace")
	}

	if f.LogLevel != "" {
		if _, ok := parseLogLevel(f.LogLevel); !ok {
			errs = append(errs, fmt.Sprintf("log_level: unknown level %q (want debug, info, warn, or error)", f.LogLevel))
		}
	}

	errs = append(errs, validateCoordinator(f.Coordinator)...)

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func validateDataDir(dir string) []string {
	var errs []string

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return append(errs, fmt.Sprintf("data_dir: cannot resolve path %q: %v", dir, err))
	}

	info, err := os.Stat(absDir)
	if err == nil {
		if !info.IsDir() {
			errs = append(errs, fmt.Sprintf("data_dir: %q exists but is not a directory", absDir))
		}
		return errs
	}
	if !os.IsNotExist(err) {
		return append(errs, fmt.Sprintf("data_dir: cannot access %q: %v", absDir, err))
	}

	parent := filepath.Dir(absDir)
	if _, err := os.Stat(parent); err != nil {
		errs = append(errs, fmt.Sprintf("data_dir: %q does not exist and parent %q is not accessible: %v", absDir, parent, err))
	}
	return errs
}

// validateCoordinator checks the TransactionCoordinator tunables spec.md §6
// names: none may be negative (zero keeps the default), and when both are
// set the heartbeat interval must be shorter than the session timeout.
func validateCoordinator(c CoordinatorFile) []string {
	var errs []string

	nonNegative := func(field string, ms int64) {
		if ms < 0 {
			errs = append(errs, fmt.Sprintf("coordinator.%s: must not be negative, got %dms", field, ms))
		}
	}
	nonNegative("transaction_timeout_ms", c.TransactionTimeoutMs)
	nonNegative("heartbeat_interval_ms", c.HeartbeatIntervalMs)
	nonNegative("session_timeout_ms", c.SessionTimeoutMs)
	nonNegative("check_interval_ms", c.CheckIntervalMs)
	nonNegative("snapshot_interval_ms", c.SnapshotIntervalMs)

	if c.HeartbeatIntervalMs > 0 && c.SessionTimeoutMs > 0 && c.HeartbeatIntervalMs >= c.SessionTimeoutMs {
		errs = append(errs, fmt.Sprintf(
			"coordinator.heartbeat_interval_ms (%s) must be less than session_timeout_ms (%s), or a single missed heartbeat always times out the session",
			durationMs(c.HeartbeatIntervalMs), durationMs(c.SessionTimeoutMs)))
	}

	if c.MaxTransactionsPerProducer < 0 {
		errs = append(errs, fmt.Sprintf("coordinator.max_transactions_per_producer: must not be negative, got %d", c.MaxTransactionsPerProducer))
	}

	if c.OffsetsPartitionCount < 0 {
		errs = append(errs, fmt.Sprintf("coordinator.offsets_partition_count: must not be negative, got %d", c.OffsetsPartitionCount))
	}

	return errs
}
