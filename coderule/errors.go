/*
errors.go - Error types for the rule engine

PURPOSE:
  All rule-engine error types in one place. Workflow code wraps these with
  request-level context where needed.

ERROR CATEGORIES:
  1. Catalog errors - Rule fetch and lookup failures
  2. Analysis errors - Reverse-mapping failures

SEE ALSO:
  - catalog.go: Uses FetchError
  - assemble.go: Uses ErrMissingAnalysis
*/
package coderule

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRuleNotFound is returned when a referenced rule code is not in the
	// loaded catalog.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrGroupNotFound is returned when a referenced group is not part of
	// the resolved rule.
	ErrGroupNotFound = errors.New("group not found")

	// ErrStepNotFound is returned when a referenced step is not part of the
	// resolved group.
	ErrStepNotFound = errors.New("step not found")

	// ErrCatalogNotLoaded is returned when an operation requires rules and
	// none were ever loaded.
	ErrCatalogNotLoaded = errors.New("rule catalog not loaded")

	// ErrMissingAnalysis is returned when a selection must be reconstructed
	// from an existing code but no server analysis is available. Client-side
	// reverse parsing is lossy and is never used as a silent fallback.
	ErrMissingAnalysis = errors.New("code analysis missing")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FetchError wraps an upstream load failure. The catalog keeps its previous
// state when Load fails, so callers may retry without losing stale-but-valid
// rules.
type FetchError struct {
	Resource string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.Resource, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsNotFound returns true if the error indicates a missing catalog entry.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRuleNotFound) ||
		errors.Is(err, ErrGroupNotFound) ||
		errors.Is(err, ErrStepNotFound)
}
