// Package taxonomy defines the session runtime's error taxonomy (spec §7):
// six concrete error types that drive graph routing decisions instead of
// string matching, each chainable via the standard errors.Is/errors.As
// contract.
package taxonomy

import (
	"errors"
	"fmt"
)

// ValidationError reports that the compiler or the validate node rejected
// structurally invalid input. Recovered locally via one repair+retry;
// otherwise surfaced to HITL_review with Detail as the explanation.
type ValidationError struct {
	NodeID     string
	FailedAt   string // anchor name, op index, or field path
	Detail     string
	Cause      error
}

func (e *ValidationError) Error() string {
	if e.FailedAt != "" {
		return fmt.Sprintf("validation failed at %s: %s", e.FailedAt, e.Detail)
	}
	return fmt.Sprintf("validation failed: %s", e.Detail)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// SchemaMismatchError reports that a node type is unknown or its anchor
// shape does not match what the compiler expected. Routes to repair_schema,
// budget-gated by max_schema_repairs_per_iter.
type SchemaMismatchError struct {
	NodeType string
	Detail   string
	Cause    error
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch for node type %q: %s", e.NodeType, e.Detail)
}

func (e *SchemaMismatchError) Unwrap() error { return e.Cause }

// WriteConflictError reports that WriteGuard's pre-write hash check failed:
// the target flow changed between load_current_flow and apply_patch. Not
// retried automatically.
type WriteConflictError struct {
	TargetID     string
	ExpectedHash string
	ObservedHash string
	Cause        error
}

func (e *WriteConflictError) Error() string {
	return fmt.Sprintf("write conflict on %s: expected hash %s, observed %s",
		e.TargetID, e.ExpectedHash, e.ObservedHash)
}

func (e *WriteConflictError) Unwrap() error { return e.Cause }

// BudgetExceededError reports that preflight_validate_patch rejected a patch
// for exceeding an ops-count, repair-count, or retry-count budget. Routes to
// HITL_review, never to apply_patch.
type BudgetExceededError struct {
	Budget   string // "max_patch_ops_per_iter" | "max_schema_repairs_per_iter" | "max_total_retries_per_iter"
	Limit    int
	Observed int
	Cause    error
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget %s exceeded: observed %d, limit %d", e.Budget, e.Observed, e.Limit)
}

func (e *BudgetExceededError) Unwrap() error { return e.Cause }

// ExternalError reports a non-2xx or timed-out response from the platform
// API. The evaluate node may classify the surrounding iteration as
// "iterate" (plausibly transient, Transient=true) or "done-with-failure".
type ExternalError struct {
	Endpoint   string
	StatusCode int
	BodyExcerpt string
	Transient  bool
	Cause      error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("external error calling %s: status=%d %s", e.Endpoint, e.StatusCode, e.BodyExcerpt)
}

func (e *ExternalError) Unwrap() error { return e.Cause }

// InternalError reports an unexpected failure inside a node. The session is
// checkpointed, an `node_error` event is emitted, and the run is parked
// awaiting operator resume.
type InternalError struct {
	NodeID string
	Detail string
	Cause  error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error in node %s: %s", e.NodeID, e.Detail)
}

func (e *InternalError) Unwrap() error { return e.Cause }

// FromError wraps an arbitrary error as an InternalError if it does not
// already belong to the taxonomy, mirroring toolerrors.FromError's chain
// preservation so a node handler can always report *some* taxonomy error
// without losing the original cause.
func FromError(nodeID string, err error) error {
	if err == nil {
		return nil
	}
	var (
		ve *ValidationError
		se *SchemaMismatchError
		we *WriteConflictError
		be *BudgetExceededError
		xe *ExternalError
		ie *InternalError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &se), errors.As(err, &we),
		errors.As(err, &be), errors.As(err, &xe), errors.As(err, &ie):
		return err
	default:
		return &InternalError{NodeID: nodeID, Detail: err.Error(), Cause: err}
	}
}
