package engine

import "fmt"

// ValidationError rejects an operation before any write happens. Operations
// that return it are never partially applied.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StoreUnavailableError wraps transient store I/O failures. The operation is
// safe to retry; a retry may duplicate ledger records, which callers accept as
// an at-least-once cost.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// PartialPipelineFailure reports a multi-write operation that failed after its
// first write already landed. CreatedID names the document that exists so the
// caller can complete or reconcile; nothing is rolled back.
type PartialPipelineFailure struct {
	Step      string
	CreatedID string
	Err       error
}

func (e *PartialPipelineFailure) Error() string {
	return fmt.Sprintf("pipeline step %s failed after creating %s: %v", e.Step, e.CreatedID, e.Err)
}

func (e *PartialPipelineFailure) Unwrap() error { return e.Err }
