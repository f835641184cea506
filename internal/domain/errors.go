package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrAgentNotFound = errors.New("agent not found")
)

// ─── Error Taxonomy ─────────────────────────────────────────────────────────
// Every ledger operation fails with exactly one of these classes. A failed
// call is a complete no-op: no partial state survives.

// ValidationError rejects malformed input before any mutation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

// StateError means the operation is invalid for the job's current status.
type StateError struct {
	Op     string
	Status JobStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state: cannot %s a %s job", e.Op, e.Status)
}

// AuthorizationError means the caller lacks the required role.
type AuthorizationError struct {
	Caller string
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization: %s: %s", e.Caller, e.Reason)
}

// InsufficientFundsError means a stake or payment is below requirement.
type InsufficientFundsError struct {
	Need int64
	Have int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %d, have %d", e.Need, e.Have)
}

// DeadlineError means a deadline has not yet been reached, or has
// already passed, depending on the operation's direction.
type DeadlineError struct {
	Reason string
}

func (e *DeadlineError) Error() string { return "deadline: " + e.Reason }

// TransferError means a fund movement failed. The whole transition is
// aborted — no status change without its fund movement.
type TransferError struct {
	From   string
	To     string
	Amount int64
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %d from %s to %s: %v", e.Amount, e.From, e.To, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// ExternalServiceError wraps a failure from an evaluator or executor
// collaborator. Scheduler-local; never surfaced by the ledger.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// ProcessingTimeoutError means the work executor exceeded the
// scheduler's soft per-job timeout.
type ProcessingTimeoutError struct {
	JobID int64
}

func (e *ProcessingTimeoutError) Error() string {
	return fmt.Sprintf("processing job %d timed out", e.JobID)
}
