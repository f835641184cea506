package domain

import "context"

// ─── Collaborator Interfaces ────────────────────────────────────────────────
// The heuristics that decide whether a job is doable and produce the
// actual result live outside the core. The scheduler only sees these
// two interfaces; tests and the daemon plug in their own implementations.

// Evaluation is a capability evaluator's verdict on a job.
type Evaluation struct {
	CanDo      bool   `json:"can_do"`
	Confidence int    `json:"confidence"` // 0–100
	Reason     string `json:"reason"`
}

// CapabilityEvaluator scores whether (and how confidently) this worker
// can perform a job. No side effects are assumed.
type CapabilityEvaluator interface {
	Evaluate(ctx context.Context, job Job) (Evaluation, error)
}

// WorkExecutor produces the result for a claimed job. It may fail or
// exceed the scheduler's timeout; it must be safely re-invocable, since
// the scheduler retries quarantined jobs after their exclusion expires.
// The context carries the soft deadline — implementations should honor
// cancellation, but a late result is discarded either way.
type WorkExecutor interface {
	Execute(ctx context.Context, job Job) (string, error)
}
