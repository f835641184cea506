// Package domain holds the core marketplace types.
// A Job is one escrowed unit of work that flows through the market:
// post → claim → submit → approve/dispute → payout.
package domain

import "time"

// JobStatus tracks the escrow lifecycle of a job.
type JobStatus string

const (
	JobOpen      JobStatus = "OPEN"      // Posted, payment locked, awaiting a worker
	JobClaimed   JobStatus = "CLAIMED"   // Worker staked and is producing the result
	JobSubmitted JobStatus = "SUBMITTED" // Result delivered, awaiting poster review
	JobCompleted JobStatus = "COMPLETED" // Paid out — terminal
	JobDisputed  JobStatus = "DISPUTED"  // Poster rejected the result, arbiter decides
	JobCancelled JobStatus = "CANCELLED" // Withdrawn or dispute lost — terminal
	JobExpired   JobStatus = "EXPIRED"   // Deadline passed while claimed — terminal
)

// Category classifies jobs for browsing and capability matching.
type Category string

const (
	CatGeneral   Category = "general"
	CatCode      Category = "code"
	CatResearch  Category = "research"
	CatWriting   Category = "writing"
	CatAnalysis  Category = "analysis"
	CatTranslate Category = "translate"
)

// Job is one unit of escrowed work.
type Job struct {
	ID            int64     `json:"id"`
	Poster        string    `json:"poster"`
	Worker        string    `json:"worker,omitempty"` // Unset until claimed
	Description   string    `json:"description"`
	Category      Category  `json:"category"`
	Payment       int64     `json:"payment"`        // Credits locked at post time
	StakeRequired int64     `json:"stake_required"` // Fixed at post time, immutable
	WorkerStake   int64     `json:"worker_stake"`   // Actually staked at claim time
	Status        JobStatus `json:"status"`
	Result        string    `json:"result,omitempty"` // Opaque reference, set once at submit
	CreatedAt     time.Time `json:"created_at"`
	Deadline      time.Time `json:"deadline"`
	SubmittedAt   time.Time `json:"submitted_at,omitempty"`
}

// IsTerminal returns true once the job can never transition again.
func (j *Job) IsTerminal() bool {
	return j.Status == JobCompleted || j.Status == JobCancelled || j.Status == JobExpired
}

// IsOpenAt reports whether the job can still be claimed at the given instant.
func (j *Job) IsOpenAt(now time.Time) bool {
	return j.Status == JobOpen && now.Before(j.Deadline)
}

// Payout records where the escrowed funds went when a job completed.
type Payout struct {
	JobID   int64  `json:"job_id"`
	Worker  string `json:"worker"`
	Payment int64  `json:"payment"`
	Fee     int64  `json:"fee"`   // Protocol fee, credited to the fee account
	Stake   int64  `json:"stake"` // Worker stake returned
	Total   int64  `json:"total"` // payment - fee + stake, credited to the worker
}

// ─── Agent Stats ────────────────────────────────────────────────────────────

// Reputation bounds. Scores saturate at the limits.
const (
	ReputationMin   = 0
	ReputationMax   = 1000
	ReputationStart = 500
	ReputationStep  = 100
)

// AgentStats are per-address counters, created lazily on first
// interaction and mutated only by the ledger.
type AgentStats struct {
	Address       string `json:"address"`
	JobsPosted    int64  `json:"jobs_posted"`
	JobsCompleted int64  `json:"jobs_completed"`
	JobsFailed    int64  `json:"jobs_failed"`
	TotalEarned   int64  `json:"total_earned"`
	TotalSpent    int64  `json:"total_spent"`
	Reputation    int64  `json:"reputation"`
}

// AdjustReputation applies a delta, saturating at the bounds.
func (a *AgentStats) AdjustReputation(delta int64) {
	a.Reputation += delta
	if a.Reputation > ReputationMax {
		a.Reputation = ReputationMax
	}
	if a.Reputation < ReputationMin {
		a.Reputation = ReputationMin
	}
}
