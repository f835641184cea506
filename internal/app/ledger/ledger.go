// Package ledger implements the escrow state machine for jobs.
// Every lifecycle transition is applied inside a single store
// transaction: the status change, the fund movements, and the agent
// stat updates commit together or not at all. A failed operation is a
// complete no-op for callers.
//
// Lifecycle:
//
//	OPEN ──claim──► CLAIMED ──submit──► SUBMITTED ──approve/auto──► COMPLETED
//	  │                │                    │
//	cancel           expire              dispute ──► DISPUTED ──resolve──► COMPLETED/CANCELLED
//	  ▼                ▼
//	CANCELLED       EXPIRED
package ledger

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/quarry-network/quarry/internal/domain"
	"github.com/quarry-network/quarry/internal/infra/events"
	"github.com/quarry-network/quarry/internal/infra/metrics"
	"github.com/quarry-network/quarry/internal/infra/sqlite"
)

// Config holds the protocol parameters. All rates are integral so the
// escrow arithmetic is exact: stake is a percentage of payment, the fee
// is expressed in basis points.
type Config struct {
	MinPayment       int64         // Smallest postable payment, in credits
	StakePct         int64         // Worker stake as % of payment
	FeeBps           int64         // Protocol fee in basis points (250 = 2.5%)
	AutoApproveDelay time.Duration // How long a poster has to review a submission
	MaxResultLen     int           // Result references longer than this are truncated
	MinDeadlineHours int
	MaxDeadlineHours int
	Arbiter          string // The only address allowed to resolve disputes
	FeeAccount       string // Where protocol fees accumulate
}

// DefaultConfig returns production protocol defaults.
func DefaultConfig() Config {
	return Config{
		MinPayment:       100,
		StakePct:         10,
		FeeBps:           250,
		AutoApproveDelay: 24 * time.Hour,
		MaxResultLen:     4096,
		MinDeadlineHours: 1,
		MaxDeadlineHours: 168,
		Arbiter:          "arbiter",
		FeeAccount:       "treasury",
	}
}

// Ledger is the sole mutation surface for jobs and agent stats.
type Ledger struct {
	db     *sqlite.DB
	config Config
	bus    *events.Bus
	now    func() time.Time // injectable clock for testing
}

// New creates a ledger on top of the store. The bus receives a
// lifecycle event for every applied transition.
func New(db *sqlite.DB, cfg Config, bus *events.Bus) *Ledger {
	return &Ledger{db: db, config: cfg, bus: bus, now: time.Now}
}

// Config returns the protocol parameters the ledger was built with.
func (l *Ledger) Config() Config { return l.config }

// StakeRequired computes the stake a worker must lock to claim a job
// with the given payment. Floor division — fixed at post time.
func (l *Ledger) StakeRequired(payment int64) int64 {
	return payment * l.config.StakePct / 100
}

// ─── Operations ─────────────────────────────────────────────────────────────

// Post creates a new OPEN job, locking payment into escrow. Returns the
// assigned job id.
func (l *Ledger) Post(poster, description string, category domain.Category, deadlineHours int, payment int64) (int64, error) {
	if payment < l.config.MinPayment {
		return 0, reject("post", &domain.ValidationError{
			Reason: fmt.Sprintf("payment %d below minimum %d", payment, l.config.MinPayment),
		})
	}
	if deadlineHours < l.config.MinDeadlineHours || deadlineHours > l.config.MaxDeadlineHours {
		return 0, reject("post", &domain.ValidationError{
			Reason: fmt.Sprintf("deadline %dh outside [%d, %d] hours",
				deadlineHours, l.config.MinDeadlineHours, l.config.MaxDeadlineHours),
		})
	}
	if poster == "" || description == "" {
		return 0, reject("post", &domain.ValidationError{Reason: "poster and description are required"})
	}
	if category == "" {
		category = domain.CatGeneral
	}

	now := l.now()
	var id int64
	err := l.db.Update(func(tx *sqlite.Tx) error {
		job := domain.Job{
			Poster:        poster,
			Description:   description,
			Category:      category,
			Payment:       payment,
			StakeRequired: l.StakeRequired(payment),
			Status:        domain.JobOpen,
			CreatedAt:     now,
			Deadline:      now.Add(time.Duration(deadlineHours) * time.Hour),
		}

		var err error
		id, err = tx.InsertJob(job)
		if err != nil {
			return err
		}

		// Lock the payment. Aborting here rolls back the insert too.
		if err := tx.Transfer(poster, sqlite.AccountEscrow, payment, id, "post"); err != nil {
			return transferErr(poster, sqlite.AccountEscrow, payment, err)
		}

		stats, err := tx.Stats(poster)
		if err != nil {
			return err
		}
		stats.JobsPosted++
		stats.TotalSpent += payment
		return tx.PutStats(stats)
	})
	if err != nil {
		return 0, reject("post", err)
	}

	metrics.JobTransitions.WithLabelValues("post").Inc()
	metrics.CreditsMoved.WithLabelValues("escrow_in").Add(float64(payment))
	l.publish(events.Event{Type: events.JobPosted, JobID: id, Agent: poster, Amount: payment})
	return id, nil
}

// Claim locks the claimant's stake and assigns the job to them.
// First valid claim wins; later claims observe CLAIMED and fail.
func (l *Ledger) Claim(jobID int64, claimant string, stakeOffered int64) error {
	now := l.now()
	err := l.db.Update(func(tx *sqlite.Tx) error {
		job, err := tx.GetJob(jobID)
		if err != nil {
			return err
		}
		if job.Status != domain.JobOpen {
			return &domain.StateError{Op: "claim", Status: job.Status}
		}
		if claimant == job.Poster {
			return &domain.AuthorizationError{Caller: claimant, Reason: "cannot claim own job"}
		}
		if !now.Before(job.Deadline) {
			return &domain.DeadlineError{Reason: "job deadline has passed"}
		}
		if stakeOffered < job.StakeRequired {
			return &domain.InsufficientFundsError{Need: job.StakeRequired, Have: stakeOffered}
		}

		if err := tx.Transfer(claimant, sqlite.AccountEscrow, stakeOffered, jobID, "stake"); err != nil {
			return transferErr(claimant, sqlite.AccountEscrow, stakeOffered, err)
		}

		job.Worker = claimant
		job.WorkerStake = stakeOffered
		job.Status = domain.JobClaimed
		return tx.UpdateJob(job)
	})
	if err != nil {
		return reject("claim", err)
	}

	metrics.JobTransitions.WithLabelValues("claim").Inc()
	metrics.CreditsMoved.WithLabelValues("escrow_in").Add(float64(stakeOffered))
	l.publish(events.Event{Type: events.JobClaimed, JobID: jobID, Agent: claimant, Amount: stakeOffered})
	return nil
}

// Submit stores the worker's result reference and moves the job to
// SUBMITTED. Overlong results are truncated, never rejected.
func (l *Ledger) Submit(jobID int64, caller, result string) error {
	if result == "" {
		return reject("submit", &domain.ValidationError{Reason: "result is required"})
	}
	if len(result) > l.config.MaxResultLen {
		result = result[:l.config.MaxResultLen]
	}

	now := l.now()
	err := l.db.Update(func(tx *sqlite.Tx) error {
		job, err := tx.GetJob(jobID)
		if err != nil {
			return err
		}
		if job.Status != domain.JobClaimed {
			return &domain.StateError{Op: "submit", Status: job.Status}
		}
		if caller != job.Worker {
			return &domain.AuthorizationError{Caller: caller, Reason: "only the assigned worker may submit"}
		}

		job.Result = result
		job.SubmittedAt = now
		job.Status = domain.JobSubmitted
		return tx.UpdateJob(job)
	})
	if err != nil {
		return reject("submit", err)
	}

	metrics.JobTransitions.WithLabelValues("submit").Inc()
	l.publish(events.Event{Type: events.JobSubmitted, JobID: jobID, Agent: caller})
	return nil
}

// Approve accepts a submitted result and pays out. Poster only.
func (l *Ledger) Approve(jobID int64, caller string) (*domain.Payout, error) {
	var payout *domain.Payout
	err := l.db.Update(func(tx *sqlite.Tx) error {
		job, err := tx.GetJob(jobID)
		if err != nil {
			return err
		}
		if job.Status != domain.JobSubmitted {
			return &domain.StateError{Op: "approve", Status: job.Status}
		}
		if caller != job.Poster {
			return &domain.AuthorizationError{Caller: caller, Reason: "only the poster may approve"}
		}

		payout, err = l.complete(tx, job)
		return err
	})
	if err != nil {
		return nil, reject("approve", err)
	}

	l.finishCompleted("approve", payout)
	return payout, nil
}

// AutoApprove completes a submitted job once the poster's review window
// has lapsed. Callable by anyone — this is what prevents indefinite
// fund lock-up behind an unresponsive poster.
func (l *Ledger) AutoApprove(jobID int64) (*domain.Payout, error) {
	now := l.now()
	var payout *domain.Payout
	err := l.db.Update(func(tx *sqlite.Tx) error {
		job, err := tx.GetJob(jobID)
		if err != nil {
			return err
		}
		if job.Status != domain.JobSubmitted {
			return &domain.StateError{Op: "auto-approve", Status: job.Status}
		}
		if now.Before(job.SubmittedAt.Add(l.config.AutoApproveDelay)) {
			return &domain.DeadlineError{Reason: "auto-approve window has not elapsed"}
		}

		payout, err = l.complete(tx, job)
		return err
	})
	if err != nil {
		return nil, reject("auto-approve", err)
	}

	l.finishCompleted("auto-approve", payout)
	return payout, nil
}

// Dispute rejects a submitted result, handing the job to the arbiter.
func (l *Ledger) Dispute(jobID int64, caller string) error {
	err := l.db.Update(func(tx *sqlite.Tx) error {
		job, err := tx.GetJob(jobID)
		if err != nil {
			return err
		}
		if job.Status != domain.JobSubmitted {
			return &domain.StateError{Op: "dispute", Status: job.Status}
		}
		if caller != job.Poster {
			return &domain.AuthorizationError{Caller: caller, Reason: "only the poster may dispute"}
		}

		job.Status = domain.JobDisputed
		return tx.UpdateJob(job)
	})
	if err != nil {
		return reject("dispute", err)
	}

	metrics.JobTransitions.WithLabelValues("dispute").Inc()
	l.publish(events.Event{Type: events.JobDisputed, JobID: jobID, Agent: caller})
	return nil
}

// Cancel withdraws an unclaimed job and refunds the payment.
func (l *Ledger) Cancel(jobID int64, caller string) error {
	var refund int64
	err := l.db.Update(func(tx *sqlite.Tx) error {
		job, err := tx.GetJob(jobID)
		if err != nil {
			return err
		}
		if job.Status != domain.JobOpen {
			return &domain.StateError{Op: "cancel", Status: job.Status}
		}
		if caller != job.Poster {
			return &domain.AuthorizationError{Caller: caller, Reason: "only the poster may cancel"}
		}

		refund = job.Payment
		if err := tx.Transfer(sqlite.AccountEscrow, job.Poster, refund, jobID, "cancel refund"); err != nil {
			return transferErr(sqlite.AccountEscrow, job.Poster, refund, err)
		}

		job.Status = domain.JobCancelled
		return tx.UpdateJob(job)
	})
	if err != nil {
		return reject("cancel", err)
	}

	metrics.JobTransitions.WithLabelValues("cancel").Inc()
	metrics.CreditsMoved.WithLabelValues("refund").Add(float64(refund))
	l.publish(events.Event{Type: events.JobCancelled, JobID: jobID, Agent: caller, Amount: refund})
	return nil
}

// Expire forfeits a claimed job whose deadline has passed: the poster
// recovers payment plus the worker's stake, the worker is penalized.
// Callable by anyone; the second call observes EXPIRED and fails.
func (l *Ledger) Expire(jobID int64, caller string) error {
	now := l.now()
	var worker string
	var refund int64
	err := l.db.Update(func(tx *sqlite.Tx) error {
		job, err := tx.GetJob(jobID)
		if err != nil {
			return err
		}
		if job.Status != domain.JobClaimed {
			return &domain.StateError{Op: "expire", Status: job.Status}
		}
		if !now.After(job.Deadline) {
			return &domain.DeadlineError{Reason: "job deadline has not passed"}
		}

		worker = job.Worker
		refund = job.Payment + job.WorkerStake
		if err := tx.Transfer(sqlite.AccountEscrow, job.Poster, refund, jobID, "expire refund"); err != nil {
			return transferErr(sqlite.AccountEscrow, job.Poster, refund, err)
		}

		if err := l.penalize(tx, worker); err != nil {
			return err
		}

		job.Status = domain.JobExpired
		return tx.UpdateJob(job)
	})
	if err != nil {
		return reject("expire", err)
	}

	log.Printf("[ledger] job %d expired, worker %s forfeited stake (reported by %s)", jobID, worker, caller)
	metrics.JobTransitions.WithLabelValues("expire").Inc()
	metrics.CreditsMoved.WithLabelValues("refund").Add(float64(refund))
	l.publish(events.Event{Type: events.JobExpired, JobID: jobID, Agent: worker, Amount: refund})
	return nil
}

// ResolveDispute is the arbiter's verdict on a DISPUTED job. A worker
// win completes the job with full payout; a loss refunds the poster and
// penalizes the worker as an expiry would.
func (l *Ledger) ResolveDispute(jobID int64, arbiter string, workerWins bool) error {
	if arbiter != l.config.Arbiter {
		return reject("resolve", &domain.AuthorizationError{Caller: arbiter, Reason: "not the designated arbiter"})
	}

	var payout *domain.Payout
	var worker string
	var refund int64
	err := l.db.Update(func(tx *sqlite.Tx) error {
		job, err := tx.GetJob(jobID)
		if err != nil {
			return err
		}
		if job.Status != domain.JobDisputed {
			return &domain.StateError{Op: "resolve", Status: job.Status}
		}

		if workerWins {
			payout, err = l.complete(tx, job)
			return err
		}

		worker = job.Worker
		refund = job.Payment + job.WorkerStake
		if err := tx.Transfer(sqlite.AccountEscrow, job.Poster, refund, jobID, "dispute refund"); err != nil {
			return transferErr(sqlite.AccountEscrow, job.Poster, refund, err)
		}
		if err := l.penalize(tx, worker); err != nil {
			return err
		}
		job.Status = domain.JobCancelled
		return tx.UpdateJob(job)
	})
	if err != nil {
		return reject("resolve", err)
	}

	if workerWins {
		l.finishCompleted("resolve", payout)
	} else {
		metrics.JobTransitions.WithLabelValues("resolve").Inc()
		metrics.CreditsMoved.WithLabelValues("refund").Add(float64(refund))
		l.publish(events.Event{Type: events.JobResolved, JobID: jobID, Agent: worker, Amount: refund, Reason: "poster wins"})
	}
	return nil
}

// Deposit mints credits into an agent's account from the reserve.
// How funds enter the demo economy; a production deployment would
// bridge from an external settlement layer instead.
func (l *Ledger) Deposit(address string, amount int64) error {
	if address == "" || amount <= 0 {
		return &domain.ValidationError{Reason: "deposit needs an address and a positive amount"}
	}
	return l.db.Update(func(tx *sqlite.Tx) error {
		return tx.Transfer(sqlite.AccountReserve, address, amount, 0, "deposit")
	})
}

// ─── Internal ───────────────────────────────────────────────────────────────

// complete pays out a job: worker receives payment − fee + stake, the
// fee account receives the fee. Shared by approve, auto-approve, and a
// dispute resolved in the worker's favor.
func (l *Ledger) complete(tx *sqlite.Tx, job *domain.Job) (*domain.Payout, error) {
	fee := job.Payment * l.config.FeeBps / 10000
	total := job.Payment - fee + job.WorkerStake

	if err := tx.Transfer(sqlite.AccountEscrow, job.Worker, total, job.ID, "payout"); err != nil {
		return nil, transferErr(sqlite.AccountEscrow, job.Worker, total, err)
	}
	if fee > 0 {
		if err := tx.Transfer(sqlite.AccountEscrow, l.config.FeeAccount, fee, job.ID, "fee"); err != nil {
			return nil, transferErr(sqlite.AccountEscrow, l.config.FeeAccount, fee, err)
		}
	}

	stats, err := tx.Stats(job.Worker)
	if err != nil {
		return nil, err
	}
	stats.JobsCompleted++
	stats.TotalEarned += job.Payment - fee
	stats.AdjustReputation(domain.ReputationStep)
	if err := tx.PutStats(stats); err != nil {
		return nil, err
	}

	job.Status = domain.JobCompleted
	if err := tx.UpdateJob(job); err != nil {
		return nil, err
	}

	return &domain.Payout{
		JobID:   job.ID,
		Worker:  job.Worker,
		Payment: job.Payment,
		Fee:     fee,
		Stake:   job.WorkerStake,
		Total:   total,
	}, nil
}

// penalize records a failed job against a worker.
func (l *Ledger) penalize(tx *sqlite.Tx, worker string) error {
	stats, err := tx.Stats(worker)
	if err != nil {
		return err
	}
	stats.JobsFailed++
	stats.AdjustReputation(-domain.ReputationStep)
	return tx.PutStats(stats)
}

// finishCompleted records metrics and events for a successful payout.
func (l *Ledger) finishCompleted(op string, p *domain.Payout) {
	metrics.JobTransitions.WithLabelValues(op).Inc()
	metrics.CreditsMoved.WithLabelValues("payout").Add(float64(p.Total))
	metrics.CreditsMoved.WithLabelValues("fee").Add(float64(p.Fee))
	l.publish(events.Event{Type: events.JobCompleted, JobID: p.JobID, Agent: p.Worker, Amount: p.Total})
}

func (l *Ledger) publish(ev events.Event) {
	if l.bus != nil {
		l.bus.Publish(ev)
	}
}

// reject counts a failed operation by error class and passes it through.
func reject(op string, err error) error {
	metrics.LedgerRejections.WithLabelValues(op, errClass(err)).Inc()
	return err
}

func transferErr(from, to string, amount int64, err error) error {
	var insufficient *domain.InsufficientFundsError
	if errors.As(err, &insufficient) {
		return insufficient
	}
	return &domain.TransferError{From: from, To: to, Amount: amount, Err: err}
}

func errClass(err error) string {
	var (
		validation   *domain.ValidationError
		state        *domain.StateError
		auth         *domain.AuthorizationError
		insufficient *domain.InsufficientFundsError
		deadline     *domain.DeadlineError
		transfer     *domain.TransferError
	)
	switch {
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &state):
		return "state"
	case errors.As(err, &auth):
		return "authorization"
	case errors.As(err, &insufficient):
		return "insufficient_funds"
	case errors.As(err, &deadline):
		return "deadline"
	case errors.As(err, &transfer):
		return "transfer"
	case errors.Is(err, domain.ErrJobNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
