// Package worker implements the autonomous polling scheduler. It scans
// the job ledger for eligible open jobs, asks the capability evaluator
// whether they are worth claiming, claims them under a bounded
// concurrency cap, runs the work executor under a soft deadline, and
// submits the result. Failures quarantine the job id for a while so the
// ledger is not hammered with doomed retries.
package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quarry-network/quarry/internal/domain"
	"github.com/quarry-network/quarry/internal/infra/events"
	"github.com/quarry-network/quarry/internal/infra/metrics"
)

// JobBoard is the slice of the ledger the scheduler needs. The claim
// call is the optimistic-concurrency boundary: under contention the
// first valid claim wins and later ones fail.
type JobBoard interface {
	OpenJobs(limit int) ([]domain.Job, error)
	Claim(jobID int64, claimant string, stakeOffered int64) error
	Submit(jobID int64, caller, result string) error
}

// Config configures the scheduler.
type Config struct {
	Address             string        // This worker's on-ledger address
	ScanInterval        time.Duration // Timer period between scan cycles
	ScanWindow          int           // How many open jobs to fetch per cycle
	MinPayment          int64         // Skip jobs paying less than this
	MaxConcurrent       int           // Cap on claimed-and-in-flight jobs
	ConfidenceThreshold int           // Minimum evaluator confidence (0–100)
	ProcessingTimeout   time.Duration // Soft per-job deadline for the executor
	QuarantineDuration  time.Duration // How long a failed job id is excluded
	QueryRetries        int           // Bounded retries on open-jobs queries
	QueryBaseDelay      time.Duration // First retry delay; doubles per attempt
}

// DefaultConfig returns production scheduler defaults.
func DefaultConfig(address string) Config {
	return Config{
		Address:             address,
		ScanInterval:        15 * time.Second,
		ScanWindow:          50,
		MinPayment:          100,
		MaxConcurrent:       3,
		ConfidenceThreshold: 60,
		ProcessingTimeout:   2 * time.Minute,
		QuarantineDuration:  10 * time.Minute,
		QueryRetries:        3,
		QueryBaseDelay:      250 * time.Millisecond,
	}
}

// Status is the scheduler's control-surface snapshot.
type Status struct {
	WorkerID    string `json:"worker_id"`
	Address     string `json:"address"`
	Running     bool   `json:"running"`
	ActiveJobs  int    `json:"active_jobs"`
	Quarantined int    `json:"quarantined"`
}

// Scheduler polls the board and drives claimed jobs to submission.
type Scheduler struct {
	id        string
	config    Config
	board     JobBoard
	evaluator domain.CapabilityEvaluator
	executor  domain.WorkExecutor
	bus       *events.Bus

	active     *idSet
	quarantine *expiringSet

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc

	now func() time.Time // injectable clock for testing
}

// New creates a scheduler. All collaborators are injected; nothing is
// looked up ambiently.
func New(cfg Config, board JobBoard, evaluator domain.CapabilityEvaluator, executor domain.WorkExecutor, bus *events.Bus) *Scheduler {
	return &Scheduler{
		id:         "worker-" + uuid.NewString()[:8],
		config:     cfg,
		board:      board,
		evaluator:  evaluator,
		executor:   executor,
		bus:        bus,
		active:     newIDSet(),
		quarantine: newExpiringSet(),
		now:        time.Now,
	}
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

// Start performs one immediate scan and arms the repeating scan timer.
// Idempotent: calling Start while running is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	ctx, s.cancel = context.WithCancel(ctx)
	log.Printf("[worker] %s starting (max %d concurrent, scan every %s)",
		s.id, s.config.MaxConcurrent, s.config.ScanInterval)

	go s.scanAndProcess()
	go func() {
		ticker := time.NewTicker(s.config.ScanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Each cycle runs in its own goroutine. The ticker does
				// not wait for a cycle to finish, so cycles overlap;
				// the shared sets make that safe.
				go s.scanAndProcess()
			}
		}
	}()
}

// Stop disarms the scan timer. Jobs already in flight run to completion
// or to their soft timeout; only future cycles are cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.cancel()
	log.Printf("[worker] %s stopped (%d jobs still in flight)", s.id, s.active.Len())
}

// Status returns the scheduler's control-surface snapshot.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return Status{
		WorkerID:    s.id,
		Address:     s.config.Address,
		Running:     running,
		ActiveJobs:  s.active.Len(),
		Quarantined: s.quarantine.Len(),
	}
}

// ─── Scan Cycle ─────────────────────────────────────────────────────────────

// scanAndProcess is one cycle: fetch candidates, filter, evaluate,
// claim, process. One job's failure never aborts the cycle.
func (s *Scheduler) scanAndProcess() {
	if s.active.Len() >= s.config.MaxConcurrent {
		metrics.ScanCycles.WithLabelValues("at_capacity").Inc()
		return
	}
	s.quarantine.Sweep(s.now()) // memory hygiene; filtering below is lazy anyway
	metrics.QuarantinedJobs.Set(float64(s.quarantine.Len()))

	jobs, err := s.fetchOpenJobs()
	if err != nil {
		log.Printf("[worker] %s: open jobs query failed after retries: %v", s.id, err)
		metrics.ScanCycles.WithLabelValues("query_failed").Inc()
		return
	}
	metrics.ScanCycles.WithLabelValues("ok").Inc()

	for _, job := range jobs {
		if job.Payment < s.config.MinPayment {
			continue
		}
		if s.active.Contains(job.ID) {
			continue
		}
		if s.quarantine.Contains(job.ID, s.now()) {
			continue
		}

		ev, err := s.evaluator.Evaluate(context.Background(), job)
		if err != nil {
			log.Printf("[worker] %s: evaluate job %d: %v", s.id, job.ID, err)
			continue
		}
		if !ev.CanDo || ev.Confidence < s.config.ConfidenceThreshold {
			continue
		}

		// Reserve capacity before claiming so two overlapping cycles
		// cannot both claim past the cap.
		if !s.active.TryAdd(job.ID, s.config.MaxConcurrent) {
			if s.active.Len() >= s.config.MaxConcurrent {
				break
			}
			continue // another cycle took this job
		}

		if err := s.board.Claim(job.ID, s.config.Address, job.StakeRequired); err != nil {
			// Lost the race or ineligible — routine, not a failure.
			// No quarantine: the job may be claimable again later.
			s.active.Remove(job.ID)
			metrics.ClaimsLost.Inc()
			log.Printf("[worker] %s: claim job %d: %v", s.id, job.ID, err)
			continue
		}
		metrics.ActiveJobs.Set(float64(s.active.Len()))

		s.process(job)

		if s.active.Len() >= s.config.MaxConcurrent {
			break
		}
	}
}

// process runs the executor against its soft deadline. The deadline
// frees scheduler capacity; the ledger's own deadline later frees the
// escrowed funds via expire if the work never lands.
func (s *Scheduler) process(job domain.Job) {
	// Deliberately not derived from the scan context: Stop cancels
	// future cycles, not in-flight work.
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ProcessingTimeout)
	defer cancel()

	type outcome struct {
		result string
		err    error
	}
	// Buffered so a late executor result is discarded without leaking
	// the goroutine.
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		result, err := s.executor.Execute(ctx, job)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		s.fail(job, &domain.ProcessingTimeoutError{JobID: job.ID})
	case out := <-done:
		metrics.ExecuteLatency.Observe(time.Since(start).Seconds())
		if out.err != nil {
			s.fail(job, &domain.ExternalServiceError{Service: "executor", Err: out.err})
			return
		}
		if err := s.board.Submit(job.ID, s.config.Address, out.result); err != nil {
			s.fail(job, err)
			return
		}
		s.active.Remove(job.ID)
		metrics.ActiveJobs.Set(float64(s.active.Len()))
		metrics.JobsProcessed.WithLabelValues("submitted").Inc()
	}
}

// fail releases the job locally and quarantines it. The ledger is
// untouched: the job stays CLAIMED until its deadline triggers expire.
func (s *Scheduler) fail(job domain.Job, cause error) {
	s.active.Remove(job.ID)
	s.quarantine.Add(job.ID, s.now().Add(s.config.QuarantineDuration))
	metrics.ActiveJobs.Set(float64(s.active.Len()))
	metrics.QuarantinedJobs.Set(float64(s.quarantine.Len()))
	metrics.JobsProcessed.WithLabelValues("failed").Inc()

	log.Printf("[worker] %s: job %d failed, quarantined for %s: %v",
		s.id, job.ID, s.config.QuarantineDuration, cause)
	if s.bus != nil {
		s.bus.Publish(events.Event{
			Type: events.WorkFailed, JobID: job.ID,
			Agent: s.config.Address, Reason: cause.Error(),
		})
	}
}

// fetchOpenJobs queries the board with bounded retries and doubling
// delays; transient query errors become a cycle-level failure only
// after the retries are spent.
func (s *Scheduler) fetchOpenJobs() ([]domain.Job, error) {
	delay := s.config.QueryBaseDelay
	var lastErr error
	for attempt := 0; attempt <= s.config.QueryRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			delay *= 2
		}
		jobs, err := s.board.OpenJobs(s.config.ScanWindow)
		if err == nil {
			return jobs, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
