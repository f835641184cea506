package ledger

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quarry-network/quarry/internal/domain"
	"github.com/quarry-network/quarry/internal/infra/events"
	"github.com/quarry-network/quarry/internal/infra/sqlite"
)

// testLedger wraps a Ledger over a throwaway store with a frozen,
// manually-advanced clock.
type testLedger struct {
	*Ledger
	clock time.Time
}

func newTestLedger(t *testing.T) *testLedger {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("sqlite.Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tl := &testLedger{clock: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tl.Ledger = New(db, DefaultConfig(), events.NewBus())
	tl.Ledger.now = func() time.Time { return tl.clock }
	return tl
}

func (tl *testLedger) advance(d time.Duration) { tl.clock = tl.clock.Add(d) }

func (tl *testLedger) fund(t *testing.T, address string, amount int64) {
	t.Helper()
	if err := tl.Deposit(address, amount); err != nil {
		t.Fatalf("Deposit(%s, %d) error: %v", address, amount, err)
	}
}

func (tl *testLedger) mustBalance(t *testing.T, account string) int64 {
	t.Helper()
	bal, err := tl.Balance(account)
	if err != nil {
		t.Fatalf("Balance(%s) error: %v", account, err)
	}
	return bal
}

// post creates a funded poster and an open job: payment 1000, stake 100.
func (tl *testLedger) post(t *testing.T) int64 {
	t.Helper()
	tl.fund(t, "alice", 5000)
	id, err := tl.Post("alice", "translate the docs", domain.CatTranslate, 24, 1000)
	if err != nil {
		t.Fatalf("Post() error: %v", err)
	}
	return id
}

// claim funds bob and claims the job with the exact required stake.
func (tl *testLedger) claim(t *testing.T, jobID int64) {
	t.Helper()
	tl.fund(t, "bob", 5000)
	if err := tl.Claim(jobID, "bob", 100); err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
}

func (tl *testLedger) submit(t *testing.T, jobID int64) {
	t.Helper()
	if err := tl.Submit(jobID, "bob", "ipfs://result"); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
}

// ─── Post ───────────────────────────────────────────────────────────────────

func TestPost_LocksPaymentInEscrow(t *testing.T) {
	tl := newTestLedger(t)
	id := tl.post(t)

	job, err := tl.Job(id)
	if err != nil {
		t.Fatalf("Job() error: %v", err)
	}
	if job.Status != domain.JobOpen {
		t.Errorf("status = %s, want OPEN", job.Status)
	}
	if job.StakeRequired != 100 {
		t.Errorf("stake required = %d, want 100 (10%% of 1000)", job.StakeRequired)
	}
	if !job.Deadline.Equal(tl.clock.Add(24 * time.Hour)) {
		t.Errorf("deadline = %v, want created + 24h", job.Deadline)
	}

	if got := tl.mustBalance(t, "alice"); got != 4000 {
		t.Errorf("alice balance = %d, want 4000", got)
	}
	if got := tl.mustBalance(t, sqlite.AccountEscrow); got != 1000 {
		t.Errorf("escrow balance = %d, want 1000", got)
	}

	stats, _ := tl.Agent("alice")
	if stats.JobsPosted != 1 || stats.TotalSpent != 1000 {
		t.Errorf("poster stats = %+v, want 1 posted / 1000 spent", stats)
	}
}

func TestPost_Validation(t *testing.T) {
	tl := newTestLedger(t)
	tl.fund(t, "alice", 5000)

	cases := []struct {
		name     string
		payment  int64
		deadline int
	}{
		{"below minimum payment", 99, 24},
		{"deadline too short", 1000, 0},
		{"deadline too long", 1000, 169},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tl.Post("alice", "work", domain.CatGeneral, tc.deadline, tc.payment)
			var validation *domain.ValidationError
			if !errors.As(err, &validation) {
				t.Errorf("err = %v, want ValidationError", err)
			}
		})
	}

	// Rejections leave no trace.
	jobs, _ := tl.JobsByStatus("", 10)
	if len(jobs) != 0 {
		t.Errorf("rejected posts created %d jobs", len(jobs))
	}
	if got := tl.mustBalance(t, "alice"); got != 5000 {
		t.Errorf("alice balance = %d, want untouched 5000", got)
	}
}

func TestPost_InsufficientFunds(t *testing.T) {
	tl := newTestLedger(t)
	tl.fund(t, "alice", 500)

	_, err := tl.Post("alice", "work", domain.CatGeneral, 24, 1000)
	var insufficient *domain.InsufficientFundsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientFundsError", err)
	}

	// The insert must roll back with the failed transfer.
	jobs, _ := tl.JobsByStatus("", 10)
	if len(jobs) != 0 {
		t.Errorf("failed post leaked %d jobs", len(jobs))
	}
}

// ─── Claim ──────────────────────────────────────────────────────────────────

func TestClaim_LocksStake(t *testing.T) {
	tl := newTestLedger(t)
	id := tl.post(t)
	tl.claim(t, id)

	job, _ := tl.Job(id)
	if job.Status != domain.JobClaimed || job.Worker != "bob" || job.WorkerStake != 100 {
		t.Errorf("job after claim = %+v", job)
	}
	if got := tl.mustBalance(t, "bob"); got != 4900 {
		t.Errorf("bob balance = %d, want 4900", got)
	}
	if got := tl.mustBalance(t, sqlite.AccountEscrow); got != 1100 {
		t.Errorf("escrow = %d, want payment + stake = 1100", got)
	}
}

func TestClaim_Rejections(t *testing.T) {
	tl := newTestLedger(t)
	id := tl.post(t)
	tl.fund(t, "bob", 5000)

	if err := tl.Claim(id, "alice", 100); err != nil {
		var auth *domain.AuthorizationError
		if !errors.As(err, &auth) {
			t.Errorf("self-claim err = %v, want AuthorizationError", err)
		}
	} else {
		t.Error("poster claimed own job")
	}

	// Understaked claim fails before any transfer.
	err := tl.Claim(id, "bob", 99)
	var insufficient *domain.InsufficientFundsError
	if !errors.As(err, &insufficient) {
		t.Errorf("understaked err = %v, want InsufficientFundsError", err)
	}
	if got := tl.mustBalance(t, "bob"); got != 5000 {
		t.Errorf("bob balance = %d after failed claim, want 5000", got)
	}
	job, _ := tl.Job(id)
	if job.Status != domain.JobOpen || job.Worker != "" {
		t.Errorf("failed claim mutated the job: %+v", job)
	}

	if err := tl.Claim(999, "bob", 100); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("missing job err = %v, want ErrJobNotFound", err)
	}
}

func TestClaim_PastDeadline(t *testing.T) {
	tl := newTestLedger(t)
	id := tl.post(t)
	tl.fund(t, "bob", 5000)

	tl.advance(25 * time.Hour)
	err := tl.Claim(id, "bob", 100)
	var deadline *domain.DeadlineError
	if !errors.As(err, &deadline) {
		t.Errorf("err = %v, want DeadlineError", err)
	}
}

func TestClaim_FirstWriterWins(t *testing.T) {
	tl := newTestLedger(t)
	id := tl.post(t)

	workers := []string{"w1", "w2", "w3", "w4", "w5"}
	for _, w := range workers {
		tl.fund(t, w, 1000)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners []string
	for _, w := range workers {
		wg.Add(1)
		go func(w string) {
			defer wg.Done()
			if err := tl.Claim(id, w, 100); err == nil {
				mu.Lock()
				winners = append(winners, w)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("%d claims succeeded, want exactly 1", len(winners))
	}
	job, _ := tl.Job(id)
	if job.Worker != winners[0] {
		t.Errorf("job assigned to %s, winner was %s", job.Worker, winners[0])
	}
	// Exactly one stake landed in escrow.
	if got := tl.mustBalance(t, sqlite.AccountEscrow); got != 1100 {
		t.Errorf("escrow = %d, want 1100", got)
	}
}

// ─── Submit ─────────────────────────────────────────────────────────────────

func TestSubmit_RecordsResult(t *testing.T) {
	tl := newTestLedger(t)
	id := tl.post(t)
	tl.claim(t, id)
	tl.advance(time.Hour)
	tl.submit(t, id)

	job, _ := tl.Job(id)
	if job.Status != domain.JobSubmitted || job.Result != "ipfs://result" {
		t.Errorf("job after submit = %+v", job)
	}
	if !job.SubmittedAt.Equal(tl.clock) {
		t.Errorf("submitted at = %v, want %v", job.SubmittedAt, tl.clock)
	}
}

func TestSubmit_Rejections(t *testing.T) {
	tl := newTestLedger(t)
	id := tl.post(t)
	tl.claim(t, id)

	err := tl.Submit(id, "bob", "")
	var validation *domain.ValidationError
	if !errors.As(err, &validation) {
		t.Errorf("empty result err = %v, want ValidationError", err)
	}

	err = tl.Submit(id, "mallory", "fake")
	var auth *domain.AuthorizationError
	if !errors.As(err, &auth) {
		t.Errorf("non-worker err = %v, want AuthorizationError", err)
	}

	tl.submit(t, id)
	err = tl.Submit(id, "bob", "again")
	var state *domain.StateError
	if !errors.As(err, &state) {
		t.Errorf("double submit err = %v, want StateError", err)
	}
}

func TestSubmit_TruncatesOverlongResult(t *testing.T) {
	tl := newTestLedger(t)
	tl.Ledger.config.MaxResultLen = 16
	id := tl.post(t)
	tl.claim(t, id)

	if err := tl.Submit(id, "bob", strings.Repeat("x", 100)); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	job, _ := tl.Job(id)
	if len(job.Result) != 16 {
		t.Errorf("result length = %d, want truncated to 16", len(job.Result))
	}
}

// ─── Approve ────────────────────────────────────────────────────────────────

func TestApprove_PayoutRoundTrip(t *testing.T) {
	tl := newTestLedger(t)
	id := tl.post(t)
	tl.claim(t, id)
	tl.submit(t, id)

	payout, err := tl.Approve(id, "alice")
	if err != nil {
		t.Fatalf("Approve() error: %v", err)
	}

	// payment 1000, fee 2.5% = 25, stake 100 returned: worker nets 1075.
	if payout.Fee != 25 || payout.Total != 1075 {
		t.Errorf("payout = %+v, want fee 25 total 1075", payout)
	}
	if got := tl.mustBalance(t, "bob"); got != 5975 {
		t.Errorf("bob balance = %d, want 5000 - 100 + 1075 = 5975", got)
	}
	if got := tl.mustBalance(t, "treasury"); got != 25 {
		t.Errorf("treasury = %d, want 25", got)
	}
	if got := tl.mustBalance(t, sqlite.AccountEscrow); got != 0 {
		t.Errorf("escrow = %d after settlement, want 0", got)
	}

	job, _ := tl.Job(id)
	if job.Status != domain.JobCompleted {
		t.Errorf("status = %s, want COMPLETED", job.Status)
	}

	stats, _ := tl.Agent("bob")
	if stats.JobsCompleted != 1 || stats.TotalEarned != 975 {
		t.Errorf("worker stats = %+v, want 1 completed / 975 earned", stats)
	}
	if stats.Reputation != domain.ReputationStart+domain.ReputationStep {
		t.Errorf("reputation = %d, want %d", stats.Reputation, domain.ReputationStart+domain.ReputationStep)
	}
}

func TestApprove_Rejections(t *testing.T) {
	tl := newTestLedger(t)
	id := tl.post(t)

	_, err := tl.Approve(id, "alice")
	var state *domain.StateError
	if !errors.As(err, &state) {
		t.Errorf("approve OPEN err = %v, want StateError", err)
	}

	tl.claim(t, id)
	tl.submit(t, id)
	_, err = tl.Approve(id, "bob")
	var auth *domain.AuthorizationError
	if !errors.As(err, &auth) {
		t.Errorf("non-poster err = %v, want AuthorizationError", err)
	}
}

func TestAutoApprove_AfterReviewWindow(t *testing.T) {
	tl := newTestLedger(t)
	id := tl.post(t)
	tl.claim(t, id)
	tl.submit(t, id)

	// Window has not elapsed yet.
	_, err := tl.AutoApprove(id)
	var deadline *domain.DeadlineError
	if !errors.As(err, &deadline) {
		t.Fatalf("early auto-approve err = %v, want DeadlineError", err)
	}

	tl.advance(tl.Ledger.config.AutoApproveDelay)
	payout, err := tl.AutoApprove(id)
	if err != nil {
		t.Fatalf("AutoApprove() error: %v", err)
	}
	if payout.Total != 1075 {
		t.Errorf("payout total = %d, want 1075", payout.Total)
	}
}

// ─── Dispute ────────────────────────────────────────────────────────────────

func TestDispute_AndResolveForWorker(t *testing.T) {
	tl := newTestLedger(t)
	id := tl.post(t)
	tl.claim(t, id)
	tl.submit(t, id)

	if err := tl.Dispute(id, "alice"); err != nil {
		t.Fatalf("Dispute() error: %v", err)
	}
	job, _ := tl.Job(id)
	if job.Status != domain.JobDisputed {
		t.Fatalf("status = %s, want DISPUTED", job.Status)
	}

	// Disputed jobs are frozen for everyone but the arbiter.
	if _, err := tl.Approve(id, "alice"); err == nil {
		t.Error("approve succeeded on a disputed job")
	}

	if err := tl.ResolveDispute(id, "arbiter", true); err != nil {
		t.Fatalf("ResolveDispute() error: %v", err)
	}
	job, _ = tl.Job(id)
	if job.Status != domain.JobCompleted {
		t.Errorf("status = %s, want COMPLETED", job.Status)
	}
	if got := tl.mustBalance(t, "bob"); got != 5975 {
		t.Errorf("bob balance = %d, want full payout 5975", got)
	}
}

func TestDispute_ResolveForPoster(t *testing.T) {
	tl := newTestLedger(t)
	id := tl.post(t)
	tl.claim(t, id)
	tl.submit(t, id)
	if err := tl.Dispute(id, "alice"); err != nil {
		t.Fatalf("Dispute() error: %v", err)
	}

	if err := tl.ResolveDispute(id, "arbiter", false); err != nil {
		t.Fatalf("ResolveDispute() error: %v", err)
	}

	job, _ := tl.Job(id)
	if job.Status != domain.JobCancelled {
		t.Errorf("status = %s, want CANCELLED", job.Status)
	}
	// Poster recovers payment plus the forfeited stake.
	if got := tl.mustBalance(t, "alice"); got != 5100 {
		t.Errorf("alice balance = %d, want 4000 + 1100 = 5100", got)
	}
	stats, _ := tl.Agent("bob")
	if stats.JobsFailed != 1 {
		t.Errorf("worker failed count = %d, want 1", stats.JobsFailed)
	}
	if stats.Reputation != domain.ReputationStart-domain.ReputationStep {
		t.Errorf("reputation = %d, want %d", stats.Reputation, domain.ReputationStart-domain.ReputationStep)
	}
}

func TestResolveDispute_ArbiterOnly(t *testing.T) {
	tl := newTestLedger(t)
	id := tl.post(t)
	tl.claim(t, id)
	tl.submit(t, id)
	if err := tl.Dispute(id, "alice"); err != nil {
		t.Fatalf("Dispute() error: %v", err)
	}

	err := tl.ResolveDispute(id, "mallory", true)
	var auth *domain.AuthorizationError
	if !errors.As(err, &auth) {
		t.Errorf("err = %v, want AuthorizationError", err)
	}
}

// ─── Cancel / Expire ────────────────────────────────────────────────────────

func TestCancel_RefundsPoster(t *testing.T) {
	tl := newTestLedger(t)
	id := tl.post(t)

	if err := tl.Cancel(id, "bob"); err == nil {
		t.Error("non-poster cancelled the job")
	}
	if err := tl.Cancel(id, "alice"); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}

	job, _ := tl.Job(id)
	if job.Status != domain.JobCancelled {
		t.Errorf("status = %s, want CANCELLED", job.Status)
	}
	if got := tl.mustBalance(t, "alice"); got != 5000 {
		t.Errorf("alice balance = %d, want full refund 5000", got)
	}

	// Terminal: a late claim fails on state.
	tl.fund(t, "bob", 1000)
	err := tl.Claim(id, "bob", 100)
	var state *domain.StateError
	if !errors.As(err, &state) {
		t.Errorf("claim after cancel err = %v, want StateError", err)
	}
}

func TestExpire_ForfeitsWorkerStake(t *testing.T) {
	tl := newTestLedger(t)
	id := tl.post(t)
	tl.claim(t, id)

	// Deadline not yet passed.
	err := tl.Expire(id, "anyone")
	var deadline *domain.DeadlineError
	if !errors.As(err, &deadline) {
		t.Fatalf("early expire err = %v, want DeadlineError", err)
	}

	tl.advance(25 * time.Hour)
	if err := tl.Expire(id, "anyone"); err != nil {
		t.Fatalf("Expire() error: %v", err)
	}

	job, _ := tl.Job(id)
	if job.Status != domain.JobExpired {
		t.Errorf("status = %s, want EXPIRED", job.Status)
	}
	// Poster recovers payment + stake exactly once.
	if got := tl.mustBalance(t, "alice"); got != 5100 {
		t.Errorf("alice balance = %d, want 5100", got)
	}
	stats, _ := tl.Agent("bob")
	if stats.JobsFailed != 1 {
		t.Errorf("worker failed count = %d, want 1", stats.JobsFailed)
	}

	// Second expiry observes EXPIRED: no double refund.
	err = tl.Expire(id, "anyone")
	var state *domain.StateError
	if !errors.As(err, &state) {
		t.Errorf("double expire err = %v, want StateError", err)
	}
	if got := tl.mustBalance(t, "alice"); got != 5100 {
		t.Errorf("alice balance after double expire = %d, want 5100", got)
	}
}

// ─── Reputation / Queries ───────────────────────────────────────────────────

func TestReputation_SaturatesAtCeiling(t *testing.T) {
	tl := newTestLedger(t)
	tl.fund(t, "alice", 100000)
	tl.fund(t, "bob", 10000)

	// 500 start + 100 per completion: the cap binds on the sixth job.
	for i := 0; i < 7; i++ {
		id, err := tl.Post("alice", "work", domain.CatGeneral, 24, 1000)
		if err != nil {
			t.Fatalf("Post() error: %v", err)
		}
		if err := tl.Claim(id, "bob", 100); err != nil {
			t.Fatalf("Claim() error: %v", err)
		}
		if err := tl.Submit(id, "bob", "done"); err != nil {
			t.Fatalf("Submit() error: %v", err)
		}
		if _, err := tl.Approve(id, "alice"); err != nil {
			t.Fatalf("Approve() error: %v", err)
		}
	}

	stats, _ := tl.Agent("bob")
	if stats.Reputation != domain.ReputationMax {
		t.Errorf("reputation = %d, want capped at %d", stats.Reputation, domain.ReputationMax)
	}
}

func TestOpenJobs_UsesLedgerClock(t *testing.T) {
	tl := newTestLedger(t)
	id := tl.post(t)

	open, err := tl.OpenJobs(10)
	if err != nil {
		t.Fatalf("OpenJobs() error: %v", err)
	}
	if len(open) != 1 || open[0].ID != id {
		t.Fatalf("open = %v, want the posted job", open)
	}

	ok, _ := tl.IsOpen(id)
	if !ok {
		t.Error("IsOpen = false for a fresh job")
	}

	tl.advance(25 * time.Hour)
	open, _ = tl.OpenJobs(10)
	if len(open) != 0 {
		t.Errorf("expired job still listed as open: %v", open)
	}
	if ok, _ := tl.IsOpen(id); ok {
		t.Error("IsOpen = true past the deadline")
	}
}

func TestDeposit_Validation(t *testing.T) {
	tl := newTestLedger(t)
	if err := tl.Deposit("", 100); err == nil {
		t.Error("deposit without address accepted")
	}
	if err := tl.Deposit("alice", 0); err == nil {
		t.Error("zero deposit accepted")
	}
	if err := tl.Deposit("alice", -5); err == nil {
		t.Error("negative deposit accepted")
	}
}
