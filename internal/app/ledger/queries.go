package ledger

import (
	"github.com/quarry-network/quarry/internal/domain"
	"github.com/quarry-network/quarry/internal/infra/sqlite"
)

// ─── Query Surface ──────────────────────────────────────────────────────────
// Read-only. Queries never mutate and may run concurrently with writes
// (WAL readers don't block the writer).

// Job fetches a job by id.
func (l *Ledger) Job(id int64) (*domain.Job, error) {
	return l.db.GetJob(id)
}

// Agent fetches an agent's stats by address.
func (l *Ledger) Agent(address string) (*domain.AgentStats, error) {
	return l.db.Stats(address)
}

// OpenJobs returns a bounded window of claimable jobs, most recent
// first. Jobs past their deadline are filtered out at the store.
func (l *Ledger) OpenJobs(limit int) ([]domain.Job, error) {
	return l.db.OpenJobs(limit, l.now())
}

// JobsByStatus returns a bounded window of jobs by status, most recent
// first. An empty status means all.
func (l *Ledger) JobsByStatus(status domain.JobStatus, limit int) ([]domain.Job, error) {
	return l.db.JobsByStatus(status, limit)
}

// IsOpen is the cheap "claimable right now" predicate.
func (l *Ledger) IsOpen(id int64) (bool, error) {
	job, err := l.db.GetJob(id)
	if err != nil {
		return false, err
	}
	return job.IsOpenAt(l.now()), nil
}

// Balance returns an account's current credit balance.
func (l *Ledger) Balance(account string) (int64, error) {
	return l.db.Balance(account)
}

// FundHistory returns recent fund ledger entries for an account.
func (l *Ledger) FundHistory(account string, limit int) ([]sqlite.FundEntry, error) {
	return l.db.FundEntries(account, limit)
}
