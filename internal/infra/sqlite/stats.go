package sqlite

import (
	"database/sql"

	"github.com/quarry-network/quarry/internal/domain"
)

// ─── Agent Stats ────────────────────────────────────────────────────────────

// Stats loads an agent's counters inside the transaction, creating the
// row lazily with the starting reputation on first interaction.
func (t *Tx) Stats(address string) (*domain.AgentStats, error) {
	s, err := scanStats(t.tx.QueryRow(statsQuery, address))
	if err != nil {
		return nil, err
	}
	if s != nil {
		return s, nil
	}

	_, err = t.tx.Exec(
		`INSERT INTO agent_stats (address, reputation) VALUES (?, ?)`,
		address, domain.ReputationStart,
	)
	if err != nil {
		return nil, err
	}
	return &domain.AgentStats{Address: address, Reputation: domain.ReputationStart}, nil
}

// PutStats writes back an agent's counters.
func (t *Tx) PutStats(s *domain.AgentStats) error {
	_, err := t.tx.Exec(
		`UPDATE agent_stats SET jobs_posted = ?, jobs_completed = ?, jobs_failed = ?,
			total_earned = ?, total_spent = ?, reputation = ?
		 WHERE address = ?`,
		s.JobsPosted, s.JobsCompleted, s.JobsFailed,
		s.TotalEarned, s.TotalSpent, s.Reputation, s.Address,
	)
	return err
}

// ─── Read Side ──────────────────────────────────────────────────────────────

const statsQuery = `SELECT address, jobs_posted, jobs_completed, jobs_failed,
	total_earned, total_spent, reputation FROM agent_stats WHERE address = ?`

// Stats retrieves an agent's counters. Returns domain.ErrAgentNotFound
// for an address that never interacted with the ledger.
func (d *DB) Stats(address string) (*domain.AgentStats, error) {
	s, err := scanStats(d.db.QueryRow(statsQuery, address))
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, domain.ErrAgentNotFound
	}
	return s, nil
}

func scanStats(row *sql.Row) (*domain.AgentStats, error) {
	var s domain.AgentStats
	err := row.Scan(&s.Address, &s.JobsPosted, &s.JobsCompleted, &s.JobsFailed,
		&s.TotalEarned, &s.TotalSpent, &s.Reputation)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
