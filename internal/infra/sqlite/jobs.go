package sqlite

import (
	"database/sql"
	"time"

	"github.com/quarry-network/quarry/internal/domain"
)

// ─── Job Repository ─────────────────────────────────────────────────────────

const jobColumns = `id, poster, worker, description, category, payment,
	stake_required, worker_stake, status, result, created_at, deadline, submitted_at`

// InsertJob creates a new job row and returns its assigned id.
func (t *Tx) InsertJob(job domain.Job) (int64, error) {
	res, err := t.tx.Exec(
		`INSERT INTO jobs (poster, worker, description, category, payment,
			stake_required, worker_stake, status, result, created_at, deadline, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.Poster, nullableString(job.Worker), job.Description, string(job.Category),
		job.Payment, job.StakeRequired, job.WorkerStake, string(job.Status),
		nullableString(job.Result), job.CreatedAt.UnixMilli(), job.Deadline.UnixMilli(),
		nullableMilli(unixMilliOrZero(job.SubmittedAt)),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetJob loads a job for update inside the transaction.
func (t *Tx) GetJob(id int64) (*domain.Job, error) {
	row := t.tx.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// UpdateJob writes back all mutable job fields.
func (t *Tx) UpdateJob(job *domain.Job) error {
	_, err := t.tx.Exec(
		`UPDATE jobs SET worker = ?, worker_stake = ?, status = ?, result = ?, submitted_at = ?
		 WHERE id = ?`,
		nullableString(job.Worker), job.WorkerStake, string(job.Status),
		nullableString(job.Result), nullableMilli(unixMilliOrZero(job.SubmittedAt)),
		job.ID,
	)
	return err
}

// ─── Read Side ──────────────────────────────────────────────────────────────

// GetJob retrieves a job by id.
func (d *DB) GetJob(id int64) (*domain.Job, error) {
	row := d.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// OpenJobs returns up to limit OPEN jobs whose deadline is still ahead
// of now, most recent first. This is the scheduler's candidate window.
func (d *DB) OpenJobs(limit int, now time.Time) ([]domain.Job, error) {
	rows, err := d.db.Query(
		`SELECT `+jobColumns+` FROM jobs
		 WHERE status = ? AND deadline > ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		string(domain.JobOpen), now.UnixMilli(), limit,
	)
	if err != nil {
		return nil, err
	}
	return scanJobs(rows)
}

// JobsByStatus returns up to limit jobs with the given status, most
// recent first. An empty status returns jobs of every status.
func (d *DB) JobsByStatus(status domain.JobStatus, limit int) ([]domain.Job, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = d.db.Query(
			`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id DESC LIMIT ?`,
			limit,
		)
	} else {
		rows, err = d.db.Query(
			`SELECT `+jobColumns+` FROM jobs WHERE status = ?
			 ORDER BY created_at DESC, id DESC LIMIT ?`,
			string(status), limit,
		)
	}
	if err != nil {
		return nil, err
	}
	return scanJobs(rows)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func scanJob(s scanner) (*domain.Job, error) {
	var (
		j                     domain.Job
		worker, result        sql.NullString
		createdAt, deadline   int64
		submittedAt           sql.NullInt64
		category, status      string
	)

	err := s.Scan(&j.ID, &j.Poster, &worker, &j.Description, &category,
		&j.Payment, &j.StakeRequired, &j.WorkerStake, &status, &result,
		&createdAt, &deadline, &submittedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	j.Category = domain.Category(category)
	j.Status = domain.JobStatus(status)
	if worker.Valid {
		j.Worker = worker.String
	}
	if result.Valid {
		j.Result = result.String
	}
	j.CreatedAt = time.UnixMilli(createdAt)
	j.Deadline = time.UnixMilli(deadline)
	if submittedAt.Valid {
		j.SubmittedAt = time.UnixMilli(submittedAt.Int64)
	}
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]domain.Job, error) {
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func unixMilliOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
