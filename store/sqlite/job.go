package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/backlog"
	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
)

const jobColumns = `id, type_tag, queue_key, created_at, seq,
	last_attempt_at, next_eligible_at, attempt, max_attempts, lifespan,
	priority, timeout, max_concurrent_queue, max_concurrent_type, running,
	constraints, payload`

// InsertJobs persists records and their edges in one transaction.
func (s *Store) InsertJobs(ctx context.Context, jobs []*job.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("backlog/sqlite: begin insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, j := range jobs {
		constraints, err := json.Marshal(nonNil(j.Constraints))
		if err != nil {
			return fmt.Errorf("backlog/sqlite: encode constraints: %w", err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO backlog_jobs (`+jobColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			j.ID.String(), j.TypeTag, j.QueueKey, toMicros(j.CreatedAt), j.Seq,
			toMicros(j.LastAttemptAt), toMicros(j.NextEligibleAt), j.Attempt, j.MaxAttempts,
			int64(j.Lifespan), j.Priority, int64(j.Timeout),
			j.MaxConcurrentForQueue, j.MaxConcurrentForType, j.Running,
			string(constraints), j.Payload,
		)
		if err != nil {
			if isDuplicateKey(err) {
				return fmt.Errorf("backlog/sqlite: insert %s: %w", j.ID, backlog.ErrJobAlreadyExists)
			}
			return fmt.Errorf("backlog/sqlite: insert job: %w", err)
		}

		for pos, parent := range j.DependsOn {
			_, err = tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO backlog_job_dependencies (job_id, parent_id, position)
				VALUES (?, ?, ?)`,
				j.ID.String(), parent.String(), pos,
			)
			if err != nil {
				return fmt.Errorf("backlog/sqlite: insert edge: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("backlog/sqlite: commit insert: %w", err)
	}
	return nil
}

// UpdateJobs overwrites the mutable attempt fields of existing records.
func (s *Store) UpdateJobs(ctx context.Context, jobs []*job.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("backlog/sqlite: begin update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, j := range jobs {
		res, err := tx.ExecContext(ctx, `
			UPDATE backlog_jobs SET
				last_attempt_at = ?, next_eligible_at = ?, attempt = ?, running = ?
			WHERE id = ?`,
			toMicros(j.LastAttemptAt), toMicros(j.NextEligibleAt), j.Attempt, j.Running,
			j.ID.String(),
		)
		if err != nil {
			return fmt.Errorf("backlog/sqlite: update job: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("backlog/sqlite: update job: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("backlog/sqlite: update %s: %w", j.ID, backlog.ErrJobNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("backlog/sqlite: commit update: %w", err)
	}
	return nil
}

// DeleteJobs removes records and every edge naming them.
func (s *Store) DeleteJobs(ctx context.Context, ids []id.JobID) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("backlog/sqlite: begin delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, jobID := range ids {
		key := jobID.String()
		if _, err := tx.ExecContext(ctx, `DELETE FROM backlog_jobs WHERE id = ?`, key); err != nil {
			return fmt.Errorf("backlog/sqlite: delete job: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM backlog_job_dependencies WHERE job_id = ? OR parent_id = ?`, key, key,
		); err != nil {
			return fmt.Errorf("backlog/sqlite: delete edges: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("backlog/sqlite: commit delete: %w", err)
	}
	return nil
}

// LoadJobs returns every record in (queue_key, created_at, seq) order.
func (s *Store) LoadJobs(ctx context.Context) ([]*job.Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+`
		FROM backlog_jobs ORDER BY queue_key, created_at, seq`)
	if err != nil {
		return nil, fmt.Errorf("backlog/sqlite: load jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*job.Job
	byID := make(map[id.JobID]*job.Job)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("backlog/sqlite: scan job: %w", err)
		}
		jobs = append(jobs, j)
		byID[j.ID] = j
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("backlog/sqlite: load jobs: %w", err)
	}

	if err := s.loadEdges(ctx, byID); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *Store) loadEdges(ctx context.Context, byID map[id.JobID]*job.Job) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, parent_id FROM backlog_job_dependencies
		ORDER BY job_id, position`)
	if err != nil {
		return fmt.Errorf("backlog/sqlite: load edges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var child, parent id.JobID
		if err := rows.Scan(&child, &parent); err != nil {
			return fmt.Errorf("backlog/sqlite: scan edge: %w", err)
		}
		if j, ok := byID[child]; ok {
			j.DependsOn = append(j.DependsOn, parent)
		}
	}
	return rows.Err()
}

func scanJob(rows *sql.Rows) (*job.Job, error) {
	var (
		j                       job.Job
		created, lastAt, nextAt int64
		lifespan, timeout       int64
		constraints             string
	)
	err := rows.Scan(
		&j.ID, &j.TypeTag, &j.QueueKey, &created, &j.Seq,
		&lastAt, &nextAt, &j.Attempt, &j.MaxAttempts, &lifespan,
		&j.Priority, &timeout, &j.MaxConcurrentForQueue, &j.MaxConcurrentForType, &j.Running,
		&constraints, &j.Payload,
	)
	if err != nil {
		return nil, err
	}
	j.CreatedAt = fromMicros(created)
	j.LastAttemptAt = fromMicros(lastAt)
	j.NextEligibleAt = fromMicros(nextAt)
	j.Lifespan = time.Duration(lifespan)
	j.Timeout = time.Duration(timeout)
	if err := json.Unmarshal([]byte(constraints), &j.Constraints); err != nil {
		return nil, fmt.Errorf("decode constraints: %w", err)
	}
	if len(j.Constraints) == 0 {
		j.Constraints = nil
	}
	return &j, nil
}

func toMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func fromMicros(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
