package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/backlog"
	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
)

const jobColumns = `id, type_tag, queue_key, created_at, seq,
	last_attempt_at, next_eligible_at, attempt, max_attempts, lifespan,
	priority, timeout, max_concurrent_queue, max_concurrent_type, running,
	constraints, payload`

// InsertJobs persists records and their edges in one transaction. A
// duplicate id aborts the whole batch.
func (s *Store) InsertJobs(ctx context.Context, jobs []*job.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, j := range jobs {
			batch.Queue(`INSERT INTO backlog_jobs (`+jobColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
				j.ID.String(), j.TypeTag, j.QueueKey, j.CreatedAt, j.Seq,
				nullTime(j.LastAttemptAt), nullTime(j.NextEligibleAt), j.Attempt, j.MaxAttempts,
				int64(j.Lifespan), j.Priority, int64(j.Timeout),
				j.MaxConcurrentForQueue, j.MaxConcurrentForType, j.Running,
				nonNil(j.Constraints), j.Payload,
			)
			for pos, parent := range j.DependsOn {
				batch.Queue(`
					INSERT INTO backlog_job_dependencies (job_id, parent_id, position)
					VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
					j.ID.String(), parent.String(), pos,
				)
			}
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			if isDuplicateKey(err) {
				return fmt.Errorf("backlog/postgres: insert jobs: %w", backlog.ErrJobAlreadyExists)
			}
			return fmt.Errorf("backlog/postgres: insert jobs: %w", err)
		}
		return nil
	})
}

// UpdateJobs overwrites the mutable attempt fields of existing records.
func (s *Store) UpdateJobs(ctx context.Context, jobs []*job.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, j := range jobs {
			tag, err := tx.Exec(ctx, `
				UPDATE backlog_jobs SET
					last_attempt_at = $1, next_eligible_at = $2, attempt = $3, running = $4
				WHERE id = $5`,
				nullTime(j.LastAttemptAt), nullTime(j.NextEligibleAt), j.Attempt, j.Running,
				j.ID.String(),
			)
			if err != nil {
				return fmt.Errorf("backlog/postgres: update job: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("backlog/postgres: update %s: %w", j.ID, backlog.ErrJobNotFound)
			}
		}
		return nil
	})
}

// DeleteJobs removes records and every edge naming them.
func (s *Store) DeleteJobs(ctx context.Context, ids []id.JobID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, jobID := range ids {
		keys[i] = jobID.String()
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM backlog_jobs WHERE id = ANY($1)`, keys); err != nil {
			return fmt.Errorf("backlog/postgres: delete jobs: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM backlog_job_dependencies WHERE job_id = ANY($1) OR parent_id = ANY($1)`, keys,
		); err != nil {
			return fmt.Errorf("backlog/postgres: delete edges: %w", err)
		}
		return nil
	})
}

// LoadJobs returns every record in (queue_key, created_at, seq) order.
// queue_key is compared bytewise so the order matches store.Compare.
func (s *Store) LoadJobs(ctx context.Context) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+jobColumns+`
		FROM backlog_jobs ORDER BY queue_key COLLATE "C", created_at, seq`)
	if err != nil {
		return nil, fmt.Errorf("backlog/postgres: load jobs: %w", err)
	}
	jobs, err := pgx.CollectRows(rows, scanJob)
	if err != nil {
		return nil, fmt.Errorf("backlog/postgres: scan jobs: %w", err)
	}

	byID := make(map[id.JobID]*job.Job, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
	}

	rows, err = s.pool.Query(ctx, `
		SELECT job_id, parent_id FROM backlog_job_dependencies
		ORDER BY job_id, position`)
	if err != nil {
		return nil, fmt.Errorf("backlog/postgres: load edges: %w", err)
	}
	var child, parent string
	_, err = pgx.ForEachRow(rows, []any{&child, &parent}, func() error {
		childID, err := id.ParseJobID(child)
		if err != nil {
			return err
		}
		parentID, err := id.ParseJobID(parent)
		if err != nil {
			return err
		}
		if j, ok := byID[childID]; ok {
			j.DependsOn = append(j.DependsOn, parentID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("backlog/postgres: scan edges: %w", err)
	}
	return jobs, nil
}

func scanJob(row pgx.CollectableRow) (*job.Job, error) {
	var (
		j                 job.Job
		rawID             string
		lastAt, nextAt    *time.Time
		lifespan, timeout int64
	)
	err := row.Scan(
		&rawID, &j.TypeTag, &j.QueueKey, &j.CreatedAt, &j.Seq,
		&lastAt, &nextAt, &j.Attempt, &j.MaxAttempts, &lifespan,
		&j.Priority, &timeout, &j.MaxConcurrentForQueue, &j.MaxConcurrentForType, &j.Running,
		&j.Constraints, &j.Payload,
	)
	if err != nil {
		return nil, err
	}
	if j.ID, err = id.ParseJobID(rawID); err != nil {
		return nil, err
	}
	j.CreatedAt = j.CreatedAt.UTC()
	if lastAt != nil {
		j.LastAttemptAt = lastAt.UTC()
	}
	if nextAt != nil {
		j.NextEligibleAt = nextAt.UTC()
	}
	j.Lifespan = time.Duration(lifespan)
	j.Timeout = time.Duration(timeout)
	if len(j.Constraints) == 0 {
		j.Constraints = nil
	}
	return &j, nil
}
