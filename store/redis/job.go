package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/backlog"
	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
	"github.com/xraph/backlog/store"
)

// maxTxRetries bounds optimistic-lock retries when another client touches
// the jobs hash between WATCH and EXEC.
const maxTxRetries = 5

// watch runs fn under WATCH on the jobs hash, retrying on conflicts.
func (s *Store) watch(ctx context.Context, op string, fn func(tx *goredis.Tx) error) error {
	for range maxTxRetries {
		err := s.client.Watch(ctx, fn, s.jobsKey())
		if errors.Is(err, goredis.TxFailedErr) {
			s.logger.Debug("redis transaction conflict, retrying", "op", op)
			continue
		}
		return err
	}
	return fmt.Errorf("backlog/redis: %s: %w", op, goredis.TxFailedErr)
}

// InsertJobs stores every record and its edges, or none of them.
func (s *Store) InsertJobs(ctx context.Context, jobs []*job.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	fields := make([]string, len(jobs))
	values := make([]any, 0, 2*len(jobs))
	for i, j := range jobs {
		data, err := encode(toModel(j))
		if err != nil {
			return fmt.Errorf("backlog/redis: encode %s: %w", j.ID, err)
		}
		fields[i] = j.ID.String()
		values = append(values, fields[i], data)
	}

	err := s.watch(ctx, "insert", func(tx *goredis.Tx) error {
		existing, err := tx.HMGet(ctx, s.jobsKey(), fields...).Result()
		if err != nil {
			return err
		}
		for i, v := range existing {
			if v != nil {
				return fmt.Errorf("backlog/redis: insert %s: %w", fields[i], backlog.ErrJobAlreadyExists)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, s.jobsKey(), values...)
			for _, j := range jobs {
				for _, parent := range j.DependsOn {
					pipe.SAdd(ctx, s.dependentsKey(parent.String()), j.ID.String())
				}
			}
			return nil
		})
		return err
	})
	if err != nil && !errors.Is(err, backlog.ErrJobAlreadyExists) {
		return fmt.Errorf("backlog/redis: insert jobs: %w", err)
	}
	return err
}

// UpdateJobs overwrites the mutable attempt fields of existing records.
func (s *Store) UpdateJobs(ctx context.Context, jobs []*job.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	fields := make([]string, len(jobs))
	for i, j := range jobs {
		fields[i] = j.ID.String()
	}

	err := s.watch(ctx, "update", func(tx *goredis.Tx) error {
		current, err := tx.HMGet(ctx, s.jobsKey(), fields...).Result()
		if err != nil {
			return err
		}
		values := make([]any, 0, 2*len(jobs))
		for i, v := range current {
			raw, ok := v.(string)
			if !ok {
				return fmt.Errorf("backlog/redis: update %s: %w", fields[i], backlog.ErrJobNotFound)
			}
			m, err := decode([]byte(raw))
			if err != nil {
				return fmt.Errorf("backlog/redis: decode %s: %w", fields[i], err)
			}
			j := jobs[i]
			m.LastAttemptAt = toMicros(j.LastAttemptAt)
			m.NextEligibleAt = toMicros(j.NextEligibleAt)
			m.Attempt = j.Attempt
			m.Running = j.Running
			data, err := encode(m)
			if err != nil {
				return fmt.Errorf("backlog/redis: encode %s: %w", fields[i], err)
			}
			values = append(values, fields[i], data)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, s.jobsKey(), values...)
			return nil
		})
		return err
	})
	if err != nil && !errors.Is(err, backlog.ErrJobNotFound) {
		return fmt.Errorf("backlog/redis: update jobs: %w", err)
	}
	return err
}

// DeleteJobs removes records, strips them from surviving dependents, and
// drops their edge sets. Unknown ids are ignored.
func (s *Store) DeleteJobs(ctx context.Context, ids []id.JobID) error {
	if len(ids) == 0 {
		return nil
	}
	fields := make([]string, len(ids))
	for i, jobID := range ids {
		fields[i] = jobID.String()
	}

	err := s.watch(ctx, "delete", func(tx *goredis.Tx) error {
		current, err := tx.HMGet(ctx, s.jobsKey(), fields...).Result()
		if err != nil {
			return err
		}

		// Parents of deleted records lose them as dependents.
		parentSets := make(map[string][]string)
		for i, v := range current {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			m, err := decode([]byte(raw))
			if err != nil {
				return fmt.Errorf("decode %s: %w", fields[i], err)
			}
			for _, p := range m.DependsOn {
				parentSets[p] = append(parentSets[p], fields[i])
			}
		}

		// Surviving dependents lose the edge.
		var children []string
		for _, f := range fields {
			members, err := tx.SMembers(ctx, s.dependentsKey(f)).Result()
			if err != nil {
				return err
			}
			for _, c := range members {
				if !slices.Contains(fields, c) && !slices.Contains(children, c) {
					children = append(children, c)
				}
			}
		}
		var rewrites []any
		if len(children) > 0 {
			raws, err := tx.HMGet(ctx, s.jobsKey(), children...).Result()
			if err != nil {
				return err
			}
			for i, v := range raws {
				raw, ok := v.(string)
				if !ok {
					continue
				}
				m, err := decode([]byte(raw))
				if err != nil {
					return fmt.Errorf("decode %s: %w", children[i], err)
				}
				m.DependsOn = slices.DeleteFunc(m.DependsOn, func(p string) bool {
					return slices.Contains(fields, p)
				})
				data, err := encode(m)
				if err != nil {
					return fmt.Errorf("encode %s: %w", children[i], err)
				}
				rewrites = append(rewrites, children[i], data)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HDel(ctx, s.jobsKey(), fields...)
			for _, f := range fields {
				pipe.Del(ctx, s.dependentsKey(f))
			}
			for parent, members := range parentSets {
				pipe.SRem(ctx, s.dependentsKey(parent), toAny(members)...)
			}
			if len(rewrites) > 0 {
				pipe.HSet(ctx, s.jobsKey(), rewrites...)
			}
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("backlog/redis: delete jobs: %w", err)
	}
	return nil
}

// LoadJobs returns every record ordered by store.Compare.
func (s *Store) LoadJobs(ctx context.Context) ([]*job.Job, error) {
	all, err := s.client.HGetAll(ctx, s.jobsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("backlog/redis: load jobs: %w", err)
	}
	jobs := make([]*job.Job, 0, len(all))
	for field, raw := range all {
		m, err := decode([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("backlog/redis: decode %s: %w", field, err)
		}
		j, err := fromModel(m)
		if err != nil {
			return nil, fmt.Errorf("backlog/redis: load %s: %w", field, err)
		}
		jobs = append(jobs, j)
	}
	slices.SortFunc(jobs, store.Compare)
	return jobs, nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
