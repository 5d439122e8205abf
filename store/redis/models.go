package redis

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
)

// jobModel is the msgpack shape of a persisted record. Times are Unix
// microseconds (0 when unset); durations are nanoseconds.
type jobModel struct {
	ID                 string   `msgpack:"id"`
	TypeTag            string   `msgpack:"type_tag"`
	QueueKey           string   `msgpack:"queue_key,omitempty"`
	CreatedAt          int64    `msgpack:"created_at"`
	Seq                int64    `msgpack:"seq"`
	LastAttemptAt      int64    `msgpack:"last_attempt_at,omitempty"`
	NextEligibleAt     int64    `msgpack:"next_eligible_at,omitempty"`
	Attempt            int      `msgpack:"attempt"`
	MaxAttempts        int      `msgpack:"max_attempts"`
	Lifespan           int64    `msgpack:"lifespan,omitempty"`
	Priority           int      `msgpack:"priority,omitempty"`
	Timeout            int64    `msgpack:"timeout,omitempty"`
	MaxConcurrentQueue int      `msgpack:"max_concurrent_queue"`
	MaxConcurrentType  int      `msgpack:"max_concurrent_type,omitempty"`
	Running            bool     `msgpack:"running,omitempty"`
	Constraints        []string `msgpack:"constraints,omitempty"`
	DependsOn          []string `msgpack:"depends_on,omitempty"`
	Payload            []byte   `msgpack:"payload,omitempty"`
}

func toModel(j *job.Job) *jobModel {
	m := &jobModel{
		ID:                 j.ID.String(),
		TypeTag:            j.TypeTag,
		QueueKey:           j.QueueKey,
		CreatedAt:          toMicros(j.CreatedAt),
		Seq:                j.Seq,
		LastAttemptAt:      toMicros(j.LastAttemptAt),
		NextEligibleAt:     toMicros(j.NextEligibleAt),
		Attempt:            j.Attempt,
		MaxAttempts:        j.MaxAttempts,
		Lifespan:           int64(j.Lifespan),
		Priority:           j.Priority,
		Timeout:            int64(j.Timeout),
		MaxConcurrentQueue: j.MaxConcurrentForQueue,
		MaxConcurrentType:  j.MaxConcurrentForType,
		Running:            j.Running,
		Constraints:        j.Constraints,
		Payload:            j.Payload,
	}
	for _, p := range j.DependsOn {
		m.DependsOn = append(m.DependsOn, p.String())
	}
	return m
}

func fromModel(m *jobModel) (*job.Job, error) {
	jobID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, err
	}
	j := &job.Job{
		ID:                    jobID,
		TypeTag:               m.TypeTag,
		QueueKey:              m.QueueKey,
		CreatedAt:             fromMicros(m.CreatedAt),
		Seq:                   m.Seq,
		LastAttemptAt:         fromMicros(m.LastAttemptAt),
		NextEligibleAt:        fromMicros(m.NextEligibleAt),
		Attempt:               m.Attempt,
		MaxAttempts:           m.MaxAttempts,
		Lifespan:              time.Duration(m.Lifespan),
		Priority:              m.Priority,
		Timeout:               time.Duration(m.Timeout),
		MaxConcurrentForQueue: m.MaxConcurrentQueue,
		MaxConcurrentForType:  m.MaxConcurrentType,
		Running:               m.Running,
		Constraints:           m.Constraints,
		Payload:               m.Payload,
	}
	for _, p := range m.DependsOn {
		parent, err := id.ParseJobID(p)
		if err != nil {
			return nil, fmt.Errorf("dependency of %s: %w", m.ID, err)
		}
		j.DependsOn = append(j.DependsOn, parent)
	}
	return j, nil
}

func encode(m *jobModel) ([]byte, error) { return msgpack.Marshal(m) }

func decode(data []byte) (*jobModel, error) {
	var m jobModel
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
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
