package store

import "github.com/xraph/backlog/job"

// Compare orders records the way LoadJobs must return them:
// by QueueKey, then CreatedAt, then Seq.
func Compare(a, b *job.Job) int {
	switch {
	case a.QueueKey < b.QueueKey:
		return -1
	case a.QueueKey > b.QueueKey:
		return 1
	case a.Before(b):
		return -1
	case b.Before(a):
		return 1
	default:
		return 0
	}
}
