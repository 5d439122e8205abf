package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobEnqueued   = "job.enqueued"
	ActionJobStarted    = "job.started"
	ActionJobCompleted  = "job.completed"
	ActionJobRetrying   = "job.retrying"
	ActionJobFailed     = "job.failed"
	ActionJobCanceled   = "job.canceled"
	ActionJobFatal      = "job.fatal"
	ActionJobsRecovered = "jobs.recovered"
)

// CategoryJob groups every action this extension emits.
const CategoryJob = "backlog.job"

// Resource types used as the Resource field in audit events.
const (
	ResourceJob    = "job"
	ResourceLedger = "ledger"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobEnqueued,
		ActionJobStarted,
		ActionJobCompleted,
		ActionJobRetrying,
		ActionJobFailed,
		ActionJobCanceled,
		ActionJobFatal,
		ActionJobsRecovered,
	}
}
