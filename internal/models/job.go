package models

// JobKind is the extraction pipeline a job runs.
type JobKind string

// Job kinds.
const (
	JobEmail   JobKind = "email"
	JobMeeting JobKind = "meeting"
)

// JobStatus is the state of a background extraction job.
type JobStatus string

// Job statuses.
const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Job records one background extraction run so its outcome can be queried
// after the triggering request has returned.
type Job struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Kind      JobKind   `json:"kind"`
	Status    JobStatus `json:"status"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt string    `json:"createdAt"`
	UpdatedAt string    `json:"updatedAt"`
}
