package job

import "fmt"

// Status is the lifecycle state of an import job.
type Status string

// Job statuses. not_found is reported for unknown or already collected jobs.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusNotFound   Status = "not_found"
)

// IsTerminal reports whether no further progress will be made.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusNotFound
}

// Job is a snapshot of an import's progress.
type Job struct {
	ID               string   `json:"jobId"`
	UserID           string   `json:"userId"`
	Status           Status   `json:"status"`
	TotalRecords     int      `json:"totalRecords"`
	ProcessedRecords int      `json:"processedRecords"`
	Errors           []string `json:"errors"`
}

// New creates a pending job.
func New(id, userID string) Job {
	return Job{ID: id, UserID: userID, Status: StatusPending, Errors: []string{}}
}

// NotFound is the terminal snapshot for an unknown id.
func NotFound(id string) Job {
	return Job{ID: id, Status: StatusNotFound, Errors: []string{}}
}

// Clone returns a deep copy safe to hand to other goroutines.
func (j Job) Clone() Job {
	j.Errors = append([]string{}, j.Errors...)
	return j
}

// ChunkError formats the error entry recorded for a failed chunk.
func ChunkError(model string, index, from, to int, err error) string {
	return fmt.Sprintf("%s chunk %d (records %d-%d): %v", model, index, from, to, err)
}
