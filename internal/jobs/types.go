package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeCaptureTransaction turns free text into a ledger transaction.
	JobTypeCaptureTransaction JobType = "capture_transaction"
	// JobTypeGenerateAdvice produces advice for the current ledger.
	JobTypeGenerateAdvice JobType = "generate_advice"
)

// IsValid reports whether t is a known job type.
func (t JobType) IsValid() bool {
	return t == JobTypeCaptureTransaction || t == JobTypeGenerateAdvice
}

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// IsTerminal reports whether no further transitions follow s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ErrJobNotFound is returned by JobStore lookups for an unknown id.
var ErrJobNotFound = errors.New("job not found")

// GatewayJob is one call to the AI gateway run off the request path.
type GatewayJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// Type selects the handler branch.
	Type JobType `json:"type"`

	// Input is the free text for a capture job; empty for advice.
	Input string `json:"input,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// Result is the handler's output: the captured transaction or the advice.
	Result json.RawMessage `json:"result,omitempty"`

	// Error is the user-facing failure message.
	Error string `json:"error,omitempty"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`
}

// Job is the view of a job handed to a JobHandler.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *GatewayJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *GatewayJob) GetType() JobType {
	return j.Type
}

// GetStatus implements the Job interface.
func (j *GatewayJob) GetStatus() JobStatus {
	return j.Status
}

// SetResult stores v as the job result.
func (j *GatewayJob) SetResult(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	j.Result = raw
	return nil
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// Publish enqueues a gateway job.
	Publish(ctx context.Context, job *GatewayJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *GatewayJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*GatewayJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*GatewayJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Type filters jobs by type.
	Type JobType

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
