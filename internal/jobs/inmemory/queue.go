package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/finance-dashboard/internal/jobs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Default queue settings.
const (
	DefaultBufferSize   = 16
	DefaultWorkers      = 2
	DefaultRetryBackoff = time.Second
)

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// Suitable for single-instance deployments and tests.
type Queue struct {
	jobChan   chan *jobs.GatewayJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool

	workers      int
	retryBackoff time.Duration
	log          zerolog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets the number of concurrent workers started by Start.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithRetryBackoff sets the base delay; retry n waits n times this.
func WithRetryBackoff(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.retryBackoff = d
		}
	}
}

// WithLogger sets the queue logger.
func WithLogger(log zerolog.Logger) Option {
	return func(q *Queue) { q.log = log }
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before Publish blocks.
func NewQueue(bufferSize int, store jobs.JobStore, opts ...Option) *Queue {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	q := &Queue{
		jobChan:      make(chan *jobs.GatewayJob, bufferSize),
		closeChan:    make(chan struct{}),
		store:        store,
		workers:      DefaultWorkers,
		retryBackoff: DefaultRetryBackoff,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Publish implements the Publisher interface.
// It fills in JobID, Status and CreatedAt when unset, saves the job and
// enqueues a copy, so the caller's job is never touched by a worker.
func (q *Queue) Publish(ctx context.Context, job *jobs.GatewayJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	if job.JobID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate job id: %w", err)
		}
		job.JobID = id.String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	work := *job
	select {
	case q.jobChan <- &work:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start implements the Consumer interface.
// The handler is called concurrently by up to the configured worker count.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	q.log.Info().Int("workers", q.workers).Msg("job queue started")
	return nil
}

// worker processes jobs until the context ends or the queue is stopped.
// On Stop it first drains what is already buffered.
func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			q.drain(ctx, handler)
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

func (q *Queue) drain(ctx context.Context, handler jobs.JobHandler) {
	for {
		select {
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		default:
			return
		}
	}
}

// processJob executes a single job with retry logic.
func (q *Queue) processJob(ctx context.Context, job *jobs.GatewayJob, handler jobs.JobHandler) {
	log := q.log.With().Str("job_id", job.JobID).Str("job_type", string(job.Type)).Logger()

	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now
	q.save(ctx, job)

	err := handler(ctx, job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	retry := false
	if err != nil {
		if job.Error == "" {
			job.Error = err.Error()
		}
		if job.RetryCount < job.MaxRetries {
			job.RetryCount++
			job.Status = jobs.JobStatusRetrying
			retry = true
		} else {
			job.Status = jobs.JobStatusFailed
			log.Warn().Err(err).Msg("job failed")
		}
	} else {
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		log.Debug().Dur("took", completedAt.Sub(now)).Msg("job completed")
	}

	q.save(ctx, job)

	if retry {
		// The timer owns job from here on.
		backoff := time.Duration(job.RetryCount) * q.retryBackoff
		log.Warn().Err(err).Int("retry", job.RetryCount).Dur("backoff", backoff).Msg("job failed, retrying")
		time.AfterFunc(backoff, func() {
			job.Status = jobs.JobStatusPending
			job.StartedAt = nil
			job.CompletedAt = nil
			if err := q.Publish(ctx, job); err != nil {
				job.Status = jobs.JobStatusFailed
				q.save(ctx, job)
			}
		})
	}
}

func (q *Queue) save(ctx context.Context, job *jobs.GatewayJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(context.WithoutCancel(ctx), job); err != nil {
		q.log.Warn().Err(err).Str("job_id", job.JobID).Msg("save job state")
	}
}

// Stop implements the Consumer interface.
// It stops accepting jobs, lets workers drain the buffer and waits for
// them or for ctx.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var (
	_ jobs.Publisher = (*Queue)(nil)
	_ jobs.Consumer  = (*Queue)(nil)
)
