package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/finance-dashboard/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveGetIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	assert.Error(t, s.SaveJob(ctx, &jobs.GatewayJob{}))

	job := &jobs.GatewayJob{JobID: "a", Type: jobs.JobTypeGenerateAdvice, Status: jobs.JobStatusPending}
	require.NoError(t, s.SaveJob(ctx, job))
	job.Status = jobs.JobStatusFailed

	got, err := s.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusPending, got.Status)

	got.Status = jobs.JobStatusCompleted
	again, err := s.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusPending, again.Status)

	_, err = s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
}

func TestStore_ListJobs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, j := range []struct {
		id     string
		typ    jobs.JobType
		status jobs.JobStatus
	}{
		{"j1", jobs.JobTypeCaptureTransaction, jobs.JobStatusCompleted},
		{"j2", jobs.JobTypeGenerateAdvice, jobs.JobStatusFailed},
		{"j3", jobs.JobTypeCaptureTransaction, jobs.JobStatusPending},
		{"j4", jobs.JobTypeCaptureTransaction, jobs.JobStatusCompleted},
	} {
		require.NoError(t, s.SaveJob(ctx, &jobs.GatewayJob{
			JobID:     j.id,
			Type:      j.typ,
			Status:    j.status,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	jobIDs := func(list []*jobs.GatewayJob) []string {
		out := make([]string, len(list))
		for i, j := range list {
			out[i] = j.JobID
		}
		return out
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{"all newest first", jobs.JobFilter{}, []string{"j4", "j3", "j2", "j1"}},
		{"by type", jobs.JobFilter{Type: jobs.JobTypeCaptureTransaction}, []string{"j4", "j3", "j1"}},
		{"by status", jobs.JobFilter{Status: jobs.JobStatusCompleted}, []string{"j4", "j1"}},
		{"limit", jobs.JobFilter{Limit: 2}, []string{"j4", "j3"}},
		{"offset", jobs.JobFilter{Offset: 3}, []string{"j1"}},
		{"offset past end", jobs.JobFilter{Offset: 10}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, jobIDs(got))
		})
	}
}

func TestStore_UpdateJobStatus(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.SaveJob(ctx, &jobs.GatewayJob{JobID: "a", Status: jobs.JobStatusRunning}))

	require.NoError(t, s.UpdateJobStatus(ctx, "a", jobs.JobStatusFailed, "boom"))
	got, err := s.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)

	assert.ErrorIs(t, s.UpdateJobStatus(ctx, "b", jobs.JobStatusFailed, ""), jobs.ErrJobNotFound)
}

func waitForStatus(t *testing.T, s *Store, id string, want jobs.JobStatus) *jobs.GatewayJob {
	t.Helper()
	var got *jobs.GatewayJob
	require.Eventually(t, func() bool {
		j, err := s.GetJob(context.Background(), id)
		if err != nil {
			return false
		}
		got = j
		return j.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestQueue_ProcessesJobs(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(4, store, WithWorkers(2))

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		gj := job.(*jobs.GatewayJob)
		if gj.Input == "bad" {
			gj.Error = "Could not understand the transaction. Please try again."
			return errors.New("parse failed")
		}
		return gj.SetResult(map[string]string{"echo": gj.Input})
	}))
	defer q.Close()

	ok := &jobs.GatewayJob{Type: jobs.JobTypeCaptureTransaction, Input: "coffee 3"}
	require.NoError(t, q.Publish(ctx, ok))
	require.NotEmpty(t, ok.JobID)

	bad := &jobs.GatewayJob{Type: jobs.JobTypeCaptureTransaction, Input: "bad"}
	require.NoError(t, q.Publish(ctx, bad))

	done := waitForStatus(t, store, ok.JobID, jobs.JobStatusCompleted)
	assert.JSONEq(t, `{"echo":"coffee 3"}`, string(done.Result))
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)

	failed := waitForStatus(t, store, bad.JobID, jobs.JobStatusFailed)
	assert.Equal(t, "Could not understand the transaction. Please try again.", failed.Error)
	assert.Equal(t, 0, failed.RetryCount)
}

func TestQueue_RetriesWhenAllowed(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(4, store, WithRetryBackoff(time.Millisecond))

	var calls atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}))
	defer q.Close()

	job := &jobs.GatewayJob{Type: jobs.JobTypeGenerateAdvice, MaxRetries: 3}
	require.NoError(t, q.Publish(ctx, job))

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, 2, got.RetryCount)
	assert.Empty(t, got.Error)
	assert.Equal(t, int32(3), calls.Load())
}

func TestQueue_StopDrainsAndRejects(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(8, store, WithWorkers(1))

	release := make(chan struct{})
	var handled atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		<-release
		handled.Add(1)
		return nil
	}))

	for range 3 {
		require.NoError(t, q.Publish(ctx, &jobs.GatewayJob{Type: jobs.JobTypeGenerateAdvice}))
	}

	stopped := make(chan error, 1)
	go func() { stopped <- q.Stop(ctx) }()
	close(release)

	require.NoError(t, <-stopped)
	assert.Equal(t, int32(3), handled.Load())

	assert.Error(t, q.Publish(ctx, &jobs.GatewayJob{Type: jobs.JobTypeGenerateAdvice}))
	assert.Error(t, q.Start(ctx, func(context.Context, jobs.Job) error { return nil }))
	assert.NoError(t, q.Stop(ctx))
}

func TestQueue_PublishEnqueuesCopy(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(4, store, WithWorkers(4))

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		return job.(*jobs.GatewayJob).SetResult("done")
	}))
	defer q.Close()

	job := &jobs.GatewayJob{Type: jobs.JobTypeGenerateAdvice}
	require.NoError(t, q.Publish(ctx, job))

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.JSONEq(t, `"done"`, string(got.Result))

	assert.Equal(t, jobs.JobStatusPending, job.Status)
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.Result)
}
