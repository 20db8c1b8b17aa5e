package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/common"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestProcessorQueue_ProcessesAllJobs(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]string{}
	proc := ProcessorFunc(func(ctx context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		seen[job.SubmissionID] = common.SubmissionIDFromContext(ctx)
		return nil
	})
	q := NewProcessorQueue(proc, nil, WithWorkers(3), WithQueueSize(2))

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, q.Enqueue(context.Background(), Job{SubmissionID: id}))
	}
	require.NoError(t, q.Shutdown(context.Background()))

	assert.Len(t, seen, 5)
	assert.Equal(t, "c", seen["c"])
}

func TestProcessorQueue_ErrorsAndPanicsDoNotStopWorkers(t *testing.T) {
	var done atomic.Int32
	proc := ProcessorFunc(func(_ context.Context, job Job) error {
		defer done.Add(1)
		switch job.SubmissionID {
		case "err":
			return errors.New("bad response")
		case "panic":
			panic("boom")
		}
		return nil
	})
	q := NewProcessorQueue(proc, nil, WithWorkers(1))
	for _, id := range []string{"err", "panic", "ok"} {
		require.NoError(t, q.Enqueue(context.Background(), Job{SubmissionID: id}))
	}
	require.NoError(t, q.Shutdown(context.Background()))
	assert.Equal(t, int32(3), done.Load())
}

func TestProcessorQueue_RejectsAfterShutdown(t *testing.T) {
	q := NewProcessorQueue(ProcessorFunc(func(context.Context, Job) error { return nil }), nil)
	require.NoError(t, q.Shutdown(context.Background()))
	assert.ErrorIs(t, q.Enqueue(context.Background(), Job{SubmissionID: "late"}), common.ErrQueueClosed)
	assert.NoError(t, q.Shutdown(context.Background()), "second shutdown is a no-op")
}

func TestProcessorQueue_JobTimeout(t *testing.T) {
	var sawDeadline atomic.Bool
	proc := ProcessorFunc(func(ctx context.Context, _ Job) error {
		<-ctx.Done()
		sawDeadline.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	})
	q := NewProcessorQueue(proc, nil, WithWorkers(1), WithProcessTimeout(20*time.Millisecond))
	require.NoError(t, q.Enqueue(context.Background(), Job{SubmissionID: "slow"}))
	require.NoError(t, q.Shutdown(context.Background()))
	assert.True(t, sawDeadline.Load())
}

func TestProcessorQueue_EnqueueHonoursContext(t *testing.T) {
	release := make(chan struct{})
	proc := ProcessorFunc(func(context.Context, Job) error { <-release; return nil })
	q := NewProcessorQueue(proc, nil, WithWorkers(1), WithQueueSize(1))

	require.NoError(t, q.Enqueue(context.Background(), Job{SubmissionID: "1"}))
	// the worker may or may not have taken job 1 yet; fill until blocked
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = q.Enqueue(ctx, Job{SubmissionID: "more"})
	}
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, q.Shutdown(context.Background()))
}
