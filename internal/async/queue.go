package async

import (
	"context"
	"time"
)

// Job is one graded submission waiting for a worker.
type Job struct {
	SubmissionID string
	Path         string
	// Response is the raw model output. When empty the processor reads Path.
	Response    string
	RunID       string
	SubmittedAt time.Time
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context) error
}

// Processor handles one job. Errors are logged by the queue; retries are the
// processor's business.
type Processor interface {
	Process(ctx context.Context, job Job) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, job Job) error

func (f ProcessorFunc) Process(ctx context.Context, job Job) error { return f(ctx, job) }
