// Package bus carries reply jobs from a bot's read loop to its completion
// worker. The read loop must never block on the model, so publishing is
// bounded and overflow is counted rather than queued forever.
package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultQueueSize = 100
	publishTimeout   = 100 * time.Millisecond
)

// ReplyJob is one pending reply. ReplyTo is captured when the triggering
// line is read and never recomputed.
type ReplyJob struct {
	ID         uuid.UUID
	Speaker    string
	ReplyTo    string
	Text       string
	Epoch      uint64
	ReceivedAt time.Time
}

// NewReplyJob stamps a job with a fresh ID and the current time.
func NewReplyJob(speaker, replyTo, text string, epoch uint64) ReplyJob {
	return ReplyJob{
		ID:         uuid.New(),
		Speaker:    speaker,
		ReplyTo:    replyTo,
		Text:       text,
		Epoch:      epoch,
		ReceivedAt: time.Now(),
	}
}

type JobQueue struct {
	jobs    chan ReplyJob
	closed  bool
	dropped atomic.Uint64
	mu      sync.RWMutex
}

func NewJobQueue(size int) *JobQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &JobQueue{jobs: make(chan ReplyJob, size)}
}

// Publish enqueues job, waiting briefly when the buffer is full. It reports
// false when the job was dropped or the queue is closed.
func (q *JobQueue) Publish(job ReplyJob) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}

	select {
	case q.jobs <- job:
		return true
	default:
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case q.jobs <- job:
			return true
		case <-timer.C:
			q.dropped.Add(1)
			return false
		}
	}
}

func (q *JobQueue) Consume(ctx context.Context) (ReplyJob, bool) {
	select {
	case job, ok := <-q.jobs:
		if !ok {
			return ReplyJob{}, false
		}
		return job, true
	case <-ctx.Done():
		return ReplyJob{}, false
	}
}

// Drain removes and returns every job currently buffered without blocking.
func (q *JobQueue) Drain() []ReplyJob {
	var out []ReplyJob
	for {
		select {
		case job, ok := <-q.jobs:
			if !ok {
				return out
			}
			out = append(out, job)
		default:
			return out
		}
	}
}

func (q *JobQueue) Len() int {
	return len(q.jobs)
}

func (q *JobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.jobs)
}

func (q *JobQueue) Dropped() uint64 {
	return q.dropped.Load()
}
