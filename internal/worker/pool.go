package worker

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Task is a unit of work executed by the queue.
type Task interface {
	Run(ctx context.Context)
	ID() string
}

// Queue executes submitted tasks one at a time, in submission order. Batch
// analysis depends on this: each extraction job record holds a single
// in-flight analysis, so the Nth image must not be dispatched before the
// (N-1)th reaches a terminal state.
type Queue struct {
	tasks chan Task
	log   *logrus.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewQueue(size int, log *logrus.Logger) *Queue {
	return &Queue{
		tasks: make(chan Task, size),
		log:   log,
	}
}

// Start launches the single worker goroutine. Starting an already-running
// queue is a no-op.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.done = make(chan struct{})
	q.running = true
	go q.work(ctx)
	q.log.Info("task queue started")
}

func (q *Queue) work(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case task := <-q.tasks:
			q.log.WithField("task_id", task.ID()).Info("task started")
			task.Run(ctx)
			q.log.WithField("task_id", task.ID()).Info("task finished")
		case <-ctx.Done():
			return
		}
	}
}

// Submit enqueues a task without blocking. It returns false when the queue is
// full, so callers can tell failure-to-enqueue apart from failure-to-process.
func (q *Queue) Submit(task Task) bool {
	select {
	case q.tasks <- task:
		q.log.WithField("task_id", task.ID()).Info("task queued")
		return true
	default:
		q.log.WithField("task_id", task.ID()).Warn("task queue full, submission rejected")
		return false
	}
}

// Stop cancels the running task's context and waits for the worker to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	cancel, done := q.cancel, q.done
	q.mu.Unlock()

	cancel()
	<-done
	q.log.Info("task queue stopped")
}
