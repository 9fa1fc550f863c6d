package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/xid"
)

// MemoryQueue is a Queue for a single process.
type MemoryQueue struct {
	mu       sync.Mutex
	tasks    map[string]*Task
	results  map[string]*Result
	inflight map[string]time.Time // delivered and not yet complete
	pending  chan string
}

// NewMemoryQueue returns a queue that holds at most size undelivered tasks.
func NewMemoryQueue(size int) *MemoryQueue {
	if size < 1 {
		size = 1
	}
	return &MemoryQueue{
		tasks:    make(map[string]*Task),
		results:  make(map[string]*Result),
		inflight: make(map[string]time.Time),
		pending:  make(chan string, size),
	}
}

func (q *MemoryQueue) Submit(ctx context.Context, name string, payload interface{}) (string, error) {
	b, err := marshalPayload(payload)
	if err != nil {
		return "", err
	}
	t := &Task{ID: xid.New().String(), Name: name, Payload: b, SubmittedAt: time.Now()}
	q.mu.Lock()
	q.tasks[t.ID] = t
	q.results[t.ID] = &Result{ID: t.ID, Name: name, Status: StatusPending, SubmittedAt: t.SubmittedAt}
	q.mu.Unlock()
	select {
	case q.pending <- t.ID:
		return t.ID, nil
	case <-ctx.Done():
		q.mu.Lock()
		delete(q.tasks, t.ID)
		delete(q.results, t.ID)
		q.mu.Unlock()
		return "", errors.Wrap(ctx.Err(), "unable to submit task")
	}
}

func (q *MemoryQueue) Status(_ context.Context, id string) (Result, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.results[id]
	if !ok {
		return Result{}, ErrTaskNotFound
	}
	return *r, nil
}

func (q *MemoryQueue) Next(ctx context.Context, timeout time.Duration) (*Task, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case id := <-q.pending:
		q.mu.Lock()
		defer q.mu.Unlock()
		t, ok := q.tasks[id]
		if !ok {
			return nil, ErrTaskNotFound
		}
		q.inflight[id] = time.Now()
		c := *t
		return &c, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Start(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.results[id]
	if !ok {
		return ErrTaskNotFound
	}
	r.Attempts++
	r.Status = startedStatus(r.Attempts)
	if _, ok = q.inflight[id]; ok {
		q.inflight[id] = time.Now()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	return nil
}

func (q *MemoryQueue) Complete(_ context.Context, id string, result interface{}, taskErr error) error {
	var b []byte
	if taskErr == nil && result != nil {
		var err error
		if b, err = marshalPayload(result); err != nil {
			return err
		}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.results[id]
	if !ok {
		return ErrTaskNotFound
	}
	r.Status, r.Error = completedStatus(taskErr)
	r.Result = b
	r.FinishedAt = time.Now()
	delete(q.tasks, id)
	delete(q.inflight, id)
	return nil
}

// Requeue puts tasks back on the queue that were delivered, or last started, more than
// staleAfter ago and never completed. Tasks that do not fit in the queue are tried again on
// the next call.
func (q *MemoryQueue) Requeue(_ context.Context, staleAfter time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for id, at := range q.inflight {
		if time.Since(at) < staleAfter {
			continue
		}
		select {
		case q.pending <- id:
			delete(q.inflight, id)
			n++
		default:
			return n, nil
		}
	}
	return n, nil
}
