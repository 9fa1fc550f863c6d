package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/retry"
)

const defaultPollTimeout = 5 * time.Second

// Worker takes tasks from Queue and executes them using the handlers in Registry.
type Worker struct {
	Log         logger.Logger
	Queue       Queue
	Registry    *Registry
	Concurrency int
	PollTimeout time.Duration
	StaleAfter  time.Duration // requeue tasks left incomplete this long; zero disables
}

// Run starts Concurrency goroutines that each execute one task at a time.
// It returns once ctx is cancelled and all in-flight tasks are complete.
func (w *Worker) Run(ctx context.Context) {
	n := w.Concurrency
	if n < 1 {
		n = 1
	}
	w.Log.Info("worker starting with concurrency ", n, " and tasks ", w.Registry.Names())
	var wg sync.WaitGroup
	if w.StaleAfter > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.sweep(ctx)
		}()
	}
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, id)
		}(i)
	}
	wg.Wait()
	w.Log.Info("worker shutdown")
}

func (w *Worker) loop(ctx context.Context, id int) {
	poll := w.PollTimeout
	if poll <= 0 {
		poll = defaultPollTimeout
	}
	for ctx.Err() == nil {
		t, err := w.Queue.Next(ctx, poll)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.Log.Error("worker ", id, " unable to fetch next task: ", err)
			select {
			case <-time.After(poll):
			case <-ctx.Done():
				return
			}
			continue
		}
		if t == nil {
			continue
		}
		w.Log.Info("worker ", id, " received task ", t.Name, " ", t.ID)
		if err = w.Execute(ctx, t); err != nil {
			w.Log.Error("worker ", id, " unable to record task ", t.ID, ": ", err)
		}
	}
}

// sweep requeues stale tasks every half of StaleAfter until ctx is cancelled.
func (w *Worker) sweep(ctx context.Context) {
	ticker := time.NewTicker(w.StaleAfter / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := w.Queue.Requeue(ctx, w.StaleAfter)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.Log.Error("unable to requeue stale tasks: ", err)
			continue
		}
		if n > 0 {
			w.Log.Warn("requeued ", n, " stale tasks")
		}
	}
}

// Execute runs task t with its handler's retry policy and records the outcome.
// The returned error is about recording the outcome, not the task itself.
func (w *Worker) Execute(ctx context.Context, t *Task) error {
	h, policy, err := w.Registry.Lookup(t.Name)
	if err != nil {
		w.Log.Warn(err)
		return w.Queue.Complete(context.WithoutCancel(ctx), t.ID, nil, err)
	}
	var result interface{}
	err = retry.Do(ctx, w.Log, policy, func(ctx context.Context) error {
		if err := w.Queue.Start(ctx, t.ID); err != nil {
			return err
		}
		var herr error
		result, herr = call(ctx, h, t.Payload)
		return herr
	})
	if err != nil {
		w.Log.Error("task ", t.Name, " ", t.ID, " failed: ", err)
	} else {
		w.Log.Info("task ", t.Name, " ", t.ID, " complete")
	}
	return w.Queue.Complete(context.WithoutCancel(ctx), t.ID, result, err)
}

// call runs h, converting a panic into an error.
func call(ctx context.Context, h Handler, payload []byte) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return h(ctx, payload)
}
