package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/openetl/connection"
	"github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/pipeline"
	"github.com/relloyd/openetl/retry"
	"github.com/rs/xid"
)

var log = logger.NewLogger("tasks test", "error", true)

func TestMemoryQueue(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(10)

	// Test 1 - an empty queue times out with no task.
	task, err := q.Next(ctx, 10*time.Millisecond)
	if err != nil || task != nil {
		t.Fatalf("Test 1 expected no task, got %v, %v", task, err)
	}

	// Test 2 - a submitted task is pending then delivered.
	id, err := q.Submit(ctx, "echo", map[string]int{"n": 1})
	if err != nil {
		t.Fatal(err)
	}
	r, err := q.Status(ctx, id)
	if err != nil || r.Status != StatusPending || r.Name != "echo" {
		t.Fatalf("Test 2 unexpected status %+v, %v", r, err)
	}
	task, err = q.Next(ctx, time.Second)
	if err != nil || task == nil || task.ID != id || string(task.Payload) != `{"n":1}` {
		t.Fatalf("Test 2 unexpected task %+v, %v", task, err)
	}

	// Test 3 - the second attempt is recorded as a retry.
	_ = q.Start(ctx, id)
	if r, _ = q.Status(ctx, id); r.Status != StatusStarted || r.Attempts != 1 {
		t.Fatalf("Test 3 unexpected status %+v", r)
	}
	_ = q.Start(ctx, id)
	if r, _ = q.Status(ctx, id); r.Status != StatusRetry || r.Attempts != 2 {
		t.Fatalf("Test 3 unexpected status %+v", r)
	}

	// Test 4 - completion records the result.
	if err = q.Complete(ctx, id, []string{"ok"}, nil); err != nil {
		t.Fatal(err)
	}
	if r, _ = q.Status(ctx, id); r.Status != StatusSuccess || string(r.Result) != `["ok"]` || !r.Status.IsFinished() {
		t.Fatalf("Test 4 unexpected status %+v", r)
	}

	// Test 5 - unknown ids.
	if _, err = q.Status(ctx, "missing"); err != ErrTaskNotFound {
		t.Fatalf("Test 5 expected ErrTaskNotFound, got %v", err)
	}
	if err = q.Start(ctx, "missing"); err != ErrTaskNotFound {
		t.Fatalf("Test 5 expected ErrTaskNotFound, got %v", err)
	}
}

func TestMemoryQueueRequeue(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(10)
	id, _ := q.Submit(ctx, "echo", 1)
	task, _ := q.Next(ctx, time.Second)
	if task == nil || task.ID != id {
		t.Fatalf("expected task %v, got %+v", id, task)
	}

	// Test 1 - a recently delivered task is left alone.
	if n, err := q.Requeue(ctx, time.Hour); err != nil || n != 0 {
		t.Fatalf("Test 1 expected nothing requeued, got %v, %v", n, err)
	}

	// Test 2 - a delivered task that was never completed is delivered again.
	if n, err := q.Requeue(ctx, 0); err != nil || n != 1 {
		t.Fatalf("Test 2 expected 1 task requeued, got %v, %v", n, err)
	}
	task, err := q.Next(ctx, time.Second)
	if err != nil || task == nil || task.ID != id || string(task.Payload) != "1" {
		t.Fatalf("Test 2 expected redelivery of %v, got %+v, %v", id, task, err)
	}

	// Test 3 - a completed task is not requeued.
	_ = q.Start(ctx, id)
	_ = q.Complete(ctx, id, nil, nil)
	if n, _ := q.Requeue(ctx, 0); n != 0 {
		t.Fatalf("Test 3 expected nothing requeued, got %v", n)
	}
	if task, _ = q.Next(ctx, 10*time.Millisecond); task != nil {
		t.Fatalf("Test 3 expected an empty queue, got %+v", task)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	noop := func(ctx context.Context, payload []byte) (interface{}, error) { return nil, nil }
	if err := r.Register("b", noop, retry.Policy{}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("a", noop, retry.Policy{Tries: 3}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("a", noop, retry.Policy{}); err == nil {
		t.Fatal("expected an error registering a duplicate")
	}
	if _, p, _ := r.Lookup("b"); p.Tries != 1 {
		t.Fatalf("expected a default of 1 try, got %v", p.Tries)
	}
	if _, _, err := r.Lookup("c"); err == nil {
		t.Fatal("expected an error for an unknown task")
	}
	if names := strings.Join(r.Names(), ","); names != "a,b" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestWorkerExecute(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(10)
	reg := NewRegistry()
	var calls int32
	_ = reg.Register("flaky", func(ctx context.Context, payload []byte) (interface{}, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("first call fails")
		}
		return "done", nil
	}, retry.Policy{Tries: 3})
	_ = reg.Register("broken", func(ctx context.Context, payload []byte) (interface{}, error) {
		return nil, errors.New("always fails")
	}, retry.Policy{Tries: 2})
	_ = reg.Register("panics", func(ctx context.Context, payload []byte) (interface{}, error) {
		panic("boom")
	}, retry.Policy{Tries: 1})
	w := &Worker{Log: log, Queue: q, Registry: reg}

	run := func(name string) Result {
		id, err := q.Submit(ctx, name, nil)
		if err != nil {
			t.Fatal(err)
		}
		task, err := q.Next(ctx, time.Second)
		if err != nil || task == nil {
			t.Fatalf("no task delivered: %v", err)
		}
		if err = w.Execute(ctx, task); err != nil {
			t.Fatal(err)
		}
		r, _ := q.Status(ctx, id)
		return r
	}

	// Test 1 - a retried task succeeds on its second attempt.
	if r := run("flaky"); r.Status != StatusSuccess || r.Attempts != 2 || string(r.Result) != `"done"` {
		t.Fatalf("Test 1 unexpected result %+v", r)
	}
	// Test 2 - failures are recorded with the error text.
	if r := run("broken"); r.Status != StatusFailure || r.Attempts != 2 || !strings.Contains(r.Error, "always fails") {
		t.Fatalf("Test 2 unexpected result %+v", r)
	}
	// Test 3 - panics fail the task.
	if r := run("panics"); r.Status != StatusFailure || !strings.Contains(r.Error, "task panic: boom") {
		t.Fatalf("Test 3 unexpected result %+v", r)
	}
	// Test 4 - tasks without a handler fail without being started.
	if r := run("unknown"); r.Status != StatusFailure || r.Attempts != 0 {
		t.Fatalf("Test 4 unexpected result %+v", r)
	}
}

func TestWorkerRun(t *testing.T) {
	q := NewMemoryQueue(10)
	reg := NewRegistry()
	_ = reg.Register("square", func(ctx context.Context, payload []byte) (interface{}, error) {
		var n int
		if err := json.Unmarshal(payload, &n); err != nil {
			return nil, err
		}
		return n * n, nil
	}, retry.Policy{Tries: 1})
	ctx, cancel := context.WithCancel(context.Background())
	ids := make([]string, 0)
	for i := 1; i <= 5; i++ {
		id, err := q.Submit(ctx, "square", i)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	w := &Worker{Log: log, Queue: q, Registry: reg, Concurrency: 2, PollTimeout: 10 * time.Millisecond}
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	deadline := time.Now().Add(5 * time.Second)
	for i, id := range ids {
		for {
			r, _ := q.Status(context.Background(), id)
			if r.Status.IsFinished() {
				if expected := fmt.Sprint((i + 1) * (i + 1)); string(r.Result) != expected {
					t.Fatalf("task %v expected result %v, got %s", i+1, expected, r.Result)
				}
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("task %v did not finish", i+1)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorkerRunRedeliversAbandonedTask(t *testing.T) {
	q := NewMemoryQueue(10)
	reg := NewRegistry()
	_ = reg.Register("echo", func(ctx context.Context, payload []byte) (interface{}, error) {
		return json.RawMessage(payload), nil
	}, retry.Policy{Tries: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	id, _ := q.Submit(ctx, "echo", "again")
	// A worker that dies after taking the task never completes it.
	if task, _ := q.Next(ctx, time.Second); task == nil {
		t.Fatal("expected a task")
	}
	w := &Worker{Log: log, Queue: q, Registry: reg, PollTimeout: 10 * time.Millisecond, StaleAfter: 20 * time.Millisecond}
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	deadline := time.Now().Add(5 * time.Second)
	for {
		r, _ := q.Status(context.Background(), id)
		if r.Status.IsFinished() {
			if r.Status != StatusSuccess || string(r.Result) != `"again"` {
				t.Fatalf("unexpected result %+v", r)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("abandoned task was not redelivered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

type mapLoader map[string]connection.Details

func (m mapLoader) LoadConnection(name string) (connection.Details, error) {
	d, ok := m[name]
	if !ok {
		return d, fmt.Errorf("connection %q not found", name)
	}
	return d, nil
}

func TestRunPipelineHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"sku":"a1","qty":2},{"sku":"b2","qty":5}]}`))
	}))
	defer srv.Close()
	def := connection.APIDefinition{
		SourceName: "stock",
		BaseURL:    srv.URL,
		Tables:     map[string]string{"items": "items"},
		AuthType:   constants.AuthTypeNone,
	}
	var buf bytes.Buffer
	env := pipeline.Env{Connections: mapLoader{"stock": def.ToDetails("stock")}, Client: srv.Client(), Stdout: &buf}
	q := NewMemoryQueue(1)
	reg := NewRegistry()
	_ = reg.Register(constants.TaskNameRunPipeline, RunPipelineHandler(log, env), retry.Policy{Tries: 1})
	w := &Worker{Log: log, Queue: q, Registry: reg}
	ctx := context.Background()

	// Test 1 - a run config payload is executed.
	id, err := SubmitRun(ctx, q, pipeline.RunConfig{
		SourceConnection: "stock",
		SourceTable:      "items",
		RecordsKey:       "items",
		Target:           pipeline.Target{Connection: "stdout", Format: "csv"},
	})
	if err != nil {
		t.Fatal(err)
	}
	task, _ := q.Next(ctx, time.Second)
	if err = w.Execute(ctx, task); err != nil {
		t.Fatal(err)
	}
	r, _ := q.Status(ctx, id)
	if r.Status != StatusSuccess {
		t.Fatalf("Test 1 unexpected result %+v", r)
	}
	res := pipeline.RunResult{}
	if err = json.Unmarshal(r.Result, &res); err != nil || res.RowsWritten != 2 {
		t.Fatalf("Test 1 unexpected run result %s", r.Result)
	}
	if buf.String() != "sku,qty\na1,2\nb2,5\n" {
		t.Fatalf("Test 1 unexpected output %q", buf.String())
	}

	// Test 2 - an unknown connection fails the task.
	id, _ = SubmitRun(ctx, q, pipeline.RunConfig{SourceConnection: "nope", SourceTable: "items", Target: pipeline.Target{Connection: "stdout"}})
	task, _ = q.Next(ctx, time.Second)
	_ = w.Execute(ctx, task)
	if r, _ = q.Status(ctx, id); r.Status != StatusFailure || !strings.Contains(r.Error, "nope") {
		t.Fatalf("Test 2 unexpected result %+v", r)
	}
}

func TestRedisQueue(t *testing.T) {
	addr := os.Getenv("OETL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("OETL_TEST_REDIS_ADDR is not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, addr, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	q := NewRedisQueue(client, "openetl-test-"+xid.New().String(), time.Minute)
	defer client.Del(ctx, q.Name, q.processingList())

	// Test 1 - round trip through the list and hash.
	id, err := q.Submit(ctx, "echo", map[string]string{"k": "v"})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Del(ctx, taskKey(id))
	task, err := q.Next(ctx, time.Second)
	if err != nil || task == nil || task.ID != id || string(task.Payload) != `{"k":"v"}` {
		t.Fatalf("Test 1 unexpected task %+v, %v", task, err)
	}
	if err = q.Start(ctx, id); err != nil {
		t.Fatal(err)
	}
	if err = q.Complete(ctx, id, 42, nil); err != nil {
		t.Fatal(err)
	}
	r, err := q.Status(ctx, id)
	if err != nil || r.Status != StatusSuccess || r.Attempts != 1 || string(r.Result) != "42" || r.StartedAt.IsZero() {
		t.Fatalf("Test 1 unexpected result %+v, %v", r, err)
	}
	if ttl := client.TTL(ctx, taskKey(id)).Val(); ttl <= 0 {
		t.Fatalf("Test 1 expected a ttl on the finished task, got %v", ttl)
	}

	// Test 2 - an empty queue times out.
	if task, err = q.Next(ctx, time.Second); err != nil || task != nil {
		t.Fatalf("Test 2 expected no task, got %v, %v", task, err)
	}

	// Test 3 - unknown ids.
	if _, err = q.Status(ctx, "missing"); err != ErrTaskNotFound {
		t.Fatalf("Test 3 expected ErrTaskNotFound, got %v", err)
	}

	// Test 4 - a completed task leaves the processing list.
	if n := client.LLen(ctx, q.processingList()).Val(); n != 0 {
		t.Fatalf("Test 4 expected an empty processing list, got %v", n)
	}

	// Test 5 - a delivered task that is never completed is delivered again after Requeue.
	id, err = q.Submit(ctx, "echo", "lost")
	if err != nil {
		t.Fatal(err)
	}
	defer client.Del(ctx, taskKey(id))
	if task, err = q.Next(ctx, time.Second); err != nil || task == nil || task.ID != id {
		t.Fatalf("Test 5 unexpected task %+v, %v", task, err)
	}
	if n, err := q.Requeue(ctx, time.Hour); err != nil || n != 0 {
		t.Fatalf("Test 5 expected nothing requeued yet, got %v, %v", n, err)
	}
	if n, err := q.Requeue(ctx, 0); err != nil || n != 1 {
		t.Fatalf("Test 5 expected 1 task requeued, got %v, %v", n, err)
	}
	if task, err = q.Next(ctx, time.Second); err != nil || task == nil || task.ID != id || string(task.Payload) != `"lost"` {
		t.Fatalf("Test 5 expected redelivery of %v, got %+v, %v", id, task, err)
	}
	_ = q.Start(ctx, id)
	if err = q.Complete(ctx, id, nil, nil); err != nil {
		t.Fatal(err)
	}
	if n, _ := q.Requeue(ctx, 0); n != 0 {
		t.Fatalf("Test 5 expected nothing requeued after completion, got %v", n)
	}
	if r, _ = q.Status(ctx, id); r.Attempts != 1 || r.Status != StatusSuccess {
		t.Fatalf("Test 5 unexpected result %+v", r)
	}
}
