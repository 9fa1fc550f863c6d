package tasks

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/relloyd/openetl/retry"
)

// Handler executes the JSON payload of a task and returns a result to record.
type Handler func(ctx context.Context, payload []byte) (interface{}, error)

type registration struct {
	handler Handler
	policy  retry.Policy
}

// Registry maps task names to handlers and their retry policy.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

// Register adds handler h for tasks called name.
// A policy with fewer than one try runs the handler once.
func (r *Registry) Register(name string, h Handler, p retry.Policy) error {
	if name == "" || h == nil {
		return errors.New("a task name and handler are required")
	}
	if p.Tries < 1 {
		p.Tries = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("task %q is already registered", name)
	}
	r.entries[name] = registration{handler: h, policy: p}
	return nil
}

func (r *Registry) Lookup(name string) (Handler, retry.Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, retry.Policy{}, fmt.Errorf("no handler registered for task %q", name)
	}
	return e.handler, e.policy, nil
}

// Names returns the registered task names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for k := range r.entries {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
