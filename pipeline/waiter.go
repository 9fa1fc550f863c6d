package pipeline

import (
	"sync"
)

type StepStatus uint32

const (
	StepStatusStarting StepStatus = iota + 1
	StepStatusRunning
	StepStatusDone
)

var stepStatusNames = map[StepStatus]string{
	StepStatusStarting: "starting",
	StepStatusRunning:  "running",
	StepStatusDone:     "done",
}

func (s StepStatus) String() string {
	return stepStatusNames[s]
}

// groupWaiter wraps a sync.WaitGroup and remembers the status of each step in a run.
type groupWaiter struct {
	wg       sync.WaitGroup
	mu       sync.RWMutex
	statuses map[string]StepStatus
}

func newGroupWaiter() *groupWaiter {
	return &groupWaiter{statuses: make(map[string]StepStatus)}
}

// newStepWaiter returns a components.ComponentWaiter for stepName.
func (gw *groupWaiter) newStepWaiter(stepName string) *stepWaiter {
	gw.storeStatus(stepName, StepStatusStarting)
	return &stepWaiter{stepName: stepName, gw: gw}
}

func (gw *groupWaiter) storeStatus(stepName string, status StepStatus) {
	gw.mu.Lock()
	gw.statuses[stepName] = status
	gw.mu.Unlock()
}

// StepStatuses returns a copy of the status of every step.
func (gw *groupWaiter) StepStatuses() map[string]string {
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	out := make(map[string]string, len(gw.statuses))
	for k, v := range gw.statuses {
		out[k] = v.String()
	}
	return out
}

func (gw *groupWaiter) Wait() {
	gw.wg.Wait()
}

// stepWaiter implements components.ComponentWaiter for a single step.
type stepWaiter struct {
	gw       *groupWaiter
	stepName string
}

func (s *stepWaiter) Add() {
	s.gw.wg.Add(1)
	s.gw.storeStatus(s.stepName, StepStatusRunning)
}

func (s *stepWaiter) Done() {
	s.gw.storeStatus(s.stepName, StepStatusDone)
	s.gw.wg.Done()
}
