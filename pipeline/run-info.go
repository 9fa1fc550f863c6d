package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/stats"
	"github.com/rs/xid"
)

// RunInfo describes a run launched by LaunchRun.
type RunInfo struct {
	ID     string                   `json:"id"`
	Config RunConfig                `json:"config"`
	Status RunStatus                `json:"status"`
	Result RunResult                `json:"result"`
	Stats  stats.StatsFetcher       `json:"-"`
	Steps  func() map[string]string `json:"-"`
	cancel context.CancelFunc
}

// SafeMapRunInfo wraps a map of run id to RunInfo with locking.
type SafeMapRunInfo struct {
	sync.RWMutex
	internal map[string]RunInfo
}

func NewSafeMapRunInfo() *SafeMapRunInfo {
	return &SafeMapRunInfo{internal: make(map[string]RunInfo)}
}

func (m *SafeMapRunInfo) Load(id string) (ri RunInfo, ok bool) {
	m.RLock()
	ri, ok = m.internal[id]
	m.RUnlock()
	return
}

func (m *SafeMapRunInfo) Store(id string, ri RunInfo) {
	m.Lock()
	m.internal[id] = ri
	m.Unlock()
}

func (m *SafeMapRunInfo) Delete(id string) {
	m.Lock()
	delete(m.internal, id)
	m.Unlock()
}

// IDs returns the ids of all runs.
func (m *SafeMapRunInfo) IDs() []string {
	m.RLock()
	defer m.RUnlock()
	ids := make([]string, 0, len(m.internal))
	for k := range m.internal {
		ids = append(ids, k)
	}
	return ids
}

// update applies fn to the RunInfo for id under the lock.
func (m *SafeMapRunInfo) update(id string, fn func(ri *RunInfo)) {
	m.Lock()
	ri := m.internal[id]
	fn(&ri)
	m.internal[id] = ri
	m.Unlock()
}

// Stop cancels the run with the given id. It returns false if the run is unknown or finished.
func (m *SafeMapRunInfo) Stop(id string) bool {
	ri, ok := m.Load(id)
	if !ok || ri.Status.IsFinished() || ri.cancel == nil {
		return false
	}
	ri.cancel()
	return true
}

// LaunchRun starts cfg in a goroutine and returns the new run id.
// Use wait to block until the run completes.
func (m *SafeMapRunInfo) LaunchRun(ctx context.Context, log logger.Logger, cfg RunConfig, statsDumpFrequencySeconds int) (id string, wait func() RunInfo, err error) {
	if err = cfg.Validate(); err != nil {
		return "", nil, err
	}
	id = xid.New().String()
	ctx, cancel := context.WithCancel(ctx)
	s := stats.NewRunStats(log, stats.SetStatsDumpFrequency(statsDumpFrequencySeconds))
	w := newGroupWaiter()
	cfg.Env.Stats = s
	cfg.Env.waiter = w
	m.Store(id, RunInfo{
		ID:     id,
		Config: cfg,
		Status: RunStatus{Status: StatusStarting, StartTime: time.Now()},
		Stats:  s,
		Steps:  w.StepStatuses,
		cancel: cancel,
	})
	done := make(chan struct{})
	log.Info("Launching run ", id)
	go func() {
		defer close(done)
		defer cancel()
		m.update(id, func(ri *RunInfo) { ri.Status.Status = StatusRunning })
		result, runErr := Run(ctx, log, cfg)
		m.update(id, func(ri *RunInfo) {
			ri.Result = result
			ri.Status.EndTime = time.Now()
			switch {
			case runErr == nil:
				ri.Status.Status = StatusComplete
			case ctx.Err() == context.Canceled:
				ri.Status.Status = StatusShutdown
				ri.Status.Error = runErr.Error()
			default:
				ri.Status.Status = StatusCompleteWithError
				ri.Status.Error = runErr.Error()
			}
		})
		if runErr != nil {
			log.Error("run ", id, " failed: ", runErr)
		} else {
			log.Info("run ", id, " complete")
		}
	}()
	wait = func() RunInfo {
		<-done
		ri, _ := m.Load(id)
		return ri
	}
	return id, wait, nil
}
