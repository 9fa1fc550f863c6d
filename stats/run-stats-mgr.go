package stats

import (
	"sync"
	"time"

	"github.com/cevaris/ordered_map"
	"github.com/relloyd/openetl/logger"
)

// StatsFetcher is implemented by anything able to report step stats, e.g. for the web server.
type StatsFetcher interface {
	GetStats() []Stats
}

// StatsManager collects StepWatchers for a single pipeline run.
type StatsManager interface {
	StatsFetcher
	AddStepWatcher(stepName string) *StepWatcher
	StartDumping()
	StopDumping()
	TotalRows(stepName string) int
}

// RunStatsManager implements StatsManager and dumps stats for each step in the order they were added.
type RunStatsManager struct {
	ticker          *time.Ticker
	tickerDone      chan struct{}
	tickerRunning   bool
	tickerFrequency int
	mu              sync.Mutex
	log             logger.Logger
	mapStepStats    *ordered_map.OrderedMap // step name -> *StepWatcher
}

// SetStatsDumpFrequency returns an option for NewRunStats(); use 0 to disable periodic dumps.
func SetStatsDumpFrequency(seconds int) func(t *RunStatsManager) {
	return func(t *RunStatsManager) {
		t.tickerFrequency = seconds
	}
}

// NewRunStats creates a RunStatsManager that dumps stats every 5 seconds unless overridden by options.
func NewRunStats(log logger.Logger, options ...func(t *RunStatsManager)) *RunStatsManager {
	t := &RunStatsManager{log: log, tickerFrequency: 5}
	for _, option := range options {
		option(t)
	}
	t.tickerDone = make(chan struct{})
	t.mapStepStats = ordered_map.NewOrderedMap()
	return t
}

// AddStepWatcher creates a new StepWatcher for stepName and saves it.
func (t *RunStatsManager) AddStepWatcher(stepName string) *StepWatcher {
	sw := NewStepWatcher(t.log, stepName)
	t.mu.Lock()
	t.mapStepStats.Set(stepName, sw)
	t.mu.Unlock()
	return sw
}

func (t *RunStatsManager) StartDumping() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tickerRunning || t.tickerFrequency <= 0 {
		t.log.Debug("stats dumper disabled or already running")
		return
	}
	t.ticker = time.NewTicker(time.Second * time.Duration(t.tickerFrequency))
	t.tickerRunning = true
	go func() {
		for {
			select {
			case <-t.tickerDone:
				return
			case <-t.ticker.C:
				t.logStats()
			}
		}
	}()
}

// StopDumping stops the ticker and dumps the final stats if StartDumping() was called.
func (t *RunStatsManager) StopDumping() {
	t.mu.Lock()
	running := t.tickerRunning
	t.tickerRunning = false
	t.mu.Unlock()
	if !running {
		return
	}
	t.ticker.Stop()
	t.tickerDone <- struct{}{}
	for _, sw := range t.watchers() {
		sw.CalculateStats()
	}
	t.logStats()
}

func (t *RunStatsManager) logStats() {
	for _, sw := range t.watchers() {
		t.log.Info(sw.RenderStats().String())
	}
}

// GetStats implements StatsFetcher.
func (t *RunStatsManager) GetStats() []Stats {
	w := t.watchers()
	statsList := make([]Stats, 0, len(w))
	for _, sw := range w {
		statsList = append(statsList, sw.RenderStats())
	}
	return statsList
}

// TotalRows returns the rows processed so far by stepName, or 0 if the step is unknown.
func (t *RunStatsManager) TotalRows(stepName string) int {
	t.mu.Lock()
	v, ok := t.mapStepStats.Get(stepName)
	t.mu.Unlock()
	if !ok {
		return 0
	}
	sw := v.(*StepWatcher)
	sw.CalculateStats()
	return sw.RenderStats().TotalRowsProcessed
}

func (t *RunStatsManager) watchers() []*StepWatcher {
	t.mu.Lock()
	defer t.mu.Unlock()
	retval := make([]*StepWatcher, 0, t.mapStepStats.Len())
	iter := t.mapStepStats.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() {
		retval = append(retval, kv.Value.(*StepWatcher))
	}
	return retval
}
