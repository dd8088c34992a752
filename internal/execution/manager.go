package execution

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
	"github.com/Kotoad/APP-PyQt-sub000/internal/remote"
)

// MaxRuns limits how many finished runs are kept in memory
const MaxRuns = 20

// RunMaxAge is how long to keep finished runs before cleanup
const RunMaxAge = 30 * time.Minute

// RunKeepAliveWindow is how long to keep runs that are actively being viewed
const RunKeepAliveWindow = 5 * time.Minute

// StopWait bounds how long a new run waits for the previous one to stop.
const StopWait = 5 * time.Second

const subscriberBuffer = 256

// Recorder persists runs and their events. Errors are logged, never
// propagated into the run.
type Recorder interface {
	BeginRun(info *models.RunInfo) error
	RecordEvent(ev models.RunEvent) error
	FinishRun(info *models.RunInfo) error
}

// Manager owns the single execution worker. Starting a run while another
// is active stops the old one first.
type Manager struct {
	runs    map[string]*RunState
	current *Worker
	subs    map[int]chan models.RunEvent
	nextSub int
	mu      sync.RWMutex
	startMu sync.Mutex

	linux    remote.ExecBackend
	micro    remote.ExecBackend
	recorder Recorder

	// ConnectTimeout overrides the worker default when positive.
	ConnectTimeout time.Duration
}

// RunState holds the run metadata and its worker.
type RunState struct {
	Info         *models.RunInfo
	LastAccessed time.Time
	worker       *Worker
	finished     chan struct{}
}

// NewManager creates a manager that uses linux for SBC targets and micro
// for microcontroller targets. recorder may be nil.
func NewManager(linux, micro remote.ExecBackend, recorder Recorder) *Manager {
	return &Manager{
		runs:     make(map[string]*RunState),
		subs:     make(map[int]chan models.RunEvent),
		linux:    linux,
		micro:    micro,
		recorder: recorder,
	}
}

func (m *Manager) backendFor(targetIndex int) remote.ExecBackend {
	if models.IsMicrocontroller(targetIndex) {
		return m.micro
	}
	return m.linux
}

// Start launches req in the background and returns the new run.
func (m *Manager) Start(req Request) (*models.RunInfo, error) {
	if _, err := os.Stat(req.Artifact); err != nil {
		return nil, fmt.Errorf("artifact not available: %w", err)
	}
	backend := m.backendFor(req.TargetIndex)
	if backend == nil {
		return nil, fmt.Errorf("%w: no backend for target %d", remote.ErrTransport, req.TargetIndex)
	}

	m.startMu.Lock()
	defer m.startMu.Unlock()

	m.mu.RLock()
	prev := m.current
	m.mu.RUnlock()
	if prev != nil {
		select {
		case <-prev.Done():
		default:
			fmt.Printf("[Run %s] Stopping for a new run\n", prev.ID()[:8])
			prev.Stop()
			if !prev.Wait(StopWait) {
				fmt.Printf("[Run %s] Warning: did not stop within %s\n", prev.ID()[:8], StopWait)
			}
		}
	}

	m.cleanupOldRunsIfNeeded()

	w := NewWorker(backend, req)
	if m.ConnectTimeout > 0 {
		w.ConnectTimeout = m.ConnectTimeout
	}
	info := models.NewRunInfo(w.ID(), req.Target.Host, req.TargetIndex)
	info.Backend = backend.Name()
	info.Artifact = req.Artifact
	info.Status = models.RunStatusRunning
	info.State = string(StateIdle)
	info.StartTime = time.Now().UnixMilli()

	state := &RunState{
		Info:         info,
		LastAccessed: time.Now(),
		worker:       w,
		finished:     make(chan struct{}),
	}
	m.mu.Lock()
	m.runs[w.ID()] = state
	m.current = w
	snapshot := info.Clone()
	m.mu.Unlock()

	if m.recorder != nil {
		if err := m.recorder.BeginRun(snapshot); err != nil {
			fmt.Printf("[Run %s] Warning: history: %v\n", w.ID()[:8], err)
		}
	}

	fmt.Printf("[Run %s] Starting %s on %s via %s\n", w.ID()[:8], req.Artifact, req.Target.Host, backend.Name())
	go m.pump(state)
	go w.Run(context.Background())
	return snapshot, nil
}

// pump forwards worker events to the run record, the recorder and the
// subscribers, in order.
func (m *Manager) pump(state *RunState) {
	w := state.worker
	defer close(state.finished)
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("[Run %s] PANIC recovered: %v\n", w.ID()[:8], r)
			for range w.Events() {
			}
		}
	}()

	for ev := range w.Events() {
		m.mu.Lock()
		apply(state.Info, ev, w.State())
		snapshot := state.Info.Clone()
		m.mu.Unlock()

		if m.recorder != nil {
			if err := m.recorder.RecordEvent(ev); err != nil {
				fmt.Printf("[Run %s] Warning: history: %v\n", w.ID()[:8], err)
			}
			if ev.Type == models.RunEventCompleted {
				if err := m.recorder.FinishRun(snapshot); err != nil {
					fmt.Printf("[Run %s] Warning: history: %v\n", w.ID()[:8], err)
				}
			}
		}
		if ev.Type == models.RunEventCompleted {
			fmt.Printf("[Run %s] Completed: status=%s, output=%d bytes\n", w.ID()[:8], snapshot.Status, snapshot.OutputBytes)
		}
		m.broadcast(ev)
	}
}

func apply(info *models.RunInfo, ev models.RunEvent, state State) {
	info.State = string(state)
	switch ev.Type {
	case models.RunEventOutput:
		info.OutputBytes += len(ev.Text)
	case models.RunEventError:
		info.Error = ev.Text
	case models.RunEventTelemetry:
		info.Telemetry = ev.Telemetry
	case models.RunEventCompleted:
		info.EndTime = ev.Time
		switch {
		case ev.OK:
			info.Status = models.RunStatusComplete
		case state == StateCancelled:
			info.Status = models.RunStatusCancelled
			if info.Error == "" {
				info.Error = ErrCancelled.Error()
			}
		default:
			info.Status = models.RunStatusError
		}
	}
}

func (m *Manager) broadcast(ev models.RunEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			fmt.Printf("[Run %s] Warning: subscriber %d is full, dropping %s event\n", ev.RunID[:8], id, ev.Type)
		}
	}
}

// Subscribe returns a channel receiving every event of every run from now
// on, and a function that ends the subscription.
func (m *Manager) Subscribe() (<-chan models.RunEvent, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan models.RunEvent, subscriberBuffer)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Stop signals the active run to stop. It reports whether a run was active.
func (m *Manager) Stop() bool {
	m.mu.RLock()
	w := m.current
	m.mu.RUnlock()
	if w == nil {
		return false
	}
	select {
	case <-w.Done():
		return false
	default:
	}
	fmt.Printf("[Run %s] Stop requested\n", w.ID()[:8])
	w.Stop()
	return true
}

// Wait blocks until the run's last event was delivered or timeout passes.
func (m *Manager) Wait(id string, timeout time.Duration) bool {
	m.mu.RLock()
	state, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case <-state.finished:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Shutdown stops the active run and waits for it.
func (m *Manager) Shutdown(timeout time.Duration) {
	m.mu.RLock()
	w := m.current
	m.mu.RUnlock()
	if w == nil {
		return
	}
	w.Stop()
	m.Wait(w.ID(), timeout)
}

// Current returns the most recently started run.
func (m *Manager) Current() (*models.RunInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil, false
	}
	state, ok := m.runs[m.current.ID()]
	if !ok {
		return nil, false
	}
	return state.Info.Clone(), true
}

// GetRun returns a run by ID.
func (m *Manager) GetRun(id string) (*models.RunInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.runs[id]
	if !ok {
		return nil, false
	}
	return state.Info.Clone(), true
}

// Runs lists the runs in memory, newest first.
func (m *Manager) Runs() []*models.RunInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.RunInfo, 0, len(m.runs))
	for _, state := range m.runs {
		out = append(out, state.Info.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime > out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// TouchRun updates the LastAccessed timestamp for a run.
func (m *Manager) TouchRun(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.runs[id]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

// cleanupOldRunsIfNeeded removes the oldest finished runs if at capacity
func (m *Manager) cleanupOldRunsIfNeeded() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.runs) < MaxRuns {
		return
	}

	var finished []*RunState
	for _, state := range m.runs {
		if state.Info.Finished() {
			finished = append(finished, state)
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].Info.StartTime < finished[j].Info.StartTime
	})

	toFree := len(m.runs) - MaxRuns + 1
	for i := 0; i < toFree && i < len(finished); i++ {
		id := finished[i].Info.ID
		delete(m.runs, id)
		fmt.Printf("[Manager] Cleaned up old run %s\n", id[:8])
	}
}

// CleanupOldRuns removes finished runs older than maxAge, but keeps runs
// accessed within RunKeepAliveWindow. It returns how many were removed.
func (m *Manager) CleanupOldRuns(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	keepAliveCutoff := time.Now().Add(-RunKeepAliveWindow)
	removed := 0
	for id, state := range m.runs {
		if !state.Info.Finished() {
			continue
		}
		if state.LastAccessed.After(keepAliveCutoff) {
			continue
		}
		if state.LastAccessed.Before(cutoff) {
			delete(m.runs, id)
			removed++
			fmt.Printf("[Manager] Cleaned up aged run %s (last accessed: %s ago)\n",
				id[:8], time.Since(state.LastAccessed).Round(time.Second))
		}
	}
	return removed
}
