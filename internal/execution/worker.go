// Package execution runs a compiled artifact on a board in the background
// and turns what the program prints into ordered events.
package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
	"github.com/Kotoad/APP-PyQt-sub000/internal/remote"
	"github.com/google/uuid"
)

// ErrCancelled is recorded on runs that were stopped before they finished.
var ErrCancelled = errors.New("cancelled")

const (
	ConnectTimeout = 10 * time.Second
	DrainInterval  = 50 * time.Millisecond
	EventBuffer    = 256
	chunkSize      = 4096
)

// State is a step of the worker lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateUploading  State = "uploading"
	StateKillingOld State = "killing_old"
	StateGPIOReset  State = "gpio_reset"
	StateRunning    State = "running"
	StateDraining   State = "draining"
	StateDone       State = "done"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

var stateText = map[State]string{
	StateConnecting: "Connecting",
	StateUploading:  "Uploading",
	StateKillingOld: "Stopping previous program",
	StateGPIOReset:  "Releasing pins",
	StateRunning:    "Running",
	StateDraining:   "Collecting output",
	StateDone:       "Finished",
	StateFailed:     "Failed",
	StateCancelled:  "Stopped",
}

// Request is everything a run needs. The worker reads the artifact from
// disk and never touches the in-memory project.
type Request struct {
	Artifact    string
	Target      remote.Target
	TargetIndex int
	Pins        []int
}

// Worker executes one Request. Run is called once; Stop may be called
// from any goroutine at any time.
type Worker struct {
	id       string
	req      Request
	backend  remote.ExecBackend
	strategy remote.Strategy
	events   chan models.RunEvent
	done     chan struct{}

	ConnectTimeout time.Duration

	mu         sync.Mutex
	state      State
	shouldStop bool
	stopCh     chan struct{}
	cancel     context.CancelFunc
	channel    remote.Channel
	seq        int
	exitStatus int
	tail       outputTail
}

// errorTailSize bounds the output kept for error reports. On a PTY the
// traceback arrives on stdout, so stderr is usually empty.
const errorTailSize = 2048

type outputTail struct {
	buf []byte
}

func (t *outputTail) write(s string) {
	t.buf = append(t.buf, s...)
	if n := len(t.buf) - errorTailSize; n > 0 {
		t.buf = t.buf[n:]
	}
}

func (t *outputTail) String() string {
	return strings.TrimSpace(strings.ToValidUTF8(string(t.buf), ""))
}

// NewWorker creates an idle worker with a fresh run id.
func NewWorker(backend remote.ExecBackend, req Request) *Worker {
	return &Worker{
		id:             uuid.New().String(),
		req:            req,
		backend:        backend,
		strategy:       remote.StrategyFor(req.TargetIndex),
		events:         make(chan models.RunEvent, EventBuffer),
		done:           make(chan struct{}),
		ConnectTimeout: ConnectTimeout,
		state:          StateIdle,
		stopCh:         make(chan struct{}),
		exitStatus:     -1,
	}
}

func (w *Worker) ID() string { return w.id }

// Events delivers the run's events in order. It is closed after the
// completed event.
func (w *Worker) Events() <-chan models.RunEvent { return w.events }

// Done is closed when Run has finished, just before Events is closed.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// ExitStatus is the remote exit code, or -1 when the program did not exit.
func (w *Worker) ExitStatus() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exitStatus
}

// Stop sets the stop flag, bypasses pending sleeps, and closes the remote
// channel so blocked reads return.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.shouldStop {
		return
	}
	w.shouldStop = true
	close(w.stopCh)
	if w.cancel != nil {
		w.cancel()
	}
	if w.channel != nil {
		w.channel.Close()
	}
}

// Wait blocks until Run returns or the timeout passes.
func (w *Worker) Wait(timeout time.Duration) bool {
	select {
	case <-w.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (w *Worker) stopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.shouldStop
}

// Run executes the request and emits completed last. The session is
// always closed.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.events)
	defer close(w.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.mu.Lock()
	w.cancel = cancel
	if w.shouldStop {
		cancel()
	}
	w.mu.Unlock()

	ok := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				fmt.Printf("[Run %s] PANIC: %v\n", w.id[:8], r)
				w.emit(models.RunEvent{Type: models.RunEventError, Text: fmt.Sprintf("internal error: %v", r)})
				w.setState(StateFailed)
				ok = false
			}
		}()
		ok = w.execute(ctx)
	}()

	w.emit(models.RunEvent{Type: models.RunEventCompleted, OK: ok, Text: string(w.State())})
}

func (w *Worker) execute(ctx context.Context) bool {
	if !w.step(StateConnecting) {
		return w.cancelled()
	}
	session, err := w.backend.Connect(ctx, w.req.Target, w.ConnectTimeout)
	if err != nil {
		return w.fail(err)
	}
	defer func() {
		if err := w.backend.Close(session); err != nil {
			fmt.Printf("[Run %s] Warning: close session: %v\n", w.id[:8], err)
		}
	}()

	if !w.step(StateUploading) {
		return w.cancelled()
	}
	remotePath, err := w.strategy.Upload(ctx, w.backend, session, w.req.Artifact)
	if err != nil {
		return w.fail(err)
	}

	if !w.step(StateKillingOld) {
		return w.cancelled()
	}
	if err := w.strategy.KillOld(ctx, w.backend, session, remotePath); err != nil {
		return w.fail(err)
	}

	if !w.step(StateGPIOReset) {
		return w.cancelled()
	}
	if err := w.strategy.ResetPins(ctx, w.backend, session, w.req.Pins); err != nil {
		return w.fail(err)
	}

	if !w.step(StateRunning) {
		return w.cancelled()
	}
	ch, err := w.strategy.Launch(ctx, w.backend, session, remotePath)
	if err != nil {
		return w.fail(err)
	}
	w.mu.Lock()
	if w.shouldStop {
		w.mu.Unlock()
		ch.Close()
		return w.cancelled()
	}
	w.channel = ch
	w.mu.Unlock()
	defer ch.Close()

	return w.drain(ch)
}

func (w *Worker) drain(ch remote.Channel) bool {
	var splitter Splitter
	for {
		if w.stopped() {
			return w.cancelled()
		}
		exited := ch.ExitReady()
		w.read(ch, &splitter)
		if exited {
			break
		}
		if !w.sleep(DrainInterval) {
			return w.cancelled()
		}
	}

	if !w.step(StateDraining) {
		return w.cancelled()
	}
	w.read(ch, &splitter)
	w.deliver(splitter.Flush())
	if w.stopped() {
		return w.cancelled()
	}

	status := ch.ExitStatus()
	w.mu.Lock()
	w.exitStatus = status
	w.mu.Unlock()
	if status == 0 {
		w.setState(StateDone)
		return true
	}
	text := ch.Stderr()
	if text == "" {
		text = fmt.Sprintf("exit status %d", status)
		if out := w.tail.String(); out != "" {
			text += "\n" + out
		}
	}
	w.emit(models.RunEvent{Type: models.RunEventError, Text: text})
	w.setState(StateFailed)
	return false
}

func (w *Worker) read(ch remote.Channel, splitter *Splitter) {
	for ch.RecvReady() {
		data, err := ch.Recv(chunkSize)
		if len(data) > 0 {
			w.deliver(splitter.Feed(string(data)))
		}
		if err != nil {
			return
		}
	}
}

func (w *Worker) deliver(pieces []Piece) {
	for _, p := range pieces {
		if w.stopped() {
			return
		}
		switch {
		case p.Err != nil:
			fmt.Printf("[Run %s] Warning: %v\n", w.id[:8], p.Err)
		case p.Telemetry != nil:
			w.emit(models.RunEvent{Type: models.RunEventTelemetry, Telemetry: p.Telemetry})
		default:
			w.tail.write(p.Output)
			w.emit(models.RunEvent{Type: models.RunEventOutput, Text: p.Output})
		}
	}
}

// sleep waits for d and returns false when the stop flag was set meanwhile.
func (w *Worker) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-w.stopCh:
		return false
	case <-t.C:
		return true
	}
}

// step enters a state unless the stop flag is set.
func (w *Worker) step(s State) bool {
	if w.stopped() {
		return false
	}
	w.setState(s)
	return true
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
	fmt.Printf("[Run %s] %s\n", w.id[:8], s)
	w.emit(models.RunEvent{Type: models.RunEventStatus, Text: stateText[s]})
}

func (w *Worker) cancelled() bool {
	w.setState(StateCancelled)
	return false
}

// fail reports err unless it was caused by Stop.
func (w *Worker) fail(err error) bool {
	if w.stopped() || errors.Is(err, context.Canceled) {
		return w.cancelled()
	}
	fmt.Printf("[Run %s] Error: %v\n", w.id[:8], err)
	w.emit(models.RunEvent{Type: models.RunEventError, Text: err.Error()})
	w.setState(StateFailed)
	return false
}

func (w *Worker) emit(ev models.RunEvent) {
	w.mu.Lock()
	w.seq++
	ev.Seq = w.seq
	w.mu.Unlock()
	ev.RunID = w.id
	ev.Time = time.Now().UnixMilli()
	w.events <- ev
}
