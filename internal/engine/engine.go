package engine

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/matthewvogt/contactsd/internal/contact"
	"github.com/matthewvogt/contactsd/internal/reconcile"
	"github.com/matthewvogt/contactsd/internal/trigger"
)

// Default delays between the last change notification and the pass.
const (
	DefaultSyncDelay         = 500 * time.Millisecond
	DefaultPresenceSyncDelay = 10 * time.Second

	// initialDelay schedules the startup pass.
	initialDelay = time.Millisecond
)

// Syncer runs one reconciliation pass. Implemented by *reconcile.Driver.
type Syncer interface {
	Sync(ctx context.Context) (*reconcile.Report, error)
}

// Observer is told about every pass the engine runs.
type Observer interface {
	ObservePass(report *reconcile.Report, err error, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObservePass(*reconcile.Report, error, time.Duration) {}

// pending records why the timer is running.
type pending int

const (
	pendingNone pending = iota
	pendingData
	pendingPresence
)

// Engine is the single-writer coalescing event loop.
//
// Thread-safety model:
//   - Enqueue(), Notify*(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//
// Timer and queued-name state is owned by the Run goroutine.
type Engine struct {
	syncer  Syncer
	trigger trigger.Trigger
	queue   *eventQueue
	clock   Clock
	logger  *slog.Logger
	obs     Observer

	importEnabled     bool
	disabled          bool
	syncDelay         time.Duration
	presenceSyncDelay time.Duration

	timer   Timer
	pending pending
	names   map[string]struct{}

	triggers sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithImport lets nonprivileged changes schedule passes.
func WithImport(enabled bool) Option {
	return func(e *Engine) {
		e.importEnabled = enabled
	}
}

// WithDisabled turns the engine into a sink: events are consumed but no
// pass is ever scheduled.
func WithDisabled(disabled bool) Option {
	return func(e *Engine) {
		e.disabled = disabled
	}
}

// WithDelays overrides the data and presence delays. Zero keeps the default.
func WithDelays(data, presence time.Duration) Option {
	return func(e *Engine) {
		if data > 0 {
			e.syncDelay = data
		}
		if presence > 0 {
			e.presenceSyncDelay = presence
		}
	}
}

func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.obs = o
		}
	}
}

// New creates an Engine that runs passes with s and notifies external sync
// sources through t.
func New(s Syncer, t trigger.Trigger, opts ...Option) *Engine {
	e := &Engine{
		syncer:            s,
		trigger:           t,
		queue:             newEventQueue(),
		clock:             SystemClock{},
		logger:            slog.Default(),
		obs:               nopObserver{},
		syncDelay:         DefaultSyncDelay,
		presenceSyncDelay: DefaultPresenceSyncDelay,
		names:             make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.trigger == nil {
		e.trigger = trigger.Log{Logger: e.logger}
	}
	return e
}

// Enqueue submits an event for processing by the Run loop.
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev Event) bool {
	return e.queue.Enqueue(ev)
}

// NotifyPrivileged is a privileged store listener.
func (e *Engine) NotifyPrivileged(n contact.Notification) {
	if ev, ok := PrivilegedEvent(n); ok {
		e.Enqueue(ev)
	}
}

// NotifyNonprivileged is a nonprivileged store listener.
func (e *Engine) NotifyNonprivileged(n contact.Notification) {
	if ev, ok := NonprivilegedEvent(n); ok {
		e.Enqueue(ev)
	}
}

// Run starts the event loop and schedules the initial pass. It blocks until
// ctx is cancelled or Stop is called, then waits for outstanding trigger
// calls.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting",
		"import", e.importEnabled,
		"sync_delay", e.syncDelay,
		"presence_sync_delay", e.presenceSyncDelay,
	)
	defer e.triggers.Wait()
	defer e.stopTimer()

	if e.disabled {
		e.logger.Warn("contact export is disabled")
	} else {
		e.schedule(initialDelay, pendingData)
	}

	for {
		for {
			event, ok := e.queue.TryDequeue()
			if !ok {
				break
			}
			e.handle(event)
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case _, open := <-e.queue.Wait():
			if !open && e.queue.Len() == 0 {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}

		case <-e.timerC():
			e.timer = nil
			e.pending = pendingNone
			e.runPass(ctx)
		}
	}
}

// Stop closes the event queue, which makes Run return.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) handle(ev Event) {
	switch ev.Kind {
	case EventPrivilegedData:
		e.schedule(e.syncDelay, pendingData)
	case EventPrivilegedPresence:
		if e.pending == pendingData {
			return
		}
		e.schedule(e.presenceSyncDelay, pendingPresence)
	case EventNonprivilegedData:
		if !e.importEnabled {
			return
		}
		e.schedule(e.syncDelay, pendingData)
	case EventSyncRequest:
		for _, name := range ev.Names {
			if name != "" {
				e.names[name] = struct{}{}
			}
		}
	default:
		e.logger.Warn("ignoring unknown event", "kind", ev.Kind)
	}
}

// schedule (re)starts the timer.
func (e *Engine) schedule(d time.Duration, why pending) {
	if e.disabled {
		return
	}
	e.stopTimer()
	e.timer = e.clock.NewTimer(d)
	e.pending = why
}

func (e *Engine) stopTimer() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *Engine) timerC() <-chan time.Time {
	if e.timer == nil {
		return nil
	}
	return e.timer.C()
}

// runPass runs one pass to completion regardless of ctx cancellation, then
// triggers queued sync sources.
func (e *Engine) runPass(ctx context.Context) {
	start := time.Now()
	report, err := e.syncer.Sync(context.WithoutCancel(ctx))
	e.obs.ObservePass(report, err, time.Since(start))
	if err != nil {
		e.logger.Warn("unable to synchronize database changes", "error", err)
	}

	if len(e.names) == 0 {
		return
	}
	names := make([]string, 0, len(e.names))
	for name := range e.names {
		names = append(names, name)
	}
	slices.Sort(names)
	clear(e.names)

	e.logger.Info("triggering contacts sync", "names", names)
	e.triggers.Add(1)
	go func() {
		defer e.triggers.Done()
		if err := e.trigger.TriggerSync(context.WithoutCancel(ctx), names, true, true); err != nil {
			e.logger.Warn("unable to trigger contacts sync", "names", names, "error", err)
		}
	}()
}
