// internal/engine/executor.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/browser/humanoid"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/interval"
)

var (
	// ErrAlreadyRunning rejects a start or save while a run is in progress.
	ErrAlreadyRunning = errors.New("a program is already running")
	// ErrNoTab is returned by steps that need a page after the tab was closed.
	ErrNoTab = errors.New("no open tab")
)

// Store persists the run snapshot.
type Store interface {
	Load(ctx context.Context) (schemas.RunSnapshot, error)
	Save(ctx context.Context, snap schemas.RunSnapshot) error
}

// persistTimeout bounds store writes made from the run goroutine.
const persistTimeout = 10 * time.Second

// run is the state of one accepted start. Fields other than program and id
// are guarded by Executor.mu.
type run struct {
	id      string
	program schemas.Program
	cursor  int
	tab     schemas.TabID
	// stopRequested is only consulted at the top of the loop.
	stopRequested bool
	done          chan struct{}
}

// Executor runs one program at a time against a browser host.
type Executor struct {
	cfg      config.ExecutorConfig
	scroll   humanoid.Config
	logger   *zap.Logger
	host     schemas.Host
	store    Store
	nav      *Navigator
	rng      *interval.Generator
	metrics  *Metrics
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	current  *run
	last     RunResult
	subsMu   sync.Mutex
	subs     map[int]chan schemas.RunEvent
	nextSub  int
	eventBuf int
}

// Option customizes an Executor.
type Option func(*Executor)

// WithMetrics records step and run metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithGenerator replaces the clock-seeded random source.
func WithGenerator(g *interval.Generator) Option {
	return func(e *Executor) { e.rng = g }
}

// WithEventBuffer sets how many events each subscriber may fall behind
// before events are dropped.
func WithEventBuffer(n int) Option {
	return func(e *Executor) {
		if n >= 0 {
			e.eventBuf = n
		}
	}
}

// New creates an Executor. Runs live until Shutdown, independent of the
// contexts passed to Start.
func New(cfg config.Interface, logger *zap.Logger, host schemas.Host, store Store, opts ...Option) (*Executor, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if host == nil {
		return nil, errors.New("browser host cannot be nil")
	}
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger = logger.Named("engine")
	e := &Executor{
		cfg:      cfg.Executor(),
		scroll:   humanoid.NewConfig(cfg.Humanoid()),
		logger:   logger,
		host:     host,
		store:    store,
		nav:      NewNavigator(host, cfg.Executor().PostLoadBuffer, logger),
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[int]chan schemas.RunEvent),
		eventBuf: 64,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = interval.NewRandom()
	}
	return e, nil
}

// Start validates program, persists it as running and launches the run in
// the background. An empty program is recorded as finished without opening a tab.
func (e *Executor) Start(ctx context.Context, program schemas.Program) error {
	if err := program.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		return ErrAlreadyRunning
	}
	if e.ctx.Err() != nil {
		return errors.New("executor is shut down")
	}

	if len(program) == 0 {
		if err := e.store.Save(ctx, schemas.RunSnapshot{Program: program, IsRunning: false}); err != nil {
			return fmt.Errorf("failed to persist program: %w", err)
		}
		e.logger.Info("Empty program, nothing to run.")
		return nil
	}

	if err := e.store.Save(ctx, schemas.RunSnapshot{Program: program, IsRunning: true}); err != nil {
		return fmt.Errorf("failed to persist program: %w", err)
	}

	r := &run{
		id:      uuid.NewString(),
		program: program,
		done:    make(chan struct{}),
	}
	e.current = r
	e.wg.Add(1)
	go e.execute(r)
	return nil
}

// StartSaved starts the program last persisted in the store.
func (e *Executor) StartSaved(ctx context.Context) error {
	snap, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load saved program: %w", err)
	}
	return e.Start(ctx, snap.Program)
}

// Stop asks the current run to end before its next step. The step in flight
// always finishes. Stopping an idle executor only clears a stale running flag.
func (e *Executor) Stop(ctx context.Context) error {
	e.mu.Lock()
	if r := e.current; r != nil {
		r.stopRequested = true
		e.mu.Unlock()
		e.logger.Info("Stop requested.", zap.String("run_id", r.id))
		return nil
	}
	e.mu.Unlock()

	snap, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to read run state: %w", err)
	}
	if !snap.IsRunning {
		return nil
	}
	snap.IsRunning = false
	if err := e.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("failed to persist run state: %w", err)
	}
	return nil
}

// Status reports the persisted snapshot.
func (e *Executor) Status(ctx context.Context) (schemas.RunSnapshot, error) {
	snap, err := e.store.Load(ctx)
	if err != nil {
		return schemas.RunSnapshot{}, fmt.Errorf("failed to read run state: %w", err)
	}
	return snap, nil
}

// Save validates and persists program without running it.
func (e *Executor) Save(ctx context.Context, program schemas.Program) error {
	if err := program.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		return ErrAlreadyRunning
	}
	if err := e.store.Save(ctx, schemas.RunSnapshot{Program: program}); err != nil {
		return fmt.Errorf("failed to persist program: %w", err)
	}
	return nil
}

// Recover restarts a program that was still marked running when the process
// last exited. The run begins again at the first step.
func (e *Executor) Recover(ctx context.Context) error {
	snap, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to read run state: %w", err)
	}
	if !snap.IsRunning {
		return nil
	}
	e.logger.Info("Recovering interrupted run.", zap.Int("steps", len(snap.Program)))
	if err := e.Start(ctx, snap.Program); err != nil {
		if schemas.IsValidationError(err) {
			// A program that can never start must not be retried on every boot.
			snap.IsRunning = false
			if saveErr := e.store.Save(ctx, snap); saveErr != nil {
				e.logger.Error("Failed to clear running flag.", zap.Error(saveErr))
			}
		}
		return fmt.Errorf("failed to recover run: %w", err)
	}
	return nil
}

// RunResult is how a finished run ended.
type RunResult struct {
	RunID   string
	Outcome string
	// Steps is the number of steps that completed.
	Steps int
}

// LastResult returns the result of the most recently finished run. ok is
// false when no run has finished yet.
func (e *Executor) LastResult() (result RunResult, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.last.RunID != ""
}

// Running reports whether a run is in progress.
func (e *Executor) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil
}

// Wait blocks until the current run, if any, has finished and cleaned up.
func (e *Executor) Wait(ctx context.Context) error {
	e.mu.Lock()
	r := e.current
	e.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown interrupts the current step and waits for the run to clean up.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.cancel()
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns a channel of run events and a function that releases it.
// Events are dropped for subscribers that fall behind.
func (e *Executor) Subscribe() (<-chan schemas.RunEvent, func()) {
	ch := make(chan schemas.RunEvent, e.eventBuf)
	e.subsMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subsMu.Lock()
			delete(e.subs, id)
			e.subsMu.Unlock()
			close(ch)
		})
	}
}

func (e *Executor) publish(ev schemas.RunEvent) {
	ev.Timestamp = time.Now().UTC()
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// persist writes the snapshot, logging failures. Store errors never end a run.
func (e *Executor) persist(r *run, isRunning bool) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := e.store.Save(ctx, schemas.RunSnapshot{Program: r.program, IsRunning: isRunning}); err != nil {
		e.logger.Error("Failed to persist run state.", zap.String("run_id", r.id), zap.Error(err))
	}
}

// execute is the run goroutine. Cleanup runs on every exit path.
func (e *Executor) execute(r *run) {
	defer e.wg.Done()
	logger := e.logger.With(zap.String("run_id", r.id))
	outcome := OutcomeCompleted

	defer func() {
		if p := recover(); p != nil {
			logger.Error("Run panicked.", zap.Any("panic", p), zap.Stack("stack"))
			outcome = OutcomeFailed
		}
		e.finish(r, outcome, logger)
	}()

	e.metrics.RunStarted()
	e.publish(schemas.RunEvent{Type: schemas.EventRunStarted, RunID: r.id, IsRunning: true})
	logger.Info("Run started.", zap.Int("steps", len(r.program)))

	tab, err := e.host.CreateTab(e.ctx)
	if err != nil {
		logger.Error("Failed to open tab, aborting run.", zap.Error(err))
		outcome = OutcomeFailed
		if e.ctx.Err() != nil {
			outcome = OutcomeInterrupted
		}
		return
	}
	e.mu.Lock()
	r.tab = tab
	e.mu.Unlock()

	for {
		e.mu.Lock()
		if r.stopRequested || r.cursor >= len(r.program) {
			if r.stopRequested && r.cursor < len(r.program) {
				outcome = OutcomeStopped
			}
			e.mu.Unlock()
			return
		}
		index := r.cursor
		e.mu.Unlock()

		step := r.program[index]
		stepLogger := logger.With(zap.Int("step", index), zap.Stringer("type", step.Type))
		e.publish(schemas.RunEvent{Type: schemas.EventStepStarted, RunID: r.id, StepIndex: index, StepType: step.Type, IsRunning: true})

		start := time.Now()
		err := e.dispatch(e.ctx, r, step, stepLogger)
		status := "ok"
		if err != nil {
			status = "error"
		}
		e.metrics.ObserveStep(step.Type.String(), status, time.Since(start))

		finished := schemas.RunEvent{Type: schemas.EventStepFinished, RunID: r.id, StepIndex: index, StepType: step.Type, IsRunning: err == nil}
		if err != nil {
			finished.Error = err.Error()
			e.publish(finished)
			if e.ctx.Err() != nil {
				stepLogger.Warn("Run interrupted by shutdown.", zap.Error(err))
				outcome = OutcomeInterrupted
				return
			}
			stepLogger.Error("Step failed, aborting run.", zap.Error(err))
			outcome = OutcomeFailed
			return
		}
		e.publish(finished)

		e.mu.Lock()
		r.cursor++
		e.mu.Unlock()
		e.persist(r, true)
	}
}

// finish clears the running flag, persists it and closes the tab if one is
// open. An interrupted run stays marked running so Recover restarts it.
func (e *Executor) finish(r *run, outcome string, logger *zap.Logger) {
	e.mu.Lock()
	tab := r.tab
	r.tab = ""
	cursor := r.cursor
	e.mu.Unlock()

	if outcome != OutcomeInterrupted {
		e.persist(r, false)
	}

	if tab != "" {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := e.host.RemoveTab(ctx, tab); err != nil {
			logger.Warn("Failed to close tab.", zap.Error(err))
		}
		cancel()
	}

	e.metrics.RunFinished(outcome)
	logger.Info("Run finished.", zap.String("outcome", outcome), zap.Int("steps_done", cursor))

	e.mu.Lock()
	e.current = nil
	e.last = RunResult{RunID: r.id, Outcome: outcome, Steps: cursor}
	e.mu.Unlock()

	// Published before done closes, so a subscriber that returns from Wait
	// finds the event already queued unless it was dropped.
	e.publish(schemas.RunEvent{Type: schemas.EventRunFinished, RunID: r.id, StepIndex: cursor, Outcome: outcome})
	close(r.done)
}

func (e *Executor) currentTab(r *run) (schemas.TabID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r.tab == "" {
		return "", ErrNoTab
	}
	return r.tab, nil
}

// dispatch executes one step and returns once it has completed.
func (e *Executor) dispatch(ctx context.Context, r *run, step schemas.Step, logger *zap.Logger) error {
	switch step.Type {
	case schemas.StepNewPage:
		// The tab opened at start is reused.
		return nil

	case schemas.StepGotoURL:
		tab, err := e.currentTab(r)
		if err != nil {
			return err
		}
		if err := e.nav.Goto(ctx, tab, step.GotoURL.URL); err != nil {
			return err
		}
		if pause := step.GotoURL.TimeoutAfterLoadMs; pause != nil {
			return sleep(ctx, time.Duration(*pause)*time.Millisecond)
		}
		return nil

	case schemas.StepWaitTime:
		d := e.waitDuration(step.WaitTime)
		logger.Debug("Waiting.", zap.Duration("duration", d))
		return sleep(ctx, d)

	case schemas.StepScrollPage:
		tab, err := e.currentTab(r)
		if err != nil {
			return err
		}
		h := humanoid.New(e.scroll, e.logger, newPageExecutor(e.host, tab), e.rng)
		report, err := h.Scroll(ctx, humanoid.RequestFromStep(step.ScrollPage))
		if err != nil {
			return err
		}
		logger.Debug("Scroll complete.", zap.Int("extent", report.Extent), zap.Int("ticks", report.Ticks))
		return sleep(ctx, e.settleDelay(step.ScrollPage.Strategy))

	case schemas.StepClosePage:
		e.mu.Lock()
		tab := r.tab
		r.tab = ""
		e.mu.Unlock()
		if tab == "" {
			return nil
		}
		return e.host.RemoveTab(ctx, tab)

	default:
		return fmt.Errorf("%w %q", schemas.ErrUnknownStepType, step.Type)
	}
}

func (e *Executor) waitDuration(cfg *schemas.WaitTimeConfig) time.Duration {
	if cfg.Mode == schemas.WaitRandom {
		return e.rng.Millis(schemas.Range{Min: cfg.MinMs, Max: cfg.MaxMs})
	}
	return time.Duration(cfg.Ms) * time.Millisecond
}

func (e *Executor) settleDelay(strategy schemas.ScrollStrategy) time.Duration {
	if strategy == schemas.ScrollWheel {
		return e.cfg.WheelSettle
	}
	return e.cfg.PositionSettle
}
