package motion

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agiangrant/motion/arena"
)

// workerControlSize is the per-worker control block reservation. Acquiring
// it from the control pool bounds how many workers can run at once and
// keeps worker spawn visible in the allocator accounting.
const workerControlSize = 256

// Supervisor owns the lifecycle of every render context: it allocates
// their buffers, spawns and stops their workers, and frees what they hold.
//
// All public methods must be called without the engine lock held; the
// supervisor and its workers take the lock themselves around every engine
// call.
type Supervisor struct {
	engine Engine
	alloc  *arena.Allocator
	cfg    Config
	log    *slog.Logger

	mu       sync.RWMutex
	contexts map[ContextID]*Context

	nextWorkerID atomic.Uint64
}

// NewSupervisor wires a supervisor to an engine and an allocator. Zero
// timing fields in cfg are replaced by defaults; passing a nil logger
// uses the package logger.
func NewSupervisor(engine Engine, alloc *arena.Allocator, cfg Config, log *slog.Logger) *Supervisor {
	if log == nil {
		log = Logger()
	}
	def := DefaultConfig()
	if cfg.Timing.SettleDelayMs == 0 {
		cfg.Timing.SettleDelayMs = def.Timing.SettleDelayMs
	}
	if cfg.Timing.GracePeriodMs == 0 {
		cfg.Timing.GracePeriodMs = def.Timing.GracePeriodMs
	}
	if cfg.Timing.PollIntervalMs == 0 {
		cfg.Timing.PollIntervalMs = def.Timing.PollIntervalMs
	}
	if cfg.Timing.StopTimeoutMs == 0 {
		cfg.Timing.StopTimeoutMs = def.Timing.StopTimeoutMs
	}
	return &Supervisor{
		engine:   engine,
		alloc:    alloc,
		cfg:      cfg,
		log:      log,
		contexts: make(map[ContextID]*Context),
	}
}

// NewContext registers a render context for a widget. The context starts
// idle; nothing is allocated until Launch.
func (s *Supervisor) NewContext(cfg ContextConfig) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx := &Context{
		id:         newContextID(),
		cfg:        cfg,
		userHidden: cfg.StartHidden,
	}
	s.mu.Lock()
	s.contexts[ctx.id] = ctx
	s.mu.Unlock()
	s.log.Debug("context registered", "context", uint64(ctx.id), "widget", uint64(cfg.Widget))
	return ctx, nil
}

// Contexts returns a snapshot of every registered context.
func (s *Supervisor) Contexts() []*Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Context, 0, len(s.contexts))
	for _, ctx := range s.contexts {
		out = append(out, ctx)
	}
	return out
}

// Launch allocates the context's pixel buffer and worker control block,
// hides the widget until the worker has bound content, and spawns the
// worker. Any allocation failure rolls back completely: the context is
// left idle with zero net allocations and the error is returned to the
// caller instead of tearing anything down.
func (s *Supervisor) Launch(ctx *Context) error {
	ctx.mu.Lock()
	if ctx.state != StateIdle || ctx.wk != nil || ctx.buffer.Valid() || ctx.control.Valid() {
		ctx.mu.Unlock()
		return ErrAlreadyActive
	}
	ctx.state = StateLaunching
	ctx.mu.Unlock()

	size := ctx.cfg.bufferSize()
	buf, err := s.alloc.Acquire(size, arena.PoolImage)
	if err != nil {
		ctx.setState(StateIdle)
		s.log.Warn("pixel buffer allocation failed",
			"context", uint64(ctx.id), "bytes", size, "error", err)
		return fmt.Errorf("pixel buffer: %w", err)
	}
	pixels, err := s.alloc.Bytes(buf)
	if err != nil {
		s.alloc.Release(buf)
		ctx.setState(StateIdle)
		return fmt.Errorf("pixel buffer: %w", err)
	}

	// Hidden until the worker has decoded and bound something to show.
	s.engine.Lock()
	s.engine.SetWidgetVisible(ctx.cfg.Widget, false)
	s.engine.Unlock()

	// Strict: control slots bound concurrent workers, so no image fallback.
	control, err := s.alloc.AcquireStrict(workerControlSize, arena.PoolControl)
	if err != nil {
		s.alloc.Release(buf)
		ctx.setState(StateIdle)
		s.log.Warn("worker control block allocation failed",
			"context", uint64(ctx.id), "error", err)
		return fmt.Errorf("worker control block: %w", err)
	}

	w := newWorker(s, ctx, pixels)
	ctx.mu.Lock()
	ctx.buffer = buf
	ctx.control = control
	ctx.wk = w
	ctx.stop.Store(false)
	ctx.mu.Unlock()

	go w.run()
	s.log.Info("launched", "context", uint64(ctx.id), "widget", uint64(ctx.cfg.Widget), "bytes", size)
	return nil
}

// Play starts playback on a context whose worker is parked ready. Calling
// it early, before the worker reaches the ready park, still takes effect;
// calling it with no worker is a no-op.
func (s *Supervisor) Play(ctx *Context) {
	ctx.mu.RLock()
	w := ctx.wk
	ctx.mu.RUnlock()
	if w != nil {
		w.play()
	}
}

// StopAndWait requests a cooperative stop and blocks until the worker has
// exited or the timeout elapses. A timeout <= 0 uses the configured stop
// timeout. Returns false when the worker outlived the wait; resources are
// then still owned and FreeResources will refuse until the worker exits.
func (s *Supervisor) StopAndWait(ctx *Context, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = s.cfg.Timing.StopTimeout()
	}
	ctx.mu.Lock()
	w := ctx.wk
	if w == nil {
		ctx.mu.Unlock()
		return true
	}
	ctx.state = StateStopping
	ctx.mu.Unlock()

	w.requestStop()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-w.done:
		return true
	case <-t.C:
		s.log.Warn("worker did not stop in time",
			"context", uint64(ctx.id), "worker", w.id, "timeout", timeout)
		return false
	}
}

// FreeResources releases the context's buffer and control block and
// returns it to idle. It refuses with ErrWorkerActive while a worker is
// still running so a live worker can never touch freed memory.
func (s *Supervisor) FreeResources(ctx *Context) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.wk != nil {
		select {
		case <-ctx.wk.done:
			ctx.wk = nil
		default:
			s.log.Warn("free refused, worker still active", "context", uint64(ctx.id))
			return ErrWorkerActive
		}
	}
	s.releaseLocked(ctx)
	return nil
}

// OnBecameVisible relaunches a context whose resources were released,
// typically after an invisibility self-release or a screen reload.
// Contexts that still hold a buffer, or that the user explicitly hid,
// are left alone.
func (s *Supervisor) OnBecameVisible(ctx *Context) error {
	ctx.mu.RLock()
	allocated := ctx.buffer.Valid()
	hidden := ctx.userHidden
	ctx.mu.RUnlock()
	if allocated || hidden {
		return nil
	}
	return s.Launch(ctx)
}

// SetUserHidden records an explicit show/hide request. Hiding an active
// context keeps its resources and flips engine visibility, which lets the
// worker's own grace period decide whether to release. Showing a released
// context relaunches it.
func (s *Supervisor) SetUserHidden(ctx *Context, hidden bool) error {
	ctx.mu.Lock()
	if ctx.userHidden == hidden {
		ctx.mu.Unlock()
		return nil
	}
	ctx.userHidden = hidden
	active := ctx.buffer.Valid()
	ctx.mu.Unlock()

	if active {
		s.engine.Lock()
		s.engine.SetWidgetVisible(ctx.cfg.Widget, !hidden)
		s.engine.Unlock()
		return nil
	}
	if !hidden {
		return s.Launch(ctx)
	}
	return nil
}

// DestroyContext stops, frees and unregisters a context. Used when the
// owning widget is torn down for good.
func (s *Supervisor) DestroyContext(ctx *Context) error {
	s.StopAndWait(ctx, 0)
	if err := s.FreeResources(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.contexts, ctx.id)
	s.mu.Unlock()
	s.log.Debug("context destroyed", "context", uint64(ctx.id))
	return nil
}

// Shutdown stops every registered context in parallel and frees what they
// hold. The first free failure is returned, but every context is still
// visited.
func (s *Supervisor) Shutdown(timeout time.Duration) error {
	var g errgroup.Group
	for _, ctx := range s.Contexts() {
		ctx := ctx
		g.Go(func() error {
			s.StopAndWait(ctx, timeout)
			return s.FreeResources(ctx)
		})
	}
	return g.Wait()
}

// releaseLocked frees whatever the context holds and resets it to idle.
// ctx.mu must be held.
func (s *Supervisor) releaseLocked(ctx *Context) {
	released := false
	if ctx.buffer.Valid() {
		if err := s.alloc.Release(ctx.buffer); err != nil {
			s.log.Warn("pixel buffer release failed", "context", uint64(ctx.id), "error", err)
		}
		ctx.buffer = arena.Handle{}
		released = true
	}
	if ctx.control.Valid() {
		if err := s.alloc.Release(ctx.control); err != nil {
			s.log.Warn("control block release failed", "context", uint64(ctx.id), "error", err)
		}
		ctx.control = arena.Handle{}
		released = true
	}
	ctx.stop.Store(false)
	ctx.state = StateIdle
	ctx.pausedSince = time.Time{}
	if released {
		s.log.Info("resources released", "context", uint64(ctx.id))
	}
}

// releaseFromWorker is the invisibility self-release path: the worker is
// past its last resource use but its done channel is not yet closed, so
// the ErrWorkerActive guard in FreeResources cannot be used. The worker
// hands itself over and the supervisor frees everything.
func (s *Supervisor) releaseFromWorker(ctx *Context, w *worker) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.wk == w {
		ctx.wk = nil
	}
	s.releaseLocked(ctx)
}
