package motion

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/agiangrant/motion/arena"
)

// worker drives one context's decode and playback on its own goroutine.
// It owns no resources directly: the buffer and control block stay on the
// context and are released by the supervisor (or by the worker itself via
// the supervisor, on the invisibility self-release path).
type worker struct {
	id     uint64
	ctx    *Context
	sup    *Supervisor
	pixels []byte
	log    *slog.Logger

	stopC    chan struct{} // closed once a stop is requested
	playC    chan struct{} // closed by Play to wake a ready park
	done     chan struct{} // closed when the goroutine has fully exited
	stopOnce sync.Once
	playOnce sync.Once
}

func newWorker(sup *Supervisor, ctx *Context, pixels []byte) *worker {
	id := sup.nextWorkerID.Add(1)
	return &worker{
		id:     id,
		ctx:    ctx,
		sup:    sup,
		pixels: pixels,
		log:    sup.log.With("context", uint64(ctx.id), "widget", uint64(ctx.cfg.Widget), "worker", id),
		stopC:  make(chan struct{}),
		playC:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// requestStop sets the context's monotonic stop flag and wakes every
// blocking point. Safe to call more than once and from any goroutine.
func (w *worker) requestStop() {
	w.stopOnce.Do(func() {
		w.ctx.stop.Store(true)
		close(w.stopC)
	})
}

// play wakes a worker parked in StateReady. Level-triggered: calling it
// before the park is reached still starts playback.
func (w *worker) play() {
	w.playOnce.Do(func() {
		close(w.playC)
	})
}

// sleep waits for d, or returns false early on a stop request.
func (w *worker) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-w.stopC:
		return false
	case <-t.C:
		return true
	}
}

// park blocks until wake is closed (true) or a stop arrives (false).
// A nil wake parks until stop.
func (w *worker) park(wake <-chan struct{}) bool {
	select {
	case <-w.stopC:
		return false
	case <-wake:
		return true
	}
}

func (w *worker) run() {
	defer close(w.done)
	defer w.ctx.clearWorker(w)

	cfg := w.ctx.cfg
	eng := w.sup.engine

	// Settle before the first engine call so a freshly spawned worker
	// never contends with engine startup.
	if !w.sleep(w.sup.cfg.Timing.SettleDelay()) {
		return
	}

	first := !w.ctx.Decoded()
	if first {
		w.ctx.setState(StateDecoding)
	}

	// File sources are read here, on the worker, never under the engine
	// lock and never on the caller's stack. The scratch block must outlive
	// the decode call that consumes it.
	src := cfg.Source
	var scratch arena.Handle
	var readErr error
	if first && src.Path != "" {
		src, scratch, readErr = w.readSource(src.Path)
	}

	eng.Lock()
	eng.BindBuffer(cfg.Widget, cfg.Width, cfg.Height, w.pixels)
	var decodeErr error
	if first {
		if readErr != nil {
			decodeErr = readErr
		} else if decodeErr = eng.Decode(cfg.Widget, src); decodeErr == nil {
			if b, ok := eng.QueryAnimation(cfg.Widget); ok {
				// The worker is now the sole driver of frame application;
				// the engine's own timer must not race it.
				eng.DisableAutonomousPlayback(b)
				w.ctx.captureBinding(b)
			} else {
				w.ctx.captureBinding(AnimationBinding{})
			}
		}
	}
	if !w.ctx.UserHidden() {
		eng.SetWidgetVisible(cfg.Widget, true)
	}
	eng.Unlock()

	if scratch.Valid() {
		if err := w.sup.alloc.Release(scratch); err != nil {
			w.log.Warn("failed to release read scratch", "error", err)
		}
	}

	if decodeErr != nil {
		w.log.Warn("decode failed", "error", decodeErr)
		w.ctx.setState(StateFailed)
		w.park(nil)
		return
	}

	binding, bound := w.ctx.Binding()
	if !bound {
		// Still image: the first render stays bound, nothing to pace.
		w.log.Info("source is not animated")
		w.ctx.setState(StateCompleted)
		w.park(nil)
		return
	}
	if binding.Params.Degenerate() {
		w.log.Warn("degenerate animation parameters",
			"start", binding.Params.StartFrame,
			"end", binding.Params.EndFrame,
			"duration", binding.Params.Duration)
		w.ctx.setState(StateFailed)
		w.park(nil)
		return
	}

	if !cfg.AutoStart {
		w.applyFrame(binding, binding.Params.StartFrame)
		w.ctx.setState(StateReady)
		if !w.park(w.playC) {
			return
		}
	}

	w.playback(binding)
}

// playback paces frames against wall-clock time until the animation
// completes, a stop is requested, or invisibility outlasts the grace
// period.
func (w *worker) playback(binding AnimationBinding) {
	cfg := w.ctx.cfg
	eng := w.sup.engine
	grace := w.sup.cfg.Timing.GracePeriod()
	poll := w.sup.cfg.Timing.PollInterval()

	w.ctx.setState(StatePlaying)
	w.log.Info("playback started",
		"loop", cfg.Loop,
		"frames", binding.Params.EndFrame-binding.Params.StartFrame,
		"duration", binding.Params.Duration)

	start := time.Now()
	var invisibleSince time.Time

	for !w.ctx.stopRequested() {
		eng.Lock()
		visible := eng.WidgetVisible(cfg.Widget)
		eng.Unlock()

		now := time.Now()
		if !visible {
			if invisibleSince.IsZero() {
				invisibleSince = now
				w.ctx.setPaused(now)
				w.log.Debug("widget invisible, pausing")
			}
			if now.Sub(invisibleSince) >= grace {
				// Nobody external is guaranteed to observe a widget that
				// never became visible, so release everything here.
				w.log.Info("invisible past grace period, releasing resources")
				w.sup.releaseFromWorker(w.ctx, w)
				return
			}
			if !w.sleep(poll) {
				return
			}
			continue
		}

		if !invisibleSince.IsZero() {
			// Paused time is excluded from the playback clock: resuming
			// must not jump the animation forward.
			start = start.Add(now.Sub(invisibleSince))
			invisibleSince = time.Time{}
			w.ctx.setState(StatePlaying)
			w.log.Debug("widget visible again, resuming")
		}

		frame, finished := FrameAt(binding.Params, now.Sub(start), cfg.Loop)
		w.applyFrame(binding, frame)

		if finished {
			w.log.Info("playback finished", "frame", frame)
			w.ctx.setState(StateCompleted)
			w.park(nil)
			return
		}

		if !w.sleep(FrameDelay(binding.Params)) {
			return
		}
	}
}

func (w *worker) applyFrame(b AnimationBinding, frame int) {
	eng := w.sup.engine
	eng.Lock()
	b.Apply(b.Arg, frame)
	eng.Unlock()
}

// readSource reads a file source into image-pool scratch. The returned
// handle must be released by the caller once the data has been consumed.
func (w *worker) readSource(path string) (Source, arena.Handle, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Source{}, arena.Handle{}, fmt.Errorf("stat %s: %w", path, err)
	}
	size := int(fi.Size())

	h, err := w.sup.alloc.Acquire(size, arena.PoolImage)
	if err != nil {
		return Source{}, arena.Handle{}, fmt.Errorf("read scratch for %s: %w", path, err)
	}
	buf, err := w.sup.alloc.Bytes(h)
	if err != nil {
		return Source{}, arena.Handle{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		w.sup.alloc.Release(h)
		return Source{}, arena.Handle{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.ReadFull(f, buf); err != nil {
		w.sup.alloc.Release(h)
		return Source{}, arena.Handle{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Source{Data: buf}, h, nil
}
