package motion

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agiangrant/motion/arena"
)

// ContextID uniquely identifies a render context.
type ContextID uint64

var nextContextID atomic.Uint64

func newContextID() ContextID {
	return ContextID(nextContextID.Add(1))
}

// State is a context's position in its runtime lifecycle.
type State uint8

const (
	// StateIdle: nothing allocated, no worker.
	StateIdle State = iota

	// StateLaunching: buffer and control block being acquired, worker
	// about to spawn. Falls back to StateIdle on any allocation failure.
	StateLaunching

	// StateDecoding: first-ever decode in progress. Entered at most once
	// per context lifetime; relaunches rebind the cached animation instead.
	StateDecoding

	// StateReady: decoded with AutoStart off; first frame applied, worker
	// parked until Play.
	StateReady

	// StatePlaying: worker driving frames.
	StatePlaying

	// StatePaused: widget invisible within the grace period; playback
	// clock stopped.
	StatePaused

	// StateCompleted: non-looping playback finished (final frame applied),
	// or the source decoded to a still image. Worker parked.
	StateCompleted

	// StateFailed: decode failed or parameters are degenerate. The widget
	// shows the blank zeroed buffer. Worker parked.
	StateFailed

	// StateStopping: stop requested, teardown in progress. Terminal until
	// FreeResources returns the context to StateIdle.
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLaunching:
		return "launching"
	case StateDecoding:
		return "decoding"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// ContextConfig is the immutable configuration of one animated widget.
type ContextConfig struct {
	// Widget is the engine-side handle of the target widget.
	Widget WidgetID

	// Source holds the animation data (embedded bytes or file path).
	Source Source

	// Width and Height are the pixel dimensions of the render buffer.
	Width  int
	Height int

	// Loop restarts playback when the end frame is reached.
	Loop bool

	// AutoStart begins playback right after decode. When off, the worker
	// applies the first frame and waits for Play.
	AutoStart bool

	// StartHidden marks the widget as explicitly user-hidden: launches
	// keep it hidden and visibility events do not start it.
	StartHidden bool
}

// Validate checks dimensions and source exclusivity.
func (c ContextConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrBadConfig, c.Width, c.Height)
	}
	return c.Source.Validate()
}

// bufferSize is the pixel buffer length for these dimensions.
func (c ContextConfig) bufferSize() int {
	return c.Width * c.Height * bytesPerPixel
}

// Context bundles one widget's configuration, its captured animation
// parameters, and the buffer/worker pair it currently owns. Contexts are
// created by a Supervisor and live as long as the owning widget; the
// resources inside them are created and destroyed with every launch/stop
// cycle.
type Context struct {
	mu sync.RWMutex

	id  ContextID
	cfg ContextConfig

	state   State
	buffer  arena.Handle // present iff allocated
	control arena.Handle // worker control block, allocated/freed with buffer
	wk      *worker      // present iff a worker is running or parked

	// Captured once after the first successful decode, then reused by
	// every relaunch. Replaced only as a whole value under the engine lock.
	binding AnimationBinding
	decoded bool

	userHidden  bool
	pausedSince time.Time

	// stop is monotonic once set; FreeResources resets it for relaunch.
	stop atomic.Bool
}

// ID returns the context's identifier.
func (c *Context) ID() ContextID {
	return c.id
}

// Config returns the immutable configuration.
func (c *Context) Config() ContextConfig {
	return c.cfg
}

// State returns the current lifecycle state.
func (c *Context) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Allocated reports whether the context currently owns a pixel buffer.
func (c *Context) Allocated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.buffer.Valid()
}

// Decoded reports whether the first decode has completed.
func (c *Context) Decoded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.decoded
}

// Binding returns the captured animation binding and whether it is bound.
// Unbound with Decoded() true means the source is a still image.
func (c *Context) Binding() (AnimationBinding, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.binding, c.binding.Bound()
}

// UserHidden reports whether the user explicitly wants the widget hidden.
func (c *Context) UserHidden() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userHidden
}

// PausedSince returns when the current invisibility pause began.
func (c *Context) PausedSince() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pausedSince, !c.pausedSince.IsZero()
}

func (c *Context) stopRequested() bool {
	return c.stop.Load()
}

// setState applies a worker-side transition. Transitions are dropped once
// a stop has been requested: from that point only the teardown path moves
// the state (StateStopping, then StateIdle).
func (c *Context) setState(s State) {
	if c.stop.Load() {
		return
	}
	c.mu.Lock()
	c.state = s
	if s != StatePaused {
		c.pausedSince = time.Time{}
	}
	c.mu.Unlock()
}

func (c *Context) setPaused(since time.Time) {
	if c.stop.Load() {
		return
	}
	c.mu.Lock()
	c.state = StatePaused
	c.pausedSince = since
	c.mu.Unlock()
}

// captureBinding records the decode result exactly once. Called with the
// engine lock held so the whole tagged value lands atomically with respect
// to engine state.
func (c *Context) captureBinding(b AnimationBinding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.decoded {
		return
	}
	c.binding = b
	c.decoded = true
}

// clearWorker drops the worker handle if it still belongs to w. The
// worker calls this as its final act before signaling done.
func (c *Context) clearWorker(w *worker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wk == w {
		c.wk = nil
	}
}
