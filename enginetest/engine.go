// Package enginetest provides an in-memory motion.Engine for tests. It
// panics when any engine call arrives without the engine lock held, records
// every decode, bind and applied frame, and lets tests script decode
// outcomes and drive widget visibility.
package enginetest

import (
	"fmt"
	"sync"
	"time"

	"github.com/agiangrant/motion"
)

// Engine is a scripted motion.Engine. The zero value is not usable; call
// New. Script methods and observers take the engine lock themselves, so
// tests must not call them while already holding it.
type Engine struct {
	lk sync.Mutex

	decodeErr error
	still     bool
	params    motion.AnimationParams

	visible  map[motion.WidgetID]bool
	buffers  map[motion.WidgetID][]byte
	decodes  map[motion.WidgetID]int
	applied  map[motion.WidgetID][]int
	disables int
}

// New returns an engine that decodes every source into a 11-frame,
// one-second animation (frames 0..10).
func New() *Engine {
	return &Engine{
		params:  motion.AnimationParams{StartFrame: 0, EndFrame: 10, Duration: time.Second},
		visible: make(map[motion.WidgetID]bool),
		buffers: make(map[motion.WidgetID][]byte),
		decodes: make(map[motion.WidgetID]int),
		applied: make(map[motion.WidgetID][]int),
	}
}

// ===== Scripting =====

// SetDecodeError makes every subsequent Decode fail with err.
func (e *Engine) SetDecodeError(err error) {
	e.lk.Lock()
	defer e.lk.Unlock()
	e.decodeErr = err
}

// SetStill makes decoded content report no animation.
func (e *Engine) SetStill(still bool) {
	e.lk.Lock()
	defer e.lk.Unlock()
	e.still = still
}

// SetParams sets the animation parameters reported after a decode.
func (e *Engine) SetParams(p motion.AnimationParams) {
	e.lk.Lock()
	defer e.lk.Unlock()
	e.params = p
}

// SetVisible drives a widget's visibility from the test, as the engine's
// layout or the user would.
func (e *Engine) SetVisible(id motion.WidgetID, visible bool) {
	e.lk.Lock()
	defer e.lk.Unlock()
	e.visible[id] = visible
}

// ===== motion.Engine =====

func (e *Engine) Lock()   { e.lk.Lock() }
func (e *Engine) Unlock() { e.lk.Unlock() }

func (e *Engine) BindBuffer(id motion.WidgetID, width, height int, buf []byte) {
	e.requireLock("BindBuffer")
	if want := width * height * 4; len(buf) != want {
		panic(fmt.Sprintf("enginetest: BindBuffer got %d bytes, want %d", len(buf), want))
	}
	e.buffers[id] = buf
}

func (e *Engine) Decode(id motion.WidgetID, src motion.Source) error {
	e.requireLock("Decode")
	e.decodes[id]++
	if e.decodeErr != nil {
		return e.decodeErr
	}
	return src.Validate()
}

func (e *Engine) QueryAnimation(id motion.WidgetID) (motion.AnimationBinding, bool) {
	e.requireLock("QueryAnimation")
	if e.still {
		return motion.AnimationBinding{}, false
	}
	return motion.AnimationBinding{
		Apply: func(arg any, frame int) {
			e.recordFrame(arg.(motion.WidgetID), frame)
		},
		Arg:    id,
		Params: e.params,
	}, true
}

func (e *Engine) DisableAutonomousPlayback(b motion.AnimationBinding) {
	e.requireLock("DisableAutonomousPlayback")
	e.disables++
}

func (e *Engine) SetWidgetVisible(id motion.WidgetID, visible bool) {
	e.requireLock("SetWidgetVisible")
	e.visible[id] = visible
}

func (e *Engine) WidgetVisible(id motion.WidgetID) bool {
	e.requireLock("WidgetVisible")
	return e.visible[id]
}

// ===== Observers =====

// AppliedFrames returns a copy of every frame applied to the widget, in
// order.
func (e *Engine) AppliedFrames(id motion.WidgetID) []int {
	e.lk.Lock()
	defer e.lk.Unlock()
	out := make([]int, len(e.applied[id]))
	copy(out, e.applied[id])
	return out
}

// LastFrame returns the most recently applied frame, if any.
func (e *Engine) LastFrame(id motion.WidgetID) (int, bool) {
	e.lk.Lock()
	defer e.lk.Unlock()
	fs := e.applied[id]
	if len(fs) == 0 {
		return 0, false
	}
	return fs[len(fs)-1], true
}

// DecodeCount returns how many times the widget's source was decoded.
func (e *Engine) DecodeCount(id motion.WidgetID) int {
	e.lk.Lock()
	defer e.lk.Unlock()
	return e.decodes[id]
}

// DisableCount returns how many autonomous-playback disables were issued.
func (e *Engine) DisableCount() int {
	e.lk.Lock()
	defer e.lk.Unlock()
	return e.disables
}

// Visible reports the widget's visibility from the test side.
func (e *Engine) Visible(id motion.WidgetID) bool {
	e.lk.Lock()
	defer e.lk.Unlock()
	return e.visible[id]
}

// BoundBuffer returns the buffer currently bound to the widget, or nil.
func (e *Engine) BoundBuffer(id motion.WidgetID) []byte {
	e.lk.Lock()
	defer e.lk.Unlock()
	return e.buffers[id]
}

// requireLock panics unless the engine lock is currently held. A TryLock
// that succeeds proves no one held it, which means the caller skipped
// Lock.
func (e *Engine) requireLock(op string) {
	if e.lk.TryLock() {
		e.lk.Unlock()
		panic("enginetest: " + op + " called without the engine lock")
	}
}

func (e *Engine) recordFrame(id motion.WidgetID, frame int) {
	e.requireLock("ApplyFrame")
	e.applied[id] = append(e.applied[id], frame)
}
