// Package motion drives animated vector widgets for a single-threaded,
// lock-protected GUI engine without ever blocking the engine's own
// execution context.
//
// Each animated widget gets a Context holding its configuration, its
// captured animation parameters, and the buffer/worker pair it currently
// owns. A Supervisor launches and reclaims the per-context background
// worker, an arena.Allocator hands out the pixel buffers and worker
// control blocks, and a Bridge translates screen lifecycle signals into
// supervisor calls. The engine itself stays behind the Engine interface;
// every read or write of engine-owned widget state happens under the
// engine's global lock.
package motion

import (
	"fmt"
	"time"
)

// WidgetID identifies a widget owned by the GUI engine. The engine mints
// these; this package only passes them back.
type WidgetID uint64

// Source is the animation data to decode: embedded bytes or a file path,
// never both.
type Source struct {
	Data []byte
	Path string
}

// Validate checks that exactly one source form is set.
func (s Source) Validate() error {
	switch {
	case len(s.Data) == 0 && s.Path == "":
		return fmt.Errorf("%w: empty source", ErrBadConfig)
	case len(s.Data) > 0 && s.Path != "":
		return fmt.Errorf("%w: both data and path set", ErrBadConfig)
	}
	return nil
}

// ApplyFrameFunc is the engine-native capability that renders one frame of
// a decoded animation. It must only be invoked while holding the engine
// lock.
type ApplyFrameFunc func(arg any, frame int)

// AnimationParams are the frame bounds reported by the engine after a
// successful decode.
type AnimationParams struct {
	StartFrame int
	EndFrame   int
	Duration   time.Duration
}

// Degenerate reports whether the parameters cannot drive playback.
func (p AnimationParams) Degenerate() bool {
	return p.Duration <= 0 || p.EndFrame <= p.StartFrame
}

// AnimationBinding is the captured frame-application capability: the
// engine function, the engine-side argument it must be invoked with, and
// the frame bounds. The zero value is unbound. A binding is only ever
// replaced as a whole value, under the engine lock; its fields are never
// patched in place.
type AnimationBinding struct {
	Apply  ApplyFrameFunc
	Arg    any
	Params AnimationParams
}

// Bound reports whether the binding captured a capability.
func (b AnimationBinding) Bound() bool {
	return b.Apply != nil
}

// Engine is the capability surface this package consumes from the GUI
// engine. The engine is single-threaded and globally locked: every call
// except Lock must be made while holding the lock, from whichever
// goroutine currently holds it.
type Engine interface {
	// Lock acquires the engine's global lock; Unlock releases it.
	// Callers never hold the lock across a sleep.
	Lock()
	Unlock()

	// BindBuffer associates a pixel buffer (len = width*height*4) with a
	// widget for subsequent rendering. Rebinding replaces any previous
	// buffer.
	BindBuffer(id WidgetID, width, height int, buf []byte)

	// Decode parses the source into the widget's animation state. It may
	// perform heavy synchronous work, which is why it runs on a worker
	// goroutine and never on the engine's own context.
	Decode(id WidgetID, src Source) error

	// QueryAnimation returns the decoded animation's binding, or false if
	// the decoded content has no animation (a still image).
	QueryAnimation(id WidgetID) (AnimationBinding, bool)

	// DisableAutonomousPlayback stops the engine's own timer from driving
	// the captured capability, leaving the worker as its sole caller.
	DisableAutonomousPlayback(b AnimationBinding)

	// SetWidgetVisible shows or hides the widget.
	SetWidgetVisible(id WidgetID, visible bool)

	// WidgetVisible reports the widget's current visibility.
	WidgetVisible(id WidgetID) bool
}

const bytesPerPixel = 4
