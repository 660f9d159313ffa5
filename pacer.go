package motion

import "time"

// Frame pacing bounds: between roughly 10 and 60 frame applications per
// second regardless of the animation's own frame density.
const (
	MinFrameDelay = 16 * time.Millisecond
	MaxFrameDelay = 100 * time.Millisecond
)

// FrameAt maps elapsed wall-clock time to the animation frame that should
// be applied. Pure computation, no side effects.
//
// Looping animations wrap: the phase is elapsed mod duration. Non-looping
// animations report done once elapsed reaches the duration, returning the
// end frame, which the caller applies exactly once.
func FrameAt(p AnimationParams, elapsed time.Duration, loop bool) (frame int, done bool) {
	total := int64(p.EndFrame - p.StartFrame)
	d := int64(p.Duration)

	if loop {
		phase := int64(elapsed) % d
		if phase < 0 {
			phase += d
		}
		return p.StartFrame + int(total*phase/d), false
	}

	if elapsed >= p.Duration {
		return p.EndFrame, true
	}
	t := int64(elapsed)
	if t < 0 {
		t = 0
	}
	return p.StartFrame + int(total*t/d), false
}

// FrameDelay returns the sleep between frame applications: the animation's
// natural per-frame interval clamped to [MinFrameDelay, MaxFrameDelay].
func FrameDelay(p AnimationParams) time.Duration {
	total := p.EndFrame - p.StartFrame
	if total <= 0 {
		return MaxFrameDelay
	}
	d := p.Duration / time.Duration(total)
	if d < MinFrameDelay {
		return MinFrameDelay
	}
	if d > MaxFrameDelay {
		return MaxFrameDelay
	}
	return d
}
