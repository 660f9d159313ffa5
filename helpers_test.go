package motion_test

import (
	"testing"
	"time"

	"github.com/agiangrant/motion"
	"github.com/agiangrant/motion/arena"
	"github.com/agiangrant/motion/enginetest"
)

// testTiming is tuned so lifecycle tests finish in tens of milliseconds:
// near-immediate settle and a grace period long enough that nothing
// self-releases unless a test shrinks it.
func testTiming() motion.Config {
	return motion.Config{
		Timing: motion.TimingConfig{
			SettleDelayMs:  1,
			GracePeriodMs:  10_000,
			PollIntervalMs: 5,
			StopTimeoutMs:  1_000,
		},
	}
}

// fastParams completes in ~100ms at the 16ms delay floor.
func fastParams() motion.AnimationParams {
	return motion.AnimationParams{StartFrame: 0, EndFrame: 5, Duration: 100 * time.Millisecond}
}

// slowParams paces one frame per second and never finishes within a test.
func slowParams() motion.AnimationParams {
	return motion.AnimationParams{StartFrame: 0, EndFrame: 600, Duration: 10 * time.Minute}
}

func baseContext(w motion.WidgetID) motion.ContextConfig {
	return motion.ContextConfig{
		Widget:    w,
		Source:    motion.Source{Data: []byte("anim")},
		Width:     8,
		Height:    8,
		AutoStart: true,
	}
}

type rig struct {
	eng   *enginetest.Engine
	alloc *arena.Allocator
	sup   *motion.Supervisor
}

func newRig(cfg motion.Config, pools arena.Config) *rig {
	eng := enginetest.New()
	alloc := arena.New(pools)
	return &rig{
		eng:   eng,
		alloc: alloc,
		sup:   motion.NewSupervisor(eng, alloc, cfg, nil),
	}
}

func (r *rig) context(t *testing.T, cfg motion.ContextConfig) *motion.Context {
	t.Helper()
	ctx, err := r.sup.NewContext(cfg)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return ctx
}

// launch starts the context and registers a cleanup that stops and frees
// it, so a failing test never leaks a worker.
func (r *rig) launch(t *testing.T, ctx *motion.Context) {
	t.Helper()
	if err := r.sup.Launch(ctx); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	t.Cleanup(func() {
		r.sup.StopAndWait(ctx, time.Second)
		r.sup.FreeResources(ctx)
	})
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitState(t *testing.T, ctx *motion.Context, want motion.State) {
	t.Helper()
	waitFor(t, 2*time.Second, "state "+want.String(), func() bool {
		return ctx.State() == want
	})
}
