package motion_test

import (
	"errors"
	"testing"
	"time"

	"github.com/agiangrant/motion"
	"github.com/agiangrant/motion/arena"
)

func TestNewContextValidation(t *testing.T) {
	r := newRig(testTiming(), arena.Config{})

	tests := []struct {
		name string
		cfg  motion.ContextConfig
	}{
		{
			name: "no source",
			cfg:  motion.ContextConfig{Widget: 1, Width: 8, Height: 8},
		},
		{
			name: "both source forms",
			cfg: motion.ContextConfig{
				Widget: 1,
				Source: motion.Source{Data: []byte("x"), Path: "a.json"},
				Width:  8, Height: 8,
			},
		},
		{
			name: "zero width",
			cfg: motion.ContextConfig{
				Widget: 1,
				Source: motion.Source{Data: []byte("x")},
				Width:  0, Height: 8,
			},
		},
		{
			name: "negative height",
			cfg: motion.ContextConfig{
				Widget: 1,
				Source: motion.Source{Data: []byte("x")},
				Width:  8, Height: -1,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.sup.NewContext(tt.cfg); !errors.Is(err, motion.ErrBadConfig) {
				t.Errorf("NewContext = %v, want ErrBadConfig", err)
			}
		})
	}
}

func TestLaunchAllocationFailureLeavesIdle(t *testing.T) {
	// Budget below the 16x16x4 buffer, and the buffer cannot fit a control
	// slot either, so there is nothing to fall back to.
	r := newRig(testTiming(), arena.Config{ImageBudget: 512})

	cfg := baseContext(1)
	cfg.Width, cfg.Height = 16, 16
	ctx := r.context(t, cfg)

	err := r.sup.Launch(ctx)
	if !errors.Is(err, arena.ErrExhausted) {
		t.Fatalf("Launch = %v, want ErrExhausted", err)
	}
	if got := ctx.State(); got != motion.StateIdle {
		t.Errorf("state after failed launch = %v, want idle", got)
	}
	if ctx.Allocated() {
		t.Error("context holds a buffer after failed launch")
	}
	if !r.alloc.Idle() {
		t.Error("allocator not idle after failed launch")
	}

	// The failure is recoverable: the caller just sees the error again.
	if err := r.sup.Launch(ctx); !errors.Is(err, arena.ErrExhausted) {
		t.Errorf("retry Launch = %v, want ErrExhausted", err)
	}
}

func TestWorkerSpawnFailureRollsBack(t *testing.T) {
	r := newRig(testTiming(), arena.Config{ControlSlots: 1})
	r.eng.SetParams(slowParams())

	ctx1 := r.context(t, baseContext(1))
	r.launch(t, ctx1)
	waitState(t, ctx1, motion.StatePlaying)

	baseline := r.alloc.Stats()

	ctx2 := r.context(t, baseContext(2))
	err := r.sup.Launch(ctx2)
	if !errors.Is(err, arena.ErrExhausted) {
		t.Fatalf("Launch with no control slot = %v, want ErrExhausted", err)
	}
	if got := ctx2.State(); got != motion.StateIdle {
		t.Errorf("state = %v, want idle", got)
	}
	if ctx2.Allocated() {
		t.Error("context holds a buffer after spawn failure")
	}

	st := r.alloc.Stats()
	if st.ImageInUse != baseline.ImageInUse {
		t.Errorf("ImageInUse = %d, want %d (buffer must be rolled back)",
			st.ImageInUse, baseline.ImageInUse)
	}
	if st.ControlInUse != 1 {
		t.Errorf("ControlInUse = %d, want 1", st.ControlInUse)
	}

	// Freeing the running context makes the slot available again.
	if !r.sup.StopAndWait(ctx1, time.Second) {
		t.Fatal("StopAndWait timed out")
	}
	if err := r.sup.FreeResources(ctx1); err != nil {
		t.Fatalf("FreeResources: %v", err)
	}
	r.launch(t, ctx2)
	waitState(t, ctx2, motion.StatePlaying)
}

func TestLaunchWhileActive(t *testing.T) {
	r := newRig(testTiming(), arena.Config{})
	r.eng.SetParams(slowParams())

	ctx := r.context(t, baseContext(1))
	r.launch(t, ctx)
	waitState(t, ctx, motion.StatePlaying)

	if err := r.sup.Launch(ctx); !errors.Is(err, motion.ErrAlreadyActive) {
		t.Errorf("second Launch = %v, want ErrAlreadyActive", err)
	}
}

func TestStopThenRelaunchSkipsDecode(t *testing.T) {
	r := newRig(testTiming(), arena.Config{})
	r.eng.SetParams(slowParams())
	w := motion.WidgetID(1)

	ctx := r.context(t, baseContext(w))
	r.launch(t, ctx)
	waitState(t, ctx, motion.StatePlaying)

	if !r.sup.StopAndWait(ctx, time.Second) {
		t.Fatal("StopAndWait timed out")
	}
	if err := r.sup.FreeResources(ctx); err != nil {
		t.Fatalf("FreeResources: %v", err)
	}
	if got := ctx.State(); got != motion.StateIdle {
		t.Errorf("state after free = %v, want idle", got)
	}
	if !r.alloc.Idle() {
		t.Error("allocator not idle after free")
	}
	if !ctx.Decoded() {
		t.Error("decoded animation parameters were lost on stop")
	}

	// Relaunch reuses the captured binding instead of decoding again.
	r.launch(t, ctx)
	waitState(t, ctx, motion.StatePlaying)
	if got := r.eng.DecodeCount(w); got != 1 {
		t.Errorf("decode count after relaunch = %d, want 1", got)
	}
}

func TestFreeRefusedWhileWorkerActive(t *testing.T) {
	r := newRig(testTiming(), arena.Config{})
	r.eng.SetParams(slowParams())

	ctx := r.context(t, baseContext(1))
	r.launch(t, ctx)
	waitState(t, ctx, motion.StatePlaying)

	if err := r.sup.FreeResources(ctx); !errors.Is(err, motion.ErrWorkerActive) {
		t.Fatalf("FreeResources while playing = %v, want ErrWorkerActive", err)
	}
	if !ctx.Allocated() {
		t.Error("refused free must leave resources owned")
	}

	if !r.sup.StopAndWait(ctx, time.Second) {
		t.Fatal("StopAndWait timed out")
	}
	if err := r.sup.FreeResources(ctx); err != nil {
		t.Fatalf("FreeResources after stop: %v", err)
	}
}

func TestFreeResourcesIdempotent(t *testing.T) {
	r := newRig(testTiming(), arena.Config{})
	r.eng.SetParams(slowParams())

	ctx := r.context(t, baseContext(1))
	r.launch(t, ctx)
	waitState(t, ctx, motion.StatePlaying)

	if !r.sup.StopAndWait(ctx, time.Second) {
		t.Fatal("StopAndWait timed out")
	}
	if err := r.sup.FreeResources(ctx); err != nil {
		t.Fatalf("first FreeResources: %v", err)
	}
	before := r.alloc.Stats()

	if err := r.sup.FreeResources(ctx); err != nil {
		t.Fatalf("second FreeResources: %v", err)
	}
	if got := r.alloc.Stats(); got != before {
		t.Errorf("second FreeResources changed pool accounting: %+v -> %+v", before, got)
	}
	if got := ctx.State(); got != motion.StateIdle {
		t.Errorf("state after double free = %v, want %v", got, motion.StateIdle)
	}
	if !r.alloc.Idle() {
		t.Error("allocator not idle after free")
	}
}

func TestStopTimeoutWarnsAndRecovers(t *testing.T) {
	cfg := testTiming()
	cfg.Timing.SettleDelayMs = 100
	r := newRig(cfg, arena.Config{})
	r.eng.SetParams(slowParams())

	ctx := r.context(t, baseContext(1))
	r.launch(t, ctx)

	// Wedge the engine during the settle window: the worker's first engine
	// call then parks inside Lock, where it cannot observe a stop request.
	r.eng.Lock()
	time.Sleep(250 * time.Millisecond)

	if r.sup.StopAndWait(ctx, 30*time.Millisecond) {
		t.Error("StopAndWait reported success while the engine was wedged")
	}
	if err := r.sup.FreeResources(ctx); !errors.Is(err, motion.ErrWorkerActive) {
		t.Errorf("FreeResources = %v, want ErrWorkerActive", err)
	}

	r.eng.Unlock()
	if !r.sup.StopAndWait(ctx, time.Second) {
		t.Fatal("worker did not exit after the engine was released")
	}
	if err := r.sup.FreeResources(ctx); err != nil {
		t.Fatalf("FreeResources: %v", err)
	}
	if !r.alloc.Idle() {
		t.Error("allocator not idle after delayed stop")
	}
}

func TestStopAndWaitWithoutWorker(t *testing.T) {
	r := newRig(testTiming(), arena.Config{})
	ctx := r.context(t, baseContext(1))

	if !r.sup.StopAndWait(ctx, time.Second) {
		t.Error("StopAndWait on an idle context should succeed immediately")
	}
	if err := r.sup.FreeResources(ctx); err != nil {
		t.Errorf("FreeResources on an idle context: %v", err)
	}
}

func TestSetUserHidden(t *testing.T) {
	r := newRig(testTiming(), arena.Config{})
	r.eng.SetParams(slowParams())
	w := motion.WidgetID(1)

	cfg := baseContext(w)
	cfg.StartHidden = true
	ctx := r.context(t, cfg)

	if ctx.Allocated() || !r.alloc.Idle() {
		t.Fatal("start-hidden context allocated before being shown")
	}

	// Visibility events must not launch a user-hidden context.
	if err := r.sup.OnBecameVisible(ctx); err != nil {
		t.Fatalf("OnBecameVisible: %v", err)
	}
	if ctx.Allocated() {
		t.Fatal("became-visible launched a user-hidden context")
	}

	// Showing launches it.
	if err := r.sup.SetUserHidden(ctx, false); err != nil {
		t.Fatalf("SetUserHidden(false): %v", err)
	}
	t.Cleanup(func() {
		r.sup.StopAndWait(ctx, time.Second)
		r.sup.FreeResources(ctx)
	})
	waitState(t, ctx, motion.StatePlaying)
	if !r.eng.Visible(w) {
		t.Error("widget not visible after show")
	}

	// Hiding an active context keeps resources and pauses playback.
	if err := r.sup.SetUserHidden(ctx, true); err != nil {
		t.Fatalf("SetUserHidden(true): %v", err)
	}
	if r.eng.Visible(w) {
		t.Error("widget still visible after hide")
	}
	waitState(t, ctx, motion.StatePaused)
	if !ctx.Allocated() {
		t.Error("hide released resources before the grace period")
	}

	// Showing again resumes in place.
	if err := r.sup.SetUserHidden(ctx, false); err != nil {
		t.Fatalf("SetUserHidden(false) again: %v", err)
	}
	waitState(t, ctx, motion.StatePlaying)
}

func TestDestroyContext(t *testing.T) {
	r := newRig(testTiming(), arena.Config{})
	r.eng.SetParams(slowParams())

	ctx := r.context(t, baseContext(1))
	if err := r.sup.Launch(ctx); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	waitState(t, ctx, motion.StatePlaying)

	if err := r.sup.DestroyContext(ctx); err != nil {
		t.Fatalf("DestroyContext: %v", err)
	}
	if !r.alloc.Idle() {
		t.Error("allocator not idle after destroy")
	}
	if got := len(r.sup.Contexts()); got != 0 {
		t.Errorf("registered contexts = %d, want 0", got)
	}
}

func TestShutdownStopsEverything(t *testing.T) {
	r := newRig(testTiming(), arena.Config{})
	r.eng.SetParams(slowParams())

	ctxs := make([]*motion.Context, 0, 3)
	for i := 1; i <= 3; i++ {
		ctx := r.context(t, baseContext(motion.WidgetID(i)))
		r.launch(t, ctx)
		ctxs = append(ctxs, ctx)
	}
	for _, ctx := range ctxs {
		waitState(t, ctx, motion.StatePlaying)
	}

	if err := r.sup.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	for _, ctx := range ctxs {
		if got := ctx.State(); got != motion.StateIdle {
			t.Errorf("context %d state = %v, want idle", ctx.ID(), got)
		}
	}
	if !r.alloc.Idle() {
		t.Error("allocator not idle after shutdown")
	}
}
