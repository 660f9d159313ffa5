package motion_test

import (
	"errors"
	"testing"
	"time"

	"github.com/agiangrant/motion"
	"github.com/agiangrant/motion/arena"
)

func TestScreenLifecycle(t *testing.T) {
	r := newRig(testTiming(), arena.Config{})
	r.eng.SetParams(slowParams())
	br := motion.NewBridge(r.sup, nil)
	t.Cleanup(func() { r.sup.Shutdown(time.Second) })

	screen := motion.ScreenID(1)
	widgets := []motion.WidgetID{1, 2}
	var ctxs []*motion.Context
	for _, w := range widgets {
		ctx := r.context(t, baseContext(w))
		if err := br.Register(screen, ctx); err != nil {
			t.Fatalf("Register: %v", err)
		}
		ctxs = append(ctxs, ctx)
	}

	// Loading the screen launches every registered context.
	br.OnScreenLoaded(screen)
	for _, ctx := range ctxs {
		waitState(t, ctx, motion.StatePlaying)
	}

	// Two-phase unload: stop while the widgets still exist, free after.
	br.OnScreenUnloadStart(screen)
	br.OnScreenUnloaded(screen)
	for _, ctx := range ctxs {
		if got := ctx.State(); got != motion.StateIdle {
			t.Errorf("context %d state after unload = %v, want idle", ctx.ID(), got)
		}
		if ctx.Allocated() {
			t.Errorf("context %d still allocated after unload", ctx.ID())
		}
	}
	if !r.alloc.Idle() {
		t.Error("allocator not idle after unload")
	}

	// Reload relaunches from the captured parameters.
	br.OnScreenLoaded(screen)
	for _, ctx := range ctxs {
		waitState(t, ctx, motion.StatePlaying)
	}
	for _, w := range widgets {
		if got := r.eng.DecodeCount(w); got != 1 {
			t.Errorf("decode count for widget %d = %d, want 1", w, got)
		}
	}
}

func TestScreenLoadedSkipsUserHidden(t *testing.T) {
	r := newRig(testTiming(), arena.Config{})
	br := motion.NewBridge(r.sup, nil)

	cfg := baseContext(1)
	cfg.StartHidden = true
	ctx := r.context(t, cfg)
	if err := br.Register(1, ctx); err != nil {
		t.Fatalf("Register: %v", err)
	}

	br.OnScreenLoaded(1)
	time.Sleep(20 * time.Millisecond)
	if ctx.Allocated() {
		t.Error("screen load launched a user-hidden context")
	}
	if !r.alloc.Idle() {
		t.Error("allocator not idle")
	}
}

func TestRegisterDuplicateWidget(t *testing.T) {
	r := newRig(testTiming(), arena.Config{})
	br := motion.NewBridge(r.sup, nil)

	first := r.context(t, baseContext(1))
	if err := br.Register(1, first); err != nil {
		t.Fatalf("Register: %v", err)
	}
	second := r.context(t, baseContext(1))
	if err := br.Register(1, second); !errors.Is(err, motion.ErrAlreadyRegistered) {
		t.Errorf("duplicate Register = %v, want ErrAlreadyRegistered", err)
	}
}

func TestWidgetBecameVisible(t *testing.T) {
	r := newRig(testTiming(), arena.Config{})
	r.eng.SetParams(slowParams())
	br := motion.NewBridge(r.sup, nil)
	t.Cleanup(func() { r.sup.Shutdown(time.Second) })

	if err := br.OnWidgetBecameVisible(9); !errors.Is(err, motion.ErrNotRegistered) {
		t.Errorf("unknown widget = %v, want ErrNotRegistered", err)
	}

	ctx := r.context(t, baseContext(9))
	if err := br.Register(2, ctx); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := br.OnWidgetBecameVisible(9); err != nil {
		t.Fatalf("OnWidgetBecameVisible: %v", err)
	}
	waitState(t, ctx, motion.StatePlaying)

	// Repeat events on an active context are no-ops.
	if err := br.OnWidgetBecameVisible(9); err != nil {
		t.Errorf("repeat event = %v, want nil", err)
	}

	br.Unregister(ctx)
	if err := br.OnWidgetBecameVisible(9); !errors.Is(err, motion.ErrNotRegistered) {
		t.Errorf("after Unregister = %v, want ErrNotRegistered", err)
	}
}

func TestUnloadUnknownScreen(t *testing.T) {
	r := newRig(testTiming(), arena.Config{})
	br := motion.NewBridge(r.sup, nil)

	// Screens with no registered contexts are ignored.
	br.OnScreenUnloadStart(42)
	br.OnScreenUnloaded(42)
	br.OnScreenLoaded(42)
}
