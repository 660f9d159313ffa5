package motion

import (
	"log/slog"
	"sync"
)

// ScreenID names one engine screen. Contexts register against the screen
// that hosts their widget so screen lifecycle events can fan out to them.
type ScreenID uint64

// Bridge translates engine lifecycle events into supervisor calls.
//
// Screen unload is a two-phase protocol: unload-start stops every worker
// on the screen while the widget tree still exists, and unloaded frees
// their resources once the tree is gone. Splitting the phases keeps the
// stop wait out of the engine's teardown critical path.
//
// Like the supervisor, bridge methods must be called without the engine
// lock held.
type Bridge struct {
	sup *Supervisor
	log *slog.Logger

	mu       sync.RWMutex
	byScreen map[ScreenID][]*Context
	byWidget map[WidgetID]*Context
}

func NewBridge(sup *Supervisor, log *slog.Logger) *Bridge {
	if log == nil {
		log = sup.log
	}
	return &Bridge{
		sup:      sup,
		log:      log,
		byScreen: make(map[ScreenID][]*Context),
		byWidget: make(map[WidgetID]*Context),
	}
}

// Register binds a context to its widget and hosting screen. A widget can
// carry at most one context.
func (b *Bridge) Register(screen ScreenID, ctx *Context) error {
	widget := ctx.Config().Widget
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.byWidget[widget]; ok {
		return ErrAlreadyRegistered
	}
	b.byWidget[widget] = ctx
	b.byScreen[screen] = append(b.byScreen[screen], ctx)
	return nil
}

// Unregister removes a context from the bridge, typically just before the
// owning widget is destroyed. Unknown contexts are ignored.
func (b *Bridge) Unregister(ctx *Context) {
	widget := ctx.Config().Widget
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.byWidget[widget] != ctx {
		return
	}
	delete(b.byWidget, widget)
	for screen, ctxs := range b.byScreen {
		for i, c := range ctxs {
			if c == ctx {
				b.byScreen[screen] = append(ctxs[:i], ctxs[i+1:]...)
				break
			}
		}
	}
}

// OnScreenUnloadStart stops every worker on the screen in parallel and
// waits for each up to the configured stop timeout. Workers that outlive
// the wait are logged; their resources stay owned until they exit.
func (b *Bridge) OnScreenUnloadStart(screen ScreenID) {
	ctxs := b.screenContexts(screen)
	if len(ctxs) == 0 {
		return
	}
	b.log.Debug("screen unload starting", "screen", uint64(screen), "contexts", len(ctxs))
	var wg sync.WaitGroup
	for _, ctx := range ctxs {
		ctx := ctx
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.sup.StopAndWait(ctx, 0)
		}()
	}
	wg.Wait()
}

// OnScreenUnloaded frees the resources of every context on the screen.
// Contexts whose worker ignored the stop request keep their resources and
// are logged; they free on the next unload or destroy.
func (b *Bridge) OnScreenUnloaded(screen ScreenID) {
	for _, ctx := range b.screenContexts(screen) {
		if err := b.sup.FreeResources(ctx); err != nil {
			b.log.Warn("free after unload failed",
				"screen", uint64(screen), "context", uint64(ctx.ID()), "error", err)
		}
	}
}

// OnScreenLoaded relaunches the screen's contexts. Active and user-hidden
// contexts are skipped; a failed launch is logged and the context stays
// idle until the screen loads again.
func (b *Bridge) OnScreenLoaded(screen ScreenID) {
	for _, ctx := range b.screenContexts(screen) {
		if err := b.sup.OnBecameVisible(ctx); err != nil {
			b.log.Warn("relaunch after load failed",
				"screen", uint64(screen), "context", uint64(ctx.ID()), "error", err)
		}
	}
}

// OnWidgetBecameVisible relaunches the context bound to a widget that just
// became visible, if it has no resources and is not user-hidden.
func (b *Bridge) OnWidgetBecameVisible(widget WidgetID) error {
	b.mu.RLock()
	ctx := b.byWidget[widget]
	b.mu.RUnlock()
	if ctx == nil {
		return ErrNotRegistered
	}
	return b.sup.OnBecameVisible(ctx)
}

func (b *Bridge) screenContexts(screen ScreenID) []*Context {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Context, len(b.byScreen[screen]))
	copy(out, b.byScreen[screen])
	return out
}
