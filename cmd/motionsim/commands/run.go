package commands

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/agiangrant/motion"
	"github.com/agiangrant/motion/arena"
	"github.com/agiangrant/motion/enginetest"
)

// Run implements the 'motionsim run' command. It drives a set of animated
// widgets through their full lifecycle against the in-memory engine and
// prints pool and state accounting once per second.
func Run(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	widgets := fs.Int("widgets", 4, "Number of animated widgets")
	screens := fs.Int("screens", 1, "Number of screens the widgets are spread across")
	switchEvery := fs.Duration("switch-every", 0, "Switch to the next screen at this interval (0 = never)")
	runFor := fs.Duration("for", 10*time.Second, "How long to run the simulation")
	hideAfter := fs.Duration("hide-after", 0, "Hide every widget after this long (0 = never)")
	loop := fs.Bool("loop", true, "Loop animations")
	frames := fs.Int("frames", 60, "Frames per animation")
	animDur := fs.Duration("anim-duration", time.Second, "Animation cycle duration")
	width := fs.Int("width", 160, "Widget width in pixels")
	height := fs.Int("height", 120, "Widget height in pixels")
	configPath := fs.String("config", "motion.toml", "Path to motion.toml")
	verbose := fs.Bool("verbose", false, "Log lifecycle events to stderr")
	fs.Parse(args)

	if *screens < 1 {
		*screens = 1
	}

	cfg, err := motion.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *verbose {
		motion.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	eng := enginetest.New()
	eng.SetParams(motion.AnimationParams{
		StartFrame: 0,
		EndFrame:   *frames,
		Duration:   *animDur,
	})
	alloc := arena.New(cfg.Pools.ArenaConfig())
	sup := motion.NewSupervisor(eng, alloc, cfg, nil)
	bridge := motion.NewBridge(sup, nil)

	// Widgets are spread round-robin across the screens; only the active
	// screen's contexts run at any moment.
	ctxs := make([]*motion.Context, 0, *widgets)
	for i := 0; i < *widgets; i++ {
		ctx, err := sup.NewContext(motion.ContextConfig{
			Widget:    motion.WidgetID(i + 1),
			Source:    motion.Source{Data: []byte("simulated animation")},
			Width:     *width,
			Height:    *height,
			Loop:      *loop,
			AutoStart: true,
		})
		if err != nil {
			return err
		}
		if err := bridge.Register(motion.ScreenID(i%*screens+1), ctx); err != nil {
			return err
		}
		ctxs = append(ctxs, ctx)
	}

	fmt.Printf("Simulating %d widgets on %d screen(s) (%dx%d, %d frames / %v) for %v\n",
		*widgets, *screens, *width, *height, *frames, *animDur, *runFor)
	active := motion.ScreenID(1)
	bridge.OnScreenLoaded(active)

	start := time.Now()
	hidden := false
	lastSwitch := start
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	deadline := time.After(*runFor)

tick:
	for {
		select {
		case <-ticker.C:
			if *hideAfter > 0 && !hidden && time.Since(start) >= *hideAfter {
				fmt.Println("Hiding all widgets")
				for _, ctx := range ctxs {
					eng.SetVisible(ctx.Config().Widget, false)
				}
				hidden = true
			}
			if *switchEvery > 0 && *screens > 1 && time.Since(lastSwitch) >= *switchEvery {
				next := active%motion.ScreenID(*screens) + 1
				fmt.Printf("Switching screen %d -> %d\n", active, next)
				bridge.OnScreenUnloadStart(active)
				bridge.OnScreenUnloaded(active)
				bridge.OnScreenLoaded(next)
				active = next
				lastSwitch = time.Now()
			}
			printStatus(time.Since(start), eng, alloc, ctxs)
		case <-deadline:
			break tick
		}
	}

	fmt.Println("Shutting down")
	if err := sup.Shutdown(cfg.Timing.StopTimeout()); err != nil {
		return err
	}

	st := alloc.Stats()
	fmt.Printf("Final: image high water %d KiB, control high water %d slots, %d acquires, %d fallbacks\n",
		st.ImageHighWater/1024, st.ControlHighWater, st.Acquires, st.Fallbacks)
	if !alloc.Idle() {
		return fmt.Errorf("allocator still holds memory after shutdown")
	}
	fmt.Println("  ✓ all resources released")
	return nil
}

func printStatus(elapsed time.Duration, eng *enginetest.Engine, alloc *arena.Allocator, ctxs []*motion.Context) {
	counts := make(map[motion.State]int)
	framesApplied := 0
	for _, ctx := range ctxs {
		counts[ctx.State()]++
		framesApplied += len(eng.AppliedFrames(ctx.Config().Widget))
	}
	st := alloc.Stats()
	fmt.Printf("[%5.1fs] playing=%d paused=%d completed=%d idle=%d frames=%d image=%d/%d KiB slots=%d/%d\n",
		elapsed.Seconds(),
		counts[motion.StatePlaying],
		counts[motion.StatePaused],
		counts[motion.StateCompleted],
		counts[motion.StateIdle],
		framesApplied,
		st.ImageInUse/1024, st.ImageBudget/1024,
		st.ControlInUse, st.ControlSlots)
}
