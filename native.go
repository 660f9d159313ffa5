package motion

import (
	"time"

	"github.com/agiangrant/motion/internal/ffi"
)

// NativeEngine adapts the dlopened engine library to the Engine
// interface. GUI applications usually already sit on a binding to the
// engine; the native adapter exists for headless tools and simulators
// that drive the same library directly.
//
// Set MOTION_ENGINE_LIB_PATH to point at a specific library build.
type NativeEngine struct{}

// OpenNativeEngine loads and initializes the engine library.
func OpenNativeEngine() (*NativeEngine, error) {
	if err := ffi.Load(); err != nil {
		return nil, err
	}
	Logger().Info("native engine loaded", "version", ffi.Version())
	return &NativeEngine{}, nil
}

// Close shuts the engine down. No method is valid afterwards.
func (e *NativeEngine) Close() {
	ffi.Shutdown()
}

func (e *NativeEngine) Lock()   { ffi.Lock() }
func (e *NativeEngine) Unlock() { ffi.Unlock() }

func (e *NativeEngine) BindBuffer(id WidgetID, width, height int, buf []byte) {
	if err := ffi.BindBuffer(uint64(id), width, height, buf); err != nil {
		Logger().Warn("bind buffer failed", "widget", uint64(id), "error", err)
	}
}

func (e *NativeEngine) Decode(id WidgetID, src Source) error {
	if src.Path != "" {
		return ffi.DecodeFile(uint64(id), src.Path)
	}
	return ffi.Decode(uint64(id), src.Data)
}

func (e *NativeEngine) QueryAnimation(id WidgetID) (AnimationBinding, bool) {
	info, ok := ffi.QueryAnimation(uint64(id))
	if !ok {
		return AnimationBinding{}, false
	}
	return AnimationBinding{
		Apply: func(arg any, frame int) {
			ffi.ApplyFrame(arg.(uintptr), frame)
		},
		Arg: info.Handle,
		Params: AnimationParams{
			StartFrame: int(info.StartFrame),
			EndFrame:   int(info.EndFrame),
			Duration:   time.Duration(info.DurationMs) * time.Millisecond,
		},
	}, true
}

func (e *NativeEngine) DisableAutonomousPlayback(b AnimationBinding) {
	if h, ok := b.Arg.(uintptr); ok {
		ffi.DisableAutoplay(h)
	}
}

func (e *NativeEngine) SetWidgetVisible(id WidgetID, visible bool) {
	ffi.SetVisible(uint64(id), visible)
}

func (e *NativeEngine) WidgetVisible(id WidgetID) bool {
	return ffi.IsVisible(uint64(id))
}
