// Package ffi provides purego bindings to the native motion engine
// library. The library is dlopened at runtime, so there is no CGo and
// cross-compilation stays trivial.
//
// The engine ABI is a small C surface: a global lock, per-widget buffer
// binding and decode, animation queries, and visibility. Every entry
// point except motion_engine_lock must be called while holding the lock.
package ffi

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// EnvLibPath overrides library discovery when set.
const EnvLibPath = "MOTION_ENGINE_LIB_PATH"

var (
	libHandle uintptr
	libOnce   sync.Once
	libErr    error
)

// Engine entry points (populated by Load).
var (
	// Lifecycle
	fnInit     func() int32
	fnShutdown func()
	fnVersion  func() uintptr

	// Global lock
	fnLock   func()
	fnUnlock func()

	// Widget rendering
	fnBindBuffer func(widget uint64, width uint32, height uint32, buf uintptr, length uint64) int32
	fnDecode     func(widget uint64, data uintptr, length uint64) int32
	fnDecodeFile func(widget uint64, path string) int32

	// Animation control
	fnQueryAnimation  func(widget uint64, out uintptr) int32
	fnDisableAutoplay func(anim uintptr)
	fnApplyFrame      func(anim uintptr, frame int32)

	// Visibility
	fnSetVisible func(widget uint64, visible int32)
	fnIsVisible  func(widget uint64) int32

	// Diagnostics
	fnFreeString func(ptr uintptr)
	fnLastError  func() uintptr // optional, newer engine builds only
)

// AnimationInfoC matches the C struct layout for query results.
type AnimationInfoC struct {
	Handle     uintptr
	StartFrame int32
	EndFrame   int32
	DurationMs uint32
	Flags      uint32
}

// Animation info flags.
const (
	// AnimFlagLoop is set when the source itself asks to loop.
	AnimFlagLoop uint32 = 1 << 0
)

// getLibraryPath returns the path to the engine library.
func getLibraryPath() string {
	if path := os.Getenv(EnvLibPath); path != "" {
		return path
	}

	var libName string
	switch runtime.GOOS {
	case "darwin", "ios":
		libName = "libmotion_engine.dylib"
	case "windows":
		libName = "motion_engine.dll"
	default:
		libName = "libmotion_engine.so"
	}

	searchPaths := []string{
		libName,
		filepath.Join(".", libName),
		filepath.Join("engine", "target", "release", libName),
		filepath.Join("engine", "target", "debug", libName),
	}
	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		searchPaths = append(searchPaths,
			filepath.Join(execDir, libName),
			filepath.Join(execDir, "..", "lib", libName),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}

	// Let the system loader find it.
	return libName
}

// Load opens the engine library, registers its entry points and
// initializes the engine. Safe to call more than once; every call after
// the first returns the first result.
func Load() error {
	libOnce.Do(func() {
		path := getLibraryPath()
		libHandle, libErr = openLibrary(path)
		if libErr != nil {
			libErr = fmt.Errorf("load motion engine from %s: %w", path, libErr)
			return
		}

		registerEngineFunctions()

		if rc := fnInit(); rc != 0 {
			libErr = fmt.Errorf("motion_engine_init failed: %s", lastError())
		}
	})
	return libErr
}

func registerEngineFunctions() {
	purego.RegisterLibFunc(&fnInit, libHandle, "motion_engine_init")
	purego.RegisterLibFunc(&fnShutdown, libHandle, "motion_engine_shutdown")
	purego.RegisterLibFunc(&fnVersion, libHandle, "motion_engine_version")

	purego.RegisterLibFunc(&fnLock, libHandle, "motion_engine_lock")
	purego.RegisterLibFunc(&fnUnlock, libHandle, "motion_engine_unlock")

	purego.RegisterLibFunc(&fnBindBuffer, libHandle, "motion_engine_bind_buffer")
	purego.RegisterLibFunc(&fnDecode, libHandle, "motion_engine_decode")
	purego.RegisterLibFunc(&fnDecodeFile, libHandle, "motion_engine_decode_file")

	purego.RegisterLibFunc(&fnQueryAnimation, libHandle, "motion_engine_query_animation")
	purego.RegisterLibFunc(&fnDisableAutoplay, libHandle, "motion_engine_disable_autoplay")
	purego.RegisterLibFunc(&fnApplyFrame, libHandle, "motion_engine_apply_frame")

	purego.RegisterLibFunc(&fnSetVisible, libHandle, "motion_engine_set_visible")
	purego.RegisterLibFunc(&fnIsVisible, libHandle, "motion_engine_is_visible")

	purego.RegisterLibFunc(&fnFreeString, libHandle, "motion_engine_free_string")
	registerOptionalFunc(&fnLastError, "motion_engine_last_error")
}

// registerOptionalFunc attempts to register a function, ignoring the
// panic RegisterLibFunc raises when the symbol is absent.
func registerOptionalFunc[T any](fn *T, name string) {
	defer func() {
		recover()
	}()
	purego.RegisterLibFunc(fn, libHandle, name)
}

// ===== Engine calls =====

// Version returns the engine's version string.
func Version() string {
	ptr := fnVersion()
	return goString(ptr)
}

// Shutdown tears down the engine. No engine call is valid afterwards.
func Shutdown() {
	fnShutdown()
}

// Lock acquires the engine's global lock.
func Lock() { fnLock() }

// Unlock releases the engine's global lock.
func Unlock() { fnUnlock() }

// BindBuffer points the widget's render target at buf (width*height*4
// bytes). The caller must keep buf alive until it is rebound or the
// widget is destroyed.
func BindBuffer(widget uint64, width, height int, buf []byte) error {
	if len(buf) == 0 {
		return fmt.Errorf("bind buffer: empty buffer")
	}
	rc := fnBindBuffer(widget, uint32(width), uint32(height), uintptr(unsafe.Pointer(&buf[0])), uint64(len(buf)))
	runtime.KeepAlive(buf)
	if rc != 0 {
		return fmt.Errorf("motion_engine_bind_buffer rc=%d: %s", rc, lastError())
	}
	return nil
}

// Decode parses animation data into the widget's render state.
func Decode(widget uint64, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("decode: empty data")
	}
	rc := fnDecode(widget, uintptr(unsafe.Pointer(&data[0])), uint64(len(data)))
	runtime.KeepAlive(data)
	if rc != 0 {
		return fmt.Errorf("motion_engine_decode rc=%d: %s", rc, lastError())
	}
	return nil
}

// DecodeFile lets the engine read and parse the file itself.
func DecodeFile(widget uint64, path string) error {
	if rc := fnDecodeFile(widget, path); rc != 0 {
		return fmt.Errorf("motion_engine_decode_file rc=%d: %s", rc, lastError())
	}
	return nil
}

// QueryAnimation reports the decoded animation behind the widget, or
// false when the content is a still image.
func QueryAnimation(widget uint64) (AnimationInfoC, bool) {
	var info AnimationInfoC
	rc := fnQueryAnimation(widget, uintptr(unsafe.Pointer(&info)))
	runtime.KeepAlive(&info)
	if rc != 0 {
		return AnimationInfoC{}, false
	}
	return info, true
}

// DisableAutoplay stops the engine's own timer from driving the
// animation.
func DisableAutoplay(anim uintptr) {
	fnDisableAutoplay(anim)
}

// ApplyFrame renders one frame of the animation.
func ApplyFrame(anim uintptr, frame int) {
	fnApplyFrame(anim, int32(frame))
}

// SetVisible shows or hides the widget.
func SetVisible(widget uint64, visible bool) {
	v := int32(0)
	if visible {
		v = 1
	}
	fnSetVisible(widget, v)
}

// IsVisible reports the widget's visibility.
func IsVisible(widget uint64) bool {
	return fnIsVisible(widget) != 0
}

// ===== String helpers =====

// goString converts a C string pointer to a Go string.
func goString(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	// Reinterpret through the address of ptr instead of converting
	// uintptr to Pointer directly, which vet flags; the address is
	// C memory, never a Go pointer, so the GC rule does not apply.
	p := *(*unsafe.Pointer)(unsafe.Pointer(&ptr))
	var length int
	for {
		b := *(*byte)(unsafe.Add(p, length))
		if b == 0 {
			break
		}
		length++
		if length > 1<<20 { // safety limit
			break
		}
	}
	if length == 0 {
		return ""
	}
	bytes := make([]byte, length)
	for i := 0; i < length; i++ {
		bytes[i] = *(*byte)(unsafe.Add(p, i))
	}
	return string(bytes)
}

// lastError fetches and frees the engine's last error string.
func lastError() string {
	if fnLastError == nil {
		return "no detail"
	}
	ptr := fnLastError()
	if ptr == 0 {
		return "no detail"
	}
	s := goString(ptr)
	fnFreeString(ptr)
	if s == "" {
		return "no detail"
	}
	return s
}
