//go:build windows

package ffi

import (
	"fmt"
	"syscall"
)

// openLibrary loads a dynamic library on Windows. The returned HMODULE
// works directly with purego.RegisterLibFunc.
func openLibrary(path string) (uintptr, error) {
	handle, err := syscall.LoadLibrary(path)
	if err != nil {
		return 0, fmt.Errorf("LoadLibrary failed: %w", err)
	}
	return uintptr(handle), nil
}
