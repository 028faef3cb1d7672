//go:build darwin || freebsd || linux || netbsd

package native

import (
	"github.com/ebitengine/purego"
)

func openLibrary(path string) (uintptr, error) {
	// RTLD_LOCAL keeps each instance copy's symbols out of the global namespace
	return purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
}

func lookupSymbol(handle uintptr, name string) (uintptr, error) {
	return purego.Dlsym(handle, name)
}

// AddSearchDir is a no-op on unix; dependencies resolve through the
// module's rpath and LD_LIBRARY_PATH fixed at process start.
func AddSearchDir(dir string) error {
	return nil
}
