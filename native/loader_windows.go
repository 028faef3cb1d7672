//go:build windows

package native

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

func openLibrary(path string) (uintptr, error) {
	h, err := windows.LoadLibrary(path)
	if err != nil {
		return 0, err
	}
	return uintptr(h), nil
}

func lookupSymbol(handle uintptr, name string) (uintptr, error) {
	return windows.GetProcAddress(windows.Handle(handle), name)
}

// AddSearchDir makes dir part of the DLL search path so the dependencies
// shipped next to the base module (opencv, cudnn) are found when an
// instance copy living elsewhere is loaded.
func AddSearchDir(dir string) error {
	if err := windows.SetDllDirectory(dir); err != nil {
		old := os.Getenv("PATH")
		if perr := os.Setenv("PATH", dir+";"+old); perr != nil {
			return fmt.Errorf("SetDllDirectoryW failed: %v", err)
		}
	}
	return nil
}
