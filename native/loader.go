// Package native loads shared detection modules at runtime and resolves
// their entry points by name into typed Go functions.
package native

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ebitengine/purego"
	"golang.org/x/sync/singleflight"
)

var (
	ErrModuleNotFound = errors.New("native module not found")
	ErrSymbolNotFound = errors.New("native symbol not found")
)

// Module is a loaded shared library. There is at most one Module per
// normalized path for the lifetime of the process.
type Module struct {
	path   string
	handle uintptr
	lookup func(handle uintptr, name string) (uintptr, error)
}

// Path returns the absolute path the module was loaded from.
func (m *Module) Path() string {
	return m.path
}

// Symbol returns the address of the named entry point.
func (m *Module) Symbol(name string) (uintptr, error) {
	addr, err := m.lookup(m.handle, name)
	if err != nil || addr == 0 {
		return 0, fmt.Errorf("%w: function %s not found in %s", ErrSymbolNotFound, name, m.path)
	}
	return addr, nil
}

// Loader caches loaded modules by path. Loads never get undone.
type Loader struct {
	open   func(path string) (uintptr, error)
	lookup func(handle uintptr, name string) (uintptr, error)

	group   singleflight.Group
	mu      sync.RWMutex
	modules map[string]*Module
}

func newLoader(open func(string) (uintptr, error), lookup func(uintptr, string) (uintptr, error)) *Loader {
	return &Loader{
		open:    open,
		lookup:  lookup,
		modules: make(map[string]*Module),
	}
}

var defaultLoader = newLoader(openLibrary, lookupSymbol)

// Load returns the process-wide module for path, loading it on first use.
func Load(path string) (*Module, error) {
	return defaultLoader.Load(path)
}

// Load returns the cached module for path or loads it. Concurrent first
// callers for the same path share a single OS load.
func (l *Loader) Load(path string) (*Module, error) {
	abs, err := normalize(path)
	if err != nil {
		return nil, err
	}
	if m := l.cached(abs); m != nil {
		return m, nil
	}
	v, err, _ := l.group.Do(abs, func() (any, error) {
		// a flight that finished between cached() and Do() already stored it
		if m := l.cached(abs); m != nil {
			return m, nil
		}
		h, err := l.open(abs)
		if err != nil {
			return nil, fmt.Errorf("%w: library missing at path %s: %v", ErrModuleNotFound, abs, err)
		}
		m := &Module{path: abs, handle: h, lookup: l.lookup}
		l.mu.Lock()
		l.modules[abs] = m
		l.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Module), nil
}

func (l *Loader) cached(abs string) *Module {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.modules[abs]
}

func normalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrModuleNotFound, path, err)
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: library missing at path %s", ErrModuleNotFound, abs)
	}
	return abs, nil
}

// Bind resolves symbol in m and points *fptr at it. fptr must be a pointer
// to a func variable whose signature matches the C entry point.
func Bind(m *Module, symbol string, fptr any) (err error) {
	addr, err := m.Symbol(symbol)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: cannot bind %s in %s: %v", ErrSymbolNotFound, symbol, m.path, r)
		}
	}()
	purego.RegisterFunc(fptr, addr)
	return nil
}

// Resolve loads modulePath and returns symbol as a callable of type T.
func Resolve[T any](modulePath, symbol string) (T, error) {
	var fn T
	m, err := Load(modulePath)
	if err != nil {
		return fn, err
	}
	if err := Bind(m, symbol, &fn); err != nil {
		return fn, err
	}
	return fn, nil
}
