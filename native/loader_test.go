package native

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOS struct {
	opens   atomic.Int32
	symbols map[string]uintptr
	openErr error
}

func (f *fakeOS) open(path string) (uintptr, error) {
	f.opens.Add(1)
	if f.openErr != nil {
		return 0, f.openErr
	}
	return uintptr(0x1000 + f.opens.Load()), nil
}

func (f *fakeOS) lookup(handle uintptr, name string) (uintptr, error) {
	addr, ok := f.symbols[name]
	if !ok {
		return 0, errors.New("undefined symbol")
	}
	return addr, nil
}

func writeModule(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("\x7fELF"), 0o755))
	return p
}

func TestLoader_ConcurrentFirstUseLoadsOnce(t *testing.T) {
	f := &fakeOS{}
	l := newLoader(f.open, f.lookup)
	path := writeModule(t, t.TempDir(), "libyolo_cpp_dll_cpu.so")

	const callers = 32
	var wg sync.WaitGroup
	got := make([]*Module, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			m, err := l.Load(path)
			assert.NoError(t, err)
			got[i] = m
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), f.opens.Load())
	for _, m := range got {
		assert.Same(t, got[0], m)
	}
}

func TestLoader_RelativePathNormalized(t *testing.T) {
	f := &fakeOS{}
	l := newLoader(f.open, f.lookup)
	dir := t.TempDir()
	writeModule(t, dir, "module.so")

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	cwd, err := os.Getwd()
	require.NoError(t, err)
	abs := filepath.Join(cwd, "module.so")

	viaRel, err := l.Load("./module.so")
	require.NoError(t, err)
	viaAbs, err := l.Load(abs)
	require.NoError(t, err)

	assert.Same(t, viaRel, viaAbs)
	assert.True(t, filepath.IsAbs(viaRel.Path()))
	assert.Equal(t, int32(1), f.opens.Load())
}

func TestLoader_DistinctPathsDistinctModules(t *testing.T) {
	f := &fakeOS{}
	l := newLoader(f.open, f.lookup)
	dir := t.TempDir()
	a := writeModule(t, dir, "a.so")
	b := writeModule(t, dir, "b.so")

	ma, err := l.Load(a)
	require.NoError(t, err)
	mb, err := l.Load(b)
	require.NoError(t, err)

	assert.NotSame(t, ma, mb)
	assert.NotEqual(t, ma.handle, mb.handle)
}

func TestLoader_MissingFile(t *testing.T) {
	f := &fakeOS{}
	l := newLoader(f.open, f.lookup)

	_, err := l.Load(filepath.Join(t.TempDir(), "nope.so"))
	assert.ErrorIs(t, err, ErrModuleNotFound)
	assert.Equal(t, int32(0), f.opens.Load())
}

func TestLoader_OpenFailureNotCached(t *testing.T) {
	f := &fakeOS{openErr: errors.New("wrong ELF class")}
	l := newLoader(f.open, f.lookup)
	path := writeModule(t, t.TempDir(), "bad.so")

	_, err := l.Load(path)
	assert.ErrorIs(t, err, ErrModuleNotFound)

	f.openErr = nil
	m, err := l.Load(path)
	require.NoError(t, err)
	assert.NotNil(t, m)
	assert.Equal(t, int32(2), f.opens.Load())
}

func TestModule_Symbol(t *testing.T) {
	f := &fakeOS{symbols: map[string]uintptr{"init": 0xbeef}}
	l := newLoader(f.open, f.lookup)
	m, err := l.Load(writeModule(t, t.TempDir(), "m.so"))
	require.NoError(t, err)

	addr, err := m.Symbol("init")
	require.NoError(t, err)
	assert.Equal(t, uintptr(0xbeef), addr)

	_, err = m.Symbol("get_device_name")
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestBind_RejectsNonFunction(t *testing.T) {
	f := &fakeOS{symbols: map[string]uintptr{"init": 0xbeef}}
	l := newLoader(f.open, f.lookup)
	m, err := l.Load(writeModule(t, t.TempDir(), "m.so"))
	require.NoError(t, err)

	var notAFunc int
	err = Bind(m, "init", &notAFunc)
	assert.ErrorIs(t, err, ErrSymbolNotFound)

	var fn func() int32
	err = Bind(m, "dispose", &fn)
	assert.ErrorIs(t, err, ErrSymbolNotFound)
	assert.Nil(t, fn)
}

func TestLocate(t *testing.T) {
	dir := t.TempDir()
	want := writeModule(t, dir, "libyolo_cpp_dll_gpu.so")

	got, err := Locate("libyolo_cpp_dll_gpu.so", filepath.Join(dir, "missing"), dir)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = Locate("does_not_exist.so", dir)
	assert.ErrorIs(t, err, ErrModuleNotFound)
	assert.Contains(t, err.Error(), dir)
}

func TestLocate_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	want := writeModule(t, dir, "yolo.so")
	t.Setenv(EnvLibDir, dir)

	got, err := Locate("yolo.so", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
