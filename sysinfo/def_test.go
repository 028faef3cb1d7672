package sysinfo

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticValidator(t *testing.T) {
	want := Report{Is64BitProcess: true, CudaExists: true, DeviceCount: 2}
	var v Validator = StaticValidator(want)
	assert.Equal(t, want, v.Validate())
}

func TestDefaultValidator_Bitness(t *testing.T) {
	r := DefaultValidator{}.Validate()
	assert.Equal(t, strconv.IntSize == 64, r.Is64BitProcess)
	assert.NotEmpty(t, r.CPUModel)
	assert.NotZero(t, r.TotalMemory)
}

func TestFindLibrary_LDLibraryPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix library layout")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "libcudnn.so.8"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "libcudart.so.12"), nil, 0o644))
	t.Setenv("LD_LIBRARY_PATH", dir)

	assert.True(t, cudnnExists())
	assert.True(t, cudaExists())
	assert.True(t, findLibrary("libcudnn.so*"))
	assert.False(t, globAny(dir, "libnothing.so*"))
}

func TestReportString(t *testing.T) {
	r := Report{Is64BitProcess: true, DeviceCount: 1, CPUModel: "Test CPU", TotalMemory: 2 << 30}
	assert.Contains(t, r.String(), "devices=1")
	assert.Contains(t, r.String(), `cpu="Test CPU"`)
	assert.Contains(t, r.String(), "mem=2048MB")
}
