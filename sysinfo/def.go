// Package sysinfo reports the host facts that gate native initialization.
package sysinfo

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pbnjay/memory"
	"github.com/shirou/gopsutil/v4/cpu"
)

const UnknownCPU = "Unknown CPU"

// Report is a snapshot of host capabilities. It is never cached; every
// Validate call probes again.
type Report struct {
	Is64BitProcess        bool   `json:"is64BitProcess"`
	RedistributableExists bool   `json:"redistributableExists"`
	CudaExists            bool   `json:"cudaExists"`
	CudnnExists           bool   `json:"cudnnExists"`
	DeviceCount           int    `json:"deviceCount"`
	CPUModel              string `json:"cpuModel"`
	TotalMemory           uint64 `json:"totalMemory"`
}

// Validator produces Reports. Tests substitute a StaticValidator.
type Validator interface {
	Validate() Report
}

// StaticValidator always returns the same Report.
type StaticValidator Report

func (s StaticValidator) Validate() Report {
	return Report(s)
}

// DefaultValidator probes the running host.
type DefaultValidator struct{}

func (DefaultValidator) Validate() Report {
	return Report{
		Is64BitProcess:        strconv.IntSize == 64,
		RedistributableExists: redistributableExists(),
		CudaExists:            cudaExists(),
		CudnnExists:           cudnnExists(),
		DeviceCount:           deviceCount(),
		CPUModel:              CPUModel(),
		TotalMemory:           memory.TotalMemory(),
	}
}

// CPUModel returns the processor model name, or UnknownCPU.
func CPUModel() string {
	infos, err := cpu.Info()
	if err != nil || len(infos) == 0 {
		return UnknownCPU
	}
	name := strings.TrimSpace(infos[len(infos)-1].ModelName)
	if name == "" {
		return UnknownCPU
	}
	return name
}

// String renders the report on one line for logs.
func (r Report) String() string {
	return fmt.Sprintf("64bit=%v redist=%v cuda=%v cudnn=%v devices=%d cpu=%q mem=%dMB",
		r.Is64BitProcess, r.RedistributableExists, r.CudaExists, r.CudnnExists,
		r.DeviceCount, r.CPUModel, r.TotalMemory/1024/1024)
}

func redistributableExists() bool {
	if runtime.GOOS == "windows" {
		sys := filepath.Join(os.Getenv("SystemRoot"), "System32")
		return fileExists(filepath.Join(sys, "vcruntime140.dll")) &&
			fileExists(filepath.Join(sys, "msvcp140.dll"))
	}
	return findLibrary("libstdc++.so.6*") || findLibrary("libc++.1*.dylib")
}

func cudaExists() bool {
	if runtime.GOOS == "windows" {
		if dir := os.Getenv("CUDA_PATH"); dir != "" && globAny(filepath.Join(dir, "bin"), "cudart64_*.dll") {
			return true
		}
		return findLibrary("cudart64_*.dll")
	}
	return findLibrary("libcudart.so*")
}

func cudnnExists() bool {
	if runtime.GOOS == "windows" {
		if dir := os.Getenv("CUDA_PATH"); dir != "" && globAny(filepath.Join(dir, "bin"), "cudnn64_*.dll") {
			return true
		}
		return findLibrary("cudnn64_*.dll")
	}
	return findLibrary("libcudnn.so*")
}

func deviceCount() int {
	if runtime.GOOS != "linux" {
		// only the native module can count devices elsewhere
		return 0
	}
	matches, _ := filepath.Glob("/dev/nvidia[0-9]*")
	return len(matches)
}

func librarySearchDirs() []string {
	var dirs []string
	switch runtime.GOOS {
	case "windows":
		dirs = append(dirs, filepath.SplitList(os.Getenv("PATH"))...)
		dirs = append(dirs, filepath.Join(os.Getenv("SystemRoot"), "System32"))
	default:
		dirs = append(dirs, filepath.SplitList(os.Getenv("LD_LIBRARY_PATH"))...)
		if home := os.Getenv("CUDA_HOME"); home != "" {
			dirs = append(dirs, filepath.Join(home, "lib64"))
		}
		dirs = append(dirs,
			"/usr/local/cuda/lib64",
			"/usr/lib/x86_64-linux-gnu",
			"/usr/lib/aarch64-linux-gnu",
			"/usr/lib64",
			"/usr/lib",
			"/usr/local/lib",
		)
	}
	return dirs
}

func findLibrary(pattern string) bool {
	for _, dir := range librarySearchDirs() {
		if globAny(dir, pattern) {
			return true
		}
	}
	return false
}

func globAny(dir, pattern string) bool {
	if dir == "" {
		return false
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	return err == nil && len(matches) > 0
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
