package engine

import (
	"runtime"

	iface "YoloDetServer/interface"
)

const (
	yoloLibraryCpu = "yolo_cpp_dll_cpu"
	yoloLibraryGpu = "yolo_cpp_dll_gpu"
)

// Entry points exported by yolo_cpp_dll.
const (
	SymbolInit            = "init"
	SymbolDetectImage     = "detect_image"
	SymbolDetectMat       = "detect_mat"
	SymbolDispose         = "dispose"
	SymbolBuiltWithOpenCV = "built_with_opencv"
	SymbolGetDeviceCount  = "get_device_count"
	SymbolGetDeviceName   = "get_device_name"
)

// Backend names the module file and the entry points one DetectionSystem
// requires.
type Backend struct {
	System     iface.DetectionSystem
	ModuleFile string
	Symbols    []string
}

// SelectBackend maps a detection system to its module and symbol set.
func SelectBackend(system iface.DetectionSystem) Backend {
	common := []string{SymbolInit, SymbolDetectImage, SymbolDetectMat, SymbolDispose}
	if system == iface.GPU {
		return Backend{
			System:     iface.GPU,
			ModuleFile: ModuleFileName(yoloLibraryGpu, runtime.GOOS),
			Symbols:    append(common, SymbolGetDeviceCount, SymbolGetDeviceName),
		}
	}
	return Backend{
		System:     iface.CPU,
		ModuleFile: ModuleFileName(yoloLibraryCpu, runtime.GOOS),
		Symbols:    append(common, SymbolBuiltWithOpenCV),
	}
}

// ModuleFileName returns the platform file name of a shared module.
func ModuleFileName(base, goos string) string {
	switch goos {
	case "windows":
		return base + ".dll"
	case "darwin":
		return "lib" + base + ".dylib"
	default:
		return "lib" + base + ".so"
	}
}
