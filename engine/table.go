package engine

import (
	iface "YoloDetServer/interface"
	"YoloDetServer/native"
)

// functionTable holds the resolved entry points of one loaded module. A nil
// field means the backend does not export that entry point.
type functionTable struct {
	init            func(configurationFilename, weightsFilename string, gpu int32) int32
	initWithBatch   func(configurationFilename, weightsFilename string, gpu, batchSize int32) int32
	detectImage     func(filename string, container *BboxContainer) int32
	detectMat       func(data *byte, size uintptr, container *BboxContainer) int32
	dispose         func() int32
	builtWithOpenCV func() bool
	getDeviceCount  func() int32
	getDeviceName   func(gpu int32, deviceName *byte) int32
}

func (t *functionTable) targets(system iface.DetectionSystem) map[string]any {
	targets := map[string]any{
		SymbolDetectImage: &t.detectImage,
		SymbolDetectMat:   &t.detectMat,
		SymbolDispose:     &t.dispose,
	}
	switch system {
	case iface.CPU:
		targets[SymbolInit] = &t.init
		targets[SymbolBuiltWithOpenCV] = &t.builtWithOpenCV
	case iface.GPU:
		// the GPU build exports init with a trailing batch size
		targets[SymbolInit] = &t.initWithBatch
		targets[SymbolGetDeviceCount] = &t.getDeviceCount
		targets[SymbolGetDeviceName] = &t.getDeviceName
	}
	return targets
}

// bindTable resolves every symbol backend requires. Resolution failures
// surface here, at load time, never at call time.
func bindTable(m *native.Module, backend Backend) (functionTable, error) {
	var t functionTable
	targets := t.targets(backend.System)
	for _, sym := range backend.Symbols {
		fptr, ok := targets[sym]
		if !ok {
			continue
		}
		if err := native.Bind(m, sym, fptr); err != nil {
			return functionTable{}, err
		}
	}
	return t, nil
}
