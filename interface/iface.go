package iface

import "unsafe"

// Backend is the call surface of one loaded detection engine.
type Backend interface {
	Detect(filepath string) ([]YoloItem, error)
	DetectBytes(imageData []byte) ([]YoloItem, error)
	DetectUnsafe(imagePtr unsafe.Pointer, size int) ([]YoloItem, error)
	GraphicDeviceName(gpu *GpuConfig) string
	IsBuiltWithOpenCV() bool
	Info() EngineInfo
	Dispose() error
}
