package iface

import (
	"fmt"
	"strings"
)

// DetectionSystem selects the CPU or GPU build of the native module.
type DetectionSystem int

const (
	CPU DetectionSystem = 0x0001
	GPU DetectionSystem = 0x0002
)

func (s DetectionSystem) String() string {
	switch s {
	case CPU:
		return "CPU"
	case GPU:
		return "GPU"
	default:
		return fmt.Sprintf("DetectionSystem(%d)", int(s))
	}
}

// ParseDetectionSystem accepts "cpu" or "gpu" in any case.
func ParseDetectionSystem(s string) (DetectionSystem, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cpu":
		return CPU, nil
	case "gpu", "cuda":
		return GPU, nil
	default:
		return 0, fmt.Errorf("unsupported detection system: %s", s)
	}
}

// GpuConfig picks a graphic device and batch size. A nil *GpuConfig means
// the caller left the device unset.
type GpuConfig struct {
	GpuIndex  int `json:"gpuIndex" yaml:"gpuIndex"`
	BatchSize int `json:"batchSize,omitempty" yaml:"batchSize"`
}

// YoloItem is one detected object.
type YoloItem struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// Center returns the middle of the bounding box.
func (i YoloItem) Center() (int, int) {
	return i.X + i.Width/2, i.Y + i.Height/2
}

type EngineInfo struct {
	Name            string          `json:"name"`
	System          DetectionSystem `json:"-"`
	SystemName      string          `json:"system"`
	ConfigPath      string          `json:"configPath"`
	WeightsPath     string          `json:"weightsPath"`
	NamesPath       string          `json:"namesPath"`
	ModulePath      string          `json:"modulePath"`
	Names           []string        `json:"names"`
	Gpu             *GpuConfig      `json:"gpu,omitempty"`
	BuiltWithOpenCV bool            `json:"builtWithOpenCV"`
	State           string          `json:"state"`
}
