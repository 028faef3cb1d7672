package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	iface "YoloDetServer/interface"
	"YoloDetServer/logger"

	"gopkg.in/yaml.v3"
)

const DefaultFile = "config.yaml"

// EngineConfig describes one detection engine created at startup.
type EngineConfig struct {
	Name        string `yaml:"name"`
	System      string `yaml:"system"`
	Config      string `yaml:"cfg"`
	Weights     string `yaml:"weights"`
	Names       string `yaml:"names"`
	GpuIndex    *int   `yaml:"gpuIndex"`
	BatchSize   int    `yaml:"batchSize"`
	Description string `yaml:"description"`
}

// Gpu returns the requested device, or nil to let the module pick.
func (e EngineConfig) Gpu() *iface.GpuConfig {
	if e.GpuIndex == nil && e.BatchSize == 0 {
		return nil
	}
	g := &iface.GpuConfig{GpuIndex: 0, BatchSize: e.BatchSize}
	if e.GpuIndex != nil {
		g.GpuIndex = *e.GpuIndex
	}
	return g
}

type LogConfig struct {
	Development bool              `yaml:"development"`
	File        logger.FileConfig `yaml:"file"`
}

type Config struct {
	RPCPort       int    `yaml:"RPCPort"`
	HTTPPort      int    `yaml:"HTTPPort"`
	AdhocPort     int    `yaml:"AdhocPort"`
	WorkersNum    int    `yaml:"workersNum"`
	InstancesDir  string `yaml:"instancesDir"`
	LibraryDir    string `yaml:"libraryDir"`
	ModelsDir     string `yaml:"modelsDir"`
	UseRegServer  bool   `yaml:"UseRegServer"`
	RegServerHost string `yaml:"RegServerHost"`
	RegServerPort int    `yaml:"RegServerPort"`

	Log     LogConfig      `yaml:"log"`
	Engines []EngineConfig `yaml:"engines"`

	// Warnings collects defaults applied by Load.
	Warnings []string `yaml:"-"`
}

func Default() Config {
	return Config{
		RPCPort:      50051,
		HTTPPort:     8080,
		AdhocPort:    50053,
		WorkersNum:   1,
		InstancesDir: "instances",
		ModelsDir:    "models",
	}
}

// Load reads a yaml file over Default and validates it.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	cpuNum := runtime.NumCPU()
	if c.WorkersNum <= 0 {
		c.WorkersNum = 1
		c.Warnings = append(c.Warnings, "Invalid workersNum in config, defaulting to 1")
	} else if c.WorkersNum > cpuNum {
		c.Warnings = append(c.Warnings, "workersNum exceeds CPU cores, which may lead to performance degradation")
	}
	if c.InstancesDir == "" {
		c.InstancesDir = "instances"
	}
	if c.ModelsDir == "" {
		c.ModelsDir = "models"
	}
	if c.UseRegServer && (c.RegServerHost == "" || c.RegServerPort <= 0) {
		return errors.New("UseRegServer requires RegServerHost and RegServerPort")
	}

	seen := map[string]bool{}
	for i := range c.Engines {
		e := &c.Engines[i]
		if e.Config == "" || e.Weights == "" || e.Names == "" {
			return fmt.Errorf("engine %d: cfg, weights and names are required", i)
		}
		if _, err := iface.ParseDetectionSystem(e.System); err != nil {
			return fmt.Errorf("engine %d: %w", i, err)
		}
		if e.Name != "" {
			if seen[e.Name] {
				return fmt.Errorf("engine %d: duplicate name %q", i, e.Name)
			}
			seen[e.Name] = true
		}
		if e.GpuIndex != nil && *e.GpuIndex < 0 {
			return fmt.Errorf("engine %d: gpuIndex must not be negative", i)
		}
	}
	return nil
}
