package engine

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"unsafe"

	"YoloDetServer/instance"
	iface "YoloDetServer/interface"
	"YoloDetServer/logger"
	"YoloDetServer/native"
	"YoloDetServer/sysinfo"

	"go.uber.org/zap"
)

// State of a Detector. Disposed is terminal.
type State int

const (
	StateConstructed State = 0x0001
	StateInitialized State = 0x0002
	StateDisposed    State = 0x0003
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateInitialized:
		return "initialized"
	case StateDisposed:
		return "disposed"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

const (
	UnknownDevice = "unknown"
	deviceNameLen = 256
)

var (
	processBits = strconv.IntSize
	cpuModel    = sysinfo.CPUModel
)

type options struct {
	validator    sysinfo.Validator
	instancesDir string
	libraryDir   string
	log          *zap.Logger
}

type Option func(*options)

// WithValidator replaces the host probe used before initialization.
func WithValidator(v sysinfo.Validator) Option {
	return func(o *options) { o.validator = v }
}

// WithInstancesDir sets where per-model module copies are created.
func WithInstancesDir(dir string) Option {
	return func(o *options) { o.instancesDir = dir }
}

// WithLibraryDir adds a directory searched first for the base module.
func WithLibraryDir(dir string) Option {
	return func(o *options) { o.libraryDir = dir }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// Detector drives one isolated copy of the native detection module. Calls
// into the module are serialized; distinct Detectors run independently.
type Detector struct {
	mu        sync.Mutex
	state     State
	system    iface.DetectionSystem
	table     functionTable
	resolver  *ObjectTypeResolver
	validator sysinfo.Validator
	log       *zap.Logger
	info      iface.EngineInfo
}

// NewCPU loads the CPU module for the model named by namesFilename and
// initializes it.
func NewCPU(configurationFilename, weightsFilename, namesFilename string, opts ...Option) (*Detector, error) {
	return open(iface.CPU, configurationFilename, weightsFilename, namesFilename, nil, opts...)
}

// NewGPU loads the GPU module and initializes it on the device selected by
// gpu, or the module's default device when gpu is nil.
func NewGPU(configurationFilename, weightsFilename, namesFilename string, gpu *iface.GpuConfig, opts ...Option) (*Detector, error) {
	return open(iface.GPU, configurationFilename, weightsFilename, namesFilename, gpu, opts...)
}

func open(system iface.DetectionSystem, cfgFile, weightsFile, namesFile string, gpu *iface.GpuConfig, opts ...Option) (*Detector, error) {
	o := options{
		validator:    sysinfo.DefaultValidator{},
		instancesDir: instance.DefaultRoot,
		log:          logger.Log(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := checkPlatform(); err != nil {
		return nil, err
	}

	resolver, err := NewObjectTypeResolver(namesFile)
	if err != nil {
		return nil, err
	}
	name := instance.ModelName(namesFile)
	backend := SelectBackend(system)

	base, err := native.Locate(backend.ModuleFile, o.libraryDir)
	if err != nil {
		return nil, err
	}
	modulePath, err := instance.Materialize(o.instancesDir, name, base)
	if err != nil {
		return nil, err
	}
	if err := native.AddSearchDir(filepath.Dir(base)); err != nil {
		o.log.Warn("cannot add base module directory to search path", zap.String("dir", filepath.Dir(base)), zap.Error(err))
	}
	if err := claim(modulePath); err != nil {
		return nil, err
	}

	mod, err := native.Load(modulePath)
	if err != nil {
		release(modulePath)
		return nil, err
	}
	table, err := bindTable(mod, backend)
	if err != nil {
		release(modulePath)
		return nil, err
	}

	d := newDetector(system, table, resolver, o)
	d.info = iface.EngineInfo{
		Name:        name,
		System:      system,
		SystemName:  system.String(),
		ConfigPath:  cfgFile,
		WeightsPath: weightsFile,
		NamesPath:   namesFile,
		ModulePath:  modulePath,
		Names:       resolver.Names(),
		Gpu:         gpu,
	}
	if err := d.initialize(cfgFile, weightsFile, gpu); err != nil {
		release(modulePath)
		return nil, err
	}
	o.log.Info("Initialized yolo engine",
		zap.String("name", name),
		zap.Stringer("system", system),
		zap.String("module", modulePath),
		zap.Int("classes", resolver.Len()))
	return d, nil
}

func newDetector(system iface.DetectionSystem, table functionTable, resolver *ObjectTypeResolver, o options) *Detector {
	if o.validator == nil {
		o.validator = sysinfo.DefaultValidator{}
	}
	if o.log == nil {
		o.log = logger.Log()
	}
	return &Detector{
		state:     StateConstructed,
		system:    system,
		table:     table,
		resolver:  resolver,
		validator: o.validator,
		log:       o.log,
		info: iface.EngineInfo{
			System:     system,
			SystemName: system.String(),
			Names:      resolver.Names(),
		},
	}
}

func checkPlatform() error {
	if processBits != 64 {
		return fmt.Errorf("%w: running as %d-bit", ErrUnsupportedPlatform, processBits)
	}
	return nil
}

func (d *Detector) initialize(cfgFile, weightsFile string, gpu *iface.GpuConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.state {
	case StateDisposed:
		return ErrDisposed
	case StateInitialized:
		return ErrAlreadyInitialized
	}
	if err := checkPlatform(); err != nil {
		return err
	}

	report := d.validator.Validate()
	if !report.RedistributableExists {
		d.log.Warn("C++ runtime redistributable not found, native initialization may fail")
	}

	var (
		ret int32
		err error
	)
	switch d.system {
	case iface.GPU:
		if !report.CudaExists {
			return fmt.Errorf("%w: CUDA files not found", ErrInitialization)
		}
		if !report.CudnnExists {
			return fmt.Errorf("%w: cuDNN not found", ErrInitialization)
		}
		count, cerr := d.deviceCount(report)
		if cerr != nil {
			return cerr
		}
		if count == 0 {
			return fmt.Errorf("%w: no NVIDIA graphic device is available", ErrInitialization)
		}
		gpuIndex, batchSize := int32(-1), int32(1)
		if gpu != nil {
			if gpu.GpuIndex < 0 || gpu.GpuIndex >= count {
				return fmt.Errorf("%w: graphic device index %d is out of range, %d devices", ErrInitialization, gpu.GpuIndex, count)
			}
			gpuIndex = int32(gpu.GpuIndex)
			if gpu.BatchSize > 0 {
				batchSize = int32(gpu.BatchSize)
			}
		}
		if d.table.initWithBatch == nil {
			return fmt.Errorf("%w: %s entry point not bound", ErrInitialization, SymbolInit)
		}
		ret, err = protect(func() int32 {
			return d.table.initWithBatch(cfgFile, weightsFile, gpuIndex, batchSize)
		})
	default:
		if d.table.init == nil {
			return fmt.Errorf("%w: %s entry point not bound", ErrInitialization, SymbolInit)
		}
		ret, err = protect(func() int32 {
			return d.table.init(cfgFile, weightsFile, 0)
		})
	}
	if err != nil {
		return err
	}
	if ret < 0 {
		return fmt.Errorf("%w: native init returned %d", ErrInitialization, ret)
	}
	d.state = StateInitialized
	return nil
}

// deviceCount prefers the live count from the module over the probe.
func (d *Detector) deviceCount(report sysinfo.Report) (int, error) {
	if d.table.getDeviceCount == nil {
		return report.DeviceCount, nil
	}
	n, err := protect(d.table.getDeviceCount)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, nil
	}
	return int(n), nil
}

// Detect runs detection on an image file.
func (d *Detector) Detect(imagePath string) ([]iface.YoloItem, error) {
	info, err := os.Stat(imagePath)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: cannot find the file %s", ErrFileNotFound, imagePath)
	}
	return d.detect(func(c *BboxContainer) int32 {
		return d.table.detectImage(imagePath, c)
	})
}

// DetectBytes runs detection on an encoded image held in memory. The data
// must carry a jpeg, png, bmp, gif or tiff signature.
func (d *Detector) DetectBytes(imageData []byte) ([]iface.YoloItem, error) {
	if !IsValidImageFormat(imageData) {
		return nil, ErrInvalidImageFormat
	}
	return d.detect(func(c *BboxContainer) int32 {
		return d.table.detectMat(&imageData[0], uintptr(len(imageData)), c)
	})
}

// DetectUnsafe runs detection on size bytes of encoded image at imagePtr.
// Nothing about the memory is checked: the caller guarantees it stays
// valid and unmodified until the call returns.
func (d *Detector) DetectUnsafe(imagePtr unsafe.Pointer, size int) ([]iface.YoloItem, error) {
	if imagePtr == nil || size <= 0 {
		return nil, fmt.Errorf("%w: nil or empty buffer", ErrInvalidImageFormat)
	}
	return d.detect(func(c *BboxContainer) int32 {
		return d.table.detectMat((*byte)(imagePtr), uintptr(size), c)
	})
}

func (d *Detector) detect(call func(*BboxContainer) int32) ([]iface.YoloItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ready(); err != nil {
		return nil, err
	}
	container := new(BboxContainer)
	count, err := protect(func() int32 { return call(container) })
	if err != nil {
		d.log.Error("native detect faulted", zap.String("name", d.info.Name), zap.Error(err))
		return nil, err
	}
	if count == -1 {
		return nil, ErrNativeContractViolation
	}
	return Convert(container, d.resolver)
}

func (d *Detector) ready() error {
	switch d.state {
	case StateInitialized:
		return nil
	case StateDisposed:
		return ErrDisposed
	default:
		return ErrNotInitialized
	}
}

// GraphicDeviceName names the device inference runs on: the CPU model for
// the CPU backend, otherwise the graphic device at gpu's index (0 if nil).
func (d *Detector) GraphicDeviceName(gpu *iface.GpuConfig) string {
	if d.system != iface.GPU {
		return cpuModel()
	}
	report := d.validator.Validate()
	if !report.CudaExists || !report.CudnnExists {
		return UnknownDevice
	}
	if d.table.getDeviceName == nil {
		return ""
	}
	index := int32(0)
	if gpu != nil {
		index = int32(gpu.GpuIndex)
	}
	buf := make([]byte, deviceNameLen)

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := protect(func() int32 { return d.table.getDeviceName(index, &buf[0]) }); err != nil {
		d.log.Error("native get_device_name faulted", zap.Error(err))
		return ""
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf)
}

// IsBuiltWithOpenCV is false whenever the backend cannot answer.
func (d *Detector) IsBuiltWithOpenCV() bool {
	if d.table.builtWithOpenCV == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var built bool
	if _, err := protect(func() int32 {
		built = d.table.builtWithOpenCV()
		return 0
	}); err != nil {
		return false
	}
	return built
}

// Dispose tears down the native state. It is idempotent; every later call
// other than Dispose fails with ErrDisposed. The module stays loaded and its
// instance copy stays on disk.
func (d *Detector) Dispose() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateDisposed {
		return nil
	}
	d.state = StateDisposed
	if d.info.ModulePath != "" {
		defer release(d.info.ModulePath)
	}
	if d.table.dispose == nil {
		return nil
	}
	if _, err := protect(d.table.dispose); err != nil {
		return err
	}
	d.log.Info("Disposed yolo engine", zap.String("name", d.info.Name))
	return nil
}

func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Detector) Info() iface.EngineInfo {
	info := d.info
	info.Names = append([]string(nil), d.info.Names...)
	info.BuiltWithOpenCV = d.IsBuiltWithOpenCV()
	info.State = d.State().String()
	return info
}

// protect turns a panic raised while calling into the module into
// ErrNativeFault.
func protect(call func() int32) (ret int32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrNativeFault, r)
		}
	}()
	return call(), nil
}

var (
	claimMu sync.Mutex
	claims  = map[string]bool{}
)

// claim marks modulePath as owned by a live Detector. Two live Detectors on
// one module would share its global state.
func claim(modulePath string) error {
	claimMu.Lock()
	defer claimMu.Unlock()
	if claims[modulePath] {
		return fmt.Errorf("%w: module instance %s is already in use", ErrInitialization, modulePath)
	}
	claims[modulePath] = true
	return nil
}

func release(modulePath string) {
	claimMu.Lock()
	defer claimMu.Unlock()
	delete(claims, modulePath)
}
