package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sort"
	"sync"
	"time"

	"YoloDetServer/engine"
	iface "YoloDetServer/interface"
	"YoloDetServer/logger"
	"YoloDetServer/monitor"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrEngineNotFound = errors.New("engine not found")

const warmupRounds = 3

// Spec is everything needed to create one engine.
type Spec struct {
	Name        string                `json:"name"`
	System      iface.DetectionSystem `json:"-"`
	Config      string                `json:"cfg"`
	Weights     string                `json:"weights"`
	Names       string                `json:"names"`
	Gpu         *iface.GpuConfig      `json:"gpu,omitempty"`
	Description string                `json:"description"`
}

// Factory builds an initialized backend from a Spec.
type Factory func(Spec) (iface.Backend, error)

// EngineFactory creates native detectors with opts applied.
func EngineFactory(opts ...engine.Option) Factory {
	return func(s Spec) (iface.Backend, error) {
		if s.System == iface.GPU {
			return engine.NewGPU(s.Config, s.Weights, s.Names, s.Gpu, opts...)
		}
		return engine.NewCPU(s.Config, s.Weights, s.Names, opts...)
	}
}

type Entry struct {
	ID          string
	Name        string
	Description string
	Created     time.Time
	Backend     iface.Backend
}

// Registry owns the live engines of the server and runs their detect calls
// on its worker pool.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]*Entry
	factory Factory
	pool    *Pool
	log     *zap.Logger
}

func New(factory Factory, pool *Pool) *Registry {
	return &Registry{
		engines: map[string]*Entry{},
		factory: factory,
		pool:    pool,
		log:     logger.Log(),
	}
}

// Create builds an engine and returns its id. GPU engines are warmed up
// before they are published.
func (r *Registry) Create(s Spec) (string, error) {
	b, err := r.factory(s)
	if err != nil {
		return "", err
	}
	if s.System == iface.GPU {
		r.warmup(b)
	}
	name := s.Name
	if name == "" {
		name = b.Info().Name
	}
	e := &Entry{
		ID:          uuid.New().String(),
		Name:        name,
		Description: s.Description,
		Created:     time.Now(),
		Backend:     b,
	}
	r.mu.Lock()
	r.engines[e.ID] = e
	monitor.EnginesLoaded.Set(float64(len(r.engines)))
	r.mu.Unlock()
	r.log.Info("Engine added", zap.String("ID", e.ID), zap.String("name", name), zap.String("description", s.Description))
	return e.ID, nil
}

func (r *Registry) warmup(b iface.Backend) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 32))); err != nil {
		return
	}
	for i := 0; i < warmupRounds; i++ {
		if _, err := b.DetectBytes(buf.Bytes()); err != nil {
			r.log.Warn("Warm up detect failed", zap.Error(err))
			return
		}
	}
}

func (r *Registry) Get(id string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEngineNotFound, id)
	}
	return e, nil
}

// List returns the engines in creation order.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	out := make([]*Entry, 0, len(r.engines))
	for _, e := range r.engines {
		out = append(out, e)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

// Names lists the distinct model names, for heartbeats.
func (r *Registry) Names() []string {
	seen := map[string]bool{}
	var names []string
	for _, e := range r.List() {
		if !seen[e.Name] {
			seen[e.Name] = true
			names = append(names, e.Name)
		}
	}
	return names
}

// Destroy unpublishes the engine and disposes it.
func (r *Registry) Destroy(id string) error {
	r.mu.Lock()
	e, ok := r.engines[id]
	if ok {
		delete(r.engines, id)
		monitor.EnginesLoaded.Set(float64(len(r.engines)))
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrEngineNotFound, id)
	}
	monitor.Forget(e.Name)
	if err := e.Backend.Dispose(); err != nil {
		return err
	}
	r.log.Info("Destroyed engine", zap.String("ID", id))
	return nil
}

// Close disposes every engine.
func (r *Registry) Close() {
	for _, e := range r.List() {
		if err := r.Destroy(e.ID); err != nil && !errors.Is(err, ErrEngineNotFound) {
			r.log.Error("Dispose engine failed", zap.String("ID", e.ID), zap.Error(err))
		}
	}
}

// DetectBytes runs DetectBytes of engine id on the worker pool.
func (r *Registry) DetectBytes(ctx context.Context, id string, imageData []byte) ([]iface.YoloItem, error) {
	return r.run(ctx, id, "bytes", func(b iface.Backend) ([]iface.YoloItem, error) {
		return b.DetectBytes(imageData)
	})
}

// DetectFile runs Detect of engine id on the worker pool.
func (r *Registry) DetectFile(ctx context.Context, id, imagePath string) ([]iface.YoloItem, error) {
	return r.run(ctx, id, "file", func(b iface.Backend) ([]iface.YoloItem, error) {
		return b.Detect(imagePath)
	})
}

func (r *Registry) run(ctx context.Context, id, variant string, fn func(iface.Backend) ([]iface.YoloItem, error)) ([]iface.YoloItem, error) {
	e, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	var (
		items  []iface.YoloItem
		detErr error
	)
	started := time.Now()
	if err := r.pool.Submit(ctx, func() {
		items, detErr = fn(e.Backend)
	}); err != nil {
		monitor.ObserveDetect(e.Name, variant, started, 0, err)
		return nil, err
	}
	monitor.ObserveDetect(e.Name, variant, started, len(items), detErr)
	if detErr != nil {
		return nil, detErr
	}
	return items, nil
}
