package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"

	iface "YoloDetServer/interface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockBackend struct {
	name     string
	detects  atomic.Int32
	disposed atomic.Bool
	err      error
}

func (m *MockBackend) Detect(string) ([]iface.YoloItem, error) { return m.DetectBytes(nil) }
func (m *MockBackend) DetectBytes([]byte) ([]iface.YoloItem, error) {
	m.detects.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return []iface.YoloItem{{Type: "mock", Confidence: 0.99, X: 1, Y: 1, Width: 2, Height: 2}}, nil
}
func (m *MockBackend) DetectUnsafe(unsafe.Pointer, int) ([]iface.YoloItem, error) {
	return m.DetectBytes(nil)
}
func (m *MockBackend) GraphicDeviceName(*iface.GpuConfig) string { return "mock device" }
func (m *MockBackend) IsBuiltWithOpenCV() bool                   { return false }
func (m *MockBackend) Info() iface.EngineInfo {
	return iface.EngineInfo{Name: m.name, SystemName: "CPU", Names: []string{"mock"}, State: "initialized"}
}
func (m *MockBackend) Dispose() error {
	m.disposed.Store(true)
	return nil
}

func newTestRegistry(t *testing.T, backends map[string]*MockBackend) *Registry {
	t.Helper()
	pool := NewPool(2)
	t.Cleanup(pool.Close)
	return New(func(s Spec) (iface.Backend, error) {
		b, ok := backends[s.Names]
		if !ok {
			return nil, errors.New("no such model")
		}
		return b, nil
	}, pool)
}

func TestRegistry_Lifecycle(t *testing.T) {
	coco := &MockBackend{name: "coco"}
	r := newTestRegistry(t, map[string]*MockBackend{"coco.names": coco})

	id, err := r.Create(Spec{Names: "coco.names", Description: "mock_worker"})
	require.NoError(t, err)

	e, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "coco", e.Name)
	assert.Equal(t, "mock_worker", e.Description)
	assert.Len(t, r.List(), 1)
	assert.Equal(t, []string{"coco"}, r.Names())

	items, err := r.DetectBytes(context.Background(), id, []byte("img"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "mock", items[0].Type)

	require.NoError(t, r.Destroy(id))
	assert.True(t, coco.disposed.Load())
	assert.ErrorIs(t, r.Destroy(id), ErrEngineNotFound)
	_, err = r.DetectBytes(context.Background(), id, nil)
	assert.ErrorIs(t, err, ErrEngineNotFound)
}

func TestRegistry_CreateError(t *testing.T) {
	r := newTestRegistry(t, nil)
	_, err := r.Create(Spec{Names: "missing.names"})
	assert.Error(t, err)
	assert.Empty(t, r.List())
}

func TestRegistry_GPUWarmup(t *testing.T) {
	gpu := &MockBackend{name: "gpu"}
	r := newTestRegistry(t, map[string]*MockBackend{"gpu.names": gpu})
	_, err := r.Create(Spec{Names: "gpu.names", System: iface.GPU})
	require.NoError(t, err)
	assert.EqualValues(t, warmupRounds, gpu.detects.Load())
}

func TestRegistry_DetectError(t *testing.T) {
	boom := errors.New("boom")
	r := newTestRegistry(t, map[string]*MockBackend{"bad.names": {name: "bad", err: boom}})
	id, err := r.Create(Spec{Names: "bad.names"})
	require.NoError(t, err)
	_, err = r.DetectFile(context.Background(), id, "frame.jpg")
	assert.ErrorIs(t, err, boom)
}

func TestRegistry_ConcurrentDetect(t *testing.T) {
	m := &MockBackend{name: "coco"}
	r := newTestRegistry(t, map[string]*MockBackend{"coco.names": m})
	id, err := r.Create(Spec{Names: "coco.names"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.DetectBytes(context.Background(), id, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 20, m.detects.Load())
}

func TestRegistry_Close(t *testing.T) {
	a, b := &MockBackend{name: "a"}, &MockBackend{name: "b"}
	r := newTestRegistry(t, map[string]*MockBackend{"a": a, "b": b})
	_, err := r.Create(Spec{Names: "a"})
	require.NoError(t, err)
	_, err = r.Create(Spec{Names: "b"})
	require.NoError(t, err)

	r.Close()
	assert.Empty(t, r.List())
	assert.True(t, a.disposed.Load())
	assert.True(t, b.disposed.Load())
}
