package Adhoc

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type regServer struct {
	mu       sync.Mutex
	received []RegisterRequest
	status   int
}

func (s *regServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/register" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.received = append(s.received, req)
	status := s.status
	s.mu.Unlock()
	if status != 0 {
		http.Error(w, "nope", status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(RegisterResponse{Id: req.Id, Success: true})
}

func (s *regServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func (s *regServer) first() RegisterRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received[0]
}

func startRegServer(t *testing.T, rs *regServer) RegServerConfig {
	t.Helper()
	srv := httptest.NewServer(rs)
	t.Cleanup(srv.Close)
	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	cfg := RegServerConfig{}
	cfg.SetAddress(host, p)
	return cfg
}

func TestHeartbeat_Send(t *testing.T) {
	rs := &regServer{}
	h := NewHeartbeat(startRegServer(t, rs), "10.0.0.2", 50051)
	h.HTTPPort = 8080
	h.InstanceClass = CudaInstance
	h.Models = func() []string { return []string{"coco"} }

	resp, err := h.Send(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, h.ID(), resp.Id)

	require.Equal(t, 1, rs.count())
	got := rs.first()
	assert.Equal(t, "10.0.0.2", got.IP)
	assert.Equal(t, 50051, got.Port)
	assert.Equal(t, 8080, got.HTTPPort)
	assert.Equal(t, CudaInstance, got.InstanceClass)
	assert.Equal(t, []string{"coco"}, got.Models)
}

func TestHeartbeat_ServerError(t *testing.T) {
	rs := &regServer{status: http.StatusServiceUnavailable}
	h := NewHeartbeat(startRegServer(t, rs), "10.0.0.2", 50051)
	_, err := h.Send(context.Background())
	assert.Error(t, err)
}

func TestHeartbeat_Run(t *testing.T) {
	rs := &regServer{}
	h := NewHeartbeat(startRegServer(t, rs), "10.0.0.2", 50051)
	h.Interval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	assert.Eventually(t, func() bool { return rs.count() >= 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
