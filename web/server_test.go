package web

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unsafe"

	"YoloDetServer/engine"
	iface "YoloDetServer/interface"
	"YoloDetServer/registry"
	"YoloDetServer/sysinfo"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jpegHeader = []byte{0xff, 0xd8, 0xff, 0xe0}

type MockBackend struct{}

func (MockBackend) Detect(string) ([]iface.YoloItem, error) { return nil, errors.New("unused") }
func (MockBackend) DetectBytes(data []byte) ([]iface.YoloItem, error) {
	if !bytes.HasPrefix(data, jpegHeader) {
		return nil, engine.ErrInvalidImageFormat
	}
	return []iface.YoloItem{{Type: "dog", Confidence: 0.8, X: 10, Y: 20, Width: 30, Height: 40}}, nil
}
func (MockBackend) DetectUnsafe(unsafe.Pointer, int) ([]iface.YoloItem, error) {
	return nil, errors.New("unused")
}
func (MockBackend) GraphicDeviceName(gpu *iface.GpuConfig) string {
	if gpu == nil {
		return "mock cpu"
	}
	return "mock gpu"
}
func (MockBackend) IsBuiltWithOpenCV() bool { return false }
func (MockBackend) Info() iface.EngineInfo {
	return iface.EngineInfo{Name: "dogs", SystemName: "CPU", Names: []string{"dog"}, State: "initialized"}
}
func (MockBackend) Dispose() error { return nil }

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()
	pool := registry.NewPool(1)
	t.Cleanup(pool.Close)
	reg := registry.New(func(s registry.Spec) (iface.Backend, error) {
		if s.Names == "missing.names" {
			return nil, engine.ErrFileNotFound
		}
		return MockBackend{}, nil
	}, pool)
	s := New(reg, Options{
		Validator:   sysinfo.StaticValidator{Is64BitProcess: true, CPUModel: "Test CPU"},
		ModelsDir:   t.TempDir(),
		IdleTimeout: 200 * time.Millisecond,
	})
	return s, reg
}

func do(t *testing.T, h http.Handler, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestPing(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s.Router(), http.MethodGet, "/api/ping", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())
}

func TestSysinfo(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s.Router(), http.MethodGet, "/api/sysinfo", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct{ Data sysinfo.Report }
	decode(t, w, &resp)
	assert.Equal(t, "Test CPU", resp.Data.CPUModel)
	assert.True(t, resp.Data.Is64BitProcess)
}

func TestEngineLifecycle(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Router()

	w := do(t, h, http.MethodPost, "/api/engines", []byte(`{"cfg":"c","weights":"w","names":"dogs.names","description":"d"}`), "application/json")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct{ Data string }
	decode(t, w, &created)
	id := created.Data
	require.NotEmpty(t, id)

	w = do(t, h, http.MethodGet, "/api/engines", nil, "")
	var list struct{ Data []engineView }
	decode(t, w, &list)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "dogs", list.Data[0].Name)

	w = do(t, h, http.MethodGet, "/api/engines/"+id, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodPost, "/api/engines/"+id+"/detect", append(jpegHeader, 1, 2, 3), "image/jpeg")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var detected struct{ Data []iface.YoloItem }
	decode(t, w, &detected)
	require.Len(t, detected.Data, 1)
	assert.Equal(t, "dog", detected.Data[0].Type)

	w = do(t, h, http.MethodPost, "/api/engines/"+id+"/detect", []byte("not an image"), "application/octet-stream")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/api/engines/"+id+"/device", nil, "")
	assert.JSONEq(t, `{"data":"mock cpu"}`, w.Body.String())
	w = do(t, h, http.MethodGet, "/api/engines/"+id+"/device?gpu=0", nil, "")
	assert.JSONEq(t, `{"data":"mock gpu"}`, w.Body.String())
	w = do(t, h, http.MethodGet, "/api/engines/"+id+"/device?gpu=x", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodDelete, "/api/engines/"+id, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, h, http.MethodDelete, "/api/engines/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateEngine_Errors(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Router()

	w := do(t, h, http.MethodPost, "/api/engines", []byte(`{"cfg":"c"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/engines", []byte(`{"cfg":"c","weights":"w","names":"n","system":"tpu"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/engines", []byte(`{"cfg":"c","weights":"w","names":"missing.names"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func multipartBody(t *testing.T, field, name string, content []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestDetect_Multipart(t *testing.T) {
	s, reg := newTestServer(t)
	id, err := reg.Create(registry.Spec{Names: "dogs.names"})
	require.NoError(t, err)

	body, ct := multipartBody(t, "file", "frame.jpg", append(jpegHeader, 9))
	w := do(t, s.Router(), http.MethodPost, "/api/engines/"+id+"/detect", body, ct)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestUpload(t *testing.T) {
	s, _ := newTestServer(t)
	body, ct := multipartBody(t, "file", "..\\yolov4-tiny.weights", []byte("weights"))
	w := do(t, s.Router(), http.MethodPost, "/api/models/upload", body, ct)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data, err := os.ReadFile(filepath.Join(s.modelsDir, "yolov4-tiny.weights"))
	require.NoError(t, err)
	assert.Equal(t, "weights", string(data))
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s.Router(), http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "yolo_engines_loaded")
}

func TestStream(t *testing.T) {
	s, reg := newTestServer(t)
	id, err := reg.Create(registry.Spec{Names: "dogs.names"})
	require.NoError(t, err)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + id

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var reply wsReply
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, append(jpegHeader, 1)))
	require.NoError(t, conn.ReadJSON(&reply))
	require.Len(t, reply.Data, 1)
	assert.Equal(t, "dog", reply.Data[0].Type)

	b64 := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(append(jpegHeader, 2))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(b64)))
	reply = wsReply{}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Len(t, reply.Data, 1)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("%%%")))
	reply = wsReply{}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Contains(t, reply.Error, "invalid image")

	// idle connections are closed by the server
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestStream_UnknownEngine(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s.Router(), http.MethodGet, "/ws/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDecodeBase64Image(t *testing.T) {
	raw := []byte{1, 2, 3}
	enc := base64.StdEncoding.EncodeToString(raw)
	got, err := decodeBase64Image(enc)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
	got, err = decodeBase64Image("data:image/png;base64," + enc)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}
