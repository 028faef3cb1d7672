package web

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"YoloDetServer/engine"
	iface "YoloDetServer/interface"
	"YoloDetServer/logger"
	"YoloDetServer/monitor"
	"YoloDetServer/registry"
	"YoloDetServer/sysinfo"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxImageBytes = 32 << 20

type Options struct {
	Validator   sysinfo.Validator
	ModelsDir   string
	IdleTimeout time.Duration
}

type Server struct {
	registry    *registry.Registry
	validator   sysinfo.Validator
	modelsDir   string
	idleTimeout time.Duration
	upgrader    websocket.Upgrader
	log         *zap.Logger
}

func New(reg *registry.Registry, o Options) *Server {
	if o.Validator == nil {
		o.Validator = sysinfo.DefaultValidator{}
	}
	if o.ModelsDir == "" {
		o.ModelsDir = "models"
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 30 * time.Second
	}
	return &Server{
		registry:    reg,
		validator:   o.Validator,
		modelsDir:   o.ModelsDir,
		idleTimeout: o.IdleTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: logger.Log(),
	}
}

type createEngineRequest struct {
	Name        string `json:"name"`
	System      string `json:"system"`
	Config      string `json:"cfg" binding:"required"`
	Weights     string `json:"weights" binding:"required"`
	Names       string `json:"names" binding:"required"`
	GpuIndex    *int   `json:"gpuIndex"`
	BatchSize   int    `json:"batchSize"`
	Description string `json:"description"`
}

type engineView struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Created     time.Time        `json:"created"`
	Info        iface.EngineInfo `json:"info"`
}

func view(e *registry.Entry) engineView {
	return engineView{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		Created:     e.Created,
		Info:        e.Backend.Info(),
	}
}

// httpStatus maps engine and registry errors onto HTTP statuses.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, registry.ErrEngineNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrFileNotFound),
		errors.Is(err, engine.ErrInvalidImageFormat):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrUnsupportedPlatform),
		errors.Is(err, engine.ErrInitialization),
		errors.Is(err, engine.ErrModuleNotFound),
		errors.Is(err, engine.ErrSymbolNotFound),
		errors.Is(err, engine.ErrDisposed),
		errors.Is(err, engine.ErrNotInitialized):
		return http.StatusUnprocessableEntity
	case errors.Is(err, registry.ErrPoolClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, err error) {
	c.JSON(httpStatus(err), gin.H{"error": err.Error()})
}

// accessLog logs each request through zap.
func accessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), accessLog(s.log))

	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/api/sysinfo", s.sysinfo)
	r.GET("/api/engines", s.listEngines)
	r.POST("/api/engines", s.createEngine)
	r.GET("/api/engines/:id", s.getEngine)
	r.DELETE("/api/engines/:id", s.deleteEngine)
	r.POST("/api/engines/:id/detect", s.detect)
	r.GET("/api/engines/:id/device", s.device)
	r.POST("/api/models/upload", s.upload)
	r.GET("/ws/:id", s.stream)
	r.GET("/metrics", gin.WrapH(monitor.Handler()))
	return r
}

func (s *Server) sysinfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.validator.Validate()})
}

func (s *Server) listEngines(c *gin.Context) {
	entries := s.registry.List()
	out := make([]engineView, 0, len(entries))
	for _, e := range entries {
		out = append(out, view(e))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (s *Server) createEngine(c *gin.Context) {
	var req createEngineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	system, err := iface.ParseDetectionSystem(req.System)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	spec := registry.Spec{
		Name:        req.Name,
		System:      system,
		Config:      req.Config,
		Weights:     req.Weights,
		Names:       req.Names,
		Description: req.Description,
	}
	if req.GpuIndex != nil || req.BatchSize > 0 {
		spec.Gpu = &iface.GpuConfig{BatchSize: req.BatchSize}
		if req.GpuIndex != nil {
			spec.Gpu.GpuIndex = *req.GpuIndex
		}
	}
	id, err := s.registry.Create(spec)
	if err != nil {
		s.log.Error("Create engine failed", zap.String("names", req.Names), zap.Error(err))
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": id})
}

func (s *Server) getEngine(c *gin.Context) {
	e, err := s.registry.Get(c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view(e)})
}

func (s *Server) deleteEngine(c *gin.Context) {
	if err := s.registry.Destroy(c.Param("id")); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": "Engine destroyed"})
}

// readImage takes the multipart "file" field when present, else the raw body.
func readImage(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImageBytes)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, err
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	}
	return io.ReadAll(c.Request.Body)
}

func (s *Server) detect(c *gin.Context) {
	data, err := readImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read image: " + err.Error()})
		return
	}
	items, err := s.registry.DetectBytes(c.Request.Context(), c.Param("id"), data)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) device(c *gin.Context) {
	e, err := s.registry.Get(c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	gpu := e.Backend.Info().Gpu
	if q := c.Query("gpu"); q != "" {
		idx, err := strconv.Atoi(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid gpu index"})
			return
		}
		gpu = &iface.GpuConfig{GpuIndex: idx}
	}
	c.JSON(http.StatusOK, gin.H{"data": e.Backend.GraphicDeviceName(gpu)})
}

func (s *Server) upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File upload failed: " + err.Error()})
		return
	}
	base := filepath.Base(strings.ReplaceAll(file.Filename, "\\", "/"))
	if base == "." || base == ".." || base == "/" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file name"})
		return
	}
	modelPath := filepath.Join(s.modelsDir, base)
	if err := c.SaveUploadedFile(file, modelPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": modelPath})
}

// decodeBase64Image accepts plain base64 or a data: URL.
func decodeBase64Image(b64 string) ([]byte, error) {
	if i := strings.Index(b64, ","); i != -1 && strings.HasPrefix(b64, "data:") {
		b64 = b64[i+1:]
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
}

// Start serves the router on addr in the background.
func (s *Server) Start(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		s.log.Info("HTTP server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server ListenAndServe error", zap.Error(err))
		}
	}()
	return srv
}
