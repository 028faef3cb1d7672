package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"YoloDetServer/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

var Registry = prometheus.NewRegistry()

var (
	memUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memory_usage_Megabytes",
		Help: "Memory usage in Megabytes",
	})

	cpuUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "CPU usage in percent",
	})

	GRPCTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grpc_requests_total",
		Help: "Total number of gRPC requests processed",
	})

	// DetectTotal counts detect calls by engine and input variant.
	DetectTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "yolo_detect_total",
		Help: "Total number of detect calls",
	}, []string{"engine", "variant"})

	DetectErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "yolo_detect_errors_total",
		Help: "Total number of failed detect calls",
	}, []string{"engine", "variant"})

	DetectDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "yolo_detect_duration_seconds",
		Help:    "Latency of detect calls",
		Buckets: prometheus.ExponentialBuckets(0.002, 2, 12),
	}, []string{"engine"})

	DetectObjects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "yolo_detected_objects_total",
		Help: "Total number of objects returned by detect calls",
	}, []string{"engine"})

	EnginesLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "yolo_engines_loaded",
		Help: "Number of initialized detection engines",
	})

	WSSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_sessions",
		Help: "Number of open websocket detect sessions",
	})
)

func init() {
	Registry.MustRegister(
		memUsage, cpuUsage, GRPCTotal,
		DetectTotal, DetectErrors, DetectDuration, DetectObjects,
		EnginesLoaded, WSSessions,
		collectors.NewGoCollector(),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// ObserveDetect records one detect call.
func ObserveDetect(engine, variant string, started time.Time, objects int, err error) {
	DetectTotal.WithLabelValues(engine, variant).Inc()
	DetectDuration.WithLabelValues(engine).Observe(time.Since(started).Seconds())
	if err != nil {
		DetectErrors.WithLabelValues(engine, variant).Inc()
		return
	}
	DetectObjects.WithLabelValues(engine).Add(float64(objects))
}

// Forget drops the per-engine series once an engine is destroyed.
func Forget(engine string) {
	DetectTotal.DeletePartialMatch(prometheus.Labels{"engine": engine})
	DetectErrors.DeletePartialMatch(prometheus.Labels{"engine": engine})
	DetectDuration.DeletePartialMatch(prometheus.Labels{"engine": engine})
	DetectObjects.DeletePartialMatch(prometheus.Labels{"engine": engine})
}

func CheckProcessInfo(p *process.Process) {
	if memInfo, err := p.MemoryInfo(); err == nil {
		memUsage.Set(float64(memInfo.RSS / 1024 / 1024))
	}
	if cpuPercent, err := p.CPUPercent(); err == nil {
		cpuUsage.Set(math.Round(cpuPercent*100) / 100)
	}
}

// StartMon samples this process every interval until ctx is done. A positive
// port also serves /metrics on its own listener.
func StartMon(ctx context.Context, port int, interval time.Duration) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return fmt.Errorf("open own process: %w", err)
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	var srv *http.Server
	if port > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", Handler())
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Log().Error("Prometheus server ListenAndServe error", zap.Error(err))
			}
		}()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
checkPcs:
	for {
		select {
		case <-ctx.Done():
			break checkPcs
		case <-ticker.C:
			CheckProcessInfo(p)
		}
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Log().Error("Prometheus server Shutdown error", zap.Error(err))
		}
	}
	return nil
}
