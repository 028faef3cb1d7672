package main

import (
	"context"
	"fmt"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	adhoc "YoloDetServer/Adhoc"
	"YoloDetServer/config"
	"YoloDetServer/engine"
	backend "YoloDetServer/gRPC"
	iface "YoloDetServer/interface"
	"YoloDetServer/logger"
	"YoloDetServer/monitor"
	"YoloDetServer/registry"
	"YoloDetServer/sysinfo"
	"YoloDetServer/web"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Create the configured engines and serve gRPC, HTTP and metrics",
	RunE:  runServe,
}

// engineSpecs converts configured engines; config.Parse already validated them.
func engineSpecs(cfg config.Config) []registry.Spec {
	specs := make([]registry.Spec, 0, len(cfg.Engines))
	for _, e := range cfg.Engines {
		system, _ := iface.ParseDetectionSystem(e.System)
		specs = append(specs, registry.Spec{
			Name:        e.Name,
			System:      system,
			Config:      e.Config,
			Weights:     e.Weights,
			Names:       e.Names,
			Gpu:         e.Gpu(),
			Description: e.Description,
		})
	}
	return specs
}

func instanceClass(specs []registry.Spec) int {
	for _, s := range specs {
		if s.System == iface.GPU {
			return adhoc.CudaInstance
		}
	}
	return adhoc.CpuInstance
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return err
	}
	log := logger.Log()

	report := sysinfo.DefaultValidator{}.Validate()
	pterm.DefaultSection.Println("YoloDetServer")
	pterm.Info.Printfln("CPU: %s, cores: %d", report.CPUModel, runtime.NumCPU())
	pterm.Info.Printfln("gRPC port: %d, HTTP port: %d, metrics port: %d", cfg.RPCPort, cfg.HTTPPort, cfg.AdhocPort)
	pterm.Info.Printfln("Configured workers: %d", cfg.WorkersNum)
	for _, w := range cfg.Warnings {
		pterm.Warning.Println(w)
	}
	log.Info("Host report", zap.Stringer("report", report))

	pool := registry.NewPool(cfg.WorkersNum)
	defer pool.Close()
	reg := registry.New(registry.EngineFactory(
		engine.WithInstancesDir(cfg.InstancesDir),
		engine.WithLibraryDir(cfg.LibraryDir),
		engine.WithLogger(log),
	), pool)
	defer reg.Close()

	specs := engineSpecs(cfg)
	for _, s := range specs {
		id, err := reg.Create(s)
		if err != nil {
			return fmt.Errorf("create engine %q: %w", s.Names, err)
		}
		pterm.Success.Printfln("Engine %s ready (%s)", id, s.Names)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	var wg sync.WaitGroup

	lis, err := backend.Listen(cfg.RPCPort)
	if err != nil {
		return err
	}
	rpc := backend.NewServer(reg, cfg.ModelsDir)
	grpcServer := backend.StartGRPCServer(lis, rpc)

	httpServer := web.New(reg, web.Options{ModelsDir: cfg.ModelsDir}).Start(fmt.Sprintf(":%d", cfg.HTTPPort))

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := monitor.StartMon(ctx, cfg.AdhocPort, 500*time.Millisecond); err != nil {
			log.Error("Monitor stopped", zap.Error(err))
		}
	}()

	if cfg.UseRegServer {
		ip, err := adhoc.GetOutboundIP()
		if err != nil {
			return fmt.Errorf("failed to get outbound IP: %w", err)
		}
		server := adhoc.RegServerConfig{}
		server.SetAddress(cfg.RegServerHost, cfg.RegServerPort)
		hb := adhoc.NewHeartbeat(server, ip, cfg.RPCPort)
		hb.HTTPPort = cfg.HTTPPort
		hb.InstanceClass = instanceClass(specs)
		hb.Device = report.CPUModel
		hb.Models = reg.Names
		wg.Add(1)
		go func() {
			defer wg.Done()
			hb.Run(ctx)
		}()
	} else {
		log.Info("UseRegServer is set to false, skipping registration")
	}

	select {
	case <-ctx.Done():
		log.Warn("Signal received, shutting down")
	case <-rpc.CloseChannel:
		log.Warn("Shutdown requested, shutting down")
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server Shutdown error", zap.Error(err))
	}
	grpcServer.GracefulStop()
	wg.Wait()
	log.Info("Safely exited")
	return nil
}
