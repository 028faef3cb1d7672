package main

import (
	"fmt"
	"strconv"

	"YoloDetServer/engine"
	iface "YoloDetServer/interface"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

type detectFlags struct {
	System  string
	Config  string
	Weights string
	Names   string
	Gpu     int
	Batch   int
}

var detectOpts detectFlags

var detectCmd = &cobra.Command{
	Use:   "detect [flags] image...",
	Short: "Run one engine over image files and print the detections",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDetect,
}

func init() {
	f := detectCmd.Flags()
	f.StringVar(&detectOpts.System, "system", "cpu", "detection system: cpu or gpu")
	f.StringVar(&detectOpts.Config, "cfg", "", "network configuration file")
	f.StringVar(&detectOpts.Weights, "weights", "", "weights file")
	f.StringVar(&detectOpts.Names, "names", "", "class names file, one label per line")
	f.IntVar(&detectOpts.Gpu, "gpu", -1, "graphic device index, -1 for the module default")
	f.IntVar(&detectOpts.Batch, "batch", 0, "GPU batch size")
	_ = detectCmd.MarkFlagRequired("cfg")
	_ = detectCmd.MarkFlagRequired("weights")
	_ = detectCmd.MarkFlagRequired("names")
}

func resultRows(image string, items []iface.YoloItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		cx, cy := it.Center()
		rows = append(rows, []string{
			image,
			it.Type,
			strconv.FormatFloat(it.Confidence, 'f', 3, 64),
			fmt.Sprintf("%d,%d %dx%d", it.X, it.Y, it.Width, it.Height),
			fmt.Sprintf("%d,%d", cx, cy),
		})
	}
	return rows
}

func runDetect(cmd *cobra.Command, images []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return err
	}
	system, err := iface.ParseDetectionSystem(detectOpts.System)
	if err != nil {
		return err
	}
	opts := []engine.Option{
		engine.WithInstancesDir(cfg.InstancesDir),
		engine.WithLibraryDir(cfg.LibraryDir),
	}

	var d *engine.Detector
	if system == iface.GPU {
		var gpu *iface.GpuConfig
		if detectOpts.Gpu >= 0 || detectOpts.Batch > 0 {
			gpu = &iface.GpuConfig{GpuIndex: max(detectOpts.Gpu, 0), BatchSize: detectOpts.Batch}
		}
		d, err = engine.NewGPU(detectOpts.Config, detectOpts.Weights, detectOpts.Names, gpu, opts...)
	} else {
		d, err = engine.NewCPU(detectOpts.Config, detectOpts.Weights, detectOpts.Names, opts...)
	}
	if err != nil {
		return err
	}
	defer d.Dispose()

	pterm.Info.Printfln("Device: %s", d.GraphicDeviceName(d.Info().Gpu))
	table := pterm.TableData{{"Image", "Type", "Confidence", "Box", "Center"}}
	for _, image := range images {
		items, err := d.Detect(image)
		if err != nil {
			pterm.Error.Printfln("%s: %v", image, err)
			continue
		}
		table = append(table, resultRows(image, items)...)
	}
	return pterm.DefaultTable.WithHasHeader(true).WithData(table).Render()
}
