package main

import (
	"strconv"

	"YoloDetServer/sysinfo"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var sysinfoCmd = &cobra.Command{
	Use:   "sysinfo",
	Short: "Print the host facts checked before native initialization",
	RunE: func(cmd *cobra.Command, _ []string) error {
		report := sysinfo.DefaultValidator{}.Validate()
		return pterm.DefaultTable.WithHasHeader(true).WithData(reportRows(report)).Render()
	},
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func reportRows(r sysinfo.Report) pterm.TableData {
	return pterm.TableData{
		{"Check", "Value"},
		{"64-bit process", yesNo(r.Is64BitProcess)},
		{"C++ redistributable", yesNo(r.RedistributableExists)},
		{"CUDA", yesNo(r.CudaExists)},
		{"cuDNN", yesNo(r.CudnnExists)},
		{"Graphic devices", strconv.Itoa(r.DeviceCount)},
		{"CPU", r.CPUModel},
		{"Memory (MB)", strconv.FormatUint(r.TotalMemory/1024/1024, 10)},
	}
}
