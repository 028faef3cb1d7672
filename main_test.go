package main

import (
	"testing"

	adhoc "YoloDetServer/Adhoc"
	"YoloDetServer/config"
	iface "YoloDetServer/interface"
	"YoloDetServer/sysinfo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineSpecs(t *testing.T) {
	cfg, err := config.Parse([]byte(`
engines:
  - {name: coco, cfg: c, weights: w, names: coco.names}
  - {system: gpu, cfg: c, weights: w, names: tiny.names, gpuIndex: 1}
`))
	require.NoError(t, err)

	specs := engineSpecs(cfg)
	require.Len(t, specs, 2)
	assert.Equal(t, iface.CPU, specs[0].System)
	assert.Nil(t, specs[0].Gpu)
	assert.Equal(t, iface.GPU, specs[1].System)
	assert.Equal(t, 1, specs[1].Gpu.GpuIndex)

	assert.Equal(t, adhoc.CudaInstance, instanceClass(specs))
	assert.Equal(t, adhoc.CpuInstance, instanceClass(specs[:1]))
}

func TestResultRows(t *testing.T) {
	rows := resultRows("dog.jpg", []iface.YoloItem{{Type: "dog", Confidence: 0.5, X: 10, Y: 10, Width: 20, Height: 10}})
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"dog.jpg", "dog", "0.500", "10,10 20x10", "20,15"}, rows[0])
}

func TestReportRows(t *testing.T) {
	rows := reportRows(sysinfo.Report{Is64BitProcess: true, DeviceCount: 2, CPUModel: "Test CPU", TotalMemory: 4 << 30})
	assert.Equal(t, []string{"64-bit process", "yes"}, rows[1])
	assert.Equal(t, []string{"Graphic devices", "2"}, rows[5])
	assert.Equal(t, []string{"Memory (MB)", "4096"}, rows[7])
}
