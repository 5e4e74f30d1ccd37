package probe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProbe_AlwaysIncludesCPUDevice(t *testing.T) {
	devices := Probe()

	require.NotEmpty(t, devices)
	require.Equal(t, "cpu", devices[0].Backend)
	require.Greater(t, devices[0].TFlops, 0.0)
}

func TestProbe_StubGPU_HonorsEnvOverrides(t *testing.T) {
	t.Setenv("RELAY_ENABLE_GPU", "1")
	t.Setenv("RELAY_GPU_BACKEND", "rocm")
	t.Setenv("RELAY_GPU_VRAM_GB", "24")
	t.Setenv("RELAY_GPU_TFLOPS", "50")
	t.Setenv("RELAY_GPU_BW_GBPS", "900")

	devices := Probe()

	var found bool
	for _, d := range devices {
		if d.Name == "stub-gpu" {
			found = true
			require.Equal(t, "rocm", d.Backend)
			require.Equal(t, 24.0, d.VRAMGB)
			require.Equal(t, 50.0, d.TFlops)
			require.Equal(t, 900.0, d.BandwidthGBps)
		}
	}
	require.True(t, found)
}
