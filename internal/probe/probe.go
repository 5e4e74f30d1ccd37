// Package probe discovers the compute devices available on this host by
// shelling out to platform tools. Only its Probe() contract matters to
// callers; its internals are free to change per platform.
package probe

import (
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/relayserve/relayserve/internal/device"
)

const probeTimeout = 2 * time.Second

// Probe returns the CPU device plus whatever GPUs can be discovered via
// nvidia-smi, macOS system_profiler, or the RELAY_ENABLE_GPU stub
// (ported from relay/internal/profile/probe.py).
func Probe() []device.Device {
	devices := []device.Device{cpuDevice()}
	devices = append(devices, nvidiaSMIDevices()...)
	devices = append(devices, macOSDevices()...)

	if os.Getenv("RELAY_ENABLE_GPU") == "1" {
		devices = append(devices, device.Device{
			Name:          "stub-gpu",
			Backend:       envOr("RELAY_GPU_BACKEND", "cuda"),
			VRAMGB:        envFloat("RELAY_GPU_VRAM_GB", 12),
			TFlops:        envFloat("RELAY_GPU_TFLOPS", 20),
			BandwidthGBps: envFloat("RELAY_GPU_BW_GBPS", 300),
		})
	}

	return devices
}

func cpuDevice() device.Device {
	cores := runtime.NumCPU()
	if cores < 1 {
		cores = 1
	}
	tflops := float64(cores) * 0.05
	if tflops < 0.1 {
		tflops = 0.1
	}
	return device.Device{
		Name:          strconv.Itoa(cores) + " cores",
		Backend:       "cpu",
		VRAMGB:        0,
		TFlops:        tflops,
		BandwidthGBps: 10,
	}
}

func nvidiaSMIDevices() []device.Device {
	if _, err := exec.LookPath("nvidia-smi"); err != nil {
		return nil
	}

	cmd := exec.Command("nvidia-smi", "--query-gpu=name,memory.total", "--format=csv,noheader,nounits")
	out, err := runWithTimeout(cmd)
	if err != nil {
		logrus.Debugf("probe: nvidia-smi failed: %v", err)
		return nil
	}

	var devices []device.Device
	for _, line := range strings.Split(string(out), "\n") {
		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		memMB, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			memMB = 0
		}
		devices = append(devices, device.Device{
			Name:          name,
			Backend:       "cuda",
			VRAMGB:        memMB / 1024.0,
			TFlops:        envFloat("RELAY_GPU_TFLOPS", 20),
			BandwidthGBps: envFloat("RELAY_GPU_BW_GBPS", 300),
		})
	}
	return devices
}

func macOSDevices() []device.Device {
	if runtime.GOOS != "darwin" {
		return nil
	}
	if _, err := exec.LookPath("system_profiler"); err != nil {
		return nil
	}

	cmd := exec.Command("system_profiler", "SPDisplaysDataType")
	out, err := runWithTimeout(cmd)
	if err != nil {
		logrus.Debugf("probe: system_profiler failed: %v", err)
		return nil
	}

	var devices []device.Device
	var currentName string
	var currentVRAM float64
	for _, raw := range strings.Split(string(out), "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "Chipset Model:") || strings.HasPrefix(line, "Model:") {
			currentName = strings.TrimSpace(strings.SplitN(line, ":", 2)[1])
		}
		if strings.Contains(line, "VRAM") && strings.Contains(line, ":") {
			value := strings.TrimSpace(strings.SplitN(line, ":", 2)[1])
			if strings.HasSuffix(value, "GB") {
				if v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(value, "GB")), 64); err == nil {
					currentVRAM = v
				}
			}
		}
		if currentName != "" {
			devices = append(devices, device.Device{
				Name:          currentName,
				Backend:       "metal",
				VRAMGB:        currentVRAM,
				TFlops:        envFloat("RELAY_GPU_TFLOPS", 20),
				BandwidthGBps: envFloat("RELAY_GPU_BW_GBPS", 300),
			})
			currentName = ""
			currentVRAM = 0
		}
	}
	return devices
}

func runWithTimeout(cmd *exec.Cmd) ([]byte, error) {
	done := make(chan struct{})
	var out []byte
	var err error
	go func() {
		out, err = cmd.Output()
		close(done)
	}()
	select {
	case <-done:
		return out, err
	case <-time.After(probeTimeout):
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return nil, exec.ErrNotFound
	}
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envFloat(name string, def float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
