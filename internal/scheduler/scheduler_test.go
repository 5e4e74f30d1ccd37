package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relayserve/relayserve/internal/device"
)

func TestPickDevice_EmptyRegistry_ReturnsFalse(t *testing.T) {
	s := New(device.NewRegistry())

	_, ok := s.PickDevice("hello")

	require.False(t, ok)
}

func TestPickDevice_DelegatesToRegistryBestDevice(t *testing.T) {
	reg := device.NewRegistry()
	reg.AddAll([]device.Device{
		{Name: "weak", Backend: "cpu", TFlops: 1, BandwidthGBps: 1, VRAMGB: 1},
		{Name: "strong", Backend: "cuda", TFlops: 10, BandwidthGBps: 10, VRAMGB: 10},
	})
	s := New(reg)

	decision, ok := s.PickDevice("hello")

	require.True(t, ok)
	require.Equal(t, "strong", decision.Device.Name)
}

func TestClassify_AlwaysReturnsPrefill(t *testing.T) {
	s := New(device.NewRegistry())

	require.Equal(t, PhasePrefill, s.Classify("anything"))
	require.Equal(t, PhasePrefill, s.Classify(""))
}
