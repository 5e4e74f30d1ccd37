package device

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStrengthScore_WeightsComputeBandwidthMemory(t *testing.T) {
	d := Device{TFlops: 10, BandwidthGBps: 20, VRAMGB: 30}

	got := d.StrengthScore()

	require.InDelta(t, 10*0.6+20*0.3+30*0.1, got, 1e-9)
}

func TestRegistry_BestDevice_Empty_ReturnsFalse(t *testing.T) {
	r := NewRegistry()

	_, ok := r.BestDevice()

	require.False(t, ok)
}

func TestRegistry_BestDevice_PicksArgmaxFirstOnTie(t *testing.T) {
	// GIVEN two devices with identical strength scores
	r := NewRegistry()
	a := Device{Name: "a", Backend: "cpu", TFlops: 1, BandwidthGBps: 1, VRAMGB: 1}
	b := Device{Name: "b", Backend: "cpu", TFlops: 1, BandwidthGBps: 1, VRAMGB: 1}
	r.AddAll([]Device{a, b})

	// WHEN the best device is requested
	best, ok := r.BestDevice()

	// THEN the first one in insertion order wins the tie
	require.True(t, ok)
	require.Equal(t, "a", best.Name)
}

func TestRegistry_BestDevice_StrictDominance(t *testing.T) {
	r := NewRegistry()
	weak := Device{Name: "weak", Backend: "cpu", TFlops: 1, BandwidthGBps: 1, VRAMGB: 1}
	strong := Device{Name: "strong", Backend: "cuda", TFlops: 10, BandwidthGBps: 10, VRAMGB: 10}
	r.AddAll([]Device{weak, strong})

	best, ok := r.BestDevice()

	require.True(t, ok)
	require.Equal(t, "strong", best.Name)
}

func TestRegistry_List_ReturnsSnapshotCopy(t *testing.T) {
	r := NewRegistry()
	r.AddAll([]Device{{Name: "a"}})

	snap := r.List()
	snap[0].Name = "mutated"

	require.Equal(t, "a", r.List()[0].Name)
}

func TestDevice_Label_CombinesBackendAndName(t *testing.T) {
	d := Device{Backend: "cuda", Name: "rtx-4090"}

	require.Equal(t, "cuda:rtx-4090", d.Label())
}
