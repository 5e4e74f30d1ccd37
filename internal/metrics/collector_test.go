package metrics

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReport_EmptyCollector_ReturnsZeroCountAndAverages(t *testing.T) {
	c := NewCollector(10)

	report := c.Report()

	require.Zero(t, report.Count)
	require.Zero(t, report.AvgTTFTMs)
	require.Zero(t, report.AvgQueueMs)
}

func TestRecord_EvictsOldestBeyondMaxItems(t *testing.T) {
	// GIVEN a collector capped at 3 items
	c := NewCollector(3)

	// WHEN 5 samples are recorded, tagged 1..5
	for i := 1; i <= 5; i++ {
		c.Record(RequestMetrics{
			TTFTMs:  float64(i),
			QueueMs: float64(i),
			Device:  fmt.Sprintf("dev-%d", i),
		})
	}

	// THEN only the last 3 are retained, in arrival order
	snap := c.Snapshot()
	require.Len(t, snap, 3)
	require.Equal(t, "dev-3", snap[0].Device)
	require.Equal(t, "dev-4", snap[1].Device)
	require.Equal(t, "dev-5", snap[2].Device)
}

func TestReport_CountAndAverages_ReflectOnlyRetainedSamples(t *testing.T) {
	c := NewCollector(3)
	for i := 1; i <= 5; i++ {
		c.Record(RequestMetrics{TTFTMs: float64(i), QueueMs: float64(i * 10), Device: "gpu0"})
	}

	report := c.Report()

	require.Equal(t, 3, report.Count)
	require.InDelta(t, (3.0+4.0+5.0)/3.0, report.AvgTTFTMs, 1e-9)
	require.InDelta(t, (30.0+40.0+50.0)/3.0, report.AvgQueueMs, 1e-9)
}

func TestReport_ByDevice_BreaksDownPerDeviceLabel(t *testing.T) {
	c := NewCollector(10)
	c.Record(RequestMetrics{TTFTMs: 10, QueueMs: 1, Device: "cpu:0"})
	c.Record(RequestMetrics{TTFTMs: 20, QueueMs: 2, Device: "cpu:0"})
	c.Record(RequestMetrics{TTFTMs: 100, QueueMs: 5, Device: "cuda:0"})

	report := c.Report()

	require.Equal(t, 2, report.ByDevice["cpu:0"].Count)
	require.InDelta(t, 15, report.ByDevice["cpu:0"].AvgTTFTMs, 1e-9)
	require.Equal(t, 1, report.ByDevice["cuda:0"].Count)
}

func TestNewCollector_ClampsMaxItemsToOne(t *testing.T) {
	c := NewCollector(0)

	c.Record(RequestMetrics{Device: "a"})
	c.Record(RequestMetrics{Device: "b"})

	require.Len(t, c.Snapshot(), 1)
	require.Equal(t, "b", c.Snapshot()[0].Device)
}
