// Package shard computes the placement of model layers across devices.
package shard

import (
	"fmt"

	"github.com/relayserve/relayserve/internal/device"
)

// LayerRange is a closed integer interval [Start, End] of layer indices.
type LayerRange struct {
	Start int
	End   int
}

// Plan is the immutable result of sharding total_layers across devices:
// one placement label and one layer range per device, in registry order.
type Plan struct {
	Placements  []string
	LayerRanges []LayerRange
}

// Planner computes shard plans. It holds no state; Plan is a pure
// function of its arguments.
type Planner struct{}

// NewPlanner returns a Planner.
func NewPlanner() *Planner {
	return &Planner{}
}

// Plan divides totalLayers across devices proportionally to strength
// score, preserving the total exactly. Returns an error when
// len(devices) > totalLayers, since the per-device floor of one layer
// cannot be satisfied alongside the total-preservation normalisation.
// Callers could instead truncate devices to totalLayers; this
// implementation treats the mismatch as fatal instead.
func (p *Planner) Plan(devices []device.Device, totalLayers int) (Plan, error) {
	placements := make([]string, len(devices))
	for i, d := range devices {
		placements[i] = d.Label()
	}

	if len(devices) == 0 || totalLayers <= 0 {
		return Plan{Placements: placements, LayerRanges: nil}, nil
	}

	if len(devices) > totalLayers {
		return Plan{}, fmt.Errorf("shard: %d devices cannot each receive at least one of %d layers", len(devices), totalLayers)
	}

	strengths := make([]float64, len(devices))
	total := 0.0
	for i, d := range devices {
		s := d.StrengthScore()
		if s < 0.1 {
			s = 0.1
		}
		strengths[i] = s
		total += s
	}

	allocations := make([]int, len(devices))
	for i, s := range strengths {
		alloc := int(float64(totalLayers) * (s / total))
		if alloc < 1 {
			alloc = 1
		}
		allocations[i] = alloc
	}

	sum := func() int {
		n := 0
		for _, a := range allocations {
			n += a
		}
		return n
	}
	argmax := func() int {
		idx := 0
		for i := 1; i < len(allocations); i++ {
			if allocations[i] > allocations[idx] {
				idx = i
			}
		}
		return idx
	}

	for sum() > totalLayers {
		idx := argmax()
		if allocations[idx] > 1 {
			allocations[idx]--
		}
	}
	for sum() < totalLayers {
		idx := argmax()
		allocations[idx]++
	}

	ranges := make([]LayerRange, len(devices))
	cursor := 0
	for i, alloc := range allocations {
		start := cursor
		end := start + alloc - 1
		if end > totalLayers-1 {
			end = totalLayers - 1
		}
		ranges[i] = LayerRange{Start: start, End: end}
		cursor = end + 1
	}

	return Plan{Placements: placements, LayerRanges: ranges}, nil
}
