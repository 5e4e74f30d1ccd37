package kv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeedThenDrop_LeavesCachedTokensUnchanged(t *testing.T) {
	// GIVEN a manager with some pre-existing cached tokens
	m := NewManager()
	m.SeedPrefix("other", 100)
	before := m.Stats().CachedTokens

	// WHEN a new id is seeded then immediately dropped
	m.SeedPrefix("r1", 7)
	m.Drop("r1")

	// THEN CachedTokens returns to its pre-call value
	require.Equal(t, before, m.Stats().CachedTokens)
}

func TestCachedTokens_SumsOverLiveEntriesOnly(t *testing.T) {
	m := NewManager()
	m.SeedPrefix("a", 3)
	m.SeedPrefix("b", 5)
	m.SeedPrefix("c", 2)
	m.Drop("b")

	require.Equal(t, 5, m.Stats().CachedTokens)
}

func TestSeedPrefix_DuplicateID_OverwritesAndAdjustsDelta(t *testing.T) {
	m := NewManager()
	m.SeedPrefix("r1", 10)

	m.SeedPrefix("r1", 4)

	require.Equal(t, 4, m.Stats().CachedTokens)
}

func TestHandoff_UnknownID_NoOpOnCounters(t *testing.T) {
	m := NewManager()

	m.Handoff("ghost", "cpu:a", "cuda:b")

	stats := m.Stats()
	require.Zero(t, stats.Handoffs)
	require.Zero(t, stats.Offloads)
}

func TestHandoff_KnownID_IncrementsBothCountersLockstep(t *testing.T) {
	m := NewManager()
	m.SeedPrefix("r1", 1)

	m.Handoff("r1", "cpu:a", "cuda:b")
	m.Handoff("r1", "cuda:b", "cuda:c")

	stats := m.Stats()
	require.Equal(t, 2, stats.Handoffs)
	require.Equal(t, 2, stats.Offloads)
}

func TestDrop_AbsentID_ReturnsZeroAndNoOp(t *testing.T) {
	m := NewManager()
	m.SeedPrefix("a", 5)

	removed := m.Drop("never-seeded")

	require.Zero(t, removed)
	require.Equal(t, 5, m.Stats().CachedTokens)
}

func TestDrop_ClampsCachedTokensAtZero(t *testing.T) {
	// GIVEN cached tokens were reduced externally below the dropped amount
	m := NewManager()
	m.SeedPrefix("a", 3)
	m.Drop("a")
	m.SeedPrefix("b", 10)
	// The public API cannot reach this inconsistent state, so the counter is
	// set directly from inside the package.
	m.stats.CachedTokens = 4

	removed := m.Drop("b")

	require.Equal(t, 10, removed)
	require.Equal(t, 0, m.Stats().CachedTokens)
}
