package balancer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nameearly/agentkernel/registry"
)

func healthy(ids ...string) []registry.Instance {
	out := make([]registry.Instance, len(ids))
	for i, id := range ids {
		out[i] = registry.Instance{ID: id, ServiceName: "svc", Status: registry.Healthy}
	}
	return out
}

func TestSelectReturnsNilOnEmptyOrAllUnhealthy(t *testing.T) {
	b := New(RoundRobin)
	require.Nil(t, b.Select("svc", nil, ""))

	unhealthy := []registry.Instance{{ID: "a", Status: registry.Unhealthy}}
	require.Nil(t, b.Select("svc", unhealthy, ""))
}

func TestRoundRobinCyclesThroughInstances(t *testing.T) {
	b := New(RoundRobin)
	instances := healthy("a", "b", "c")

	seen := []string{}
	for i := 0; i < 6; i++ {
		seen = append(seen, b.Select("svc", instances, "").ID)
	}
	require.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, seen)
}

func TestRoundRobinIndexIsPerService(t *testing.T) {
	b := New(RoundRobin)
	instances := healthy("a", "b")

	require.Equal(t, "a", b.Select("svc-1", instances, "").ID)
	require.Equal(t, "a", b.Select("svc-2", instances, "").ID)
	require.Equal(t, "b", b.Select("svc-1", instances, "").ID)
}

func TestLeastConnectionsPicksMinimum(t *testing.T) {
	b := New(LeastConnections)
	instances := []registry.Instance{
		{ID: "a", Status: registry.Healthy, ActiveConnections: 5},
		{ID: "b", Status: registry.Healthy, ActiveConnections: 1},
		{ID: "c", Status: registry.Healthy, ActiveConnections: 3},
	}
	got := b.Select("svc", instances, "")
	require.Equal(t, "b", got.ID)
}

func TestWeightedFavorsHigherWeight(t *testing.T) {
	b := New(Weighted)
	instances := []registry.Instance{
		{ID: "a", Status: registry.Healthy, Weight: 0},
		{ID: "b", Status: registry.Healthy, Weight: 100},
	}
	for i := 0; i < 20; i++ {
		got := b.Select("svc", instances, "")
		require.Equal(t, "b", got.ID)
	}
}

func TestConsistentHashIsStableForSameKey(t *testing.T) {
	b := New(ConsistentHash)
	instances := healthy("a", "b", "c", "d")

	first := b.Select("svc", instances, "user-42")
	for i := 0; i < 5; i++ {
		got := b.Select("svc", instances, "user-42")
		require.Equal(t, first.ID, got.ID)
	}
}

func TestRandomAlwaysReturnsAHealthyInstance(t *testing.T) {
	b := New(Random)
	instances := healthy("a", "b", "c")
	valid := map[string]bool{"a": true, "b": true, "c": true}
	for i := 0; i < 20; i++ {
		got := b.Select("svc", instances, "")
		require.True(t, valid[got.ID])
	}
}
