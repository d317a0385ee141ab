package kernel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nameearly/agentkernel/balancer"
	"github.com/nameearly/agentkernel/breaker"
	"github.com/nameearly/agentkernel/ratelimit"
	"github.com/nameearly/agentkernel/registry"
)

func newTestMesh() (*MeshClient, *registry.Registry) {
	reg := registry.New(time.Minute)
	lb := balancer.New(balancer.RoundRobin)
	mesh := NewMeshClient(reg, lb, nil, nil)
	return mesh, reg
}

func TestMeshCallRoutesToHealthyInstance(t *testing.T) {
	mesh, reg := newTestMesh()
	reg.Register(registry.Instance{ID: "a1", ServiceName: "svc", Status: registry.Healthy})

	var gotID string
	result, err := mesh.Call(context.Background(), "svc", "", func(ctx context.Context, inst registry.Instance) (any, error) {
		gotID = inst.ID
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", result)
	require.Equal(t, "a1", gotID)
}

func TestMeshCallNoHealthyInstanceReturnsNotFound(t *testing.T) {
	mesh, _ := newTestMesh()
	_, err := mesh.Call(context.Background(), "missing", "", func(ctx context.Context, inst registry.Instance) (any, error) {
		return nil, nil
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMeshCallRateLimited(t *testing.T) {
	reg := registry.New(time.Minute)
	reg.Register(registry.Instance{ID: "a1", ServiceName: "svc", Status: registry.Healthy})
	lb := balancer.New(balancer.RoundRobin)
	limiter := ratelimit.NewTokenBucket(1, time.Minute, 1)
	mesh := NewMeshClient(reg, lb, limiter, nil)

	called := 0
	call := func(ctx context.Context, inst registry.Instance) (any, error) {
		called++
		return "ok", nil
	}
	_, err := mesh.Call(context.Background(), "svc", "", call)
	require.NoError(t, err)

	_, err = mesh.Call(context.Background(), "svc", "", call)
	require.Error(t, err)
	require.Equal(t, 1, called)
}

func TestMeshCallOpensBreakerAfterFailures(t *testing.T) {
	reg := registry.New(time.Minute)
	reg.Register(registry.Instance{ID: "a1", ServiceName: "svc", Status: registry.Healthy})
	lb := balancer.New(balancer.RoundRobin)
	mesh := NewMeshClient(reg, lb, nil, func() breaker.Config {
		return breaker.Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Hour, HalfOpenMaxCalls: 1}
	})

	boom := errors.New("boom")
	failing := func(ctx context.Context, inst registry.Instance) (any, error) {
		return nil, boom
	}

	_, _ = mesh.Call(context.Background(), "svc", "", failing)
	_, _ = mesh.Call(context.Background(), "svc", "", failing)

	_, err := mesh.Call(context.Background(), "svc", "", func(ctx context.Context, inst registry.Instance) (any, error) {
		t.Fatal("should not be called while breaker is open")
		return nil, nil
	})
	require.ErrorIs(t, err, breaker.ErrOpen)
}

func TestMeshBreakersAreIndependentPerService(t *testing.T) {
	reg := registry.New(time.Minute)
	reg.Register(registry.Instance{ID: "a1", ServiceName: "svc-a", Status: registry.Healthy})
	reg.Register(registry.Instance{ID: "b1", ServiceName: "svc-b", Status: registry.Healthy})
	lb := balancer.New(balancer.RoundRobin)
	mesh := NewMeshClient(reg, lb, nil, func() breaker.Config {
		return breaker.Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour, HalfOpenMaxCalls: 1}
	})

	boom := errors.New("boom")
	_, _ = mesh.Call(context.Background(), "svc-a", "", func(ctx context.Context, inst registry.Instance) (any, error) {
		return nil, boom
	})

	result, err := mesh.Call(context.Background(), "svc-b", "", func(ctx context.Context, inst registry.Instance) (any, error) {
		return "fine", nil
	})
	require.NoError(t, err)
	require.Equal(t, "fine", result)
}
