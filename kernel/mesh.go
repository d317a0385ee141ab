package kernel

import (
	"context"
	"fmt"
	"sync"

	"github.com/nameearly/agentkernel/balancer"
	"github.com/nameearly/agentkernel/breaker"
	"github.com/nameearly/agentkernel/ratelimit"
	"github.com/nameearly/agentkernel/registry"
)

// MeshClient composes a circuit breaker, rate limiter, load balancer, and
// service registry into one call-routing convenience, matching spec.md
// §4.7's framing of C7 as "a minimal service-mesh client" and supplementing
// it with the original's service_mesh.py call() wrapper (breaker + limiter
// + balancer combined ahead of the actual call).
type MeshClient struct {
	Registry *registry.Registry
	Balancer *balancer.Balancer
	Limiter  ratelimit.Limiter

	mu         sync.Mutex
	breakers   map[string]*breaker.Breaker
	newBreaker func() breaker.Config
}

// NewMeshClient wires the four subsystems together. breakerConfig is
// called once per service name the first time Call routes to it, so each
// downstream service gets its own independent breaker.
func NewMeshClient(reg *registry.Registry, lb *balancer.Balancer, limiter ratelimit.Limiter, breakerConfig func() breaker.Config) *MeshClient {
	if breakerConfig == nil {
		breakerConfig = breaker.DefaultConfig
	}
	return &MeshClient{
		Registry:   reg,
		Balancer:   lb,
		Limiter:    limiter,
		breakers:   make(map[string]*breaker.Breaker),
		newBreaker: breakerConfig,
	}
}

func (m *MeshClient) breakerFor(serviceName string) *breaker.Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[serviceName]; ok {
		return b
	}
	b := breaker.New(m.newBreaker())
	m.breakers[serviceName] = b
	return b
}

// Call checks the rate limiter (keyed by serviceName), resolves
// serviceName to a healthy instance via the balancer, then invokes fn once
// under the service's circuit breaker. fn receives the selected instance.
func (m *MeshClient) Call(ctx context.Context, serviceName, routingKey string, fn func(context.Context, registry.Instance) (any, error)) (any, error) {
	if m.Limiter != nil {
		result := m.Limiter.Check(serviceName, 1)
		if !result.Allowed {
			return nil, fmt.Errorf("kernel: mesh call to %s rate-limited, retry after %s", serviceName, result.RetryAfter)
		}
	}

	instances := m.Registry.Discover(serviceName)
	inst := m.Balancer.Select(serviceName, instances, routingKey)
	if inst == nil {
		return nil, fmt.Errorf("kernel: no healthy instance for service %s: %w", serviceName, ErrNotFound)
	}

	b := m.breakerFor(serviceName)
	return breaker.Call(b, func() (any, error) {
		return fn(ctx, *inst)
	}, nil)
}
