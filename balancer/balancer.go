// Package balancer implements the kernel's load-balancing strategies over
// registry.Instance lists: round-robin, random, weighted, least-connections
// and consistent-hash. Grounded on the teacher's dispatch-selection style
// in control_plane/scheduler (a small stateful selector guarded by its own
// mutex, no shared state with the registry it reads from).
package balancer

import (
	"hash/fnv"
	"math/big"
	"math/rand"
	"sync"

	"github.com/nameearly/agentkernel/registry"
)

// Strategy selects which algorithm Select uses.
type Strategy int

const (
	RoundRobin Strategy = iota
	Random
	Weighted
	LeastConnections
	ConsistentHash
)

// Balancer picks one instance from a candidate list per call. Round-robin
// state is keyed per service name so independent services don't share an
// index.
type Balancer struct {
	strategy Strategy

	mu      sync.Mutex
	rrIndex map[string]int
	rng     *rand.Rand
}

// New creates a Balancer using strategy.
func New(strategy Strategy) *Balancer {
	return &Balancer{
		strategy: strategy,
		rrIndex:  make(map[string]int),
		rng:      rand.New(rand.NewSource(1)),
	}
}

func healthyOf(instances []registry.Instance) []registry.Instance {
	out := make([]registry.Instance, 0, len(instances))
	for _, inst := range instances {
		if inst.Status == registry.Healthy {
			out = append(out, inst)
		}
	}
	return out
}

// Select returns the chosen instance for serviceName from instances, or
// nil if the candidate list is empty or every instance is unhealthy. key
// is only consulted by the ConsistentHash strategy.
func (b *Balancer) Select(serviceName string, instances []registry.Instance, key string) *registry.Instance {
	healthy := healthyOf(instances)
	if len(healthy) == 0 {
		return nil
	}

	switch b.strategy {
	case RoundRobin:
		return b.selectRoundRobin(serviceName, healthy)
	case Random:
		return b.selectRandom(healthy)
	case Weighted:
		return b.selectWeighted(healthy)
	case LeastConnections:
		return selectLeastConnections(healthy)
	case ConsistentHash:
		return selectConsistentHash(key, healthy)
	default:
		return nil
	}
}

func (b *Balancer) selectRoundRobin(serviceName string, healthy []registry.Instance) *registry.Instance {
	b.mu.Lock()
	idx := b.rrIndex[serviceName] % len(healthy)
	b.rrIndex[serviceName] = idx + 1
	b.mu.Unlock()
	inst := healthy[idx]
	return &inst
}

func (b *Balancer) selectRandom(healthy []registry.Instance) *registry.Instance {
	b.mu.Lock()
	idx := b.rng.Intn(len(healthy))
	b.mu.Unlock()
	inst := healthy[idx]
	return &inst
}

func (b *Balancer) selectWeighted(healthy []registry.Instance) *registry.Instance {
	total := 0
	for _, inst := range healthy {
		total += inst.Weight
	}
	if total <= 0 {
		return b.selectRandom(healthy)
	}

	b.mu.Lock()
	target := b.rng.Intn(total)
	b.mu.Unlock()

	cumulative := 0
	for _, inst := range healthy {
		cumulative += inst.Weight
		if target < cumulative {
			return &inst
		}
	}
	return &healthy[len(healthy)-1]
}

func selectLeastConnections(healthy []registry.Instance) *registry.Instance {
	best := healthy[0]
	for _, inst := range healthy[1:] {
		if inst.ActiveConnections < best.ActiveConnections {
			best = inst
		}
	}
	return &best
}

var ring128 = new(big.Int).Lsh(big.NewInt(1), 128)

func hash128(s string) *big.Int {
	h := fnv.New128a()
	h.Write([]byte(s))
	return new(big.Int).SetBytes(h.Sum(nil))
}

// wrappingDistance returns how far forward (mod 2^128) you travel from
// keyHash to instHash around the ring.
func wrappingDistance(keyHash, instHash *big.Int) *big.Int {
	if instHash.Cmp(keyHash) >= 0 {
		return new(big.Int).Sub(instHash, keyHash)
	}
	d := new(big.Int).Sub(ring128, keyHash)
	return d.Add(d, instHash)
}

func selectConsistentHash(key string, healthy []registry.Instance) *registry.Instance {
	keyHash := hash128(key)

	best := healthy[0]
	bestDist := wrappingDistance(keyHash, hash128(best.ID))
	for _, inst := range healthy[1:] {
		dist := wrappingDistance(keyHash, hash128(inst.ID))
		if dist.Cmp(bestDist) < 0 {
			best = inst
			bestDist = dist
		}
	}
	return &best
}
