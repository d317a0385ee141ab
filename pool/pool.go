// Package pool implements the kernel's worker pool: agent lifecycle,
// priority-aware task dispatch, health monitoring, and load-based
// auto-scaling. Grounded on the teacher's control_plane/scheduler.Scheduler
// (100ms-ticker worker loop feeding a ThreadSafeQueue) and
// coordination/agent_monitor.go's separate ticker-driven liveness sweep,
// generalized from "one reconciler" to a configurable pool of agents with
// three dispatch strategies.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nameearly/agentkernel/kernel"
	"github.com/nameearly/agentkernel/queue"
)

// Strategy selects which eligible agent receives a dequeued task.
type Strategy int

const (
	LeastConnections Strategy = iota
	RoundRobin
	PriorityAware
)

// TaskFunc executes one task's payload on behalf of an agent.
type TaskFunc func(ctx context.Context, payload any) error

// AgentInitializer prepares an agent for service, called on creation and
// again on health-triggered recovery.
type AgentInitializer func(*Agent) error

// HealthProbe reports whether agent is currently healthy.
type HealthProbe func(*Agent) bool

// ResourceSampler reports process-wide CPU utilization (0-100) used for
// the auto-scale decision. A nil sampler disables the CPU leg of scaling.
type ResourceSampler func() float64

// Config configures pool sizing, scaling thresholds, and dispatch policy.
type Config struct {
	MinSize                 int
	MaxSize                 int
	AutoScaleInterval       time.Duration
	MaxConsecutiveFailures  int
	HighCPUWatermark        float64
	ScaleDownLoadThreshold  float64
	Strategy                Strategy
}

// DefaultConfig mirrors the thresholds spec.md §4.2 names explicitly.
func DefaultConfig() Config {
	return Config{
		MinSize:                1,
		MaxSize:                8,
		AutoScaleInterval:      time.Second,
		MaxConsecutiveFailures: 3,
		HighCPUWatermark:       80,
		ScaleDownLoadThreshold: 0.3,
		Strategy:               LeastConnections,
	}
}

// Stats is a point-in-time snapshot of pool health.
type Stats struct {
	Size        int
	Available   int
	Busy        int
	Processed   int64
	Failed      int64
	SuccessRate float64
	Uptime      time.Duration
}

// Pool owns a set of agents and dispatches prioritized tasks to them.
type Pool struct {
	cfg      Config
	run      TaskFunc
	init     AgentInitializer
	probe    HealthProbe
	sampler  ResourceSampler

	mu        sync.Mutex
	agents    map[string]*Agent
	order     []string // insertion order: round-robin cursor base, scale-down candidate scan
	rrIndex   int
	q         *queue.Queue
	held      []*queue.Task // undispatchable tasks, in original dequeue order; drained by retryHeld
	processed int64
	failed    int64
	startedAt time.Time
	started   bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an unstarted pool. run executes a task's payload; init
// prepares (or re-prepares, on recovery) an agent; probe reports agent
// health each monitor tick; sampler (optional) feeds the CPU leg of
// auto-scaling.
func New(cfg Config, run TaskFunc, init AgentInitializer, probe HealthProbe, sampler ResourceSampler) *Pool {
	return &Pool{
		cfg:     cfg,
		run:     run,
		init:    init,
		probe:   probe,
		sampler: sampler,
		agents:  make(map[string]*Agent),
		q:       queue.New(),
	}
}

// Start creates min-size agents and launches the background monitor.
func (p *Pool) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.startedAt = time.Now()
	for i := 0; i < p.cfg.MinSize; i++ {
		p.spawnAgentLocked(2)
	}
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.dispatchLoop(ctx)
	go p.monitorLoop(ctx)
}

// Stop drains the pool: stop accepting dispatch, cancel the monitor, best
// effort stop every agent.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	for _, a := range p.agents {
		a.setState(Stopping)
	}
	for _, a := range p.agents {
		a.setState(Stopped)
	}
	p.agents = make(map[string]*Agent)
	p.order = nil
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Pool) spawnAgentLocked(priorityClass int) *Agent {
	id := uuid.NewString()
	a := NewAgent(id, priorityClass, ResourceLimits{})
	a.setState(Initializing)
	p.agents[id] = a
	p.order = append(p.order, id)

	go func() {
		if err := p.init(a); err != nil {
			a.setState(Failed)
			return
		}
		a.setState(Idle)
	}()
	return a
}

// AddAgent inserts a new agent if the pool has room.
func (p *Pool) AddAgent(priorityClass int, limits ResourceLimits) (*Agent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.agents) >= p.cfg.MaxSize {
		return nil, kernel.ErrFull
	}
	a := p.spawnAgentLocked(priorityClass)
	a.Limits = limits
	return a, nil
}

// RemoveAgent removes an agent by id.
func (p *Pool) RemoveAgent(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeAgentLocked(id)
}

func (p *Pool) removeAgentLocked(id string) error {
	if _, ok := p.agents[id]; !ok {
		return kernel.ErrNotFound
	}
	delete(p.agents, id)
	for i, oid := range p.order {
		if oid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return nil
}

// SubmitTask enqueues payload into the priority task queue and returns its
// task-id.
func (p *Pool) SubmitTask(payload any, priority int) string {
	id := uuid.NewString()
	p.q.Enqueue(&queue.Task{ID: id, Payload: payload, Priority: priority})
	return id
}

// Stats reports current pool health.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	available, busy := 0, 0
	for _, a := range p.agents {
		switch a.State() {
		case Idle, Running:
			available++
		case Busy:
			busy++
		}
	}
	total := p.processed + p.failed
	rate := 1.0
	if total > 0 {
		rate = float64(p.processed) / float64(total)
	}
	uptime := time.Duration(0)
	if p.started {
		uptime = time.Since(p.startedAt)
	}
	return Stats{
		Size:        len(p.agents),
		Available:   available,
		Busy:        busy,
		Processed:   p.processed,
		Failed:      p.failed,
		SuccessRate: rate,
		Uptime:      uptime,
	}
}

func (p *Pool) dispatchLoop(ctx context.Context) {
	for {
		task, ok := p.q.Dequeue(ctx, true)
		if !ok {
			return
		}
		p.attemptDispatch(task)
	}
}

// attemptDispatch tries to hand task to an eligible agent; if none exists
// it is appended to held (not re-enqueued), preserving its position among
// other held tasks for the next monitor tick's retry.
func (p *Pool) attemptDispatch(task *queue.Task) {
	p.mu.Lock()
	agent := p.selectAgentLocked(task)
	if agent == nil {
		p.held = append(p.held, task)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.runOnAgent(agent, task)
}

// retryHeld attempts every held task, in the order it was originally
// dequeued, against the pool's current agent state. Tasks that still have
// no eligible agent stay held, ahead of anything newly held while this
// drain was running.
func (p *Pool) retryHeld() {
	p.mu.Lock()
	pending := p.held
	p.held = nil
	p.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	var stillHeld []*queue.Task
	for _, task := range pending {
		p.mu.Lock()
		agent := p.selectAgentLocked(task)
		p.mu.Unlock()
		if agent == nil {
			stillHeld = append(stillHeld, task)
			continue
		}
		p.runOnAgent(agent, task)
	}

	if len(stillHeld) > 0 {
		p.mu.Lock()
		p.held = append(stillHeld, p.held...)
		p.mu.Unlock()
	}
}

// selectAgentLocked implements the three dispatch algorithms over agents in
// {Idle, Running, Busy} that still have spare concurrency and whose
// resource envelope isn't exceeded. Must be called with p.mu held.
func (p *Pool) selectAgentLocked(task *queue.Task) *Agent {
	var eligible []*Agent
	for _, id := range p.order {
		a := p.agents[id]
		if a == nil {
			continue
		}
		switch a.State() {
		case Idle, Running, Busy:
		default:
			continue
		}
		if !a.HasCapacity() {
			continue
		}
		if !a.WithinEnvelope() {
			continue
		}
		if p.cfg.Strategy == PriorityAware && a.PriorityClass > task.Priority {
			continue
		}
		eligible = append(eligible, a)
	}
	if len(eligible) == 0 {
		return nil
	}

	switch p.cfg.Strategy {
	case RoundRobin:
		a := eligible[p.rrIndex%len(eligible)]
		p.rrIndex++
		return a
	default: // LeastConnections and PriorityAware (least-connections among eligible)
		best := eligible[0]
		for _, a := range eligible[1:] {
			if a.CurrentLoad() < best.CurrentLoad() {
				best = a
			}
		}
		return best
	}
}

func (p *Pool) runOnAgent(agent *Agent, task *queue.Task) {
	agent.acceptTask(task.ID, task.Payload)
	go func() {
		err := p.run(context.Background(), task.Payload)
		agent.completeTask(task.ID)

		p.mu.Lock()
		if err != nil {
			p.failed++
		} else {
			p.processed++
		}
		p.mu.Unlock()
	}()
}

func (p *Pool) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.AutoScaleInterval)
	defer ticker.Stop()
	defer close(p.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.checkHealth()
			p.autoScale()
			p.retryHeld()
		}
	}
}

func (p *Pool) checkHealth() {
	p.mu.Lock()
	var toProbe []*Agent
	for _, a := range p.agents {
		switch a.State() {
		case Running, Idle:
			toProbe = append(toProbe, a)
		}
	}
	p.mu.Unlock()

	for _, a := range toProbe {
		if p.probe == nil || p.probe(a) {
			continue
		}
		failures := a.recordFailure()
		if failures < p.cfg.MaxConsecutiveFailures {
			continue
		}
		if err := p.init(a); err != nil {
			a.setState(Failed)
			p.mu.Lock()
			p.removeAgentLocked(a.ID)
			p.mu.Unlock()
			continue
		}
		a.resetFailures()
		a.setState(Idle)
	}
}

func (p *Pool) autoScale() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.agents) == 0 {
		return
	}
	totalLoad := 0
	for _, a := range p.agents {
		totalLoad += a.CurrentLoad()
	}
	avgLoad := float64(totalLoad) / float64(len(p.agents))

	cpu := 0.0
	if p.sampler != nil {
		cpu = p.sampler()
	}

	if len(p.agents) < p.cfg.MaxSize && (cpu > p.cfg.HighCPUWatermark || avgLoad > float64(p.cfg.MinSize)) {
		p.spawnAgentLocked(2)
		return
	}

	if len(p.agents) > p.cfg.MinSize && avgLoad < p.cfg.ScaleDownLoadThreshold {
		victimID := p.scaleDownVictimLocked()
		if victimID != "" {
			p.agents[victimID].setState(Stopped)
			p.removeAgentLocked(victimID)
		}
	}
}

// scaleDownVictimLocked picks the lowest-priority (highest PriorityClass
// number), zero-load agent. Must be called with p.mu held.
func (p *Pool) scaleDownVictimLocked() string {
	var victim *Agent
	for _, id := range p.order {
		a := p.agents[id]
		if a == nil || a.CurrentLoad() != 0 {
			continue
		}
		if victim == nil || a.PriorityClass > victim.PriorityClass {
			victim = a
		}
	}
	if victim == nil {
		return ""
	}
	return victim.ID
}

func (s Strategy) String() string {
	switch s {
	case LeastConnections:
		return "least_connections"
	case RoundRobin:
		return "round_robin"
	case PriorityAware:
		return "priority_aware"
	default:
		return "unknown"
	}
}
