// Package registry implements the kernel's service registry: instance
// bookkeeping with heartbeat-driven expiry and event notifications.
// Grounded on the teacher's control_plane/store in-memory bookkeeping
// shape (map-of-structs guarded by one mutex, deep-copy on read) with
// heartbeat expiry reaped lazily the same way lock.InMemoryManager reaps
// expired leases, rather than a background timer.
package registry

import (
	"log"
	"sync"
	"time"
)

// EventCallback receives registry notifications outside the registry's
// lock, isolated by a recover boundary.
type EventCallback func(Event)

// Registry is the in-process default service registry backend.
type Registry struct {
	mu               sync.Mutex
	instances        map[string]*Instance
	byService        map[string]map[string]struct{}
	heartbeatTimeout time.Duration
	callbacks        []EventCallback
}

// New creates a registry that expires an instance once its last heartbeat
// is older than heartbeatTimeout. heartbeatTimeout <= 0 disables expiry.
func New(heartbeatTimeout time.Duration) *Registry {
	return &Registry{
		instances:        make(map[string]*Instance),
		byService:        make(map[string]map[string]struct{}),
		heartbeatTimeout: heartbeatTimeout,
	}
}

// OnEvent registers a callback invoked for every register/deregister/
// status-change event.
func (r *Registry) OnEvent(cb EventCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

func (r *Registry) fire(events ...Event) {
	r.mu.Lock()
	callbacks := append([]EventCallback(nil), r.callbacks...)
	r.mu.Unlock()

	for _, ev := range events {
		for _, cb := range callbacks {
			func() {
				defer func() {
					if rec := recover(); rec != nil {
						log.Printf("registry: event callback panicked: %v", rec)
					}
				}()
				cb(ev)
			}()
		}
	}
}

// Register adds or replaces an instance, stamping LastHeartbeat with now if
// it was left zero.
func (r *Registry) Register(inst Instance) {
	if inst.LastHeartbeat.IsZero() {
		inst.LastHeartbeat = time.Now()
	}

	r.mu.Lock()
	r.instances[inst.ID] = &inst
	if r.byService[inst.ServiceName] == nil {
		r.byService[inst.ServiceName] = make(map[string]struct{})
	}
	r.byService[inst.ServiceName][inst.ID] = struct{}{}
	r.mu.Unlock()

	r.fire(Event{Type: EventRegister, Instance: inst})
}

// Deregister removes an instance by id.
func (r *Registry) Deregister(id string) bool {
	r.mu.Lock()
	inst, ok := r.instances[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.instances, id)
	delete(r.byService[inst.ServiceName], id)
	snapshot := *inst
	r.mu.Unlock()

	r.fire(Event{Type: EventDeregister, Instance: snapshot})
	return true
}

// reapExpiredLocked removes every instance of serviceName whose heartbeat
// has lapsed, returning their snapshots for event firing after unlock.
// Must be called with r.mu held.
func (r *Registry) reapExpiredLocked(serviceName string, now time.Time) []Instance {
	if r.heartbeatTimeout <= 0 {
		return nil
	}
	var expired []Instance
	for id := range r.byService[serviceName] {
		inst := r.instances[id]
		if inst != nil && now.Sub(inst.LastHeartbeat) > r.heartbeatTimeout {
			expired = append(expired, *inst)
			delete(r.instances, id)
			delete(r.byService[serviceName], id)
		}
	}
	return expired
}

// Discover returns every Healthy, unexpired instance of serviceName.
func (r *Registry) Discover(serviceName string) []Instance {
	now := time.Now()

	r.mu.Lock()
	expired := r.reapExpiredLocked(serviceName, now)

	var out []Instance
	for id := range r.byService[serviceName] {
		inst := r.instances[id]
		if inst != nil && inst.Status == Healthy {
			out = append(out, *inst)
		}
	}
	r.mu.Unlock()

	for _, inst := range expired {
		r.fire(Event{Type: EventDeregister, Instance: inst})
	}
	return out
}

// UpdateHeartbeat refreshes an instance's last-heartbeat timestamp.
func (r *Registry) UpdateHeartbeat(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return false
	}
	inst.LastHeartbeat = time.Now()
	return true
}

// UpdateStatus changes an instance's health status, firing a status-change
// event if it actually changed.
func (r *Registry) UpdateStatus(id string, status Status) bool {
	r.mu.Lock()
	inst, ok := r.instances[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	changed := inst.Status != status
	inst.Status = status
	snapshot := *inst
	r.mu.Unlock()

	if changed {
		r.fire(Event{Type: EventStatusChange, Instance: snapshot})
	}
	return true
}

// RecordConnection increments an instance's active-connection count.
func (r *Registry) RecordConnection(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[id]; ok {
		inst.ActiveConnections++
	}
}

// ReleaseConnection decrements an instance's active-connection count,
// floored at zero.
func (r *Registry) ReleaseConnection(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[id]; ok && inst.ActiveConnections > 0 {
		inst.ActiveConnections--
	}
}

// Get returns a single instance by id.
func (r *Registry) Get(id string) (Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return Instance{}, false
	}
	return *inst, true
}
