package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nameearly/agentkernel/kernel"
	"github.com/nameearly/agentkernel/queue"
)

// TickInterval is the scheduler's cooperative loop period, per spec.
const TickInterval = 100 * time.Millisecond

// Callable is the unit of work a scheduled task runs. It is wrapped and
// pushed as a *queue.Task payload; a consumer (typically pool.Pool's
// TaskFunc) type-asserts the payload back to this signature and invokes
// it.
type Callable func(ctx context.Context) error

// ScheduledTask is one entry in the scheduler's table.
type ScheduledTask struct {
	ID                     string
	Name                   string
	Callable               Callable
	Priority               int
	Dependencies           []string
	Trigger                Trigger
	NextRunAt              time.Time
	Enabled                bool
	ConsecutiveFailures    int
	MaxConsecutiveFailures int
}

// Store persists scheduled task definitions so they survive a restart.
type Store interface {
	SaveTask(ScheduledTask) error
	DeleteTask(id string) error
	LoadAll() ([]ScheduledTask, error)
}

// Scheduler is the single cooperative loop described in spec.md §4.10: it
// ticks every TickInterval, advancing due, dependency-satisfied tasks into
// a priority task queue.
type Scheduler struct {
	mu        sync.Mutex
	tasks     map[string]*ScheduledTask
	completed map[string]bool

	q     *queue.Queue
	store Store

	cancel context.CancelFunc
}

// New creates a scheduler that pushes due work onto q. Pass a non-nil
// store to persist task definitions across restarts; New loads any it
// finds.
func New(q *queue.Queue, store Store) *Scheduler {
	s := &Scheduler{
		tasks:     make(map[string]*ScheduledTask),
		completed: make(map[string]bool),
		q:         q,
		store:     store,
	}
	if store != nil {
		if tasks, err := store.LoadAll(); err == nil {
			for _, t := range tasks {
				task := t
				s.tasks[task.ID] = &task
			}
		} else {
			log.Printf("scheduler: load persisted tasks failed: %v", err)
		}
	}
	return s
}

// AddTask registers task, computing its first NextRunAt from now if unset.
func (s *Scheduler) AddTask(task ScheduledTask) error {
	if task.MaxConsecutiveFailures == 0 {
		task.MaxConsecutiveFailures = 3
	}
	if task.NextRunAt.IsZero() {
		next, err := task.Trigger.Next(time.Now())
		if err != nil {
			return err
		}
		task.NextRunAt = next
	}
	task.Enabled = true

	s.mu.Lock()
	s.tasks[task.ID] = &task
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.SaveTask(task); err != nil {
			log.Printf("scheduler: persist task %s failed: %v", task.ID, err)
		}
	}
	return nil
}

// RemoveTask deletes a scheduled task by id.
func (s *Scheduler) RemoveTask(id string) error {
	s.mu.Lock()
	_, ok := s.tasks[id]
	if ok {
		delete(s.tasks, id)
	}
	s.mu.Unlock()
	if !ok {
		return kernel.ErrNotFound
	}
	if s.store != nil {
		if err := s.store.DeleteTask(id); err != nil {
			log.Printf("scheduler: delete persisted task %s failed: %v", id, err)
		}
	}
	return nil
}

// Enable flips a task back on, making it eligible for the next due tick.
func (s *Scheduler) Enable(id string) error {
	return s.setEnabled(id, true)
}

// Disable flips a task off; it is skipped by tick until re-enabled, but
// remains registered (RemoveTask is required to forget it entirely).
func (s *Scheduler) Disable(id string) error {
	return s.setEnabled(id, false)
}

func (s *Scheduler) setEnabled(id string, enabled bool) error {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return kernel.ErrNotFound
	}
	t.Enabled = enabled
	snapshot := *t
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.SaveTask(snapshot); err != nil {
			log.Printf("scheduler: persist task %s failed: %v", id, err)
		}
	}
	return nil
}

// RunNow fires id immediately, outside the tick loop, regardless of its
// NextRunAt or dependency state. It still reschedules NextRunAt and
// records the result exactly as a normal tick-triggered fire would.
func (s *Scheduler) RunNow(id string) error {
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return kernel.ErrNotFound
	}
	s.fire(t, time.Now())
	return nil
}

// Start launches the scheduler's background tick loop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.loop(ctx)
}

// Stop cancels the tick loop.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(time.Now())
		}
	}
}

// tick advances every enabled, dependency-satisfied, due task.
func (s *Scheduler) tick(now time.Time) {
	s.mu.Lock()
	var due []*ScheduledTask
	for _, t := range s.tasks {
		if !t.Enabled {
			continue
		}
		if now.Before(t.NextRunAt) {
			continue
		}
		if !s.dependenciesSatisfiedLocked(t) {
			continue
		}
		due = append(due, t)
	}
	s.mu.Unlock()

	for _, t := range due {
		s.fire(t, now)
	}
}

func (s *Scheduler) dependenciesSatisfiedLocked(t *ScheduledTask) bool {
	for _, dep := range t.Dependencies {
		if !s.completed[dep] {
			return false
		}
	}
	return true
}

func (s *Scheduler) fire(t *ScheduledTask, now time.Time) {
	next, err := t.Trigger.Next(now)
	if err != nil {
		log.Printf("scheduler: task %s trigger error: %v", t.ID, err)
		return
	}

	s.mu.Lock()
	t.NextRunAt = next
	if t.Trigger.Kind == TriggerOneShot {
		t.Enabled = false
	}
	s.mu.Unlock()

	callable := t.Callable
	id := t.ID
	priority := t.Priority
	wrapped := func(ctx context.Context) error {
		err := callable(ctx)
		s.recordResult(id, err)
		return err
	}
	s.q.Enqueue(&queue.Task{ID: fmt.Sprintf("sched-%s-%d", id, now.UnixNano()), Payload: Callable(wrapped), Priority: priority})
}

func (s *Scheduler) recordResult(taskID string, execErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return
	}
	if execErr != nil {
		t.ConsecutiveFailures++
		if t.ConsecutiveFailures >= t.MaxConsecutiveFailures {
			t.Enabled = false
			log.Printf("scheduler: task %s disabled after %d consecutive failures", taskID, t.ConsecutiveFailures)
		}
		return
	}
	t.ConsecutiveFailures = 0
	s.completed[taskID] = true
}

// Get returns a shallow copy of a scheduled task's current state.
func (s *Scheduler) Get(id string) (ScheduledTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return ScheduledTask{}, false
	}
	return *t, true
}
