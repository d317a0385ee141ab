// Package queue implements the kernel's process-wide priority task queue: a
// thread-safe min-heap keyed on (priority, sequence-number) so equal
// priorities resolve in strict FIFO order. Grounded on the teacher's
// control_plane/scheduler/queue.go TaskQueue/ThreadSafeQueue (container/heap
// wrapped in a sync.Mutex, PushDelayed via time.AfterFunc), with the
// teacher's wait-time aging formula dropped: spec.md's contract orders
// purely on (priority, sequence-number), no anti-starvation decay.
package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Task is one unit of work accepted by the queue. Payload is opaque to the
// queue; callers interpret it.
type Task struct {
	ID       string
	Payload  any
	Priority int // lower value dequeues first

	seq int64 // assigned on Enqueue, breaks priority ties FIFO
}

// heapSlice implements container/heap.Interface over *Task.
type heapSlice []*Task

func (h heapSlice) Len() int { return len(h) }

func (h heapSlice) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h heapSlice) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *heapSlice) Push(x any) {
	*h = append(*h, x.(*Task))
}

func (h *heapSlice) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return item
}

// Queue is a thread-safe priority queue with cooperative blocking dequeue.
type Queue struct {
	mu      sync.Mutex
	notify  chan struct{} // closed and replaced whenever an item is pushed
	heap    heapSlice
	nextSeq int64
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		heap:   make(heapSlice, 0),
		notify: make(chan struct{}),
	}
}

// Enqueue adds a task, assigning it the next monotonic sequence number.
func (q *Queue) Enqueue(task *Task) {
	q.mu.Lock()
	task.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.heap, task)
	old := q.notify
	q.notify = make(chan struct{})
	q.mu.Unlock()
	close(old)
}

// Dequeue removes and returns the highest-priority task. Without
// blocking=true it returns immediately with ok=false on an empty queue.
// With blocking=true it waits (honoring ctx cancellation) until a task is
// available.
func (q *Queue) Dequeue(ctx context.Context, blocking bool) (*Task, bool) {
	for {
		q.mu.Lock()
		if len(q.heap) > 0 {
			task := heap.Pop(&q.heap).(*Task)
			q.mu.Unlock()
			return task, true
		}
		wait := q.notify
		q.mu.Unlock()

		if !blocking {
			return nil, false
		}
		select {
		case <-wait:
			continue
		case <-ctx.Done():
			return nil, false
		}
	}
}

// Peek returns the highest-priority task without removing it.
func (q *Queue) Peek() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return nil, false
	}
	return q.heap[0], true
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// EnqueueDelayed enqueues task after delay elapses, mirroring the teacher's
// ThreadSafeQueue.PushDelayed.
func (q *Queue) EnqueueDelayed(task *Task, delay time.Duration) {
	time.AfterFunc(delay, func() {
		q.Enqueue(task)
	})
}
