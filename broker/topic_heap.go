package broker

import "container/heap"

// msgHeap implements container/heap.Interface over *Message, ordering by
// (Priority, seq) the same way queue.heapSlice does for the task queue.
type msgHeap []*Message

func (h msgHeap) Len() int { return len(h) }

func (h msgHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h msgHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *msgHeap) Push(x any) {
	*h = append(*h, x.(*Message))
}

func (h *msgHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return item
}

func newMsgHeap() *msgHeap {
	h := make(msgHeap, 0)
	heap.Init(&h)
	return &h
}
