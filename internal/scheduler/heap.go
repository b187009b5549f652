package scheduler

import "container/heap"

// readyItem is one node waiting in the ready heap.
type readyItem struct {
	node     int
	priority int64
	// seq is the insertion sequence number, used to break priority ties
	// FIFO (Design Notes / SPEC_FULL.md section 9 open question: ties are
	// resolved by heap insertion order).
	seq int
}

// readyHeap is a binary max-heap ordered by (priority desc, seq asc),
// implementing container/heap.Interface the way the standard library
// examples and the rest of the ecosystem do it (see moby-moby's
// container/heap-based work queues).
type readyHeap []readyItem

func (h readyHeap) Len() int { return len(h) }

func (h readyHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h readyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *readyHeap) Push(x any) {
	*h = append(*h, x.(readyItem))
}

func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

var _ heap.Interface = (*readyHeap)(nil)
