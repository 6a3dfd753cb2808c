package queue

import "container/heap"

// readyHeap orders items that are eligible for dequeue: strict priority first,
// then FIFO by creation time, then insertion sequence as the final tiebreak.
type readyHeap []*Item

func (h readyHeap) Len() int { return len(h) }

func (h readyHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	if !h[i].CreatedAt.Equal(h[j].CreatedAt) {
		return h[i].CreatedAt.Before(h[j].CreatedAt)
	}
	return h[i].seq < h[j].seq
}

func (h readyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *readyHeap) Push(x any) { *h = append(*h, x.(*Item)) }

func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// delayedHeap orders retry-scheduled items by due time. Items here are
// invisible to Dequeue until promoted to the ready heap.
type delayedHeap []*Item

func (h delayedHeap) Len() int { return len(h) }

func (h delayedHeap) Less(i, j int) bool {
	if !h[i].DueAt.Equal(h[j].DueAt) {
		return h[i].DueAt.Before(h[j].DueAt)
	}
	return h[i].seq < h[j].seq
}

func (h delayedHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *delayedHeap) Push(x any) { *h = append(*h, x.(*Item)) }

func (h *delayedHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

func removeFromReady(h *readyHeap, id string) bool {
	for idx, item := range *h {
		if item.ID == id {
			heap.Remove(h, idx)
			return true
		}
	}
	return false
}

func removeFromDelayed(h *delayedHeap, id string) bool {
	for idx, item := range *h {
		if item.ID == id {
			heap.Remove(h, idx)
			return true
		}
	}
	return false
}
