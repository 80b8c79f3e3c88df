package microio

import (
	"container/heap"
	"time"
)

// timerEntry is one pending Sleep suspension: task is resumed once now has
// reached deadline. seq is assigned at push time and used only to break
// ties between equal deadlines, so the heap never compares task handles.
type timerEntry struct {
	deadline time.Time
	seq      uint64
	task     *Task
}

// timerHeap is a min-heap of timerEntry ordered by (deadline, seq),
// implementing [heap.Interface].
type timerHeap []timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(timerEntry))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

// earliest returns the top entry without popping it, and whether the heap
// is non-empty.
func (h timerHeap) earliest() (timerEntry, bool) {
	if len(h) == 0 {
		return timerEntry{}, false
	}
	return h[0], true
}

// push inserts entry, preserving the heap property.
func (h *timerHeap) push(entry timerEntry) {
	heap.Push(h, entry)
}

// popExpired pops and returns every entry whose deadline is <= now, in
// deadline order, draining the heap in a single pass as required by the
// scheduler's timer-expiry phase.
func (h *timerHeap) popExpired(now time.Time) []timerEntry {
	var expired []timerEntry
	for {
		top, ok := h.earliest()
		if !ok || top.deadline.After(now) {
			return expired
		}
		expired = append(expired, heap.Pop(h).(timerEntry))
	}
}
