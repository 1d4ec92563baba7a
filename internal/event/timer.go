package event

import "time"

// timerEntry is one pending one-shot timer, ordered by deadline.
type timerEntry struct {
	id       int
	deadline time.Time
	cb       func()
}

// timerQueue is a container/heap.Interface min-heap over deadlines. This
// daemon only ever has O(1) timers live at once (the accept-pause timer,
// per-track position ticks), so a heap is both correct and proportionate.
type timerQueue []*timerEntry

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool { return q[i].deadline.Before(q[j].deadline) }

func (q timerQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *timerQueue) Push(x any) {
	*q = append(*q, x.(*timerEntry))
}

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	*q = old[:n-1]
	return e
}
