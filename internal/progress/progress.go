// Package progress merges progress from independently sized work queues into one figure.
package progress

import (
	"sort"
	"sync"
)

// Tracker is one queue's progress.
type Tracker struct {
	ID      string
	Max     int
	Current int
}

// Complete reports whether the queue has finished.
func (t Tracker) Complete() bool {
	return t.Current >= t.Max
}

// Fraction returns progress in 0..1. Empty queues count as complete.
func (t Tracker) Fraction() float64 {
	if t.Max <= 0 {
		return 1
	}

	if t.Current <= 0 {
		return 0
	}

	return min(1, float64(t.Current)/float64(t.Max))
}

// Aggregator averages its queues' fractions.
type Aggregator struct {
	mu     sync.Mutex
	queues map[string]*Tracker
}

// New creates an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{queues: make(map[string]*Tracker)}
}

// Track registers (or replaces) a queue of the given size.
func (a *Aggregator) Track(id string, items int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.queues[id] = &Tracker{ID: id, Max: items}
}

// SetTotal changes a queue's size without touching its count, registering it if needed.
func (a *Aggregator) SetTotal(id string, items int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.queues[id]
	if !ok {
		a.queues[id] = &Tracker{ID: id, Max: items}
		return
	}

	t.Max = items
}

// Iterate advances a queue by n. Unknown queues are ignored.
func (a *Aggregator) Iterate(id string, n int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if t, ok := a.queues[id]; ok {
		t.Current += n
	}
}

// SetCurrent sets a queue's count. Unknown queues are ignored.
func (a *Aggregator) SetCurrent(id string, n int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if t, ok := a.queues[id]; ok {
		t.Current = n
	}
}

// Tracker returns a copy of one queue.
func (a *Aggregator) Tracker(id string) (Tracker, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.queues[id]
	if !ok {
		return Tracker{}, false
	}

	return *t, true
}

// Trackers returns copies of every queue ordered by id.
func (a *Aggregator) Trackers() []Tracker {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Tracker, 0, len(a.queues))
	for _, t := range a.queues {
		out = append(out, *t)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// Progress returns the mean fraction across queues, or 0 when nothing is tracked.
func (a *Aggregator) Progress() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.queues) == 0 {
		return 0
	}

	var sum float64
	for _, t := range a.queues {
		sum += t.Fraction()
	}

	return sum / float64(len(a.queues))
}

// Complete reports whether every queue has finished.
func (a *Aggregator) Complete() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, t := range a.queues {
		if !t.Complete() {
			return false
		}
	}

	return true
}

// Reset forgets every queue.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.queues = make(map[string]*Tracker)
}
