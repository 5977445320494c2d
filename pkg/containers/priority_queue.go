// Package containers provides small generic data structures used by the
// mesh processing code.
package containers

import "github.com/Faultbox/vrmslim/pkg/invariant"

// Item is a key with its priority.
type Item[K comparable] struct {
	Key      K
	Priority float64
}

// PriorityQueue is a binary min-heap of (key, priority) pairs.
// Keys need not be unique. Ties are broken by heap position, which is
// deterministic for a given insertion sequence.
type PriorityQueue[K comparable] struct {
	items []Item[K]

	// locate caches the position of one entry per key; counts tracks how
	// many entries share the key so Update can fail fast on absent keys.
	locate map[K]int
	counts map[K]int
}

// NewPriorityQueue creates an empty queue with room for capacity items.
func NewPriorityQueue[K comparable](capacity int) *PriorityQueue[K] {
	return &PriorityQueue[K]{
		items:  make([]Item[K], 0, capacity),
		locate: make(map[K]int, capacity),
		counts: make(map[K]int, capacity),
	}
}

// Len returns the number of entries.
func (pq *PriorityQueue[K]) Len() int {
	return len(pq.items)
}

// IsEmpty checks if the queue is empty.
func (pq *PriorityQueue[K]) IsEmpty() bool {
	return len(pq.items) == 0
}

// Insert adds an entry in O(log n).
func (pq *PriorityQueue[K]) Insert(key K, priority float64) {
	pq.items = append(pq.items, Item[K]{Key: key, Priority: priority})
	i := len(pq.items) - 1
	pq.locate[key] = i
	pq.counts[key]++
	pq.siftUp(i)
}

// PopMin removes and returns the entry with the smallest priority.
// Popping an empty queue is an invariant violation.
func (pq *PriorityQueue[K]) PopMin() (Item[K], error) {
	if len(pq.items) == 0 {
		return Item[K]{}, invariant.Errorf("pop from empty priority queue")
	}

	top := pq.items[0]
	last := len(pq.items) - 1
	pq.swap(0, last)
	pq.items = pq.items[:last]

	if n := pq.counts[top.Key] - 1; n > 0 {
		pq.counts[top.Key] = n
	} else {
		delete(pq.counts, top.Key)
		delete(pq.locate, top.Key)
	}

	if len(pq.items) > 0 {
		pq.siftDown(0)
	}
	return top, nil
}

// Peek returns the minimum entry without removing it.
func (pq *PriorityQueue[K]) Peek() (Item[K], error) {
	if len(pq.items) == 0 {
		return Item[K]{}, invariant.Errorf("peek into empty priority queue")
	}
	return pq.items[0], nil
}

// Update changes the priority of an entry with the given key in place and
// restores heap order. It reports false if no entry has that key.
func (pq *PriorityQueue[K]) Update(key K, priority float64) bool {
	i, ok := pq.find(key)
	if !ok {
		return false
	}
	old := pq.items[i].Priority
	pq.items[i].Priority = priority
	switch {
	case priority < old:
		pq.siftUp(i)
	case priority > old:
		pq.siftDown(i)
	}
	return true
}

// DecreasePriority lowers the priority of an entry with the given key.
// Requests that would raise the priority are ignored. It reports whether an
// entry was changed.
func (pq *PriorityQueue[K]) DecreasePriority(key K, priority float64) bool {
	i, ok := pq.find(key)
	if !ok || priority >= pq.items[i].Priority {
		return false
	}
	pq.items[i].Priority = priority
	pq.siftUp(i)
	return true
}

func (pq *PriorityQueue[K]) find(key K) (int, bool) {
	if pq.counts[key] == 0 {
		return 0, false
	}
	if i, ok := pq.locate[key]; ok && i < len(pq.items) && pq.items[i].Key == key {
		return i, true
	}
	for i := range pq.items {
		if pq.items[i].Key == key {
			pq.locate[key] = i
			return i, true
		}
	}
	return 0, false
}

func (pq *PriorityQueue[K]) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if pq.items[parent].Priority <= pq.items[i].Priority {
			return
		}
		pq.swap(i, parent)
		i = parent
	}
}

func (pq *PriorityQueue[K]) siftDown(i int) {
	n := len(pq.items)
	for {
		smallest := i
		left, right := 2*i+1, 2*i+2
		if left < n && pq.items[left].Priority < pq.items[smallest].Priority {
			smallest = left
		}
		if right < n && pq.items[right].Priority < pq.items[smallest].Priority {
			smallest = right
		}
		if smallest == i {
			return
		}
		pq.swap(i, smallest)
		i = smallest
	}
}

func (pq *PriorityQueue[K]) swap(i, j int) {
	pq.items[i], pq.items[j] = pq.items[j], pq.items[i]
	pq.locate[pq.items[i].Key] = i
	pq.locate[pq.items[j].Key] = j
}
