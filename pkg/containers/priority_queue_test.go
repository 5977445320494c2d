package containers

import (
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/Faultbox/vrmslim/pkg/invariant"
)

func TestPriorityQueueOrdering(t *testing.T) {
	pq := NewPriorityQueue[string](4)
	pq.Insert("A", 5)
	pq.Insert("C", 1)
	pq.Insert("B", 2)

	want := []Item[string]{{"C", 1}, {"B", 2}, {"A", 5}}
	for i, w := range want {
		if pq.Len() != len(want)-i {
			t.Fatalf("Len() = %d, want %d", pq.Len(), len(want)-i)
		}
		got, err := pq.PopMin()
		if err != nil {
			t.Fatalf("PopMin() error: %v", err)
		}
		if got != w {
			t.Errorf("PopMin() = %v, want %v", got, w)
		}
	}
	if pq.Len() != 0 {
		t.Errorf("Len() = %d, want 0", pq.Len())
	}
}

func TestPriorityQueuePopEmpty(t *testing.T) {
	pq := NewPriorityQueue[int](0)
	if _, err := pq.PopMin(); !errors.Is(err, invariant.ErrViolation) {
		t.Errorf("expected invariant violation, got %v", err)
	}
	if _, err := pq.Peek(); !errors.Is(err, invariant.ErrViolation) {
		t.Errorf("expected invariant violation, got %v", err)
	}
}

func TestPriorityQueueDuplicateKeys(t *testing.T) {
	pq := NewPriorityQueue[string](4)
	pq.Insert("x", 3)
	pq.Insert("x", 1)
	pq.Insert("y", 2)

	var got []float64
	for !pq.IsEmpty() {
		item, _ := pq.PopMin()
		got = append(got, item.Priority)
	}
	want := []float64{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pop order %v, want %v", got, want)
		}
	}
}

func TestPriorityQueueDecreasePriority(t *testing.T) {
	pq := NewPriorityQueue[int](8)
	for i := 0; i < 8; i++ {
		pq.Insert(i, float64(10+i))
	}

	if !pq.DecreasePriority(7, 1) {
		t.Fatal("DecreasePriority(7) should succeed")
	}
	if pq.DecreasePriority(3, 50) {
		t.Error("DecreasePriority must ignore increases")
	}
	if pq.DecreasePriority(99, 0) {
		t.Error("DecreasePriority on a missing key should report false")
	}

	top, _ := pq.PopMin()
	if top.Key != 7 || top.Priority != 1 {
		t.Errorf("PopMin() = %v, want {7 1}", top)
	}
}

func TestPriorityQueueUpdate(t *testing.T) {
	pq := NewPriorityQueue[int](4)
	pq.Insert(1, 1)
	pq.Insert(2, 2)
	pq.Insert(3, 3)

	if !pq.Update(1, 10) {
		t.Fatal("Update(1) should succeed")
	}
	top, _ := pq.PopMin()
	if top.Key != 2 {
		t.Errorf("after raising key 1, PopMin() = %v, want key 2", top)
	}

	// Popped keys can no longer be updated.
	if pq.Update(2, 0) {
		t.Error("Update on a popped key should report false")
	}
}

func TestPriorityQueueRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pq := NewPriorityQueue[int](256)
	priorities := make(map[int]float64)

	for i := 0; i < 256; i++ {
		p := rng.Float64() * 100
		pq.Insert(i, p)
		priorities[i] = p
	}
	for i := 0; i < 64; i++ {
		k := rng.Intn(256)
		p := rng.Float64() * 100
		pq.Update(k, p)
		priorities[k] = p
	}

	want := make([]float64, 0, len(priorities))
	for _, p := range priorities {
		want = append(want, p)
	}
	sort.Float64s(want)

	for i, w := range want {
		item, err := pq.PopMin()
		if err != nil {
			t.Fatalf("PopMin() error: %v", err)
		}
		if item.Priority != w {
			t.Fatalf("pop %d: priority %v, want %v", i, item.Priority, w)
		}
	}
}
