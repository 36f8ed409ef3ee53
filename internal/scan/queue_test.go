package scan

import (
	"fmt"
	"sort"
	"testing"
	"time"
)

// TestWorkQueueNeverLosesItems pushes 5 000 items, pops all, and verifies the
// exact sequence is returned (compaction must not drop or reorder entries).
func TestWorkQueueNeverLosesItems(t *testing.T) {
	const n = 5000
	q := newWorkQueue()

	for i := 0; i < n; i++ {
		q.Push(fmt.Sprintf("file%04d", i))
	}
	q.Close()

	var got []string
	for {
		item, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, item)
	}

	if len(got) != n {
		t.Fatalf("got %d items, want %d", len(got), n)
	}
	if !sort.StringsAreSorted(got) {
		t.Error("items were not returned in FIFO order")
	}
	if q.Pushed() != n {
		t.Errorf("Pushed: got %d, want %d", q.Pushed(), n)
	}
}

// TestWorkQueueCompactionBoundsMemory interleaves push/pop batches and verifies
// the backing slice doesn't grow to the total number of historical pushes.
func TestWorkQueueCompactionBoundsMemory(t *testing.T) {
	const batchSize = 2000
	const batches = 5 // total pushes = 10 000
	q := newWorkQueue()

	for b := 0; b < batches; b++ {
		for i := 0; i < batchSize; i++ {
			q.Push(fmt.Sprintf("f%d_%04d", b, i))
		}
		for i := 0; i < batchSize; i++ {
			if _, ok := q.Pop(); !ok {
				t.Fatal("queue closed unexpectedly during drain")
			}
		}
	}

	q.mu.Lock()
	remaining := len(q.items) - q.head
	totalCap := cap(q.items)
	q.mu.Unlock()

	if remaining != 0 {
		t.Errorf("expected empty queue after full drain, got %d remaining items", remaining)
	}
	if totalPushes := batchSize * batches; totalCap >= totalPushes {
		t.Errorf("backing array capacity %d >= total pushes %d, compaction not releasing memory",
			totalCap, totalPushes)
	}
}

// TestWorkQueuePopBlocksUntilClose verifies an empty open queue blocks and
// that Close releases the waiter with ok=false.
func TestWorkQueuePopBlocksUntilClose(t *testing.T) {
	q := newWorkQueue()
	done := make(chan bool)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	select {
	case <-done:
		t.Fatal("Pop returned on an empty open queue")
	case <-time.After(50 * time.Millisecond):
	}

	q.Close()
	select {
	case ok := <-done:
		if ok {
			t.Error("Pop on closed empty queue returned ok=true")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Pop did not return after Close")
	}
}

// TestWorkQueueDrainsAfterClose verifies items pushed before Close are still
// delivered, and pushes after Close are dropped.
func TestWorkQueueDrainsAfterClose(t *testing.T) {
	q := newWorkQueue()
	q.Push("a")
	q.Push("b")
	q.Close()
	q.Push("c")

	var got []string
	for {
		item, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, item)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("got %v, want [a b]", got)
	}
}
