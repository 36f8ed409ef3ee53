package scan

import "sync"

// workQueue is an unbounded, concurrency-safe FIFO of file paths feeding a
// single consumer. Push never blocks. Close marks the queue as permanently
// done so Pop can tell "temporarily empty" apart from "finished".
type workQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []string
	head   int // index of the next item to pop; avoids O(n) re-slicing
	closed bool
	pushed int
}

func newWorkQueue() *workQueue {
	q := &workQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues a path. Pushing to a closed queue is a no-op.
func (q *workQueue) Push(path string) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, path)
	q.pushed++
	q.mu.Unlock()
	q.cond.Signal()
}

// Pop blocks until an item is available or the queue is closed.
// Returns ("", false) when the queue is closed and empty.
func (q *workQueue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.head >= len(q.items) && !q.closed {
		q.cond.Wait()
	}
	if q.head >= len(q.items) {
		return "", false
	}
	item := q.items[q.head]
	q.items[q.head] = "" // release string reference so GC can collect it
	q.head++
	// Compact when we've consumed at least 1 000 items and head has passed
	// the midpoint, keeping the backing array from growing without bound.
	if q.head >= 1000 && q.head >= len(q.items)/2 {
		q.items = append(q.items[:0], q.items[q.head:]...)
		q.head = 0
	}
	return item, true
}

// Close wakes every waiter; remaining items can still be popped.
func (q *workQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Pushed returns how many items were ever accepted by the queue.
func (q *workQueue) Pushed() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushed
}
