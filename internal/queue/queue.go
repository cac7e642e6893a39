// Package queue provides a small FIFO used to hold requests waiting for a poll cycle.
package queue

import "sync"

// Queue is a mutex guarded FIFO, safe for one producer side and one poller side.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
}

// New creates a queue with room for prealloc items.
func New[T any](prealloc int) *Queue[T] {
	return &Queue[T]{items: make([]T, 0, prealloc)}
}

// Enqueue adds an item to the tail of the queue.
func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
}

// Dequeue removes and returns the item at the head of the queue.
// ok is false when the queue is empty.
func (q *Queue[T]) Dequeue() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return item, false
	}
	item = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]

	return item, true
}

// DequeueIf removes and returns the head item only when pred accepts it.
func (q *Queue[T]) DequeueIf(pred func(T) bool) (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 || !pred(q.items[0]) {
		return item, false
	}
	item = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]

	return item, true
}

// Peek returns the item at the head of the queue without removing it.
func (q *Queue[T]) Peek() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return item, false
	}

	return q.items[0], true
}

// Reset drops every queued item.
func (q *Queue[T]) Reset() {
	q.mu.Lock()
	clear(q.items)
	q.items = q.items[:0]
	q.mu.Unlock()
}

// Length returns the number of items in the queue.
func (q *Queue[T]) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// IsEmpty returns true if the queue is empty.
func (q *Queue[T]) IsEmpty() bool {
	return q.Length() == 0
}
