package main

import "sync"

// Queue is an unbounded FIFO shared by all workers. Submission order is
// preserved regardless of the item's kind; completion order is up to the
// worker pool.
type Queue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []WorkItem
}

func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends the item and returns its 1-based queue position at the
// time of the append.
func (q *Queue) Enqueue(item WorkItem) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	q.cond.Signal()
	return len(q.items)
}

// Dequeue blocks until an item is available.
func (q *Queue) Dequeue() WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		q.cond.Wait()
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
