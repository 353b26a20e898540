package queue

import (
	"math/rand/v2"
	"sync"

	"github.com/maltedev/ever-scraper/internal/models"
)

// WorkQueue holds the category work list for one run. Items marked done are
// never handed out again.
type WorkQueue struct {
	mu    sync.Mutex
	items []models.CategoryWorkItem
	known map[string]struct{}
	done  map[string]struct{}
}

func NewWorkQueue(items []models.CategoryWorkItem) *WorkQueue {
	q := &WorkQueue{
		items: make([]models.CategoryWorkItem, 0, len(items)),
		known: make(map[string]struct{}, len(items)),
		done:  make(map[string]struct{}),
	}

	for _, item := range items {
		if _, ok := q.known[item.URL]; ok {
			continue
		}
		q.known[item.URL] = struct{}{}
		q.items = append(q.items, item)
	}

	return q
}

// Pending returns the remaining items in queue order.
func (q *WorkQueue) Pending() []models.CategoryWorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := make([]models.CategoryWorkItem, 0, len(q.items))
	for _, item := range q.items {
		if _, ok := q.done[item.URL]; !ok {
			pending = append(pending, item)
		}
	}
	return pending
}

func (q *WorkQueue) MarkDone(url string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.known[url]; ok {
		q.done[url] = struct{}{}
	}
}

// Shuffle reorders the whole list uniformly using r.
func (q *WorkQueue) Shuffle(r *rand.Rand) {
	q.mu.Lock()
	defer q.mu.Unlock()

	r.Shuffle(len(q.items), func(i, j int) {
		q.items[i], q.items[j] = q.items[j], q.items[i]
	})
}

// Size is the number of items not yet done.
func (q *WorkQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items) - len(q.done)
}

func (q *WorkQueue) Completed() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.done)
}
