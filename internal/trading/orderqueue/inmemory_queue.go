package orderqueue

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// InMemoryQueue keeps jobs in process memory. Pending jobs are lost on
// restart.
type InMemoryQueue struct {
	mu     sync.Mutex
	jobs   map[string]entry
	seq    uint64
	closed bool
}

type entry struct {
	job MatchJob
	seq uint64
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{jobs: make(map[string]entry)}
}

func (q *InMemoryQueue) Enqueue(_ context.Context, job MatchJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if _, ok := q.jobs[job.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, job.ID)
	}
	q.seq++
	q.jobs[job.ID] = entry{job: job, seq: q.seq}
	return nil
}

func (q *InMemoryQueue) Acknowledge(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.jobs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(q.jobs, id)
	return nil
}

func (q *InMemoryQueue) ReplayPending(_ context.Context) ([]MatchJob, error) {
	q.mu.Lock()
	entries := make([]entry, 0, len(q.jobs))
	for _, e := range q.jobs {
		entries = append(entries, e)
	}
	q.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	jobs := make([]MatchJob, len(entries))
	for i, e := range entries {
		jobs[i] = e.job
	}
	return jobs, nil
}

func (q *InMemoryQueue) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs), nil
}

func (q *InMemoryQueue) Shutdown(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
