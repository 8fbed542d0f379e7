package sync

import (
	"fmt"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/reptrack/backend/internal/logging"
	"github.com/reptrack/backend/internal/models"
	"github.com/reptrack/backend/internal/store"
)

// maxBackoff caps the retry delay of a repeatedly failing mutation.
const maxBackoff = 30 * time.Second

// Backoff returns the delay before the next attempt of a mutation that has
// failed attempts times: min(2^attempts seconds, 30 seconds). No jitter.
func Backoff(attempts int) time.Duration {
	if attempts >= 5 {
		return maxBackoff
	}
	d := time.Duration(1<<uint(attempts)) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// MutationQueue is the ordered, durable log of not-yet-acknowledged local
// writes. Every change is persisted through the store immediately, so a
// restart mid-queue loses no work. Persistence failures are logged and the
// in-memory queue keeps serving; durability is compromised until the next
// successful persist.
//
// There is no maximum-attempts eviction: a mutation stays queued until it is
// acknowledged or the queue is deliberately cleared.
type MutationQueue struct {
	mu    stdsync.Mutex
	items []*models.PendingMutation
	store store.Store
}

// NewMutationQueue creates a queue persisting through st.
func NewMutationQueue(st store.Store) *MutationQueue {
	return &MutationQueue{store: st}
}

// Load restores the queue from the store, in enqueue order.
func (q *MutationQueue) Load() error {
	items, err := q.store.LoadMutations()
	if err != nil {
		return err
	}

	q.mu.Lock()
	q.items = items
	q.mu.Unlock()
	return nil
}

// Enqueue appends a mutation, assigns its id and enqueue timestamp, and
// persists the queue. It returns the stored entry.
func (q *MutationQueue) Enqueue(m *models.PendingMutation) *models.PendingMutation {
	q.mu.Lock()
	defer q.mu.Unlock()

	m.ID = uuid.New().String()
	m.Attempts = 0
	m.EnqueuedAt = time.Now().UTC()
	q.items = append(q.items, m)
	q.persistLocked()

	logging.Debug("Enqueued mutation",
		map[string]interface{}{"id": m.ID, "kind": m.Kind, "queued": len(q.items)})

	return m.Clone()
}

// Ack removes an acknowledged mutation by id and persists the shortened
// queue.
func (q *MutationQueue) Ack(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, m := range q.items {
		if m.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.persistLocked()
			return nil
		}
	}
	return fmt.Errorf("mutation %s not found", id)
}

// RecordFailure increments the attempt counter of a mutation, stamps its
// last-attempt time, persists, and returns the backoff delay before the next
// attempt.
func (q *MutationQueue) RecordFailure(id string) (time.Duration, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, m := range q.items {
		if m.ID == id {
			m.Attempts++
			now := time.Now().UTC()
			m.LastAttemptAt = &now
			q.persistLocked()
			return Backoff(m.Attempts), nil
		}
	}
	return 0, fmt.Errorf("mutation %s not found", id)
}

// Next returns a copy of the first queued mutation whose id is not in skip,
// or nil when none is eligible. The flush loop uses skip to advance past
// entries that failed with an application-class error this pass; they keep
// their position for the next pass.
func (q *MutationQueue) Next(skip map[string]bool) *models.PendingMutation {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, m := range q.items {
		if !skip[m.ID] {
			return m.Clone()
		}
	}
	return nil
}

// Len returns the number of queued mutations.
func (q *MutationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// List returns copies of all queued mutations in order.
func (q *MutationQueue) List() []*models.PendingMutation {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := make([]*models.PendingMutation, 0, len(q.items))
	for _, m := range q.items {
		items = append(items, m.Clone())
	}
	return items
}

// Stats returns queued mutation counts by kind.
func (q *MutationQueue) Stats() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := make(map[string]int, 4)
	stats["total"] = len(q.items)
	for _, m := range q.items {
		stats[string(m.Kind)]++
	}
	return stats
}

// Clear deliberately drops every queued mutation and persists the empty
// queue. This is the only way a mutation leaves the queue unacknowledged.
func (q *MutationQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = nil
	q.persistLocked()

	logging.Warn("Mutation queue cleared")
}

// persistLocked writes the current queue through the store. Callers hold
// q.mu.
func (q *MutationQueue) persistLocked() {
	if err := q.store.ReplaceMutations(q.items); err != nil {
		logging.Error("Failed to persist mutation queue", err,
			map[string]interface{}{"queued": len(q.items)})
	}
}
