package sync

import (
	"testing"
	"time"

	"github.com/reptrack/backend/internal/models"
)

func TestQueueEnqueueAssignsIdentityAndPersists(t *testing.T) {
	st := newMemStore()
	q := NewMutationQueue(st)

	m := q.Enqueue(&models.PendingMutation{Kind: models.MutationThanks, Target: "srv-1", Amount: 1})

	if m.ID == "" {
		t.Error("Expected an id to be assigned")
	}
	if m.Attempts != 0 {
		t.Errorf("Expected 0 attempts, got %d", m.Attempts)
	}
	if m.EnqueuedAt.IsZero() {
		t.Error("Expected enqueue timestamp to be stamped")
	}

	if q.Len() != 1 {
		t.Fatalf("Expected queue length 1, got %d", q.Len())
	}
	if st.persistedMutationCount() != q.Len() {
		t.Errorf("Persisted queue length %d diverges from in-memory %d",
			st.persistedMutationCount(), q.Len())
	}
}

func TestQueueAckRemovesAndPersists(t *testing.T) {
	st := newMemStore()
	q := NewMutationQueue(st)

	first := q.Enqueue(&models.PendingMutation{Kind: models.MutationThanks, Target: "a"})
	second := q.Enqueue(&models.PendingMutation{Kind: models.MutationThanks, Target: "b"})

	if err := q.Ack(first.ID); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}

	if q.Len() != 1 {
		t.Fatalf("Expected queue length 1 after ack, got %d", q.Len())
	}
	if st.persistedMutationCount() != 1 {
		t.Errorf("Persisted queue not shortened: %d", st.persistedMutationCount())
	}

	next := q.Next(nil)
	if next == nil || next.ID != second.ID {
		t.Errorf("Expected remaining entry %s at the front", second.ID)
	}

	if err := q.Ack("missing"); err == nil {
		t.Error("Expected error acknowledging an unknown id")
	}
}

func TestQueueRecordFailureBacksOff(t *testing.T) {
	st := newMemStore()
	q := NewMutationQueue(st)

	m := q.Enqueue(&models.PendingMutation{Kind: models.MutationCreate,
		Exercise: &models.Exercise{LocalID: "l-1", Title: "X"}})

	delay, err := q.RecordFailure(m.ID)
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if delay != 2*time.Second {
		t.Errorf("Expected 2s backoff after first failure, got %v", delay)
	}

	got := q.Next(nil)
	if got.Attempts != 1 {
		t.Errorf("Expected attempts=1, got %d", got.Attempts)
	}
	if got.LastAttemptAt == nil {
		t.Error("Expected lastAttemptAt to be stamped")
	}

	// Attempts survive persistence: reload from the store.
	q2 := NewMutationQueue(st)
	if err := q2.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if reloaded := q2.Next(nil); reloaded.Attempts != 1 {
		t.Errorf("Persisted attempts lost: %d", reloaded.Attempts)
	}
}

func TestBackoffCappedExponential(t *testing.T) {
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{6, 30 * time.Second},
		{40, 30 * time.Second},
	}

	for _, c := range cases {
		if got := Backoff(c.attempts); got != c.want {
			t.Errorf("Backoff(%d) = %v, want %v", c.attempts, got, c.want)
		}
	}
}

func TestQueueNeverEvicts(t *testing.T) {
	st := newMemStore()
	q := NewMutationQueue(st)

	m := q.Enqueue(&models.PendingMutation{Kind: models.MutationThanks, Target: "a"})

	// A persistently failing mutation accumulates attempts without bound;
	// it is never auto-discarded.
	for i := 0; i < 50; i++ {
		if _, err := q.RecordFailure(m.ID); err != nil {
			t.Fatalf("RecordFailure #%d failed: %v", i, err)
		}
	}

	if q.Len() != 1 {
		t.Fatalf("Expected mutation to remain queued, got length %d", q.Len())
	}
	if got := q.Next(nil); got.Attempts != 50 {
		t.Errorf("Expected 50 attempts, got %d", got.Attempts)
	}
}

func TestQueueNextHonorsSkipSet(t *testing.T) {
	st := newMemStore()
	q := NewMutationQueue(st)

	first := q.Enqueue(&models.PendingMutation{Kind: models.MutationThanks, Target: "a"})
	second := q.Enqueue(&models.PendingMutation{Kind: models.MutationThanks, Target: "b"})

	got := q.Next(map[string]bool{first.ID: true})
	if got == nil || got.ID != second.ID {
		t.Errorf("Expected skip set to advance past the first entry")
	}

	if q.Next(map[string]bool{first.ID: true, second.ID: true}) != nil {
		t.Error("Expected nil when every entry is skipped")
	}

	// The skipped entry keeps its position.
	if front := q.Next(nil); front.ID != first.ID {
		t.Errorf("Expected skipped entry to stay at the front, got %s", front.ID)
	}
}

func TestQueueLoadRestoresOrder(t *testing.T) {
	st := newMemStore()
	q := NewMutationQueue(st)

	a := q.Enqueue(&models.PendingMutation{Kind: models.MutationThanks, Target: "a"})
	b := q.Enqueue(&models.PendingMutation{Kind: models.MutationModerate, Target: "b", Status: models.ModerationApproved})

	q2 := NewMutationQueue(st)
	if err := q2.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	items := q2.List()
	if len(items) != 2 {
		t.Fatalf("Expected 2 restored mutations, got %d", len(items))
	}
	if items[0].ID != a.ID || items[1].ID != b.ID {
		t.Error("Restored queue lost FIFO order")
	}
}

func TestQueueClear(t *testing.T) {
	st := newMemStore()
	q := NewMutationQueue(st)

	q.Enqueue(&models.PendingMutation{Kind: models.MutationThanks, Target: "a"})
	q.Clear()

	if q.Len() != 0 {
		t.Errorf("Expected empty queue, got %d", q.Len())
	}
	if st.persistedMutationCount() != 0 {
		t.Errorf("Expected persisted queue cleared, got %d", st.persistedMutationCount())
	}
}

func TestQueueStats(t *testing.T) {
	st := newMemStore()
	q := NewMutationQueue(st)

	q.Enqueue(&models.PendingMutation{Kind: models.MutationThanks, Target: "a"})
	q.Enqueue(&models.PendingMutation{Kind: models.MutationThanks, Target: "b"})
	q.Enqueue(&models.PendingMutation{Kind: models.MutationCreate,
		Exercise: &models.Exercise{LocalID: "l-1", Title: "X"}})

	stats := q.Stats()
	if stats["total"] != 3 || stats["thanks"] != 2 || stats["create"] != 1 {
		t.Errorf("Unexpected stats: %v", stats)
	}
}
