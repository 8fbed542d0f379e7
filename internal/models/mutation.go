package models

import "time"

// MutationKind identifies what a pending mutation does remotely.
type MutationKind string

const (
	// MutationCreate submits a locally created exercise.
	MutationCreate MutationKind = "create"
	// MutationThanks increments the thanks counter of an exercise.
	MutationThanks MutationKind = "thanks"
	// MutationModerate applies a moderation status change.
	MutationModerate MutationKind = "moderate"
)

// PendingMutation is a not-yet-acknowledged local write, durable until the
// corresponding remote call succeeds. The queue never evicts an entry on its
// own; attempts grow without bound until the mutation is acknowledged or the
// queue is deliberately cleared.
type PendingMutation struct {
	ID   string       `json:"id"`
	Kind MutationKind `json:"kind"`

	// Exercise is the full payload for MutationCreate.
	Exercise *Exercise `json:"exercise,omitempty"`

	// Target is the identity key of the record a MutationThanks or
	// MutationModerate applies to, resolved at enqueue time (server id when
	// already known, else local id).
	Target string `json:"target,omitempty"`

	// Amount is the thanks increment carried by MutationThanks.
	Amount int `json:"amount,omitempty"`

	// Status is the moderation status carried by MutationModerate.
	Status string `json:"status,omitempty"`

	Attempts      int        `json:"attempts"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
	EnqueuedAt    time.Time  `json:"enqueuedAt,omitzero"`
}

// Clone returns a deep copy.
func (m *PendingMutation) Clone() *PendingMutation {
	c := *m
	if m.Exercise != nil {
		c.Exercise = m.Exercise.Clone()
	}
	if m.LastAttemptAt != nil {
		t := *m.LastAttemptAt
		c.LastAttemptAt = &t
	}
	return &c
}
