// Package store provides durable local persistence for the sync engine:
// the exercise cache, the pending-mutation log and the single user profile.
package store

import "github.com/reptrack/backend/internal/models"

// Store is the durability boundary the sync engine writes through. It holds
// no business logic; the engine owns the in-memory state and treats every
// call here as best-effort durability.
type Store interface {
	// LoadExercises returns every cached exercise.
	LoadExercises() ([]*models.Exercise, error)

	// PutExercise upserts a single exercise keyed by its local id.
	PutExercise(e *models.Exercise) error

	// PutExercises upserts a batch of exercises.
	PutExercises(exercises []*models.Exercise) error

	// ReplaceExercises atomically replaces the whole cached set.
	ReplaceExercises(exercises []*models.Exercise) error

	// DeleteExercise removes an exercise by local id. Missing rows are not
	// an error.
	DeleteExercise(localID string) error

	// CountExercises returns the number of cached exercises.
	CountExercises() (int, error)

	// LoadMutations returns the pending-mutation log in enqueue order.
	LoadMutations() ([]*models.PendingMutation, error)

	// ReplaceMutations atomically replaces the pending-mutation log,
	// preserving the given order.
	ReplaceMutations(mutations []*models.PendingMutation) error

	// LoadProfile returns the user profile, or nil when none is stored.
	LoadProfile() (*models.UserProfile, error)

	// SaveProfile upserts the single user profile row.
	SaveProfile(p *models.UserProfile) error

	// Close releases underlying resources.
	Close() error
}
