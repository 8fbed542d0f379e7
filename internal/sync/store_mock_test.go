package sync

import (
	"errors"
	stdsync "sync"

	"github.com/reptrack/backend/internal/models"
)

// memStore is an in-memory store.Store used by the engine and queue tests.
type memStore struct {
	mu        stdsync.Mutex
	exercises map[string]*models.Exercise
	mutations []*models.PendingMutation
	profile   *models.UserProfile

	failWrites bool
}

func newMemStore() *memStore {
	return &memStore{exercises: make(map[string]*models.Exercise)}
}

var errWriteFailed = errors.New("simulated storage failure")

func (s *memStore) LoadExercises() ([]*models.Exercise, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Exercise, 0, len(s.exercises))
	for _, e := range s.exercises {
		out = append(out, e.Clone())
	}
	return out, nil
}

func (s *memStore) PutExercise(e *models.Exercise) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites {
		return errWriteFailed
	}
	s.exercises[e.LocalID] = e.Clone()
	return nil
}

func (s *memStore) PutExercises(exercises []*models.Exercise) error {
	for _, e := range exercises {
		if err := s.PutExercise(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStore) ReplaceExercises(exercises []*models.Exercise) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites {
		return errWriteFailed
	}
	s.exercises = make(map[string]*models.Exercise, len(exercises))
	for _, e := range exercises {
		s.exercises[e.LocalID] = e.Clone()
	}
	return nil
}

func (s *memStore) DeleteExercise(localID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.exercises, localID)
	return nil
}

func (s *memStore) CountExercises() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.exercises), nil
}

func (s *memStore) LoadMutations() ([]*models.PendingMutation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.PendingMutation, 0, len(s.mutations))
	for _, m := range s.mutations {
		out = append(out, m.Clone())
	}
	return out, nil
}

func (s *memStore) ReplaceMutations(mutations []*models.PendingMutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites {
		return errWriteFailed
	}
	s.mutations = make([]*models.PendingMutation, 0, len(mutations))
	for _, m := range mutations {
		s.mutations = append(s.mutations, m.Clone())
	}
	return nil
}

func (s *memStore) LoadProfile() (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.profile == nil {
		return nil, nil
	}
	p := *s.profile
	return &p, nil
}

func (s *memStore) SaveProfile(p *models.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := *p
	s.profile = &saved
	return nil
}

func (s *memStore) Close() error { return nil }

// persistedMutationCount reads the durable queue length.
func (s *memStore) persistedMutationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mutations)
}

// persistedExercise reads a durable record by local id.
func (s *memStore) persistedExercise(localID string) *models.Exercise {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.exercises[localID]; ok {
		return e.Clone()
	}
	return nil
}
