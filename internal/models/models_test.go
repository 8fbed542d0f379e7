package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestExerciseKey(t *testing.T) {
	e := &Exercise{LocalID: "local-1"}
	if e.Key() != "local-1" {
		t.Errorf("Expected local id key, got %s", e.Key())
	}

	e.ServerID = "srv-9"
	if e.Key() != "srv-9" {
		t.Errorf("Expected server id key once assigned, got %s", e.Key())
	}
}

func TestExerciseMatches(t *testing.T) {
	e := &Exercise{LocalID: "local-1", ServerID: "srv-9"}

	if !e.Matches("local-1") || !e.Matches("srv-9") {
		t.Error("Expected match on either identifier")
	}
	if e.Matches("") {
		t.Error("Empty id must never match")
	}
	if e.Matches("other") {
		t.Error("Unrelated id must not match")
	}
}

func TestExerciseCloneIsDeep(t *testing.T) {
	now := time.Now()
	e := &Exercise{
		LocalID:   "local-1",
		Steps:     []string{"a", "b"},
		Tags:      []string{"legs"},
		DeletedAt: &now,
	}

	c := e.Clone()
	c.Steps[0] = "changed"
	c.Tags[0] = "changed"
	*c.DeletedAt = now.Add(time.Hour)

	if e.Steps[0] != "a" || e.Tags[0] != "legs" {
		t.Error("Clone shares slice backing arrays with the original")
	}
	if !e.DeletedAt.Equal(now) {
		t.Error("Clone shares the tombstone pointer with the original")
	}
}

func TestExerciseDeleted(t *testing.T) {
	e := &Exercise{LocalID: "local-1"}
	if e.Deleted() {
		t.Error("Expected no tombstone")
	}

	now := time.Now()
	e.DeletedAt = &now
	if !e.Deleted() {
		t.Error("Expected tombstone to be detected")
	}
}

func TestPendingMutationRoundTrip(t *testing.T) {
	m := &PendingMutation{
		ID:     "m-1",
		Kind:   MutationThanks,
		Target: "srv-9",
		Amount: 1,
	}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var got PendingMutation
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if got.Kind != MutationThanks || got.Target != "srv-9" || got.Amount != 1 {
		t.Errorf("Round trip lost fields: %+v", got)
	}
	if got.LastAttemptAt != nil {
		t.Error("Expected absent lastAttemptAt to stay nil")
	}
}
