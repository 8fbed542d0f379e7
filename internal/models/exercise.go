// Package models provides data model definitions for the sync engine.
package models

import "time"

// ModerationStatus values an exercise can carry.
const (
	ModerationPending  = "pending"
	ModerationApproved = "approved"
	ModerationRejected = "rejected"
)

// Exercise is a community exercise record. The engine treats the domain
// fields as opaque payload; it only inspects LocalID, ServerID and the
// timestamps when reconciling local and remote copies.
type Exercise struct {
	LocalID          string     `json:"localId"`
	ServerID         string     `json:"serverId,omitempty"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Steps            []string   `json:"steps,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
	AuthorID         string     `json:"authorId,omitempty"`
	ThanksCount      int        `json:"thanksCount"`
	ModerationStatus string     `json:"moderationStatus,omitempty"`
	CreatedAt        time.Time  `json:"createdAt,omitzero"`
	UpdatedAt        time.Time  `json:"updatedAt,omitzero"`
	DeletedAt        *time.Time `json:"deletedAt,omitempty"`
}

// Key returns the identity key used to match local and remote copies of the
// same logical record: the server id once assigned, else the local id.
func (e *Exercise) Key() string {
	if e.ServerID != "" {
		return e.ServerID
	}
	return e.LocalID
}

// Deleted reports whether the record carries a tombstone.
func (e *Exercise) Deleted() bool {
	return e.DeletedAt != nil
}

// Matches reports whether id refers to this record by either identifier.
func (e *Exercise) Matches(id string) bool {
	return id != "" && (id == e.ServerID || id == e.LocalID)
}

// Clone returns a deep copy.
func (e *Exercise) Clone() *Exercise {
	c := *e
	if e.Steps != nil {
		c.Steps = append([]string(nil), e.Steps...)
	}
	if e.Tags != nil {
		c.Tags = append([]string(nil), e.Tags...)
	}
	if e.DeletedAt != nil {
		t := *e.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

// Touch stamps the record as modified now.
func (e *Exercise) Touch() {
	e.UpdatedAt = time.Now().UTC()
}
