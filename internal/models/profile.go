package models

import "time"

// UserProfile is the single local user row. The engine only loads and
// persists it; all fields are owned by the host application.
type UserProfile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email,omitempty"`
	Role        string    `json:"role,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero"`
}

// SyncStatus is the process-wide, non-persisted view of the engine state.
type SyncStatus struct {
	IsOnline             bool       `json:"isOnline"`
	IsSyncing            bool       `json:"isSyncing"`
	PendingMutationCount int        `json:"pendingMutationCount"`
	LastSyncedAt         *time.Time `json:"lastSyncedAt,omitempty"`
}
