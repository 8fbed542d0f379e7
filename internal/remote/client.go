// Package remote provides the HTTP client the sync engine drains its
// mutation queue against, and the failure taxonomy that drives the engine's
// online/offline decisions.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/reptrack/backend/internal/models"
)

// Client is the remote surface the engine consumes: exactly the three verbs
// it needs. Payload encoding and authentication are this package's concern,
// not the engine's.
type Client interface {
	// FetchAll returns the full current remote snapshot.
	FetchAll(ctx context.Context) ([]*models.Exercise, error)

	// Create persists a new exercise remotely and returns the canonical
	// server copy carrying the assigned server id.
	Create(ctx context.Context, e *models.Exercise) (*models.Exercise, error)

	// Mutate applies a patch to the record identified by id (server id when
	// known, else the local id echoed back by Create) and returns the
	// updated server copy.
	Mutate(ctx context.Context, id string, patch Patch) (*models.Exercise, error)
}

// Patch is the additive/overwrite change Mutate submits. The thanks delta is
// an amount rather than an absolute count so a retried request after an
// unknown outcome can be deduplicated server-side.
type Patch struct {
	ThanksDelta      int    `json:"thanksDelta,omitempty"`
	ModerationStatus string `json:"moderationStatus,omitempty"`
}

// APIError is a response the server actually produced. Status 5xx is treated
// as a connectivity-class failure, anything else as application-class.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("api error %d", e.StatusCode)
}

// IsConnectivityError classifies a failure: true means the network or the
// server is unreachable (no response, timeout, 5xx) and the engine should go
// offline; false means the server rejected this specific request and the
// engine should stay online.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 0 || apiErr.StatusCode >= http.StatusInternalServerError
	}
	// No *APIError in the chain means the request never produced a
	// response: DNS, dial, timeout, context cancellation.
	return true
}
