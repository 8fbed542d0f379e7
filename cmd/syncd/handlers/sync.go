package handlers

import (
	"context"
	"net/http"

	"github.com/reptrack/backend/internal/models"
)

// SyncEngine is the slice of the sync engine the sync endpoints use.
type SyncEngine interface {
	Status() models.SyncStatus
	Online() bool
	SetOnline(online bool)
	Sync(ctx context.Context) error
	PendingMutations() []*models.PendingMutation
	QueueStats() map[string]int
	Profile() *models.UserProfile
	SaveProfile(p *models.UserProfile) error
}

// SyncHandler serves sync control and introspection endpoints.
type SyncHandler struct {
	engine SyncEngine
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(engine SyncEngine) *SyncHandler {
	return &SyncHandler{engine: engine}
}

// Status handles GET /api/sync/status.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// SyncNow handles POST /api/sync/now. It runs a full sync synchronously and
// returns the resulting status.
func (h *SyncHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Sync(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// SetOnline handles PUT /api/sync/online. The host application feeds its
// reachability signal through this endpoint.
func (h *SyncHandler) SetOnline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Online bool `json:"online"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	h.engine.SetOnline(req.Online)
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// Queue handles GET /api/sync/queue.
func (h *SyncHandler) Queue(w http.ResponseWriter, r *http.Request) {
	pending := h.engine.PendingMutations()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pending": pending,
		"total":   len(pending),
		"byKind":  h.engine.QueueStats(),
	})
}

// GetProfile handles GET /api/profile.
func (h *SyncHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p := h.engine.Profile()
	if p == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"configured": false})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PutProfile handles PUT /api/profile.
func (h *SyncHandler) PutProfile(w http.ResponseWriter, r *http.Request) {
	var req models.UserProfile
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.engine.SaveProfile(&req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &req)
}

// Health handles GET /api/health.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "reptrack-syncd",
	})
}
