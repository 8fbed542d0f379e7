package handlers

import "net/http"

// NewRouter builds the REST routing table over the given engine slices.
// The WebSocket endpoint is registered separately by the caller.
func NewRouter(ex ExerciseEngine, sy SyncEngine) *http.ServeMux {
	exercises := NewExerciseHandler(ex)
	syncCtl := NewSyncHandler(sy)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", Health)

	mux.HandleFunc("GET /api/exercises", exercises.List)
	mux.HandleFunc("POST /api/exercises", exercises.Create)
	mux.HandleFunc("GET /api/exercises/{id}", exercises.Get)
	mux.HandleFunc("POST /api/exercises/{id}/thanks", exercises.Thanks)
	mux.HandleFunc("PATCH /api/exercises/{id}/moderation", exercises.Moderate)

	mux.HandleFunc("GET /api/sync/status", syncCtl.Status)
	mux.HandleFunc("POST /api/sync/now", syncCtl.SyncNow)
	mux.HandleFunc("PUT /api/sync/online", syncCtl.SetOnline)
	mux.HandleFunc("GET /api/sync/queue", syncCtl.Queue)

	mux.HandleFunc("GET /api/profile", syncCtl.GetProfile)
	mux.HandleFunc("PUT /api/profile", syncCtl.PutProfile)

	return mux
}
