package handlers

import (
	"net/http"

	"github.com/reptrack/backend/internal/models"
)

// ExerciseEngine is the slice of the sync engine the exercise endpoints use.
type ExerciseEngine interface {
	Exercises() []*models.Exercise
	Exercise(id string) (*models.Exercise, error)
	CreateExercise(ex *models.Exercise) (*models.Exercise, error)
	SayThanks(id string) (*models.Exercise, error)
	ApplyModerationPatch(id, status string) (*models.Exercise, error)
}

// ExerciseHandler serves the exercise collection endpoints.
type ExerciseHandler struct {
	engine ExerciseEngine
}

// NewExerciseHandler creates an ExerciseHandler.
func NewExerciseHandler(engine ExerciseEngine) *ExerciseHandler {
	return &ExerciseHandler{engine: engine}
}

// List handles GET /api/exercises.
func (h *ExerciseHandler) List(w http.ResponseWriter, r *http.Request) {
	exercises := h.engine.Exercises()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"exercises": exercises,
		"total":     len(exercises),
	})
}

// Get handles GET /api/exercises/{id}. The id can be either identifier of
// the record.
func (h *ExerciseHandler) Get(w http.ResponseWriter, r *http.Request) {
	ex, err := h.engine.Exercise(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

// Create handles POST /api/exercises. The record is cached and persisted
// immediately; upload happens in the background.
func (h *ExerciseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.Exercise
	if !decodeBody(w, r, &req) {
		return
	}

	created, err := h.engine.CreateExercise(&req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Thanks handles POST /api/exercises/{id}/thanks.
func (h *ExerciseHandler) Thanks(w http.ResponseWriter, r *http.Request) {
	ex, err := h.engine.SayThanks(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

// Moderate handles PATCH /api/exercises/{id}/moderation.
func (h *ExerciseHandler) Moderate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	ex, err := h.engine.ApplyModerationPatch(r.PathValue("id"), req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}
