package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"clearr.app/backend/internal/core"
)

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, r, err, "Failed to retrieve user")
		return
	}
	h.writeSuccess(w, r, http.StatusOK, "User retrieved successfully", user)
}

func (h *Handler) GetUserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.users.Stats(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, r, err, "Failed to retrieve user statistics")
		return
	}
	h.writeSuccess(w, r, http.StatusOK, "User statistics retrieved successfully", stats)
}

type addContextRequest struct {
	ContextExample string `json:"contextExample"`
}

func (h *Handler) AddStyleExample(w http.ResponseWriter, r *http.Request) {
	var req addContextRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.ContextExample) == "" {
		h.writeFailure(w, r, http.StatusBadRequest, "Context example is required")
		return
	}
	examples, err := h.users.AddStyleExample(r.Context(), chi.URLParam(r, "userID"), req.ContextExample)
	if err != nil {
		h.writeError(w, r, err, "Failed to add training context")
		return
	}
	h.writeSuccess(w, r, http.StatusOK, "Training context added successfully", map[string]any{"contextTraining": examples})
}

func (h *Handler) ListModes(w http.ResponseWriter, r *http.Request) {
	modes, err := h.modes.List(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, r, err, "Failed to retrieve modes")
		return
	}
	h.writeSuccess(w, r, http.StatusOK, "Modes retrieved successfully", modes)
}

type createModeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsDefault   bool   `json:"isDefault"`
	Prompt      string `json:"prompt"`
}

func (h *Handler) CreateMode(w http.ResponseWriter, r *http.Request) {
	var req createModeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeFailure(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Description) == "" {
		h.writeFailure(w, r, http.StatusBadRequest, "Name and description are required")
		return
	}
	created, err := h.modes.Create(r.Context(), chi.URLParam(r, "userID"), core.CreateModeInput{
		Name:        req.Name,
		Description: req.Description,
		IsDefault:   req.IsDefault,
		Prompt:      req.Prompt,
	})
	if err != nil {
		h.writeError(w, r, err, "Failed to create mode")
		return
	}
	h.writeSuccess(w, r, http.StatusCreated, "Mode created successfully", created)
}

type updateModeRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsDefault   *bool   `json:"isDefault"`
	Prompt      *string `json:"prompt"`
}

func (h *Handler) UpdateMode(w http.ResponseWriter, r *http.Request) {
	var req updateModeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeFailure(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	mode, err := h.modes.Update(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "modeID"), core.UpdateModeInput{
		Name:        req.Name,
		Description: req.Description,
		IsDefault:   req.IsDefault,
		Prompt:      req.Prompt,
	})
	if err != nil {
		h.writeError(w, r, err, "Failed to update mode")
		return
	}
	h.writeSuccess(w, r, http.StatusOK, "Mode updated successfully", mode)
}

func (h *Handler) DeleteMode(w http.ResponseWriter, r *http.Request) {
	promoted, err := h.modes.Delete(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "modeID"))
	if err != nil {
		h.writeError(w, r, err, "Failed to delete mode")
		return
	}
	var data any
	if promoted != nil {
		data = map[string]any{"newDefaultMode": promoted}
	}
	h.writeSuccess(w, r, http.StatusOK, "Mode deleted successfully", data)
}

type selectModeRequest struct {
	ModeID string `json:"modeId"`
}

func (h *Handler) SelectMode(w http.ResponseWriter, r *http.Request) {
	var req selectModeRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.ModeID) == "" {
		h.writeFailure(w, r, http.StatusBadRequest, "Mode ID is required")
		return
	}
	if err := h.modes.SetDefault(r.Context(), chi.URLParam(r, "userID"), req.ModeID); err != nil {
		h.writeError(w, r, err, "Failed to update selected mode")
		return
	}
	h.writeSuccess(w, r, http.StatusOK, "Selected mode updated successfully", map[string]string{"selectedModeId": req.ModeID})
}
