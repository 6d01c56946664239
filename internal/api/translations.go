package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"clearr.app/backend/internal/core"
)

type translateRequest struct {
	TranslationInput string `json:"translationInput"`
	ModeID           string `json:"modeId"`
	// Mode is the legacy enum name sent by older clients.
	Mode string `json:"mode"`
}

func (h *Handler) CreateTranslation(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	var req translateRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.TranslationInput) == "" {
		h.writeFailure(w, r, http.StatusBadRequest, "Translation input is required")
		return
	}
	ref, err := core.ParseModeRef(req.ModeID, req.Mode)
	if err != nil {
		h.writeError(w, r, err, "Invalid mode")
		return
	}
	result, err := h.translations.Translate(r.Context(), claims.UserID, req.TranslationInput, ref)
	if err != nil {
		h.writeError(w, r, err, "Failed to process translation")
		return
	}
	h.writeSuccess(w, r, http.StatusOK, "Translation completed successfully", result)
}

func queryInt(r *http.Request, key string, fallback int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return fallback
	}
	return n
}

func (h *Handler) TranslationHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", core.DefaultHistoryLimit)
	skip := queryInt(r, "skip", 0)
	rows, err := h.translations.History(r.Context(), chi.URLParam(r, "userID"), limit, skip)
	if err != nil {
		h.writeError(w, r, err, "Failed to retrieve translations")
		return
	}
	h.writeSuccess(w, r, http.StatusOK, "Translation history retrieved", rows)
}

func (h *Handler) GetTranslation(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	t, err := h.translations.Get(r.Context(), claims.UserID, chi.URLParam(r, "translationID"))
	if err != nil {
		h.writeError(w, r, err, "Failed to retrieve translation")
		return
	}
	h.writeSuccess(w, r, http.StatusOK, "Translation retrieved successfully", t)
}

func (h *Handler) RegenerateTranslation(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	result, err := h.translations.Regenerate(r.Context(), claims.UserID, chi.URLParam(r, "translationID"))
	if err != nil {
		h.writeError(w, r, err, "Failed to regenerate translation")
		return
	}
	h.writeSuccess(w, r, http.StatusOK, "Translation regenerated successfully", result)
}

type selectVersionRequest struct {
	SelectedIndex *int `json:"selectedIndex"`
}

func (h *Handler) SelectTranslationVersion(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	var req selectVersionRequest
	if err := decodeJSON(r, &req); err != nil || req.SelectedIndex == nil || *req.SelectedIndex < 0 {
		h.writeFailure(w, r, http.StatusBadRequest, "Valid selected index is required")
		return
	}
	t, err := h.translations.SelectOutput(r.Context(), claims.UserID, chi.URLParam(r, "translationID"), *req.SelectedIndex)
	if err != nil {
		h.writeError(w, r, err, "Failed to update selected version")
		return
	}
	h.writeSuccess(w, r, http.StatusOK, "Selected version updated successfully", t)
}

func (h *Handler) DeleteTranslation(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	if err := h.translations.Delete(r.Context(), claims.UserID, chi.URLParam(r, "translationID")); err != nil {
		h.writeError(w, r, err, "Failed to delete translation")
		return
	}
	h.writeSuccess(w, r, http.StatusOK, "Translation deleted successfully", nil)
}
