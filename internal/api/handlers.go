package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"clearr.app/backend/internal/auth"
	"clearr.app/backend/internal/core"
)

type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string) bool
}

type Deps struct {
	Auth         *core.AuthService
	Users        *core.UserService
	Modes        *core.ModeService
	Translations *core.TranslationService
	Tokens       TokenValidator
	// OTPLimiter is optional; nil disables throttling of the OTP routes.
	OTPLimiter  RateLimiter
	Logger      *zap.Logger
	Development bool
}

type Handler struct {
	auth         *core.AuthService
	users        *core.UserService
	modes        *core.ModeService
	translations *core.TranslationService
	tokens       TokenValidator
	limiter      RateLimiter
	logger       *zap.Logger
	dev          bool
}

func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		auth:         d.Auth,
		users:        d.Users,
		modes:        d.Modes,
		translations: d.Translations,
		tokens:       d.Tokens,
		limiter:      d.OTPLimiter,
		logger:       logger,
		dev:          d.Development,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, r, http.StatusOK, "OK", map[string]string{"status": "ok"})
}

type sendOTPRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

func (h *Handler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req sendOTPRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.PhoneNumber) == "" {
		h.writeFailure(w, r, http.StatusBadRequest, "Phone number is required")
		return
	}
	if err := h.auth.SendOTP(r.Context(), req.PhoneNumber); err != nil {
		h.writeError(w, r, err, "Failed to send verification code")
		return
	}
	h.writeSuccess(w, r, http.StatusOK, "Verification code sent", nil)
}

type verifyOTPRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	OTPCode     string `json:"otpCode"`
	FullName    string `json:"fullName"`
	Email       string `json:"email"`
}

func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.PhoneNumber) == "" || strings.TrimSpace(req.OTPCode) == "" {
		h.writeFailure(w, r, http.StatusBadRequest, "Phone number and OTP code are required")
		return
	}
	result, err := h.auth.VerifyOTP(r.Context(), req.PhoneNumber, req.OTPCode, core.SignupDetails{
		FullName: req.FullName,
		Email:    req.Email,
	})
	if err != nil {
		h.writeError(w, r, err, "Authentication failed")
		return
	}
	if result.IsNewUser {
		h.writeSuccess(w, r, http.StatusCreated, "Account created successfully", result)
		return
	}
	h.writeSuccess(w, r, http.StatusOK, "Login successful", result)
}

type updateProfileRequest struct {
	FullName            *string `json:"fullName"`
	Email               *string `json:"email"`
	PreferredMode       *string `json:"preferredMode"`
	NotificationEnabled *bool   `json:"notificationEnabled"`
	PushToken           *string `json:"pushToken"`
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeFailure(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	user, err := h.users.UpdateProfile(r.Context(), claims.UserID, core.ProfileUpdate{
		FullName:            req.FullName,
		Email:               req.Email,
		PreferredMode:       req.PreferredMode,
		NotificationEnabled: req.NotificationEnabled,
		PushToken:           req.PushToken,
	})
	if err != nil {
		h.writeError(w, r, err, "Failed to update profile")
		return
	}
	h.writeSuccess(w, r, http.StatusOK, "Profile updated successfully", user)
}

type completeOnboardingRequest struct {
	PreferredMode       *string `json:"preferredMode"`
	NotificationEnabled *bool   `json:"notificationEnabled"`
}

func (h *Handler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	var req completeOnboardingRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		h.writeFailure(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	user, err := h.users.CompleteOnboarding(r.Context(), claims.UserID, req.PreferredMode, req.NotificationEnabled)
	if err != nil {
		h.writeError(w, r, err, "Failed to complete onboarding")
		return
	}
	h.writeSuccess(w, r, http.StatusOK, "Onboarding completed successfully", user)
}

type deleteAccountRequest struct {
	ConfirmDelete bool   `json:"confirmDelete"`
	Reason        string `json:"reason"`
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	var req deleteAccountRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		h.writeFailure(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.users.Deactivate(r.Context(), claims.UserID, req.ConfirmDelete, req.Reason); err != nil {
		h.writeError(w, r, err, "Failed to delete account")
		return
	}
	h.writeSuccess(w, r, http.StatusOK, "Account deactivated successfully", nil)
}
