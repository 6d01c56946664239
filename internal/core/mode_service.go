package core

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"clearr.app/backend/internal/store"
)

const (
	minModeNameLen        = 2
	maxModeNameLen        = 50
	minModeDescriptionLen = 5
	maxModeDescriptionLen = 200
	maxModePromptLen      = 2000
)

type ModeService struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewModeService(s store.Store, logger *zap.Logger, now func() time.Time) *ModeService {
	if now == nil {
		now = time.Now
	}
	return &ModeService{store: s, logger: logger, now: now}
}

// CreateModeInput is the payload of a mode creation request.
type CreateModeInput struct {
	Name        string
	Description string
	IsDefault   bool
	Prompt      string
}

// UpdateModeInput carries a partial update; nil fields stay unchanged.
type UpdateModeInput struct {
	Name        *string
	Description *string
	IsDefault   *bool
	Prompt      *string
}

// ModeWithPrompt is a mode plus its active custom instruction, if any.
type ModeWithPrompt struct {
	Mode   *store.Mode       `json:"mode"`
	Prompt *store.ModePrompt `json:"prompt,omitempty"`
}

func validateModeName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < minModeNameLen {
		return newError(ErrValidation, "Mode name must be at least 2 characters")
	}
	if n > maxModeNameLen {
		return newError(ErrValidation, "Mode name must be at most 50 characters")
	}
	return nil
}

func validateModeDescription(description string) error {
	n := utf8.RuneCountInString(description)
	if n < minModeDescriptionLen {
		return newError(ErrValidation, "Mode description must be at least 5 characters")
	}
	if n > maxModeDescriptionLen {
		return newError(ErrValidation, "Mode description must be at most 200 characters")
	}
	return nil
}

func validateModePrompt(prompt string) error {
	if utf8.RuneCountInString(prompt) > maxModePromptLen {
		return newError(ErrValidation, "Mode prompt must be at most 2000 characters")
	}
	return nil
}

// storeError converts a store failure into a service error.
func storeError(err error, notFoundMessage string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return newError(ErrNotFound, notFoundMessage)
	case errors.Is(err, store.ErrDuplicate):
		return wrapError(ErrValidation, "Record already exists", err)
	default:
		return wrapError(ErrDependency, "Database operation failed", err)
	}
}

func (s *ModeService) Create(ctx context.Context, userID string, in CreateModeInput) (*ModeWithPrompt, error) {
	name := strings.TrimSpace(in.Name)
	description := strings.TrimSpace(in.Description)
	prompt := strings.TrimSpace(in.Prompt)
	if err := validateModeName(name); err != nil {
		return nil, err
	}
	if err := validateModeDescription(description); err != nil {
		return nil, err
	}
	if err := validateModePrompt(prompt); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	mode := &store.Mode{
		UserID:      userID,
		Name:        name,
		Description: description,
		IsDefault:   in.IsDefault,
		CreatedAt:   now,
	}
	var modePrompt *store.ModePrompt
	if prompt != "" {
		modePrompt = &store.ModePrompt{Prompt: prompt, CreatedAt: now}
	}

	if err := s.store.CreateMode(ctx, mode, modePrompt); err != nil {
		return nil, storeError(err, "User not found")
	}
	s.logger.Info("mode created",
		zap.String("user_id", userID),
		zap.String("mode_id", mode.ID),
		zap.Bool("is_default", mode.IsDefault))
	return &ModeWithPrompt{Mode: mode, Prompt: modePrompt}, nil
}

func (s *ModeService) List(ctx context.Context, userID string) ([]store.Mode, error) {
	modes, err := s.store.ListActiveModes(ctx, userID)
	if err != nil {
		return nil, storeError(err, "User not found")
	}
	return modes, nil
}

// Update applies a partial update. A supplied empty prompt removes the
// custom instruction so the mode falls back to the built-in template.
func (s *ModeService) Update(ctx context.Context, userID, modeID string, in UpdateModeInput) (*store.Mode, error) {
	var patch store.ModePatch
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := validateModeName(name); err != nil {
			return nil, err
		}
		patch.Name = &name
	}
	if in.Description != nil {
		description := strings.TrimSpace(*in.Description)
		if err := validateModeDescription(description); err != nil {
			return nil, err
		}
		patch.Description = &description
	}
	if in.IsDefault != nil {
		isDefault := *in.IsDefault
		patch.IsDefault = &isDefault
	}
	if in.Prompt != nil {
		prompt := strings.TrimSpace(*in.Prompt)
		if err := validateModePrompt(prompt); err != nil {
			return nil, err
		}
		patch.Prompt = &prompt
	}

	mode, err := s.store.UpdateMode(ctx, userID, modeID, patch, s.now().UTC())
	if err != nil {
		return nil, storeError(err, "Mode not found")
	}
	if patch.Prompt != nil && *patch.Prompt == "" {
		s.logger.Info("mode prompt removed", zap.String("user_id", userID), zap.String("mode_id", modeID))
	}
	return mode, nil
}

// Delete soft-deletes a mode. When it was the default, the oldest remaining
// mode is promoted and returned.
func (s *ModeService) Delete(ctx context.Context, userID, modeID string) (*store.Mode, error) {
	promoted, err := s.store.DeleteMode(ctx, userID, modeID, s.now().UTC())
	if err != nil {
		return nil, storeError(err, "Mode not found")
	}
	if promoted != nil {
		s.logger.Info("default mode promoted",
			zap.String("user_id", userID),
			zap.String("deleted_mode_id", modeID),
			zap.String("promoted_mode_id", promoted.ID))
	}
	return promoted, nil
}

func (s *ModeService) SetDefault(ctx context.Context, userID, modeID string) error {
	if strings.TrimSpace(modeID) == "" {
		return newError(ErrValidation, "Mode ID is required")
	}
	if err := s.store.SetDefaultMode(ctx, userID, modeID, s.now().UTC()); err != nil {
		return storeError(err, "Mode not found")
	}
	return nil
}

// GetDefault returns the user's default mode; nil is a valid answer.
func (s *ModeService) GetDefault(ctx context.Context, userID string) (*store.Mode, error) {
	mode, err := s.store.GetDefaultMode(ctx, userID)
	if err != nil {
		return nil, storeError(err, "Mode not found")
	}
	return mode, nil
}

// ResolvePrompt returns the active custom instruction of a mode, or nil.
func (s *ModeService) ResolvePrompt(ctx context.Context, modeID string) (*store.ModePrompt, error) {
	prompt, err := s.store.GetActivePrompt(ctx, modeID)
	if err != nil {
		return nil, storeError(err, "Mode not found")
	}
	return prompt, nil
}

// Resolve turns a ModeRef into a canonical active mode owned by userID.
func (s *ModeService) Resolve(ctx context.Context, userID string, ref ModeRef) (*store.Mode, error) {
	switch ref.kind {
	case modeRefByID:
		mode, err := s.store.GetMode(ctx, ref.value)
		if err != nil {
			return nil, storeError(err, "Mode not found")
		}
		if mode == nil {
			return nil, newError(ErrNotFound, "Mode not found")
		}
		if mode.UserID != userID {
			return nil, newError(ErrForbidden, "Access denied to this mode")
		}
		return mode, nil

	case modeRefByLegacyName:
		modes, err := s.store.ListActiveModes(ctx, userID)
		if err != nil {
			return nil, storeError(err, "Mode not found")
		}
		for i := range modes {
			if strings.ToLower(modes[i].Name) == ref.value {
				return &modes[i], nil
			}
		}
		return nil, newError(ErrNotFound, "Mode not found")

	default:
		mode, err := s.GetDefault(ctx, userID)
		if err != nil {
			return nil, err
		}
		if mode == nil {
			return nil, newError(ErrNoDefaultMode, "No default mode found. Please create a mode first.")
		}
		return mode, nil
	}
}
