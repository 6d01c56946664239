package core

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"clearr.app/backend/internal/store"
)

const (
	MaxTranslationInputLen = 10000
	DefaultHistoryLimit    = 20
	MaxHistoryLimit        = 100

	DefaultGenerationTimeout = 30 * time.Second
)

// TranslationService is the orchestrator of the rewrite pipeline: resolve
// mode and prompt, screen the input, compose, generate, persist.
type TranslationService struct {
	store     store.Store
	modes     *ModeService
	generator Generator
	timeout   time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewTranslationService(s store.Store, modes *ModeService, generator Generator, timeout time.Duration, logger *zap.Logger, now func() time.Time) *TranslationService {
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &TranslationService{
		store:     s,
		modes:     modes,
		generator: generator,
		timeout:   timeout,
		logger:    logger,
		now:       now,
	}
}

type TranslateResult struct {
	Translation       *store.Translation `json:"translation"`
	TranslationOutput []string           `json:"translationOutput"`
}

type RegenerateResult struct {
	Translation *store.Translation `json:"translation"`
	NewOutput   []string           `json:"newOutput"`
}

func (s *TranslationService) activeUser(ctx context.Context, userID, notFoundMessage string) (*store.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, storeError(err, notFoundMessage)
	}
	if !user.IsActive() {
		return nil, newError(ErrNotFound, notFoundMessage)
	}
	return user, nil
}

// generate calls the model with a bounded timeout. Nothing is written
// before it succeeds.
func (s *TranslationService) generate(ctx context.Context, user *store.User, mode *store.Mode, input string) ([]string, error) {
	prompt, err := s.modes.ResolvePrompt(ctx, mode.ID)
	if err != nil {
		return nil, err
	}
	var instruction string
	if prompt != nil {
		instruction = prompt.Prompt
	}
	composed := Compose(input, mode.Name, mode.Description, instruction, user.StyleExamples)

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.now()
	outputs, err := s.generator.Generate(genCtx, composed)
	if err != nil {
		s.logger.Error("generation failed",
			zap.String("user_id", user.ID),
			zap.String("mode_id", mode.ID),
			zap.Error(err))
		return nil, wrapError(ErrGeneration, "Failed to process translation", err)
	}
	if len(outputs) == 0 {
		return nil, wrapError(ErrGeneration, "Failed to process translation", errEmptyCompletion)
	}
	s.logger.Debug("generation completed",
		zap.String("mode_id", mode.ID),
		zap.Int("outputs", len(outputs)),
		zap.Duration("took", s.now().Sub(start)))
	return outputs, nil
}

func (s *TranslationService) Translate(ctx context.Context, userID, input string, ref ModeRef) (*TranslateResult, error) {
	if strings.TrimSpace(input) == "" {
		return nil, newError(ErrValidation, "Translation input is required")
	}
	if utf8.RuneCountInString(input) > MaxTranslationInputLen {
		return nil, newError(ErrValidation, "Translation input must be at most 10000 characters")
	}

	user, err := s.activeUser(ctx, userID, "User not found or inactive")
	if err != nil {
		return nil, err
	}
	mode, err := s.modes.Resolve(ctx, userID, ref)
	if err != nil {
		return nil, err
	}
	if ShouldBlock(input) {
		s.logger.Info("translation blocked by safety filter", zap.String("user_id", userID))
		return nil, newError(ErrContentBlocked, "Cannot process this type of content")
	}

	outputs, err := s.generate(ctx, user, mode, input)
	if err != nil {
		return nil, err
	}

	translation := &store.Translation{
		UserID:    userID,
		ModeID:    mode.ID,
		ModeName:  mode.Name,
		Input:     input,
		Outputs:   outputs,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateTranslation(ctx, translation); err != nil {
		return nil, storeError(err, "User not found or inactive")
	}
	s.logger.Info("translation created",
		zap.String("user_id", userID),
		zap.String("translation_id", translation.ID),
		zap.String("mode", mode.Name))
	return &TranslateResult{Translation: translation, TranslationOutput: outputs}, nil
}

// Regenerate reruns the original input through the user's current default
// mode and appends the new outputs to the existing ones.
func (s *TranslationService) Regenerate(ctx context.Context, userID, translationID string) (*RegenerateResult, error) {
	translation, err := s.Get(ctx, userID, translationID)
	if err != nil {
		return nil, err
	}
	user, err := s.activeUser(ctx, userID, "User not found")
	if err != nil {
		return nil, err
	}
	mode, err := s.modes.Resolve(ctx, userID, DefaultMode())
	if err != nil {
		return nil, err
	}

	outputs, err := s.generate(ctx, user, mode, translation.Input)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.AppendTranslationOutputs(ctx, userID, translationID, outputs, s.now().UTC())
	if err != nil {
		return nil, storeError(err, "Translation not found")
	}
	return &RegenerateResult{Translation: updated, NewOutput: outputs}, nil
}

func (s *TranslationService) Get(ctx context.Context, userID, translationID string) (*store.Translation, error) {
	translation, err := s.store.GetTranslation(ctx, userID, translationID)
	if err != nil {
		return nil, storeError(err, "Translation not found")
	}
	if translation == nil {
		return nil, newError(ErrNotFound, "Translation not found")
	}
	return translation, nil
}

// History returns active translations newest first. limit defaults to 20
// and is capped at 100.
func (s *TranslationService) History(ctx context.Context, userID string, limit, skip int) ([]store.Translation, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if skip < 0 {
		skip = 0
	}
	items, err := s.store.ListTranslations(ctx, userID, limit, skip)
	if err != nil {
		return nil, storeError(err, "User not found")
	}
	return items, nil
}

// Delete soft-deletes a translation. The id stays in the user's history list.
func (s *TranslationService) Delete(ctx context.Context, userID, translationID string) error {
	if err := s.store.DeactivateTranslation(ctx, userID, translationID, s.now().UTC()); err != nil {
		return storeError(err, "Translation not found")
	}
	return nil
}

// SelectOutput records which output variant the user kept.
func (s *TranslationService) SelectOutput(ctx context.Context, userID, translationID string, index int) (*store.Translation, error) {
	translation, err := s.Get(ctx, userID, translationID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(translation.Outputs) {
		return nil, newError(ErrValidation, "Selected version is out of range")
	}
	now := s.now().UTC()
	if err := s.store.SetSelectedOutput(ctx, userID, translationID, index, now); err != nil {
		return nil, storeError(err, "Translation not found")
	}
	translation.SelectedIndex = index
	translation.UpdatedAt = now
	return translation, nil
}
