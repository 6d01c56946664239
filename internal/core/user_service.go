package core

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"clearr.app/backend/internal/store"
	"clearr.app/backend/internal/utils"
)

type UserService struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewUserService(s store.Store, logger *zap.Logger, now func() time.Time) *UserService {
	if now == nil {
		now = time.Now
	}
	return &UserService{store: s, logger: logger, now: now}
}

// ProfileUpdate carries optional profile fields; nil means unchanged.
type ProfileUpdate struct {
	FullName            *string
	Email               *string
	PreferredMode       *string
	NotificationEnabled *bool
	PushToken           *string
}

type UserStats struct {
	TotalTranslations  int            `json:"totalTranslations"`
	TranslationsByMode map[string]int `json:"translationsByMode"`
	JoinedDate         time.Time      `json:"joinedDate"`
}

func (s *UserService) Get(ctx context.Context, userID string) (*store.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, storeError(err, "User not found")
	}
	if !user.IsActive() {
		return nil, newError(ErrNotFound, "User not found")
	}
	return user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*store.User, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		switch {
		case email == "":
			user.Email = nil
		case !utils.ValidEmail(email):
			return nil, newError(ErrValidation, "Invalid email format")
		default:
			user.Email = &email
		}
	}
	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		if utf8.RuneCountInString(name) < 2 {
			return nil, newError(ErrValidation, "Full name must be at least 2 characters")
		}
		user.FullName = name
	}
	if in.PreferredMode != nil {
		mode := strings.ToLower(strings.TrimSpace(*in.PreferredMode))
		if !IsBuiltinMode(mode) {
			return nil, newError(ErrValidation, "Preferred mode must be professional, personal, or casual")
		}
		user.PreferredMode = mode
	}
	if in.NotificationEnabled != nil {
		user.NotificationEnabled = *in.NotificationEnabled
	}
	if in.PushToken != nil {
		token := strings.TrimSpace(*in.PushToken)
		if token == "" {
			user.PushToken = nil
		} else {
			user.PushToken = &token
		}
	}

	user.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateUserProfile(ctx, user); err != nil {
		return nil, storeError(err, "User not found")
	}
	return user, nil
}

// CompleteOnboarding stores the first-run choices, defaulting to the
// personal mode with notifications on.
func (s *UserService) CompleteOnboarding(ctx context.Context, userID string, preferredMode *string, notificationEnabled *bool) (*store.User, error) {
	mode := ModePersonal
	if preferredMode != nil && strings.TrimSpace(*preferredMode) != "" {
		mode = *preferredMode
	}
	enabled := true
	if notificationEnabled != nil {
		enabled = *notificationEnabled
	}
	return s.UpdateProfile(ctx, userID, ProfileUpdate{PreferredMode: &mode, NotificationEnabled: &enabled})
}

// AddStyleExample appends a context-training sample. Only the newest
// store.MaxStyleExamples are kept.
func (s *UserService) AddStyleExample(ctx context.Context, userID, example string) ([]string, error) {
	example = strings.TrimSpace(example)
	if example == "" {
		return nil, newError(ErrValidation, "Context example is required")
	}
	if utf8.RuneCountInString(example) > MaxTranslationInputLen {
		return nil, newError(ErrValidation, "Context example must be at most 10000 characters")
	}
	examples, err := s.store.AppendStyleExample(ctx, userID, example, store.MaxStyleExamples, s.now().UTC())
	if err != nil {
		return nil, storeError(err, "User not found")
	}
	return examples, nil
}

func (s *UserService) Stats(ctx context.Context, userID string) (*UserStats, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.CountTranslationsByMode(ctx, userID)
	if err != nil {
		return nil, storeError(err, "User not found")
	}

	stats := &UserStats{
		TranslationsByMode: map[string]int{ModeProfessional: 0, ModePersonal: 0, ModeCasual: 0},
		JoinedDate:         user.CreatedAt,
	}
	for _, c := range counts {
		stats.TranslationsByMode[c.Mode] += c.Count
		stats.TotalTranslations += c.Count
	}
	return stats, nil
}

// Deactivate soft-deletes the account. confirm must be explicitly true.
func (s *UserService) Deactivate(ctx context.Context, userID string, confirm bool, reason string) error {
	if !confirm {
		return newError(ErrValidation, "Account deletion must be confirmed")
	}
	if err := s.store.DeactivateUser(ctx, userID, s.now().UTC()); err != nil {
		return storeError(err, "User not found")
	}
	fields := []zap.Field{zap.String("user_id", userID)}
	if reason = strings.TrimSpace(reason); reason != "" {
		fields = append(fields, zap.String("reason", reason))
	}
	s.logger.Info("account deactivated", fields...)
	return nil
}
