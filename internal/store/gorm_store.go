package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// GormStore implements Store using GORM. Production runs it on Postgres;
// tests open it on the GORM SQLite dialector.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens a Postgres database and runs migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	return OpenGormStore(postgres.Open(dsn))
}

// OpenGormStore migrates the schema on any GORM dialector.
func OpenGormStore(dialector gorm.Dialector) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if db.Dialector.Name() == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&UserModel{}, &ModeModel{}, &ModePromptModel{}, &TranslationModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	// At most one active default mode per user.
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_modes_single_default
		ON modes (user_id) WHERE is_default AND state = 'active'`).Error; err != nil {
		return nil, fmt.Errorf("create default mode index: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

// CreateUser inserts a new user.
func (s *GormStore) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = orNow(user.CreatedAt)
	user.UpdatedAt = user.CreatedAt
	if user.State == "" {
		user.State = StateActive
	}
	user.StyleExamples = nonNil(user.StyleExamples)
	user.TranslationIDs = nonNil(user.TranslationIDs)
	model := userToModel(user)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *GormStore) getUser(ctx context.Context, query string, arg any) (*User, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where(query, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return userFromModel(model), nil
}

// GetUserByID returns a user by ID regardless of state.
func (s *GormStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.getUser(ctx, "id = ?", id)
}

// GetUserByPhone returns a user by normalized phone number.
func (s *GormStore) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	return s.getUser(ctx, "phone_number = ?", phone)
}

// UpdateUserProfile writes the editable profile fields.
func (s *GormStore) UpdateUserProfile(ctx context.Context, user *User) error {
	user.UpdatedAt = orNow(user.UpdatedAt)
	res := s.db.WithContext(ctx).Model(&UserModel{}).
		Where("id = ? AND state = ?", user.ID, string(StateActive)).
		Updates(map[string]any{
			"full_name":            user.FullName,
			"email":                user.Email,
			"push_token":           user.PushToken,
			"notification_enabled": user.NotificationEnabled,
			"preferred_mode":       user.PreferredMode,
			"updated_at":           user.UpdatedAt,
		})
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendStyleExample adds one example and evicts the oldest beyond max.
func (s *GormStore) AppendStyleExample(ctx context.Context, userID, example string, max int, now time.Time) ([]string, error) {
	var examples []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model UserModel
		if err := forUpdate(tx).Where("id = ? AND state = ?", userID, string(StateActive)).First(&model).Error; err != nil {
			return translateErr(err)
		}
		examples = truncateStyleExamples(append(nonNil(model.StyleExamples), example), max)
		return tx.Model(&UserModel{}).Where("id = ?", userID).Updates(map[string]any{
			"style_examples": datatypes.JSONSlice[string](examples),
			"updated_at":     orNow(now),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return examples, nil
}

// DeactivateUser soft-deletes an account.
func (s *GormStore) DeactivateUser(ctx context.Context, userID string, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&UserModel{}).
		Where("id = ? AND state = ?", userID, string(StateActive)).
		Updates(map[string]any{"state": string(StateDeleted), "updated_at": orNow(now)})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func clearDefaultsGorm(tx *gorm.DB, userID, exceptModeID string, now time.Time) error {
	return tx.Model(&ModeModel{}).
		Where("user_id = ? AND state = ? AND is_default = ? AND id <> ?", userID, string(StateActive), true, exceptModeID).
		Updates(map[string]any{"is_default": false, "updated_at": now}).Error
}

func lockUser(tx *gorm.DB, userID string) (*UserModel, error) {
	var model UserModel
	if err := forUpdate(tx).Where("id = ? AND state = ?", userID, string(StateActive)).First(&model).Error; err != nil {
		return nil, translateErr(err)
	}
	return &model, nil
}

func createPromptGorm(tx *gorm.DB, modeID string, prompt *ModePrompt) error {
	if prompt.ID == "" {
		prompt.ID = uuid.NewString()
	}
	prompt.ModeID = modeID
	prompt.State = StateActive
	prompt.CreatedAt = orNow(prompt.CreatedAt)
	return tx.Create(&ModePromptModel{
		ID:        prompt.ID,
		ModeID:    modeID,
		Prompt:    prompt.Prompt,
		State:     string(prompt.State),
		CreatedAt: prompt.CreatedAt,
	}).Error
}

// CreateMode inserts a mode and its optional prompt. Locking the owner row
// serializes concurrent default changes for the same user.
func (s *GormStore) CreateMode(ctx context.Context, mode *Mode, prompt *ModePrompt) error {
	if mode.ID == "" {
		mode.ID = uuid.NewString()
	}
	mode.CreatedAt = orNow(mode.CreatedAt)
	mode.UpdatedAt = mode.CreatedAt
	mode.State = StateActive

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockUser(tx, mode.UserID); err != nil {
			return err
		}
		if mode.IsDefault {
			if err := clearDefaultsGorm(tx, mode.UserID, mode.ID, mode.CreatedAt); err != nil {
				return fmt.Errorf("clear default modes: %w", err)
			}
		}
		model := modeToModel(mode)
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("create mode: %w", translateErr(err))
		}
		if prompt != nil {
			return createPromptGorm(tx, mode.ID, prompt)
		}
		return nil
	})
}

// GetMode returns an active mode.
func (s *GormStore) GetMode(ctx context.Context, modeID string) (*Mode, error) {
	var model ModeModel
	if err := s.db.WithContext(ctx).Where("id = ? AND state = ?", modeID, string(StateActive)).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return modeFromModel(model), nil
}

// UpdateMode applies patch under the owner's row lock. Only supplied columns
// are written, and the prompt is replaced in the same transaction.
func (s *GormStore) UpdateMode(ctx context.Context, userID, modeID string, patch ModePatch, now time.Time) (*Mode, error) {
	now = orNow(now)
	var updated *Mode
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockUser(tx, userID); err != nil {
			return err
		}
		var model ModeModel
		if err := forUpdate(tx).Where("id = ? AND user_id = ? AND state = ?", modeID, userID, string(StateActive)).First(&model).Error; err != nil {
			return translateErr(err)
		}

		changes := map[string]any{"updated_at": now}
		if patch.Name != nil {
			model.Name = *patch.Name
			changes["name"] = model.Name
		}
		if patch.Description != nil {
			model.Description = *patch.Description
			changes["description"] = model.Description
		}
		if patch.IsDefault != nil {
			if *patch.IsDefault {
				if err := clearDefaultsGorm(tx, userID, modeID, now); err != nil {
					return fmt.Errorf("clear default modes: %w", err)
				}
			}
			model.IsDefault = *patch.IsDefault
			changes["is_default"] = model.IsDefault
		}
		if err := tx.Model(&ModeModel{}).Where("id = ?", modeID).Updates(changes).Error; err != nil {
			return fmt.Errorf("update mode: %w", err)
		}
		model.UpdatedAt = now

		if patch.Prompt != nil {
			if err := tx.Model(&ModePromptModel{}).
				Where("mode_id = ? AND state = ?", modeID, string(StateActive)).
				Update("state", string(StateDeleted)).Error; err != nil {
				return fmt.Errorf("retire mode prompt: %w", err)
			}
			if *patch.Prompt != "" {
				if err := createPromptGorm(tx, modeID, &ModePrompt{Prompt: *patch.Prompt, CreatedAt: now}); err != nil {
					return fmt.Errorf("create mode prompt: %w", err)
				}
			}
		}
		updated = modeFromModel(model)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteMode soft-deletes a mode with its prompts. When the default is
// removed the oldest remaining active mode is promoted and returned.
func (s *GormStore) DeleteMode(ctx context.Context, userID, modeID string, now time.Time) (*Mode, error) {
	now = orNow(now)
	var promoted *Mode
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockUser(tx, userID); err != nil {
			return err
		}
		var target ModeModel
		if err := tx.Where("id = ? AND user_id = ? AND state = ?", modeID, userID, string(StateActive)).First(&target).Error; err != nil {
			return translateErr(err)
		}
		if err := tx.Model(&ModeModel{}).Where("id = ?", modeID).Updates(map[string]any{
			"state":      string(StateDeleted),
			"is_default": false,
			"updated_at": now,
		}).Error; err != nil {
			return fmt.Errorf("delete mode: %w", err)
		}

		if target.IsDefault {
			var next ModeModel
			err := tx.Where("user_id = ? AND state = ?", userID, string(StateActive)).
				Order("created_at ASC").Order("id ASC").
				First(&next).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
			case err != nil:
				return fmt.Errorf("pick replacement default: %w", err)
			default:
				if err := tx.Model(&ModeModel{}).Where("id = ?", next.ID).Updates(map[string]any{
					"is_default": true,
					"updated_at": now,
				}).Error; err != nil {
					return fmt.Errorf("promote default mode: %w", err)
				}
				next.IsDefault = true
				next.UpdatedAt = now
				promoted = modeFromModel(next)
			}
		}

		if err := tx.Model(&ModePromptModel{}).Where("mode_id = ?", modeID).Update("state", string(StateDeleted)).Error; err != nil {
			return fmt.Errorf("cascade mode prompts: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}

// SetDefaultMode makes modeID the user's only default.
func (s *GormStore) SetDefaultMode(ctx context.Context, userID, modeID string, now time.Time) error {
	now = orNow(now)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockUser(tx, userID); err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&ModeModel{}).Where("id = ? AND user_id = ? AND state = ?", modeID, userID, string(StateActive)).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		if err := clearDefaultsGorm(tx, userID, modeID, now); err != nil {
			return fmt.Errorf("clear default modes: %w", err)
		}
		return tx.Model(&ModeModel{}).Where("id = ?", modeID).Updates(map[string]any{
			"is_default": true,
			"updated_at": now,
		}).Error
	})
}

// ListActiveModes returns the default first, then newest first.
func (s *GormStore) ListActiveModes(ctx context.Context, userID string) ([]Mode, error) {
	var models []ModeModel
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND state = ?", userID, string(StateActive)).
		Order("is_default DESC").Order("created_at DESC").Order("id DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	modes := make([]Mode, 0, len(models))
	for _, m := range models {
		modes = append(modes, *modeFromModel(m))
	}
	return modes, nil
}

// GetDefaultMode returns the user's active default, or nil.
func (s *GormStore) GetDefaultMode(ctx context.Context, userID string) (*Mode, error) {
	var model ModeModel
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_default = ? AND state = ?", userID, true, string(StateActive)).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return modeFromModel(model), nil
}

// GetActivePrompt returns the newest active prompt of a mode, or nil.
func (s *GormStore) GetActivePrompt(ctx context.Context, modeID string) (*ModePrompt, error) {
	var model ModePromptModel
	if err := s.db.WithContext(ctx).
		Where("mode_id = ? AND state = ?", modeID, string(StateActive)).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return promptFromModel(model), nil
}

// CreateTranslation stores a translation and appends it to the owner's history.
func (s *GormStore) CreateTranslation(ctx context.Context, t *Translation) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = orNow(t.CreatedAt)
	t.UpdatedAt = t.CreatedAt
	t.State = StateActive

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owner, err := lockUser(tx, t.UserID)
		if err != nil {
			return err
		}
		model := translationToModel(t)
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("create translation: %w", err)
		}
		history := append(nonNil(owner.TranslationIDs), t.ID)
		return tx.Model(&UserModel{}).Where("id = ?", t.UserID).Updates(map[string]any{
			"translation_ids": datatypes.JSONSlice[string](history),
			"updated_at":      t.CreatedAt,
		}).Error
	})
}

// GetTranslation returns an active translation owned by userID, or nil.
func (s *GormStore) GetTranslation(ctx context.Context, userID, id string) (*Translation, error) {
	var model TranslationModel
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ? AND state = ?", id, userID, string(StateActive)).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return translationFromModel(model), nil
}

// AppendTranslationOutputs adds regenerated variants to an existing translation.
func (s *GormStore) AppendTranslationOutputs(ctx context.Context, userID, id string, outputs []string, now time.Time) (*Translation, error) {
	now = orNow(now)
	var result *Translation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model TranslationModel
		if err := forUpdate(tx).Where("id = ? AND user_id = ? AND state = ?", id, userID, string(StateActive)).First(&model).Error; err != nil {
			return translateErr(err)
		}
		model.Outputs = append(model.Outputs, outputs...)
		model.UpdatedAt = now
		if err := tx.Model(&TranslationModel{}).Where("id = ?", id).Updates(map[string]any{
			"outputs":    model.Outputs,
			"updated_at": now,
		}).Error; err != nil {
			return fmt.Errorf("append outputs: %w", err)
		}
		result = translationFromModel(model)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SetSelectedOutput records which output variant the user kept.
func (s *GormStore) SetSelectedOutput(ctx context.Context, userID, id string, index int, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&TranslationModel{}).
		Where("id = ? AND user_id = ? AND state = ?", id, userID, string(StateActive)).
		Updates(map[string]any{"selected_index": index, "updated_at": orNow(now)})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTranslations returns one page of active translations, newest first.
func (s *GormStore) ListTranslations(ctx context.Context, userID string, limit, skip int) ([]Translation, error) {
	var models []TranslationModel
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND state = ?", userID, string(StateActive)).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).Offset(skip).
		Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]Translation, 0, len(models))
	for _, m := range models {
		items = append(items, *translationFromModel(m))
	}
	return items, nil
}

// DeactivateTranslation soft-deletes a translation.
func (s *GormStore) DeactivateTranslation(ctx context.Context, userID, id string, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&TranslationModel{}).
		Where("id = ? AND user_id = ? AND state = ?", id, userID, string(StateActive)).
		Updates(map[string]any{"state": string(StateDeleted), "updated_at": orNow(now)})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountTranslationsByMode groups active translations by mode name.
func (s *GormStore) CountTranslationsByMode(ctx context.Context, userID string) ([]ModeCount, error) {
	var rows []struct {
		ModeName string
		Count    int
	}
	if err := s.db.WithContext(ctx).Model(&TranslationModel{}).
		Select("mode_name, COUNT(*) AS count").
		Where("user_id = ? AND state = ?", userID, string(StateActive)).
		Group("mode_name").Order("mode_name").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make([]ModeCount, 0, len(rows))
	for _, r := range rows {
		counts = append(counts, ModeCount{Mode: r.ModeName, Count: r.Count})
	}
	return counts, nil
}
