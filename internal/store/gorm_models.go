package store

import (
	"time"

	"gorm.io/datatypes"
)

type UserModel struct {
	ID                  string  `gorm:"primaryKey"`
	PhoneNumber         string  `gorm:"uniqueIndex;not null"`
	FullName            string  `gorm:"not null"`
	Email               *string `gorm:"uniqueIndex"`
	PushToken           *string
	NotificationEnabled bool                        `gorm:"not null"`
	PreferredMode       string                      `gorm:"not null"`
	StyleExamples       datatypes.JSONSlice[string] `gorm:"not null"`
	TranslationIDs      datatypes.JSONSlice[string] `gorm:"not null"`
	State               string                      `gorm:"not null;index"`
	IsVerified          bool                        `gorm:"not null"`
	CreatedAt           time.Time                   `gorm:"not null"`
	UpdatedAt           time.Time                   `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type ModeModel struct {
	ID          string    `gorm:"primaryKey"`
	UserID      string    `gorm:"not null;index:idx_modes_user_state"`
	Name        string    `gorm:"not null"`
	Description string    `gorm:"not null"`
	IsDefault   bool      `gorm:"not null"`
	State       string    `gorm:"not null;index:idx_modes_user_state"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (ModeModel) TableName() string { return "modes" }

type ModePromptModel struct {
	ID        string    `gorm:"primaryKey"`
	ModeID    string    `gorm:"not null;index:idx_mode_prompts_mode_state"`
	Prompt    string    `gorm:"type:text;not null"`
	State     string    `gorm:"not null;index:idx_mode_prompts_mode_state"`
	CreatedAt time.Time `gorm:"not null"`
}

func (ModePromptModel) TableName() string { return "mode_prompts" }

type TranslationModel struct {
	ID            string                      `gorm:"primaryKey"`
	UserID        string                      `gorm:"not null;index:idx_translations_user_state_created,priority:1"`
	ModeID        string                      `gorm:"index"`
	ModeName      string                      `gorm:"not null"`
	Input         string                      `gorm:"type:text;not null"`
	Outputs       datatypes.JSONSlice[string] `gorm:"not null"`
	SelectedIndex int                         `gorm:"not null"`
	State         string                      `gorm:"not null;index:idx_translations_user_state_created,priority:2"`
	CreatedAt     time.Time                   `gorm:"not null;index:idx_translations_user_state_created,priority:3"`
	UpdatedAt     time.Time                   `gorm:"not null"`
}

func (TranslationModel) TableName() string { return "translations" }

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func userToModel(u *User) UserModel {
	return UserModel{
		ID:                  u.ID,
		PhoneNumber:         u.PhoneNumber,
		FullName:            u.FullName,
		Email:               u.Email,
		PushToken:           u.PushToken,
		NotificationEnabled: u.NotificationEnabled,
		PreferredMode:       u.PreferredMode,
		StyleExamples:       datatypes.JSONSlice[string](nonNil(u.StyleExamples)),
		TranslationIDs:      datatypes.JSONSlice[string](nonNil(u.TranslationIDs)),
		State:               string(u.State),
		IsVerified:          u.IsVerified,
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
}

func userFromModel(m UserModel) *User {
	return &User{
		ID:                  m.ID,
		PhoneNumber:         m.PhoneNumber,
		FullName:            m.FullName,
		Email:               m.Email,
		PushToken:           m.PushToken,
		NotificationEnabled: m.NotificationEnabled,
		PreferredMode:       m.PreferredMode,
		StyleExamples:       nonNil(m.StyleExamples),
		TranslationIDs:      nonNil(m.TranslationIDs),
		State:               Lifecycle(m.State),
		IsVerified:          m.IsVerified,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

func modeToModel(m *Mode) ModeModel {
	return ModeModel{
		ID:          m.ID,
		UserID:      m.UserID,
		Name:        m.Name,
		Description: m.Description,
		IsDefault:   m.IsDefault,
		State:       string(m.State),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func modeFromModel(m ModeModel) *Mode {
	return &Mode{
		ID:          m.ID,
		UserID:      m.UserID,
		Name:        m.Name,
		Description: m.Description,
		IsDefault:   m.IsDefault,
		State:       Lifecycle(m.State),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func promptFromModel(m ModePromptModel) *ModePrompt {
	return &ModePrompt{
		ID:        m.ID,
		ModeID:    m.ModeID,
		Prompt:    m.Prompt,
		State:     Lifecycle(m.State),
		CreatedAt: m.CreatedAt,
	}
}

func translationToModel(t *Translation) TranslationModel {
	return TranslationModel{
		ID:            t.ID,
		UserID:        t.UserID,
		ModeID:        t.ModeID,
		ModeName:      t.ModeName,
		Input:         t.Input,
		Outputs:       datatypes.JSONSlice[string](nonNil(t.Outputs)),
		SelectedIndex: t.SelectedIndex,
		State:         string(t.State),
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func translationFromModel(m TranslationModel) *Translation {
	return &Translation{
		ID:            m.ID,
		UserID:        m.UserID,
		ModeID:        m.ModeID,
		ModeName:      m.ModeName,
		Input:         m.Input,
		Outputs:       nonNil(m.Outputs),
		SelectedIndex: m.SelectedIndex,
		State:         Lifecycle(m.State),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
