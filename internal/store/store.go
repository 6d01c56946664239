package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by mutations whose target row is missing,
	// inactive or owned by someone else.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("record already exists")
)

// Store defines persistence for users, modes, mode prompts and translations.
// Lookups return (nil, nil) when nothing matches. Every multi-step mutation
// is executed in a single transaction.
type Store interface {
	// users
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByPhone(ctx context.Context, phone string) (*User, error)
	UpdateUserProfile(ctx context.Context, user *User) error
	AppendStyleExample(ctx context.Context, userID, example string, max int, now time.Time) ([]string, error)
	DeactivateUser(ctx context.Context, userID string, now time.Time) error

	// modes
	CreateMode(ctx context.Context, mode *Mode, prompt *ModePrompt) error
	GetMode(ctx context.Context, modeID string) (*Mode, error)
	UpdateMode(ctx context.Context, userID, modeID string, patch ModePatch, now time.Time) (*Mode, error)
	DeleteMode(ctx context.Context, userID, modeID string, now time.Time) (*Mode, error)
	SetDefaultMode(ctx context.Context, userID, modeID string, now time.Time) error
	ListActiveModes(ctx context.Context, userID string) ([]Mode, error)
	GetDefaultMode(ctx context.Context, userID string) (*Mode, error)
	GetActivePrompt(ctx context.Context, modeID string) (*ModePrompt, error)

	// translations
	CreateTranslation(ctx context.Context, t *Translation) error
	GetTranslation(ctx context.Context, userID, id string) (*Translation, error)
	AppendTranslationOutputs(ctx context.Context, userID, id string, outputs []string, now time.Time) (*Translation, error)
	SetSelectedOutput(ctx context.Context, userID, id string, index int, now time.Time) error
	ListTranslations(ctx context.Context, userID string, limit, skip int) ([]Translation, error)
	DeactivateTranslation(ctx context.Context, userID, id string, now time.Time) error
	CountTranslationsByMode(ctx context.Context, userID string) ([]ModeCount, error)

	Close() error
}

// Open picks the backend from the database URL: postgres:// and
// postgresql:// go to GORM/Postgres, anything else is a SQLite path.
func Open(databaseURL string) (Store, error) {
	if IsPostgresURL(databaseURL) {
		return NewGormStore(databaseURL)
	}
	return NewSQLiteStore(databaseURL)
}

func IsPostgresURL(databaseURL string) bool {
	u := strings.ToLower(strings.TrimSpace(databaseURL))
	return strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://")
}

// truncateStyleExamples keeps the newest max entries.
func truncateStyleExamples(examples []string, max int) []string {
	if max <= 0 || len(examples) <= max {
		return examples
	}
	return append([]string(nil), examples[len(examples)-max:]...)
}
