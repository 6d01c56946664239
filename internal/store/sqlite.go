package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: writers are serialized and ":memory:" databases stay
	// visible to every query.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY, -- UUID
        phone_number TEXT UNIQUE NOT NULL,
        full_name TEXT NOT NULL,
        email TEXT,
        push_token TEXT,
        notification_enabled BOOLEAN NOT NULL DEFAULT TRUE,
        preferred_mode TEXT NOT NULL DEFAULT 'personal',
        style_examples_json TEXT NOT NULL DEFAULT '[]',
        translation_ids_json TEXT NOT NULL DEFAULT '[]',
        state TEXT NOT NULL DEFAULT 'active' CHECK (state IN ('active', 'deleted')),
        is_verified BOOLEAN NOT NULL DEFAULT FALSE,
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL
    );
    CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users (email) WHERE email IS NOT NULL;

    CREATE TABLE IF NOT EXISTS modes (
        id TEXT PRIMARY KEY, -- UUID
        user_id TEXT NOT NULL,
        name TEXT NOT NULL,
        description TEXT NOT NULL,
        is_default BOOLEAN NOT NULL DEFAULT FALSE,
        state TEXT NOT NULL DEFAULT 'active' CHECK (state IN ('active', 'deleted')),
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );
    CREATE INDEX IF NOT EXISTS idx_modes_user_state ON modes (user_id, state);
    CREATE UNIQUE INDEX IF NOT EXISTS idx_modes_single_default ON modes (user_id) WHERE is_default AND state = 'active';

    CREATE TABLE IF NOT EXISTS mode_prompts (
        id TEXT PRIMARY KEY, -- UUID
        mode_id TEXT NOT NULL,
        prompt TEXT NOT NULL,
        state TEXT NOT NULL DEFAULT 'active' CHECK (state IN ('active', 'deleted')),
        created_at DATETIME NOT NULL,
        FOREIGN KEY (mode_id) REFERENCES modes (id)
    );
    CREATE INDEX IF NOT EXISTS idx_mode_prompts_mode_state ON mode_prompts (mode_id, state);

    CREATE TABLE IF NOT EXISTS translations (
        id TEXT PRIMARY KEY, -- UUID
        user_id TEXT NOT NULL,
        mode_id TEXT,
        mode_name TEXT NOT NULL,
        input TEXT NOT NULL,
        outputs_json TEXT NOT NULL DEFAULT '[]', -- JSON array of strings
        selected_index INTEGER NOT NULL DEFAULT 0,
        state TEXT NOT NULL DEFAULT 'active' CHECK (state IN ('active', 'deleted')),
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );
    CREATE INDEX IF NOT EXISTS idx_translations_user_state_created ON translations (user_id, state, created_at);
    `
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

// User methods

const userColumns = `id, phone_number, full_name, email, push_token, notification_enabled, preferred_mode,
        style_examples_json, translation_ids_json, state, is_verified, created_at, updated_at`

func scanUser(row rowScanner) (*User, error) {
	var (
		user           User
		email, push    sql.NullString
		examplesJSON   string
		translationIDs string
	)
	err := row.Scan(&user.ID, &user.PhoneNumber, &user.FullName, &email, &push, &user.NotificationEnabled,
		&user.PreferredMode, &examplesJSON, &translationIDs, &user.State, &user.IsVerified, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if email.Valid {
		user.Email = &email.String
	}
	if push.Valid {
		user.PushToken = &push.String
	}
	if err := json.Unmarshal([]byte(examplesJSON), &user.StyleExamples); err != nil {
		return nil, fmt.Errorf("failed to unmarshal style examples for user %s: %w", user.ID, err)
	}
	if err := json.Unmarshal([]byte(translationIDs), &user.TranslationIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal translation ids for user %s: %w", user.ID, err)
	}
	return &user, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = orNow(user.CreatedAt)
	user.UpdatedAt = user.CreatedAt
	if user.State == "" {
		user.State = StateActive
	}
	if user.StyleExamples == nil {
		user.StyleExamples = []string{}
	}
	if user.TranslationIDs == nil {
		user.TranslationIDs = []string{}
	}
	examples, err := json.Marshal(user.StyleExamples)
	if err != nil {
		return fmt.Errorf("failed to marshal style examples: %w", err)
	}
	history, err := json.Marshal(user.TranslationIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal translation ids: %w", err)
	}

	stmt, err := s.db.PrepareContext(ctx, `INSERT INTO users (`+userColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare user insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, user.ID, user.PhoneNumber, user.FullName, user.Email, user.PushToken,
		user.NotificationEnabled, user.PreferredMode, string(examples), string(history), string(user.State),
		user.IsVerified, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to execute user insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

func (s *SQLiteStore) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE phone_number = ?", phone))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query user by phone: %w", err)
	}
	return user, nil
}

func (s *SQLiteStore) UpdateUserProfile(ctx context.Context, user *User) error {
	user.UpdatedAt = orNow(user.UpdatedAt)
	res, err := s.db.ExecContext(ctx, `UPDATE users
        SET full_name = ?, email = ?, push_token = ?, notification_enabled = ?, preferred_mode = ?, updated_at = ?
        WHERE id = ? AND state = 'active'`,
		user.FullName, user.Email, user.PushToken, user.NotificationEnabled, user.PreferredMode, user.UpdatedAt, user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) AppendStyleExample(ctx context.Context, userID, example string, max int, now time.Time) ([]string, error) {
	var examples []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx, "SELECT style_examples_json FROM users WHERE id = ? AND state = 'active'", userID).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load style examples: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &examples); err != nil {
			return fmt.Errorf("failed to unmarshal style examples: %w", err)
		}
		examples = truncateStyleExamples(append(examples, example), max)
		updated, err := json.Marshal(examples)
		if err != nil {
			return fmt.Errorf("failed to marshal style examples: %w", err)
		}
		_, err = tx.ExecContext(ctx, "UPDATE users SET style_examples_json = ?, updated_at = ? WHERE id = ?", string(updated), orNow(now), userID)
		if err != nil {
			return fmt.Errorf("failed to save style examples: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return examples, nil
}

func (s *SQLiteStore) DeactivateUser(ctx context.Context, userID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET state = 'deleted', updated_at = ? WHERE id = ? AND state = 'active'", orNow(now), userID)
	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Mode methods

const modeColumns = "id, user_id, name, description, is_default, state, created_at, updated_at"

func scanMode(row rowScanner) (*Mode, error) {
	var mode Mode
	if err := row.Scan(&mode.ID, &mode.UserID, &mode.Name, &mode.Description, &mode.IsDefault, &mode.State, &mode.CreatedAt, &mode.UpdatedAt); err != nil {
		return nil, err
	}
	return &mode, nil
}

func clearDefaults(ctx context.Context, tx *sql.Tx, userID, exceptModeID string, now time.Time) error {
	_, err := tx.ExecContext(ctx, `UPDATE modes SET is_default = FALSE, updated_at = ?
        WHERE user_id = ? AND state = 'active' AND is_default AND id <> ?`, now, userID, exceptModeID)
	if err != nil {
		return fmt.Errorf("failed to clear default modes: %w", err)
	}
	return nil
}

func insertPrompt(ctx context.Context, tx *sql.Tx, modeID string, prompt *ModePrompt) error {
	if prompt.ID == "" {
		prompt.ID = uuid.NewString()
	}
	prompt.ModeID = modeID
	prompt.State = StateActive
	prompt.CreatedAt = orNow(prompt.CreatedAt)
	_, err := tx.ExecContext(ctx, "INSERT INTO mode_prompts (id, mode_id, prompt, state, created_at) VALUES (?, ?, ?, ?, ?)",
		prompt.ID, prompt.ModeID, prompt.Prompt, string(prompt.State), prompt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert mode prompt: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateMode(ctx context.Context, mode *Mode, prompt *ModePrompt) error {
	if mode.ID == "" {
		mode.ID = uuid.NewString()
	}
	mode.CreatedAt = orNow(mode.CreatedAt)
	mode.UpdatedAt = mode.CreatedAt
	mode.State = StateActive

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM users WHERE id = ? AND state = 'active'", mode.UserID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to verify mode owner: %w", err)
		}
		if mode.IsDefault {
			if err := clearDefaults(ctx, tx, mode.UserID, mode.ID, mode.CreatedAt); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx, "INSERT INTO modes ("+modeColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			mode.ID, mode.UserID, mode.Name, mode.Description, mode.IsDefault, string(mode.State), mode.CreatedAt, mode.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert mode: %w", err)
		}
		if prompt != nil {
			return insertPrompt(ctx, tx, mode.ID, prompt)
		}
		return nil
	})
}

func (s *SQLiteStore) GetMode(ctx context.Context, modeID string) (*Mode, error) {
	mode, err := scanMode(s.db.QueryRowContext(ctx, "SELECT "+modeColumns+" FROM modes WHERE id = ? AND state = 'active'", modeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get mode: %w", err)
	}
	return mode, nil
}

// UpdateMode applies patch to an active mode owned by userID. The row is
// re-read inside the transaction so unsupplied fields keep their committed
// values.
func (s *SQLiteStore) UpdateMode(ctx context.Context, userID, modeID string, patch ModePatch, now time.Time) (*Mode, error) {
	now = orNow(now)
	var updated *Mode
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		mode, err := scanMode(tx.QueryRowContext(ctx,
			"SELECT "+modeColumns+" FROM modes WHERE id = ? AND user_id = ? AND state = 'active'", modeID, userID))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load mode: %w", err)
		}

		sets := []string{"updated_at = ?"}
		args := []any{now}
		if patch.Name != nil {
			mode.Name = *patch.Name
			sets = append(sets, "name = ?")
			args = append(args, mode.Name)
		}
		if patch.Description != nil {
			mode.Description = *patch.Description
			sets = append(sets, "description = ?")
			args = append(args, mode.Description)
		}
		if patch.IsDefault != nil {
			if *patch.IsDefault {
				if err := clearDefaults(ctx, tx, userID, modeID, now); err != nil {
					return err
				}
			}
			mode.IsDefault = *patch.IsDefault
			sets = append(sets, "is_default = ?")
			args = append(args, mode.IsDefault)
		}
		args = append(args, modeID)
		if _, err := tx.ExecContext(ctx, "UPDATE modes SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
			return fmt.Errorf("failed to update mode: %w", err)
		}
		mode.UpdatedAt = now

		if patch.Prompt != nil {
			if _, err := tx.ExecContext(ctx, "UPDATE mode_prompts SET state = 'deleted' WHERE mode_id = ? AND state = 'active'", modeID); err != nil {
				return fmt.Errorf("failed to retire mode prompt: %w", err)
			}
			if *patch.Prompt != "" {
				if err := insertPrompt(ctx, tx, modeID, &ModePrompt{Prompt: *patch.Prompt, CreatedAt: now}); err != nil {
					return err
				}
			}
		}
		updated = mode
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *SQLiteStore) DeleteMode(ctx context.Context, userID, modeID string, now time.Time) (*Mode, error) {
	now = orNow(now)
	var promoted *Mode
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		target, err := scanMode(tx.QueryRowContext(ctx,
			"SELECT "+modeColumns+" FROM modes WHERE id = ? AND user_id = ? AND state = 'active'", modeID, userID))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load mode: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "UPDATE modes SET state = 'deleted', is_default = FALSE, updated_at = ? WHERE id = ?", now, modeID); err != nil {
			return fmt.Errorf("failed to delete mode: %w", err)
		}

		if target.IsDefault {
			next, err := scanMode(tx.QueryRowContext(ctx, `SELECT `+modeColumns+` FROM modes
                WHERE user_id = ? AND state = 'active' ORDER BY created_at ASC, id ASC LIMIT 1`, userID))
			switch {
			case errors.Is(err, sql.ErrNoRows):
				// last mode removed; the user now has no default
			case err != nil:
				return fmt.Errorf("failed to pick replacement default: %w", err)
			default:
				if _, err := tx.ExecContext(ctx, "UPDATE modes SET is_default = TRUE, updated_at = ? WHERE id = ?", now, next.ID); err != nil {
					return fmt.Errorf("failed to promote default mode: %w", err)
				}
				next.IsDefault = true
				next.UpdatedAt = now
				promoted = next
			}
		}

		if _, err := tx.ExecContext(ctx, "UPDATE mode_prompts SET state = 'deleted' WHERE mode_id = ?", modeID); err != nil {
			return fmt.Errorf("failed to cascade mode prompts: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}

func (s *SQLiteStore) SetDefaultMode(ctx context.Context, userID, modeID string, now time.Time) error {
	now = orNow(now)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM modes WHERE id = ? AND user_id = ? AND state = 'active'", modeID, userID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to verify mode: %w", err)
		}
		if err := clearDefaults(ctx, tx, userID, modeID, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "UPDATE modes SET is_default = TRUE, updated_at = ? WHERE id = ?", now, modeID); err != nil {
			return fmt.Errorf("failed to set default mode: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) ListActiveModes(ctx context.Context, userID string) ([]Mode, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+modeColumns+` FROM modes
        WHERE user_id = ? AND state = 'active'
        ORDER BY is_default DESC, created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query modes: %w", err)
	}
	defer rows.Close()

	modes := []Mode{}
	for rows.Next() {
		mode, err := scanMode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mode row: %w", err)
		}
		modes = append(modes, *mode)
	}
	return modes, rows.Err()
}

func (s *SQLiteStore) GetDefaultMode(ctx context.Context, userID string) (*Mode, error) {
	mode, err := scanMode(s.db.QueryRowContext(ctx,
		"SELECT "+modeColumns+" FROM modes WHERE user_id = ? AND is_default AND state = 'active'", userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // a user without modes has no default
		}
		return nil, fmt.Errorf("failed to get default mode: %w", err)
	}
	return mode, nil
}

func (s *SQLiteStore) GetActivePrompt(ctx context.Context, modeID string) (*ModePrompt, error) {
	var prompt ModePrompt
	err := s.db.QueryRowContext(ctx, `SELECT id, mode_id, prompt, state, created_at FROM mode_prompts
        WHERE mode_id = ? AND state = 'active' ORDER BY created_at DESC LIMIT 1`, modeID).
		Scan(&prompt.ID, &prompt.ModeID, &prompt.Prompt, &prompt.State, &prompt.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get mode prompt: %w", err)
	}
	return &prompt, nil
}

// Translation methods

const translationColumns = "id, user_id, mode_id, mode_name, input, outputs_json, selected_index, state, created_at, updated_at"

func scanTranslation(row rowScanner) (*Translation, error) {
	var (
		t           Translation
		modeID      sql.NullString
		outputsJSON string
	)
	if err := row.Scan(&t.ID, &t.UserID, &modeID, &t.ModeName, &t.Input, &outputsJSON, &t.SelectedIndex, &t.State, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.ModeID = modeID.String
	if err := json.Unmarshal([]byte(outputsJSON), &t.Outputs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outputs for translation %s: %w", t.ID, err)
	}
	return &t, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *SQLiteStore) CreateTranslation(ctx context.Context, t *Translation) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = orNow(t.CreatedAt)
	t.UpdatedAt = t.CreatedAt
	t.State = StateActive
	outputs, err := json.Marshal(t.Outputs)
	if err != nil {
		return fmt.Errorf("failed to marshal outputs: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx, "SELECT translation_ids_json FROM users WHERE id = ? AND state = 'active'", t.UserID).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load translation history: %w", err)
		}
		var history []string
		if err := json.Unmarshal([]byte(raw), &history); err != nil {
			return fmt.Errorf("failed to unmarshal translation history: %w", err)
		}

		_, err = tx.ExecContext(ctx, "INSERT INTO translations ("+translationColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			t.ID, t.UserID, nullable(t.ModeID), t.ModeName, t.Input, string(outputs), t.SelectedIndex, string(t.State), t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert translation: %w", err)
		}

		updated, err := json.Marshal(append(history, t.ID))
		if err != nil {
			return fmt.Errorf("failed to marshal translation history: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE users SET translation_ids_json = ?, updated_at = ? WHERE id = ?", string(updated), t.CreatedAt, t.UserID); err != nil {
			return fmt.Errorf("failed to append translation history: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) GetTranslation(ctx context.Context, userID, id string) (*Translation, error) {
	t, err := scanTranslation(s.db.QueryRowContext(ctx,
		"SELECT "+translationColumns+" FROM translations WHERE id = ? AND user_id = ? AND state = 'active'", id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get translation: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) AppendTranslationOutputs(ctx context.Context, userID, id string, outputs []string, now time.Time) (*Translation, error) {
	now = orNow(now)
	var result *Translation
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := scanTranslation(tx.QueryRowContext(ctx,
			"SELECT "+translationColumns+" FROM translations WHERE id = ? AND user_id = ? AND state = 'active'", id, userID))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load translation: %w", err)
		}
		t.Outputs = append(t.Outputs, outputs...)
		raw, err := json.Marshal(t.Outputs)
		if err != nil {
			return fmt.Errorf("failed to marshal outputs: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE translations SET outputs_json = ?, updated_at = ? WHERE id = ?", string(raw), now, id); err != nil {
			return fmt.Errorf("failed to append outputs: %w", err)
		}
		t.UpdatedAt = now
		result = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SQLiteStore) SetSelectedOutput(ctx context.Context, userID, id string, index int, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE translations SET selected_index = ?, updated_at = ?
        WHERE id = ? AND user_id = ? AND state = 'active'`, index, orNow(now), id, userID)
	if err != nil {
		return fmt.Errorf("failed to set selected output: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListTranslations(ctx context.Context, userID string, limit, skip int) ([]Translation, error) {
	query := `SELECT ` + translationColumns + ` FROM translations
        WHERE user_id = ? AND state = 'active'
        ORDER BY created_at DESC, id DESC
        LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, userID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to query translations: %w", err)
	}
	defer rows.Close()

	translations := []Translation{}
	for rows.Next() {
		t, err := scanTranslation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan translation row: %w", err)
		}
		translations = append(translations, *t)
	}
	return translations, rows.Err()
}

func (s *SQLiteStore) DeactivateTranslation(ctx context.Context, userID, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE translations SET state = 'deleted', updated_at = ?
        WHERE id = ? AND user_id = ? AND state = 'active'`, orNow(now), id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete translation: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) CountTranslationsByMode(ctx context.Context, userID string) ([]ModeCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT mode_name, COUNT(*) FROM translations
        WHERE user_id = ? AND state = 'active' GROUP BY mode_name ORDER BY mode_name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count translations: %w", err)
	}
	defer rows.Close()

	counts := []ModeCount{}
	for rows.Next() {
		var c ModeCount
		if err := rows.Scan(&c.Mode, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan translation count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
