package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormsqlite "gorm.io/driver/sqlite"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func at(seconds int) time.Time { return base.Add(time.Duration(seconds) * time.Second) }

// forEachStore runs fn against every backend.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()
	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLiteStore(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
	t.Run("gorm", func(t *testing.T) {
		dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
		s, err := OpenGormStore(gormsqlite.Open(dsn))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
}

func seedUser(t *testing.T, s Store, phone string) *User {
	t.Helper()
	u := &User{PhoneNumber: phone, FullName: "Test User", PreferredMode: "personal", NotificationEnabled: true, IsVerified: true, CreatedAt: at(0)}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func seedMode(t *testing.T, s Store, userID, name string, isDefault bool, created time.Time) *Mode {
	t.Helper()
	m := &Mode{UserID: userID, Name: name, Description: name + " description", IsDefault: isDefault, CreatedAt: created}
	require.NoError(t, s.CreateMode(context.Background(), m, nil))
	return m
}

func TestUserLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		u := seedUser(t, s, "+15551234567")
		assert.NotEmpty(t, u.ID)

		got, err := s.GetUserByPhone(ctx, "+15551234567")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, StateActive, got.State)
		assert.Empty(t, got.StyleExamples)
		assert.True(t, got.NotificationEnabled)

		err = s.CreateUser(ctx, &User{PhoneNumber: "+15551234567", FullName: "Dup"})
		assert.ErrorIs(t, err, ErrDuplicate)

		missing, err := s.GetUserByID(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)

		email := "a@example.com"
		got.FullName = "Renamed"
		got.Email = &email
		got.UpdatedAt = at(5)
		require.NoError(t, s.UpdateUserProfile(ctx, got))

		reloaded, err := s.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", reloaded.FullName)
		require.NotNil(t, reloaded.Email)
		assert.Equal(t, email, *reloaded.Email)

		require.NoError(t, s.DeactivateUser(ctx, u.ID, at(10)))
		assert.ErrorIs(t, s.DeactivateUser(ctx, u.ID, at(11)), ErrNotFound)

		deleted, err := s.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, StateDeleted, deleted.State)
		assert.False(t, deleted.IsActive())
	})
}

func TestAppendStyleExampleKeepsNewest(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		u := seedUser(t, s, "+15550000001")

		var examples []string
		var err error
		for i := 0; i < MaxStyleExamples+2; i++ {
			examples, err = s.AppendStyleExample(ctx, u.ID, fmt.Sprintf("example %d", i), MaxStyleExamples, at(i))
			require.NoError(t, err)
		}
		require.Len(t, examples, MaxStyleExamples)
		assert.Equal(t, "example 2", examples[0])
		assert.Equal(t, "example 11", examples[MaxStyleExamples-1])

		_, err = s.AppendStyleExample(ctx, "missing", "x", MaxStyleExamples, at(0))
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSingleDefaultMode(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		u := seedUser(t, s, "+15550000002")

		first := seedMode(t, s, u.ID, "Work", true, at(1))
		second := seedMode(t, s, u.ID, "Family", true, at(2))
		third := seedMode(t, s, u.ID, "Friends", false, at(3))

		def, err := s.GetDefaultMode(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, def)
		assert.Equal(t, second.ID, def.ID)

		require.NoError(t, s.SetDefaultMode(ctx, u.ID, third.ID, at(4)))
		modes, err := s.ListActiveModes(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, modes, 3)
		assert.Equal(t, third.ID, modes[0].ID, "default comes first")
		assert.Equal(t, second.ID, modes[1].ID, "then newest first")
		assert.Equal(t, first.ID, modes[2].ID)

		defaults := 0
		for _, m := range modes {
			if m.IsDefault {
				defaults++
			}
		}
		assert.Equal(t, 1, defaults)

		office, yes := "Office", true
		updated, err := s.UpdateMode(ctx, u.ID, first.ID, ModePatch{Name: &office, IsDefault: &yes}, at(5))
		require.NoError(t, err)
		assert.True(t, updated.IsDefault)
		assert.Equal(t, first.Description, updated.Description)
		def, err = s.GetDefaultMode(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, def.ID)
		assert.Equal(t, "Office", def.Name)

		other := seedUser(t, s, "+15550000003")
		assert.ErrorIs(t, s.SetDefaultMode(ctx, other.ID, first.ID, at(6)), ErrNotFound)
	})
}

func TestDeleteModePromotesOldestRemaining(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		u := seedUser(t, s, "+15550000004")

		older := seedMode(t, s, u.ID, "Older", false, at(1))
		seedMode(t, s, u.ID, "Newer", false, at(2))
		def := &Mode{UserID: u.ID, Name: "Default", Description: "the default one", IsDefault: true, CreatedAt: at(3)}
		require.NoError(t, s.CreateMode(ctx, def, &ModePrompt{Prompt: "be kind", CreatedAt: at(3)}))

		promoted, err := s.DeleteMode(ctx, u.ID, def.ID, at(10))
		require.NoError(t, err)
		require.NotNil(t, promoted)
		assert.Equal(t, older.ID, promoted.ID)
		assert.True(t, promoted.IsDefault)

		gone, err := s.GetMode(ctx, def.ID)
		require.NoError(t, err)
		assert.Nil(t, gone)

		prompt, err := s.GetActivePrompt(ctx, def.ID)
		require.NoError(t, err)
		assert.Nil(t, prompt, "prompts are cascaded")

		current, err := s.GetDefaultMode(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, older.ID, current.ID)

		_, err = s.DeleteMode(ctx, u.ID, def.ID, at(11))
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDeleteLastModeLeavesNoDefault(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		u := seedUser(t, s, "+15550000005")
		only := seedMode(t, s, u.ID, "Only", true, at(1))

		promoted, err := s.DeleteMode(ctx, u.ID, only.ID, at(2))
		require.NoError(t, err)
		assert.Nil(t, promoted)

		def, err := s.GetDefaultMode(ctx, u.ID)
		require.NoError(t, err)
		assert.Nil(t, def)
	})
}

func TestUpdateModeWritesOnlyPatchedFields(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		u := seedUser(t, s, "+15550000008")
		a := seedMode(t, s, u.ID, "Alpha", true, at(1))
		b := seedMode(t, s, u.ID, "Beta", false, at(2))

		// a default switch committed after a caller last read mode a
		require.NoError(t, s.SetDefaultMode(ctx, u.ID, b.ID, at(3)))

		name := "Alpha renamed"
		updated, err := s.UpdateMode(ctx, u.ID, a.ID, ModePatch{Name: &name}, at(4))
		require.NoError(t, err)
		assert.Equal(t, "Alpha renamed", updated.Name)
		assert.False(t, updated.IsDefault)
		assert.Equal(t, at(4), updated.UpdatedAt.UTC())

		def, err := s.GetDefaultMode(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, def)
		assert.Equal(t, b.ID, def.ID)

		no := false
		_, err = s.UpdateMode(ctx, u.ID, b.ID, ModePatch{IsDefault: &no}, at(5))
		require.NoError(t, err)
		def, err = s.GetDefaultMode(ctx, u.ID)
		require.NoError(t, err)
		assert.Nil(t, def)

		other := seedUser(t, s, "+15550000009")
		_, err = s.UpdateMode(ctx, other.ID, a.ID, ModePatch{Name: &name}, at(6))
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.UpdateMode(ctx, u.ID, "missing", ModePatch{Name: &name}, at(6))
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestUpdateModeReplacesAndRemovesPrompt(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		u := seedUser(t, s, "+15550000006")
		m := &Mode{UserID: u.ID, Name: "Coach", Description: "coaching mode", CreatedAt: at(1)}
		require.NoError(t, s.CreateMode(ctx, m, &ModePrompt{Prompt: "v1", CreatedAt: at(1)}))

		v2 := "v2"
		_, err := s.UpdateMode(ctx, u.ID, m.ID, ModePatch{Prompt: &v2}, at(2))
		require.NoError(t, err)
		p, err := s.GetActivePrompt(ctx, m.ID)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, "v2", p.Prompt)

		name := "Coach two"
		_, err = s.UpdateMode(ctx, u.ID, m.ID, ModePatch{Name: &name}, at(3))
		require.NoError(t, err)
		p, err = s.GetActivePrompt(ctx, m.ID)
		require.NoError(t, err)
		require.NotNil(t, p, "an absent prompt leaves the current one")
		assert.Equal(t, "v2", p.Prompt)

		empty := ""
		_, err = s.UpdateMode(ctx, u.ID, m.ID, ModePatch{Prompt: &empty}, at(4))
		require.NoError(t, err)
		p, err = s.GetActivePrompt(ctx, m.ID)
		require.NoError(t, err)
		assert.Nil(t, p)
	})
}

func TestTranslationLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		u := seedUser(t, s, "+15550000007")

		var ids []string
		for i := 0; i < 3; i++ {
			tr := &Translation{
				UserID:    u.ID,
				ModeName:  []string{"Work", "Family", "Work"}[i],
				Input:     fmt.Sprintf("input %d", i),
				Outputs:   []string{"a", "b", "c"},
				CreatedAt: at(i),
			}
			require.NoError(t, s.CreateTranslation(ctx, tr))
			ids = append(ids, tr.ID)
		}

		owner, err := s.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, ids, owner.TranslationIDs)

		page, err := s.ListTranslations(ctx, u.ID, 2, 0)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, ids[2], page[0].ID)
		assert.Equal(t, ids[1], page[1].ID)

		page, err = s.ListTranslations(ctx, u.ID, 2, 2)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, ids[0], page[0].ID)

		updated, err := s.AppendTranslationOutputs(ctx, u.ID, ids[0], []string{"d", "e", "f"}, at(20))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, updated.Outputs)

		require.NoError(t, s.SetSelectedOutput(ctx, u.ID, ids[0], 4, at(21)))
		got, err := s.GetTranslation(ctx, u.ID, ids[0])
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 4, got.SelectedIndex)
		assert.Len(t, got.Outputs, 6)

		foreign, err := s.GetTranslation(ctx, "someone-else", ids[0])
		require.NoError(t, err)
		assert.Nil(t, foreign)

		counts, err := s.CountTranslationsByMode(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, []ModeCount{{Mode: "Family", Count: 1}, {Mode: "Work", Count: 2}}, counts)

		require.NoError(t, s.DeactivateTranslation(ctx, u.ID, ids[1], at(30)))
		assert.ErrorIs(t, s.DeactivateTranslation(ctx, u.ID, ids[1], at(31)), ErrNotFound)

		remaining, err := s.ListTranslations(ctx, u.ID, 10, 0)
		require.NoError(t, err)
		assert.Len(t, remaining, 2)

		err = s.CreateTranslation(ctx, &Translation{UserID: "missing", ModeName: "Work", Input: "x", Outputs: []string{"a"}})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestIsPostgresURL(t *testing.T) {
	assert.True(t, IsPostgresURL("postgres://u:p@localhost/db"))
	assert.True(t, IsPostgresURL(" PostgreSQL://localhost/db"))
	assert.False(t, IsPostgresURL("./data/clearr.db"))
	assert.False(t, IsPostgresURL(":memory:"))
}
