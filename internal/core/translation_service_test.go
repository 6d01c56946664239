package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateWithoutModesFailsBeforeGeneration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "+15550002000")

	_, err := f.translations.Translate(ctx, u.ID, "hello", DefaultMode())
	require.ErrorIs(t, err, ErrNoDefaultMode)
	assert.Equal(t, "No default mode found. Please create a mode first.", PublicMessage(err, ""))
	assert.Equal(t, 0, f.gen.calls())

	history, err := f.translations.History(ctx, u.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestTranslateStoresModeNameAndSingleOutput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "+15550002001")
	personal := f.mode(t, u.ID, "Personal", true)

	res, err := f.translations.Translate(ctx, u.ID, "this is bullshit", DefaultMode())
	require.NoError(t, err)
	assert.Equal(t, "Personal", res.Translation.ModeName)
	assert.Equal(t, personal.ID, res.Translation.ModeID)
	assert.Len(t, res.Translation.Outputs, 1)
	assert.Equal(t, res.Translation.Outputs, res.TranslationOutput)

	require.Equal(t, 1, f.gen.calls())
	assert.Contains(t, f.gen.prompts[0], `Original message: "this is bullshit"`)
	assert.Contains(t, f.gen.prompts[0], "PERSONAL MODE GUIDELINES")

	owner, err := f.store.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{res.Translation.ID}, owner.TranslationIDs)
}

func TestTranslateUsesCustomPromptAndStyleExamples(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "+15550002002")
	created, err := f.modes.Create(ctx, u.ID, CreateModeInput{Name: "Team", Description: "Slack with my team", Prompt: "Stay upbeat."})
	require.NoError(t, err)
	_, err = f.users.AddStyleExample(ctx, u.ID, "cheers mate")
	require.NoError(t, err)

	_, err = f.translations.Translate(ctx, u.ID, "why is this late", ModeByID(created.Mode.ID))
	require.NoError(t, err)
	prompt := f.gen.prompts[0]
	assert.True(t, strings.HasPrefix(prompt, "User's communication style examples: cheers mate\n\n"))
	assert.Contains(t, prompt, "Instructions: Stay upbeat.")
}

func TestTranslateRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "+15550002003")
	f.mode(t, u.ID, "Personal", true)
	stranger := f.user(t, "+15550002004")
	foreign := f.mode(t, stranger.ID, "Theirs", true)

	_, err := f.translations.Translate(ctx, u.ID, "   ", DefaultMode())
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.translations.Translate(ctx, u.ID, strings.Repeat("a", MaxTranslationInputLen+1), DefaultMode())
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.translations.Translate(ctx, "missing", "hello", DefaultMode())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.translations.Translate(ctx, u.ID, "hello", ModeByID("missing"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.translations.Translate(ctx, u.ID, "hello", ModeByID(foreign.ID))
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.translations.Translate(ctx, u.ID, "I want to kill myself", DefaultMode())
	require.ErrorIs(t, err, ErrContentBlocked)
	assert.Equal(t, "Cannot process this type of content", PublicMessage(err, ""))

	assert.Equal(t, 0, f.gen.calls())
}

func TestTranslateGenerationFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "+15550002005")
	f.mode(t, u.ID, "Personal", true)
	f.gen.err = errors.New("quota exceeded")

	_, err := f.translations.Translate(ctx, u.ID, "hello", DefaultMode())
	require.ErrorIs(t, err, ErrGeneration)
	assert.Equal(t, 500, StatusCode(err))

	history, err := f.translations.History(ctx, u.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRegenerateAppendsToOutputs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "+15550002006")
	f.mode(t, u.ID, "Work", true)

	res, err := f.translations.Translate(ctx, u.ID, "this deadline is insane", DefaultMode())
	require.NoError(t, err)
	before := res.Translation.Outputs

	// Switch the default; regeneration follows the current default.
	casual := f.mode(t, u.ID, "Casual", true)
	f.gen.outputs = []string{"second take", "third take"}

	regen, err := f.translations.Regenerate(ctx, u.ID, res.Translation.ID)
	require.NoError(t, err)
	after := regen.Translation.Outputs
	assert.Equal(t, []string{"second take", "third take"}, regen.NewOutput)
	assert.Len(t, after, len(before)+len(regen.NewOutput))
	assert.Equal(t, before, after[:len(before)])
	assert.Equal(t, "Work", regen.Translation.ModeName, "the recorded mode name is kept")

	last := f.gen.prompts[len(f.gen.prompts)-1]
	assert.Contains(t, last, "Mode: "+casual.Name)
	assert.Contains(t, last, `Original message: "this deadline is insane"`)

	_, err = f.translations.Regenerate(ctx, u.ID, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegenerateWithoutDefaultMode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "+15550002007")
	only := f.mode(t, u.ID, "Only", true)

	res, err := f.translations.Translate(ctx, u.ID, "hello", DefaultMode())
	require.NoError(t, err)
	_, err = f.modes.Delete(ctx, u.ID, only.ID)
	require.NoError(t, err)

	_, err = f.translations.Regenerate(ctx, u.ID, res.Translation.ID)
	assert.ErrorIs(t, err, ErrNoDefaultMode)
}

func TestDeleteTranslationHidesIt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "+15550002008")
	f.mode(t, u.ID, "Work", true)

	var ids []string
	for _, input := range []string{"one", "two", "three"} {
		res, err := f.translations.Translate(ctx, u.ID, input, DefaultMode())
		require.NoError(t, err)
		ids = append(ids, res.Translation.ID)
	}

	require.NoError(t, f.translations.Delete(ctx, u.ID, ids[1]))
	assert.ErrorIs(t, f.translations.Delete(ctx, u.ID, ids[1]), ErrNotFound)

	history, err := f.translations.History(ctx, u.ID, 20, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ids[2], history[0].ID)
	assert.Equal(t, ids[0], history[1].ID)

	_, err = f.translations.Get(ctx, u.ID, ids[1])
	assert.ErrorIs(t, err, ErrNotFound)

	owner, err := f.store.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, ids, owner.TranslationIDs, "history ids are never pruned")

	page, err := f.translations.History(ctx, u.ID, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[0], page[0].ID)
}

func TestSelectOutput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "+15550002009")
	f.mode(t, u.ID, "Work", true)
	f.gen.outputs = []string{"first", "second"}

	res, err := f.translations.Translate(ctx, u.ID, "hello", DefaultMode())
	require.NoError(t, err)

	selected, err := f.translations.SelectOutput(ctx, u.ID, res.Translation.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, selected.SelectedIndex)

	reloaded, err := f.translations.Get(ctx, u.ID, res.Translation.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.SelectedIndex)

	_, err = f.translations.SelectOutput(ctx, u.ID, res.Translation.ID, 2)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.translations.SelectOutput(ctx, u.ID, res.Translation.ID, -1)
	assert.ErrorIs(t, err, ErrValidation)
}
