package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldBlock(t *testing.T) {
	cases := map[string]bool{
		"I want to kill myself":                  true,
		"I'm gonna die if this meeting runs late": true,
		"I just want to end my life":             true,
		"SUICIDE is not a joke":                  true,
		"this meeting is stupid":                 false,
		"this is bullshit":                       false,
		"the skill gap is real":                  false,
		"":                                       false,
	}
	for text, want := range cases {
		assert.Equal(t, want, ShouldBlock(text), text)
	}
}

func TestComposeWithCustomInstruction(t *testing.T) {
	got := Compose("you never call", "Family", "Talking to relatives", "Be warm and brief.", nil)
	want := `Mode: Family
Description: Talking to relatives

Instructions: Be warm and brief.

Original message: "you never call"

Please transform this message according to the mode description and instructions above.`
	assert.Equal(t, want, got)
}

func TestComposeFallsBackToBuiltinTemplate(t *testing.T) {
	professional := Compose("this is ridiculous", "Professional", "Work chat", "", nil)
	assert.Contains(t, professional, "Instructions: "+BuiltinTemplate(ModeProfessional))
	assert.Contains(t, professional, "PROFESSIONAL MODE GUIDELINES")

	casual := Compose("that's stupid", "casual", "Friends", "   ", nil)
	assert.Contains(t, casual, "CASUAL MODE GUIDELINES")

	custom := Compose("whatever", "Book club", "Monthly meetups", "", nil)
	assert.Contains(t, custom, "PERSONAL MODE GUIDELINES", "unknown names use the personal template")
}

func TestComposeStyleExamples(t *testing.T) {
	examples := []string{"hey!!", "lol ok", "sounds good", "never shown"}
	got := Compose("fine", "Friends", "Casual talk", "Keep it short.", examples)

	assert.True(t, strings.HasPrefix(got, "User's communication style examples: hey!!; lol ok; sounds good\n\nMode: Friends\n"))
	assert.True(t, strings.HasSuffix(got, "above.\n\nAdapt the response to match the user's natural style."))
	assert.NotContains(t, got, "never shown")
}

func TestComposeIsDeterministic(t *testing.T) {
	examples := []string{"a", "b"}
	first := Compose("same input", "Work", "Office talk", "", examples)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Compose("same input", "Work", "Office talk", "", examples))
	}
}

func TestParseModeRef(t *testing.T) {
	ref, err := ParseModeRef("", "")
	assert.NoError(t, err)
	assert.True(t, ref.IsDefault())

	ref, err = ParseModeRef("abc", "casual")
	assert.NoError(t, err)
	assert.Equal(t, "id:abc", ref.String())

	ref, err = ParseModeRef("", " Professional ")
	assert.NoError(t, err)
	assert.Equal(t, "legacy:professional", ref.String())

	_, err = ParseModeRef("", "sarcastic")
	assert.ErrorIs(t, err, ErrValidation)
}
