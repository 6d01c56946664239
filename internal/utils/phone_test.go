package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhoneNumbers(t *testing.T) {
	cases := []struct {
		in         string
		valid      bool
		normalized string
	}{
		{"(555) 123-4567", true, "+15551234567"},
		{"+44 20 7946 0958", true, "+442079460958"},
		{"+44 (0)20 7946 0958", true, "+442079460958"},
		{"442079460958", true, "+442079460958"},
		{"1-555-123-4567", true, "+15551234567"},
		{"+1 555 123 4567", true, "+15551234567"},
		{"12345", false, ""},
		{"+1234567890123456", false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.valid, ValidPhoneNumber(tc.in))
			if tc.valid {
				assert.Equal(t, tc.normalized, NormalizePhoneNumber(tc.in))
			}
		})
	}
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("jane@example.com"))
	assert.True(t, ValidEmail(" jane@example.co.uk "))
	assert.False(t, ValidEmail("jane@example"))
	assert.False(t, ValidEmail("jane example@x.com"))
	assert.False(t, ValidEmail(""))
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", "development")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	logger, err = NewLogger("warn", "production")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(0))

	_, err = NewLogger("loud", "production")
	assert.Error(t, err)
}
