package shared

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		hasError bool
	}{
		{"10s", 10 * time.Second, false},
		{"15m", 15 * time.Minute, false},
		{"12h", 12 * time.Hour, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"250ms", 250 * time.Millisecond, false},
		{" 3 h ", 3 * time.Hour, false},
		{"0", 0, false},
		{"0d", 0, false},
		{"", 0, true},
		{"10x", 0, true},
		{"-5m", 0, true},
		{"1.5h", 0, true},
	}

	for _, tc := range tests {
		val, err := ParseDuration(tc.input)
		if tc.hasError {
			assert.Error(t, err, "Expected error for input: %q", tc.input)
		} else {
			assert.NoError(t, err, "Unexpected error for input: %q", tc.input)
			assert.Equal(t, tc.expected, val, "Mismatch for input: %q", tc.input)
		}
	}
}

func TestUserMessage(t *testing.T) {
	t.Run("Classified errors map to fixed text", func(t *testing.T) {
		err := fmt.Errorf("open store: %w: database is locked (5)", ErrStorageUnavailable)
		msg := UserMessage(err)
		assert.NotContains(t, msg, "database is locked")
		assert.Contains(t, msg, "busy")
	})

	t.Run("Weak credential keeps the policy reason", func(t *testing.T) {
		err := fmt.Errorf("%w: must be at least 6 characters", ErrWeakCredential)
		assert.Equal(t, err.Error(), UserMessage(err))
	})

	t.Run("Unknown errors are generic", func(t *testing.T) {
		assert.Equal(t, "An unexpected error occurred.", UserMessage(errors.New("near \"SELEC\": syntax error")))
	})

	t.Run("Nil is empty", func(t *testing.T) {
		assert.Equal(t, "", UserMessage(nil))
	})
}
