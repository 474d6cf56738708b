package util

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		field          string
		message        string
		cause          error
		expectedString string
	}{
		{
			name:           "with field",
			field:          "routes.path",
			message:        "file is required",
			expectedString: "config error at routes.path: file is required",
		},
		{
			name:           "without field",
			message:        "invalid configuration",
			expectedString: "config error: invalid configuration",
		},
		{
			name:           "with cause",
			field:          "cache.type",
			message:        "unknown type",
			cause:          errors.New("boom"),
			expectedString: "config error at cache.type: unknown type: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var err *ConfigError
			if tt.cause != nil {
				err = NewConfigErrorWithCause(tt.field, tt.message, tt.cause)
			} else {
				err = NewConfigError(tt.field, tt.message)
			}

			assert.Equal(t, tt.expectedString, err.Error())
			assert.Equal(t, tt.cause, err.Unwrap())
			assert.True(t, errors.Is(err, ErrConfigInvalid))
		})
	}
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	err := NewValidationError("invalid route set")
	assert.False(t, err.HasFields())
	assert.Equal(t, "validation error: invalid route set", err.Error())

	err.AddField("routes[2].dest", "not allowed in hit phase")
	err.AddField("routes[0].src", "invalid pattern")
	assert.True(t, err.HasFields())
	assert.Equal(t,
		"validation error: invalid route set (routes[0].src: invalid pattern; routes[2].dest: not allowed in hit phase)",
		err.Error())

	wrapped := fmt.Errorf("load: %w", err)
	var ve *ValidationError
	assert.True(t, errors.As(wrapped, &ve))
	assert.True(t, errors.Is(wrapped, ErrConfigInvalid))
}

func TestStructuralError(t *testing.T) {
	t.Parallel()

	err := NewStructuralError("hit", 3, "hit rules must continue")
	assert.Equal(t, `structural error in phase "hit" rule 3: hit rules must continue`, err.Error())
	assert.True(t, errors.Is(err, ErrStructural))
	assert.True(t, IsStructuralError(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsStructuralError(errors.New("other")))
}

func TestExecutionError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := NewExecutionError("middleware", cause)

	assert.Equal(t, "middleware failed: connection refused", err.Error())
	assert.True(t, errors.Is(err, ErrExecution))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "render failed", NewExecutionError("render", nil).Error())
}
