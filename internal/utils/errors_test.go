package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("wallet address is required")

	require.Error(t, err)
	assert.Equal(t, "wallet address is required", err.Error())

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "wallet address is required", ve.Message)
}

func TestNewValidationErrorf(t *testing.T) {
	err := NewValidationErrorf("unsupported chain id %d", 999)

	require.Error(t, err)
	assert.Equal(t, "unsupported chain id 999", err.Error())
}

func TestIsValidation(t *testing.T) {
	assert.True(t, IsValidation(NewValidationError("bad input")))
	assert.True(t, IsValidation(fmt.Errorf("evaluate: %w", NewValidationErrorf("bad %s", "token"))))

	assert.False(t, IsValidation(errors.New("connection refused")))
	assert.False(t, IsValidation(nil))
}
