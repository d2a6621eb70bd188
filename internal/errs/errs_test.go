package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	assert.True(t, CodeStoreContention.Retryable())
	assert.True(t, CodeStoreUnavailable.Retryable())
	assert.False(t, CodeMalformedMessage.Retryable())
	assert.False(t, CodeReferentialFailure.Retryable())
	assert.False(t, CodeInvariantViolation.Retryable())
}

func TestWrap_PreservesCauseAndCode(t *testing.T) {
	cause := errors.New("connection reset")
	wrapped := Wrap(cause, CodeStoreUnavailable, "select candidates")

	assert.Equal(t, CodeStoreUnavailable, CodeOf(wrapped))
	assert.True(t, Is(wrapped, CodeStoreUnavailable))
	assert.ErrorIs(t, wrapped, cause)
}

func TestCodeOf_DefaultsToInvariantViolationForForeignErrors(t *testing.T) {
	assert.Equal(t, CodeInvariantViolation, CodeOf(errors.New("boom")))
}

func TestWrap_NilErrorReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, CodeStoreContention, "no-op"))
}
