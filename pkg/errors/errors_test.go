package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneMatchesTemplate(t *testing.T) {
	err := Clone(ErrNotFound, "student not found")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrNoSeats))
	assert.Equal(t, "student not found", err.Message)
	assert.Equal(t, ErrNotFound.Status, err.Status)
}

func TestWithDetailsDoesNotLeakIntoTemplate(t *testing.T) {
	err := WithDetails(ErrEnrollmentLimit, "", map[string]interface{}{"limit": 5, "current": 5})
	require.NotNil(t, err)
	assert.Equal(t, 5, err.Details["limit"])
	assert.Nil(t, ErrEnrollmentLimit.Details)

	again := WithDetails(err, "", map[string]interface{}{"current": 6})
	assert.Equal(t, 6, again.Details["current"])
	assert.Equal(t, 5, err.Details["current"])
}

func TestFromErrorWrapsForeignErrors(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", Clone(ErrBookUnavailable, ""))
	assert.Equal(t, ErrBookUnavailable.Code, FromError(wrapped).Code)
	assert.Equal(t, ErrInternal.Code, CodeOf(errors.New("boom")))
	assert.Equal(t, "", CodeOf(nil))
}
