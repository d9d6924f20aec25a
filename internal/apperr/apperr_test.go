package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_PreservesCategoryAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(Validation, "bad input", cause)

	assert.True(t, Is(err, Validation))
	cat, ok := CategoryOf(err)
	assert.True(t, ok)
	assert.Equal(t, Validation, cat)
	assert.True(t, errors.Is(err, cause))
}

func TestNew_HasNoUnderlyingCause(t *testing.T) {
	err := New(InsufficientShares, "not enough shares")
	require.Error(t, err)
	cat, ok := CategoryOf(err)
	assert.True(t, ok)
	assert.Equal(t, InsufficientShares, cat)
}

func TestCategoryOf_NonApperrReturnsEmpty(t *testing.T) {
	_, ok := CategoryOf(errors.New("plain"))
	assert.False(t, ok)
}
