package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New("test error")
	require.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestWrapf(t *testing.T) {
	original := New("original")
	wrapped := Wrapf(original, "wrapped: %d", 42)

	assert.Contains(t, wrapped.Error(), "wrapped: 42")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestMarkPreservesSentinelAndMessage(t *testing.T) {
	cause := New("disk full")
	err := Wrap(Mark(cause, ErrEntrySave), "save entry 7")

	assert.True(t, Is(err, ErrEntrySave))
	assert.True(t, Is(err, cause))
	assert.Equal(t, "save entry 7: disk full", err.Error())
}

func TestWithHint(t *testing.T) {
	err := WithHint(New("error"), "try this fix")

	hints := GetAllHints(err)
	require.Len(t, hints, 1)
	assert.Equal(t, "try this fix", hints[0])
}

func TestStackTrace(t *testing.T) {
	err := Wrap(New("base"), "context")
	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, "errors_test.go")
	assert.NotNil(t, GetStack(err))
}

func TestIsNotFoundError(t *testing.T) {
	assert.False(t, IsNotFoundError(nil))
	assert.True(t, IsNotFoundError(NewNotFoundError("entry %d", 3)))
	assert.True(t, IsNotFoundError(Wrap(ErrNotFound, "taxonomy pa_color")))
	assert.False(t, IsNotFoundError(New("something else")))
}

func TestNewInvalidRequestError(t *testing.T) {
	err := NewInvalidRequestError("bad interval %d", -1)
	assert.True(t, IsInvalidRequestError(err))
	assert.Contains(t, err.Error(), "bad interval -1")
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{Wrap(ErrConfiguration, "x"), "configuration"},
		{Mark(New("x"), ErrTaxonomyCreation), "taxonomy_creation"},
		{Mark(New("x"), ErrTermCreation), "term_creation"},
		{Mark(New("x"), ErrEntryLoad), "entry_load"},
		{Mark(New("x"), ErrEntrySave), "entry_save"},
		{ErrPassInProgress, "pass_in_progress"},
		{New("other"), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.err))
	}
}
