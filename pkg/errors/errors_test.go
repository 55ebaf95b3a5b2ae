package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaxonomyHelpers(t *testing.T) {
	cause := stderrors.New("connection reset")

	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"access denied", NewAccessDeniedError("p1"), IsAccessDenied},
		{"access denied is forbidden", NewAccessDeniedError("p1"), IsForbidden},
		{"load failure", NewLoadFailureError("p1", cause), IsLoadFailure},
		{"save failure", NewSaveFailureError("p1", cause), IsSaveFailure},
		{"wrapped save failure", fmt.Errorf("autosave: %w", NewSaveFailureError("p1", cause)), IsSaveFailure},
		{"not found", NewNotFoundError("project"), IsNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := NewSaveFailureError("p1", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "boom")
	assert.False(t, IsLoadFailure(err))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ignored"))

	wrapped := Wrap(NewNotFoundError("node"), "apply")
	assert.True(t, IsNotFound(wrapped))
	assert.Contains(t, wrapped.Error(), "apply: node not found")

	plain := Wrapf(stderrors.New("eof"), "read %s", "frame")
	assert.True(t, IsType(plain, ErrorTypeInternal))
}
