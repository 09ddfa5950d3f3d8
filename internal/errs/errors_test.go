package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	cause := errors.New("boom")

	assert.Equal(t, "[out_of_range] index 4", New(ErrKindOutOfRange, "index 4").Error())
	assert.Equal(t, "[query_failed] select: boom", Wrap(ErrKindQueryFailed, "select", cause).Error())
	assert.Equal(t, "[unknown_column] no column \"x\"", Newf(ErrKindUnknownColumn, "no column %q", "x").Error())
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", New(ErrKindNotFound, "x"), IsNotFound},
		{"timeout", New(ErrKindTimeout, "x"), IsTimeout},
		{"connection", New(ErrKindConnectionFailed, "x"), IsConnectionFailed},
		{"query", New(ErrKindQueryFailed, "x"), IsQueryFailed},
		{"invalid input", New(ErrKindInvalidInput, "x"), IsInvalidInput},
		{"permission", New(ErrKindPermissionDenied, "x"), IsPermissionDenied},
		{"arity", New(ErrKindArityMismatch, "x"), IsArityMismatch},
		{"out of range", New(ErrKindOutOfRange, "x"), IsOutOfRange},
		{"unknown column", New(ErrKindUnknownColumn, "x"), IsUnknownColumn},
		{"released", New(ErrKindReleased, "x"), IsReleased},
		{"wrapped", fmt.Errorf("outer: %w", New(ErrKindOutOfRange, "x")), IsOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
		})
	}
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, ErrKindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, ErrKindUnknown, KindOf(nil))
	assert.Equal(t, "unknown", ErrKind(99).String())
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root")
	err := Wrap(ErrKindConnectionFailed, "dial", cause)
	assert.ErrorIs(t, err, cause)
}
