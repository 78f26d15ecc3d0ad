package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWalksWrappedChain(t *testing.T) {
	base := Transient(fmt.Errorf("connection refused"))
	wrapped := fmt.Errorf("submit failed: %w", base)

	assert.Equal(t, KindTransient, KindOf(wrapped))
	assert.True(t, IsTransient(wrapped))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(stderrors.New("plain")))
	assert.False(t, IsTransient(stderrors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestIsMatchesByKind(t *testing.T) {
	err := Business(fmt.Errorf("insufficient funds"))
	assert.True(t, Is(err, NewWithKind(KindBusinessRejection)))
	assert.False(t, Is(err, NewWithKind(KindTransient)))
}

func TestIsFallsThroughToCause(t *testing.T) {
	cause := stderrors.New("root cause")
	err := Fatal(cause)
	assert.True(t, Is(err, cause))
}

func TestExplainCopies(t *testing.T) {
	base := NewWithKind(KindTransient)
	explained := base.Explain("attempt %d failed", 3)

	assert.Equal(t, "attempt 3 failed", explained.Message)
	assert.Empty(t, base.Message, "Explain must not mutate the original")
	assert.Equal(t, KindTransient, explained.Kind)
}

func TestErrorStringIncludesKindAndCause(t *testing.T) {
	err := Transient(fmt.Errorf("dial tcp: timeout")).Explain("broker unreachable")
	s := err.Error()
	assert.Contains(t, s, "transient")
	assert.Contains(t, s, "broker unreachable")
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := stderrors.New("boom")
	assert.Equal(t, cause, Unwrap(Wrap(KindFatal, cause)))
	assert.Nil(t, Unwrap(New("no cause")))
}
