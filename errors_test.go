package microio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPanicErrorUnwrapsErrorValue(t *testing.T) {
	cause := errors.New("underlying")
	pe := &PanicError{Recovered: cause}
	assert.ErrorIs(t, pe, cause)
}

func TestPanicErrorUnwrapNilForNonError(t *testing.T) {
	pe := &PanicError{Recovered: "not an error"}
	assert.Nil(t, pe.Unwrap())
	assert.Contains(t, pe.Error(), "not an error")
}

func TestWrapErrorPreservesCauseChain(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := WrapError("doing thing", cause)
	require.ErrorIs(t, wrapped, cause)
	assert.Contains(t, wrapped.Error(), "doing thing")
}

func TestRunWrapsNonReturnPanicAsPanicError(t *testing.T) {
	l := mustLoop(t)
	_, err := l.Run(nil, func(t *Task) (any, error) {
		panic("unexpected")
	})
	require.Error(t, err)
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "unexpected", pe.Recovered)
}

func TestRunWrapsPanicOfErrorValue(t *testing.T) {
	l := mustLoop(t)
	sentinel := errors.New("task panic sentinel")
	_, err := l.Run(nil, func(t *Task) (any, error) {
		panic(sentinel)
	})
	require.ErrorIs(t, err, sentinel)
}
