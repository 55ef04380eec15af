package observability

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(ErrorLevel, &buf)

	func() {
		defer RecoverPanic(logger, "worker")
		panic("kaboom")
	}()

	assert.Contains(t, buf.String(), "PANIC recovered")
	assert.Contains(t, buf.String(), "kaboom")
	assert.Contains(t, buf.String(), "worker")
}

func TestRecoverPanicWithCallback(t *testing.T) {
	var got interface{}
	func() {
		defer RecoverPanicWithCallback(NopLogger(), "cb", func(r interface{}) { got = r })
		panic("x")
	}()
	assert.Equal(t, "x", got)

	called := false
	func() {
		defer RecoverPanicWithCallback(NopLogger(), "cb", func(interface{}) { called = true })
	}()
	assert.False(t, called)
}

func TestPanicError(t *testing.T) {
	assert.NoError(t, PanicError(nil))

	base := errors.New("inner")
	err := PanicError(base)
	assert.ErrorIs(t, err, base)

	assert.EqualError(t, PanicError(42), "panic: 42")
}
