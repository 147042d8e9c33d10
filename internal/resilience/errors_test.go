package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient_ExplicitTransientError(t *testing.T) {
	assert.True(t, IsTransient(NewTransientError(errors.New("database starting"))))
}

func TestIsTransient_WrappedTransientError(t *testing.T) {
	inner := NewTransientError(errors.New("database starting"))
	assert.True(t, IsTransient(fmt.Errorf("store open: %w", inner)))
}

func TestIsTransient_Nil(t *testing.T) {
	assert.False(t, IsTransient(nil))
}

func TestIsTransient_PermanentError(t *testing.T) {
	assert.False(t, IsTransient(errors.New("password authentication failed")))
}

func TestIsTransient_ConnectionErrors(t *testing.T) {
	assert.True(t, IsTransient(fmt.Errorf("write tcp: %w", syscall.ECONNRESET)))
	assert.True(t, IsTransient(fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED)))
}

func TestIsTransient_NetworkTimeout(t *testing.T) {
	assert.True(t, IsTransient(&net.DNSError{IsTimeout: true, Err: "timeout"}))
}

func TestIsTransient_MessagePatterns(t *testing.T) {
	for _, msg := range []string{
		"connection reset by peer",
		"broken pipe",
		"i/o timeout",
		"FATAL: the database system is starting up",
	} {
		assert.True(t, IsTransient(errors.New(msg)), msg)
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	te := NewTransientError(inner)

	assert.True(t, errors.Is(te, inner))
	assert.Equal(t, "root cause", te.Error())
}
