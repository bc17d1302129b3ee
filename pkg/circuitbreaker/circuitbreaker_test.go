package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDownstream = errors.New("downstream failed")

func fail() error { return errDownstream }
func ok() error   { return nil }

func TestOpensAfterFailureThreshold(t *testing.T) {
	b := New(3, 1, time.Minute)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(fail), errDownstream)
	}
	assert.Equal(t, Open, b.State())

	// While open, calls are short-circuited.
	err := b.Execute(ok)
	assert.ErrorIs(t, err, ErrOpen)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := New(3, 1, time.Minute)

	require.Error(t, b.Execute(fail))
	require.Error(t, b.Execute(fail))
	require.NoError(t, b.Execute(ok))
	require.Error(t, b.Execute(fail))
	require.Error(t, b.Execute(fail))

	assert.Equal(t, Closed, b.State(), "non-consecutive failures must not trip the breaker")
}

func TestHalfOpenRecovery(t *testing.T) {
	b := New(1, 2, 10*time.Millisecond)

	require.Error(t, b.Execute(fail))
	require.Equal(t, Open, b.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, HalfOpen, b.State())

	// Two successes are required to close.
	require.NoError(t, b.Execute(ok))
	assert.Equal(t, HalfOpen, b.State())
	require.NoError(t, b.Execute(ok))
	assert.Equal(t, Closed, b.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New(1, 1, 10*time.Millisecond)

	require.Error(t, b.Execute(fail))
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, HalfOpen, b.State())

	require.Error(t, b.Execute(fail))
	assert.Equal(t, Open, b.State())
}
