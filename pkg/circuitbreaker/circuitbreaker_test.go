package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRemote = errors.New("remote down")

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time          { return c.t }
func (c *stepClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func failing(context.Context) error { return errRemote }
func passing(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := &stepClock{t: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)}
	var transitions []string

	cb := New("remote",
		WithFailureThreshold(2),
		WithTimeout(time.Minute),
		WithClock(clock.now),
		WithOnStateChange(func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, failing), errRemote)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, failing), errRemote)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, IsRejected(err))
	assert.False(t, called)

	clock.advance(time.Minute)
	require.NoError(t, cb.Execute(ctx, passing))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &stepClock{t: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)}
	cb := New("remote", WithFailureThreshold(1), WithTimeout(time.Second), WithClock(clock.now))
	ctx := context.Background()

	_ = cb.Execute(ctx, failing)
	clock.advance(2 * time.Second)

	assert.ErrorIs(t, cb.Execute(ctx, failing), errRemote)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, passing), ErrCircuitOpen)
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	errValidation := errors.New("bad input")
	cb := New("remote",
		WithFailureThreshold(1),
		WithIsFailure(func(err error) bool { return !errors.Is(err, errValidation) }),
	)

	for range 3 {
		_ = cb.Execute(context.Background(), func(context.Context) error { return errValidation })
	}
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 3, cb.Counts().TotalSuccesses)
}

func TestCircuitBreaker_Fallback(t *testing.T) {
	cb := New("remote", WithFailureThreshold(1), WithTimeout(time.Hour))
	ctx := context.Background()
	_ = cb.Execute(ctx, failing)

	err := cb.ExecuteWithFallback(ctx, passing, func(error) error { return nil })
	assert.NoError(t, err)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, Counts{}, cb.Counts())
}

func TestRemoteStoreBreaker(t *testing.T) {
	cb := RemoteStoreBreaker(4, time.Second, nil, nil)
	assert.Equal(t, "remote-store", cb.Name())
	assert.Equal(t, 4, cb.config.FailureThreshold)
}
