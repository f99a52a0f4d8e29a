package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func transientOnly(err error) bool {
	return errors.Is(err, errTransient)
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 3}, transientOnly, func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientErrors(t *testing.T) {
	calls := 0
	cfg := Config{MaxAttempts: 3, Delays: []time.Duration{time.Millisecond}}

	err := Do(context.Background(), cfg, transientOnly, func() error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	cfg := Config{MaxAttempts: 2, Delays: []time.Duration{time.Millisecond}}

	err := Do(context.Background(), cfg, transientOnly, func() error {
		calls++
		return errTransient
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, errTransient)
	assert.Contains(t, err.Error(), "failed after 2 attempts")
	assert.Equal(t, 2, calls)
}

func TestDo_PermanentErrorFailsImmediately(t *testing.T) {
	permanent := errors.New("constraint violated")
	calls := 0
	cfg := Config{MaxAttempts: 5, Delays: []time.Duration{time.Millisecond}}

	err := Do(context.Background(), cfg, transientOnly, func() error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_NilClassifierRetriesEverything(t *testing.T) {
	calls := 0
	cfg := Config{MaxAttempts: 2, Delays: []time.Duration{time.Millisecond}}

	err := Do(context.Background(), cfg, nil, func() error {
		calls++
		return errors.New("any error")
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := Config{MaxAttempts: 3, Delays: []time.Duration{time.Second}}
	err := Do(ctx, cfg, transientOnly, func() error {
		return errTransient
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{}, transientOnly, func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
