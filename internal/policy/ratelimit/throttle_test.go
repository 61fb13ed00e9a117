package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewModes(t *testing.T) {
	t.Parallel()

	th, err := New("", DefaultDelay)
	require.NoError(t, err)
	assert.IsType(t, &Fixed{}, th)

	th, err = New(" Interval ", DefaultDelay)
	require.NoError(t, err)
	assert.IsType(t, &Interval{}, th)

	_, err = New("adaptive", DefaultDelay)
	require.Error(t, err)
	_, err = New(ModeFixed, -time.Second)
	require.Error(t, err)
}

func TestFixedPauseSleeps(t *testing.T) {
	t.Parallel()

	th := NewFixed(30 * time.Millisecond)
	start := time.Now()
	require.NoError(t, th.Pause(context.Background()))
	require.NoError(t, th.Pause(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestFixedZeroDelay(t *testing.T) {
	t.Parallel()

	start := time.Now()
	require.NoError(t, NewFixed(0).Pause(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestFixedPauseCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewFixed(time.Hour).Pause(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIntervalCountsProcessingTime(t *testing.T) {
	t.Parallel()

	th := NewInterval(50 * time.Millisecond)

	start := time.Now()
	require.NoError(t, th.Pause(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	// Work that outlasts the interval leaves nothing to wait for.
	time.Sleep(60 * time.Millisecond)
	start = time.Now()
	require.NoError(t, th.Pause(context.Background()))
	assert.Less(t, time.Since(start), 20*time.Millisecond)
}

func TestIntervalCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewInterval(time.Hour).Pause(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIntervalZeroDelayNeverBlocks(t *testing.T) {
	t.Parallel()

	th := NewInterval(0)
	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, th.Pause(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
