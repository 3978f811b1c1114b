package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJitteredLimiterEnforcesGap(t *testing.T) {
	limiter := NewJitteredLimiter(50*time.Millisecond, 50*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx))

	start := time.Now()
	require.NoError(t, limiter.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestJitteredLimiterContextCancel(t *testing.T) {
	limiter := NewJitteredLimiter(10*time.Second, 10*time.Second)

	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAdaptiveLimiterBacksOffAfterErrors(t *testing.T) {
	limiter := NewAdaptiveLimiter(2*time.Second, 4*time.Second)

	limiter.RecordError()
	limiter.RecordError()
	assert.Equal(t, 2*time.Second, limiter.minDelay, "below the error threshold nothing changes")

	limiter.RecordError()
	assert.Equal(t, 3*time.Second, limiter.minDelay)
	assert.Equal(t, 6*time.Second, limiter.maxDelay)
}

func TestAdaptiveLimiterSuccessResetsErrorStreak(t *testing.T) {
	limiter := NewAdaptiveLimiter(2*time.Second, 4*time.Second)

	limiter.RecordError()
	limiter.RecordError()
	limiter.RecordSuccess()
	limiter.RecordError()
	limiter.RecordError()
	assert.Equal(t, 2*time.Second, limiter.minDelay, "a success interrupts the error streak")
}

func TestAdaptiveLimiterTightensAfterSuccessRun(t *testing.T) {
	limiter := NewAdaptiveLimiter(10*time.Second, 20*time.Second)

	for i := 0; i < 6; i++ {
		limiter.RecordSuccess()
	}
	assert.Equal(t, 9*time.Second, limiter.minDelay)
}

func TestAdaptiveLimiterBackoffCaps(t *testing.T) {
	limiter := NewAdaptiveLimiter(50*time.Second, 110*time.Second)

	for i := 0; i < 3; i++ {
		limiter.RecordError()
	}
	assert.Equal(t, 60*time.Second, limiter.minDelay)
	assert.Equal(t, 120*time.Second, limiter.maxDelay)
}

func TestSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Sleep(ctx, time.Second, 2*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
