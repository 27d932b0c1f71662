package ai

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketLimiter_AllowsBurst(t *testing.T) {
	limiter := NewTokenBucketLimiter(ProviderNameOpenAI, 60, 5)

	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Allow(), "request %d within burst should pass", i)
	}

	assert.False(t, limiter.Allow(), "request beyond burst should be throttled")
}

func TestTokenBucketLimiter_Limit(t *testing.T) {
	limiter := NewTokenBucketLimiter(ProviderNameOpenAI, 120, 10)
	assert.InDelta(t, 120.0, limiter.Limit(), 0.001)
}

func TestTokenBucketLimiter_WaitCancelled(t *testing.T) {
	limiter := NewTokenBucketLimiter(ProviderNameOpenAI, 1, 1)
	require.True(t, limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx)
	require.Error(t, err)
}

func TestNoOpLimiter(t *testing.T) {
	limiter := NewNoOpLimiter()

	assert.True(t, limiter.Allow())
	assert.NoError(t, limiter.Wait(context.Background()))
	assert.Equal(t, -1.0, limiter.Limit())
}

func TestGetRateLimiter_Disabled(t *testing.T) {
	limiter := GetRateLimiter(ProviderNameOpenAI, ProviderRateLimitConfig{Enabled: false})
	_, ok := limiter.(*NoOpLimiter)
	assert.True(t, ok)
}

func TestGetRateLimiter_Enabled(t *testing.T) {
	limiter := GetRateLimiter(ProviderNameOpenAI, ProviderRateLimitConfig{
		Enabled:      true,
		ReqPerMinute: 60,
		Burst:        5,
	})
	_, ok := limiter.(*TokenBucketLimiter)
	assert.True(t, ok)
}
