package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllowConsumesBurst(t *testing.T) {
	l := New(1, 3)

	for i := 0; i < 3; i++ {
		require.True(t, l.Allow(), "request %d should fit the burst", i)
	}
	require.False(t, l.Allow(), "bucket should be empty after the burst")
}

func TestBurstNeverBelowRate(t *testing.T) {
	l := New(10, 1)

	for i := 0; i < 10; i++ {
		require.True(t, l.Allow(), "request %d should fit", i)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	l := New(1, 1)
	require.True(t, l.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, l.Wait(ctx))
}
