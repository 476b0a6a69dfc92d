package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFailedAuthService_Counting(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	n, err := env.failed.Get(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Zero(t, n)

	for i := uint64(1); i <= 3; i++ {
		n, err = env.failed.Increment(ctx, "alice@example.com")
		require.NoError(t, err)
		require.Equal(t, i, n)
	}

	// Identifier normalization: case and surrounding whitespace collapse to
	// the same counter, matching case-insensitive email lookup.
	n, err = env.failed.Get(ctx, "  ALICE@Example.COM ")
	require.NoError(t, err)
	require.Equal(t, uint64(3), n)

	// Other identifiers are unaffected.
	n, err = env.failed.Get(ctx, "bob@example.com")
	require.NoError(t, err)
	require.Zero(t, n)

	require.NoError(t, env.failed.Reset(ctx, "alice@example.com"))
	n, err = env.failed.Get(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestFailedAuthService_RequiresCaptcha(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	need, err := env.failed.RequiresCaptcha(ctx, "alice")
	require.NoError(t, err)
	require.False(t, need)

	for range env.failed.CaptchaThreshold {
		_, err = env.failed.Increment(ctx, "alice")
		require.NoError(t, err)
	}

	need, err = env.failed.RequiresCaptcha(ctx, "alice")
	require.NoError(t, err)
	require.True(t, need)

	require.NoError(t, env.failed.Reset(ctx, "alice"))
	need, err = env.failed.RequiresCaptcha(ctx, "alice")
	require.NoError(t, err)
	require.False(t, need)
}

func TestFailedAuthService_ThresholdZeroDisablesCaptcha(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.failed.CaptchaThreshold = 0

	for range 10 {
		_, err := env.failed.Increment(ctx, "alice")
		require.NoError(t, err)
	}

	need, err := env.failed.RequiresCaptcha(ctx, "alice")
	require.NoError(t, err)
	require.False(t, need)
}
