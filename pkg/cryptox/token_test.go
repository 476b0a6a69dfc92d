package cryptox

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"128-bit token", TokenSize128},
		{"256-bit token", TokenSize256},
		{"512-bit token", TokenSize512},
		{"custom size", 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateToken(tt.size)
			require.NoError(t, err)
			require.NotEmpty(t, token)

			// Verify token is unique (generate another and compare)
			token2, err := GenerateToken(tt.size)
			require.NoError(t, err)
			require.NotEqual(t, token, token2, "tokens should be unique")
		})
	}
}

func TestGenerateToken_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		token, err := GenerateToken(size)
		require.Error(t, err)
		require.Empty(t, token)
	}
}

func TestMustGenerateToken_Panics(t *testing.T) {
	require.Panics(t, func() {
		MustGenerateToken(0)
	})
}

func TestGenerateSecret(t *testing.T) {
	secret, err := GenerateSecret(20)
	require.NoError(t, err)
	require.Len(t, secret, 20)

	other, err := GenerateSecret(20)
	require.NoError(t, err)
	require.NotEqual(t, secret, other)

	_, err = GenerateSecret(0)
	require.Error(t, err)
}

func TestDigest(t *testing.T) {
	want := sha256.Sum256([]byte("hello"))
	require.Equal(t, want, Digest([]byte("hello")))
	require.Equal(t, want, DigestString("hello"))
	require.NotEqual(t, Digest([]byte("hello")), Digest([]byte("Hello")))
}
