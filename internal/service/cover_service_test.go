package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoverObjectKey(t *testing.T) {
	key, sig, ok := coverObjectKey("https://cdn.example.com/librarium-covers/book-1/cover.png?sig=abc123")
	require.True(t, ok)
	assert.Equal(t, "book-1/cover.png", key)
	assert.Equal(t, "abc123", sig)

	// Signature query parameter is optional at parse time.
	key, sig, ok = coverObjectKey("https://cdn.example.com/librarium-covers/book-1/cover.webp")
	require.True(t, ok)
	assert.Equal(t, "book-1/cover.webp", key)
	assert.Empty(t, sig)

	for _, raw := range []string{
		"://not-a-url",
		"https://cdn.example.com/",
		"https://cdn.example.com/bucket-only",
		"https://cdn.example.com/librarium-covers/",
	} {
		_, _, ok := coverObjectKey(raw)
		assert.False(t, ok, "url %q", raw)
	}
}
