package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResourceSignatureRoundTrip(t *testing.T) {
	sig := SignResource("resource-secret", "book-1", "book-1/cover.png")

	assert.True(t, VerifyResource("resource-secret", sig, "book-1", "book-1/cover.png"))

	// Any change to the signed parts, the secret, or the signature fails.
	assert.False(t, VerifyResource("resource-secret", sig, "book-2", "book-1/cover.png"))
	assert.False(t, VerifyResource("resource-secret", sig, "book-1", "book-1/cover.webp"))
	assert.False(t, VerifyResource("other-secret", sig, "book-1", "book-1/cover.png"))
	assert.False(t, VerifyResource("resource-secret", sig+"x", "book-1", "book-1/cover.png"))
	assert.False(t, VerifyResource("resource-secret", "", "book-1", "book-1/cover.png"))
}
