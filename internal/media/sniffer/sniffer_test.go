package sniffer

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectHead(t *testing.T) {
	tests := []struct {
		name string
		head []byte
		want CoverType
		mime string
	}{
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10}, TypeJPEG, "image/jpeg"},
		{"png", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00}, TypePNG, "image/png"},
		{"gif87a", []byte("GIF87a trailing"), TypeGIF, "image/gif"},
		{"gif89a", []byte("GIF89a trailing"), TypeGIF, "image/gif"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), TypeWEBP, "image/webp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := DetectHead(tt.head)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Type)
			assert.Equal(t, tt.mime, result.MIME)
		})
	}
}

func TestDetectHeadRejectsUnknown(t *testing.T) {
	for _, head := range [][]byte{
		nil,
		{},
		[]byte("plain text"),
		[]byte("<svg xmlns="),
		[]byte("RIFF\x00\x00\x00\x00WAVE"),
		{0xff, 0xd8},
	} {
		_, err := DetectHead(head)
		assert.ErrorIs(t, err, ErrUnknownType, "head: %q", head)
	}
}

func TestMimeTypeFromHTTP(t *testing.T) {
	header := http.Header{}
	assert.Equal(t, "", MimeTypeFromHTTP(header))

	header.Set("Content-Type", "image/png")
	assert.Equal(t, "image/png", MimeTypeFromHTTP(header))

	header.Set("Content-Type", "image/jpeg; charset=binary")
	assert.Equal(t, "image/jpeg", MimeTypeFromHTTP(header))
}
