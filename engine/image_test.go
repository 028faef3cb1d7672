package engine

import (
	"bytes"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidImageFormat(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	encoders := map[string]func(*bytes.Buffer) error{
		"png":  func(b *bytes.Buffer) error { return png.Encode(b, img) },
		"jpeg": func(b *bytes.Buffer) error { return jpeg.Encode(b, img, nil) },
		"gif":  func(b *bytes.Buffer) error { return gif.Encode(b, img, nil) },
	}
	for name, enc := range encoders {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, enc(&buf))
			assert.True(t, IsValidImageFormat(buf.Bytes()))
		})
	}

	assert.True(t, IsValidImageFormat(append([]byte("II*\x00"), make([]byte, 16)...)), "tiff")

	assert.False(t, IsValidImageFormat(nil))
	assert.False(t, IsValidImageFormat(make([]byte, 128)))
	assert.False(t, IsValidImageFormat([]byte("%PDF-1.7\n")))
	assert.False(t, IsValidImageFormat([]byte("just some text")))
}
