package engine

import (
	"github.com/gabriel-vasile/mimetype"
)

var imageFormats = []string{
	"image/jpeg",
	"image/png",
	"image/bmp",
	"image/gif",
	"image/tiff",
}

// IsValidImageFormat sniffs the container signature of data.
func IsValidImageFormat(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	mt := mimetype.Detect(data)
	for _, f := range imageFormats {
		if mt.Is(f) {
			return true
		}
	}
	return false
}
