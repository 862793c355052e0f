// Package upload prepares images on the client side and pushes them through
// the two-phase upload: request a slot, send the bytes, then register.
package upload

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"strings"

	"github.com/VascoOnEarth/PhotoShare/core"
	"github.com/disintegration/gift"
)

const (
	MaxSize     = 800
	JPEGQuality = 90
)

// FitWithin scales (w, h) down so the longer side is at most limit, keeping
// the aspect ratio. Images already small enough are returned unchanged.
func FitWithin(w, h, limit int) (int, int) {
	if w > h {
		if w > limit {
			h, w = atLeastOne(h*limit/w), limit
		}
	} else if h > limit {
		w, h = atLeastOne(w*limit/h), limit
	}
	return w, h
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// CenterSquare returns the square of side min(w, h) centred in a w x h image.
func CenterSquare(w, h int) image.Rectangle {
	size := min(w, h)
	x := (w - size) / 2
	y := (h - size) / 2
	return image.Rect(x, y, x+size, y+size)
}

// Prepare decodes an image, fits it within MaxSize, crops the centre square
// and re-encodes it as JPEG.
func Prepare(r io.Reader, contentType string) ([]byte, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return nil, fmt.Errorf("%w: %q is not an image", core.ErrInvalidInput, contentType)
	}

	src, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", core.ErrInvalidInput, err)
	}

	dst := process(src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func process(src image.Image) image.Image {
	b := src.Bounds()
	w, h := FitWithin(b.Dx(), b.Dy(), MaxSize)
	square := CenterSquare(w, h)

	var filters []gift.Filter
	if w != b.Dx() || h != b.Dy() {
		// Resized images start at the origin.
		filters = append(filters, gift.Resize(w, h, gift.LanczosResampling))
	} else {
		square = square.Add(b.Min)
	}
	filters = append(filters, gift.Crop(square))

	g := gift.New(filters...)
	dst := image.NewRGBA(g.Bounds(b))
	g.Draw(dst, src)
	return dst
}
