// Package imaging normalises uploaded item pictures.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

// MaxDimension is the maximum width or height of a stored picture.
const MaxDimension = 1024

// JPEGQuality is the compression quality of stored pictures.
const JPEGQuality = 85

// MaxUploadBytes caps the size of an upload before decoding.
const MaxUploadBytes = 5 << 20

// ErrUnsupported is returned for data that is not a JPEG or PNG image.
var ErrUnsupported = errors.New("unsupported picture format")

var accepted = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// Picture is a processed item picture. Every upload gets a fresh ID so
// clients and the audit trail can tell pictures apart.
type Picture struct {
	ID     string
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// Process sniffs the upload, downscales it to fit MaxDimension and
// re-encodes it as JPEG.
func Process(r io.Reader) (*Picture, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading picture: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return nil, fmt.Errorf("picture larger than %d bytes", MaxUploadBytes)
	}

	// Client-supplied content types are not trusted.
	if detected := http.DetectContentType(data); !accepted[detected] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, detected)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding picture: %w", err)
	}
	img = downscale(img, MaxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}

	b := img.Bounds()
	return &Picture{
		ID:     uuid.NewString(),
		Data:   buf.Bytes(),
		MIME:   "image/jpeg",
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}

// fit scales w x h down to fit within maxDim, keeping the aspect ratio.
func fit(w, h, maxDim int) (int, int) {
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	if w > h {
		h = h * maxDim / w
		w = maxDim
	} else {
		w = w * maxDim / h
		h = maxDim
	}
	return max(w, 1), max(h, 1)
}

func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w, h := fit(bounds.Dx(), bounds.Dy(), maxDim)
	if w == bounds.Dx() && h == bounds.Dy() {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func init() {
	image.RegisterFormat("jpeg", "\xff\xd8", jpeg.Decode, jpeg.DecodeConfig)
	image.RegisterFormat("png", "\x89PNG", png.Decode, png.DecodeConfig)
}
