package library

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const (
	defaultMaxDimension = 512
	defaultJPEGQuality  = 80
	defaultMaxPixels    = 100 * 1000 * 1000 // 100 megapixels
)

// Thumbnailer downsamples cover images for the catalog.
type Thumbnailer struct {
	MaxDimension int
	JPEGQuality  int
	MaxPixels    int // Total pixel count limit for decode (width * height)
}

// Thumbnail holds the stored cover bytes. Warning is set when the input was
// kept as-is.
type Thumbnail struct {
	Data    []byte
	Ext     string
	Width   int
	Height  int
	Warning string
}

// NewThumbnailer creates a thumbnailer with defaults for zero values.
func NewThumbnailer(maxDimension, quality int) *Thumbnailer {
	if maxDimension <= 0 {
		maxDimension = defaultMaxDimension
	}
	if quality <= 0 {
		quality = defaultJPEGQuality
	}
	if quality > 100 {
		quality = 100
	}
	return &Thumbnailer{
		MaxDimension: maxDimension,
		JPEGQuality:  quality,
		MaxPixels:    defaultMaxPixels,
	}
}

// Make fits the image inside MaxDimension x MaxDimension and re-encodes it as
// JPEG. Images that cannot be decoded are returned unchanged with ext.
func (t *Thumbnailer) Make(input []byte, ext string) (Thumbnail, error) {
	out := Thumbnail{Data: input, Ext: ext}
	if out.Ext == "" {
		out.Ext = "jpg"
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(input))
	if err != nil {
		out.Warning = fmt.Sprintf("image decode failed: %v", err)
		return out, nil
	}
	out.Width, out.Height = cfg.Width, cfg.Height
	pixels := uint64(cfg.Width) * uint64(cfg.Height)
	if t.MaxPixels > 0 && pixels > uint64(t.MaxPixels) {
		out.Warning = fmt.Sprintf("image too large to decode: %dx%d (%d pixels)", cfg.Width, cfg.Height, pixels)
		return out, nil
	}

	src, err := imaging.Decode(bytes.NewReader(input), imaging.AutoOrientation(true))
	if err != nil {
		out.Warning = fmt.Sprintf("image decode failed: %v", err)
		return out, nil
	}

	processed := imaging.Fit(src, t.MaxDimension, t.MaxDimension, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, processed, imaging.JPEG, imaging.JPEGQuality(t.JPEGQuality)); err != nil {
		return out, fmt.Errorf("jpeg encode failed: %w", err)
	}

	return Thumbnail{
		Data:   buf.Bytes(),
		Ext:    "jpg",
		Width:  processed.Bounds().Dx(),
		Height: processed.Bounds().Dy(),
	}, nil
}
