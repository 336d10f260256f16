// Package imaging normalises uploaded product images into bounded JPEGs.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"

	"github.com/erazemk/stockledger/internal/apperr"
)

// Options bound a normalised image.
type Options struct {
	MaxDimension int
	Quality      int
	MaxBytes     int64
}

// DefaultOptions fit catalog thumbnails and detail views.
var DefaultOptions = Options{
	MaxDimension: 800,
	Quality:      82,
	MaxBytes:     8 << 20,
}

// decoders by sniffed content type. Client headers are ignored.
var decoders = map[string]func(io.Reader) (image.Image, error){
	"image/jpeg": jpeg.Decode,
	"image/png":  png.Decode,
	"image/webp": webp.Decode,
}

// Image is a normalised product image.
type Image struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// Normalize decodes a JPEG, PNG or WebP upload, flattens transparency onto
// white, fits it within opts.MaxDimension and re-encodes it as JPEG.
// Rejected uploads yield a Validation error.
func Normalize(r io.Reader, opts Options) (*Image, error) {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = DefaultOptions.MaxDimension
	}
	if opts.Quality <= 0 {
		opts.Quality = DefaultOptions.Quality
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultOptions.MaxBytes
	}

	data, err := io.ReadAll(io.LimitReader(r, opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading image data: %w", err)
	}
	if int64(len(data)) > opts.MaxBytes {
		return nil, apperr.E(apperr.Validation, "image exceeds %d bytes", opts.MaxBytes)
	}

	detected := http.DetectContentType(data)
	decode, ok := decoders[detected]
	if !ok {
		return nil, apperr.E(apperr.Validation, "unsupported image format %s", detected)
	}

	src, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, err, "decoding image")
	}

	w, h := fit(src.Bounds().Dx(), src.Bounds().Dy(), opts.MaxDimension)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}

	return &Image{Data: buf.Bytes(), MIME: "image/jpeg", Width: w, Height: h}, nil
}

// fit scales (w, h) down so the longer side is at most limit, keeping the
// aspect ratio. Images already within bounds keep their size.
func fit(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		return limit, clamp(h * limit / w)
	}
	return clamp(w * limit / h), limit
}

func clamp(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
