// Package still holds an encoded captured frame.
package still

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"time"

	"golang.org/x/image/draw"
)

// MIMEJPEG is the only format stills are encoded in.
const MIMEJPEG = "image/jpeg"

// DefaultQuality matches the browser canvas default for image/jpeg.
const DefaultQuality = 0.92

// ErrEmpty is returned when encoding an image without pixels.
var ErrEmpty = errors.New("still: empty image")

// Image is an immutable encoded still frame.
// Accessors return copies so callers cannot mutate the buffer.
type Image struct {
	data       []byte
	width      int
	height     int
	mime       string
	capturedAt time.Time
}

// Encode JPEG-encodes img. quality is in [0, 1]; values outside that range
// (or NaN) use DefaultQuality. Transparent pixels come out white.
func Encode(img image.Image, quality float64) (*Image, error) {
	if img == nil {
		return nil, ErrEmpty
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, ErrEmpty
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: JPEGQuality(quality)}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	return &Image{
		data:       buf.Bytes(),
		width:      b.Dx(),
		height:     b.Dy(),
		mime:       MIMEJPEG,
		capturedAt: time.Now(),
	}, nil
}

type opaquer interface {
	Opaque() bool
}

// flatten composites img over white when it may carry alpha.
func flatten(img image.Image) image.Image {
	if o, ok := img.(opaquer); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// JPEGQuality maps a 0..1 quality to the 1..100 scale used by image/jpeg.
func JPEGQuality(q float64) int {
	if !(q >= 0 && q <= 1) {
		q = DefaultQuality
	}
	n := int(q*100 + 0.5)
	if n < 1 {
		n = 1
	}
	return n
}

// Bytes returns a copy of the encoded data.
func (i *Image) Bytes() []byte {
	out := make([]byte, len(i.data))
	copy(out, i.data)
	return out
}

// Len returns the encoded size in bytes.
func (i *Image) Len() int { return len(i.data) }

// Width returns the pixel width.
func (i *Image) Width() int { return i.width }

// Height returns the pixel height.
func (i *Image) Height() int { return i.height }

// MIME returns the content type.
func (i *Image) MIME() string { return i.mime }

// CapturedAt returns when the still was encoded.
func (i *Image) CapturedAt() time.Time { return i.capturedAt }

// Base64 returns the standard base64 encoding of the data, without a data URI prefix.
func (i *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.data)
}

// DataURL returns the data as a data: URI.
func (i *Image) DataURL() string {
	return "data:" + i.mime + ";base64," + i.Base64()
}

// Decode decodes the still back into pixels.
func (i *Image) Decode() (image.Image, error) {
	return jpeg.Decode(bytes.NewReader(i.data))
}

// Meta describes a still without its payload.
type Meta struct {
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	MIME       string    `json:"mime"`
	Size       int       `json:"size"`
	CapturedAt time.Time `json:"captured_at"`
}

// Meta returns the still's metadata.
func (i *Image) Meta() Meta {
	return Meta{
		Width:      i.width,
		Height:     i.height,
		MIME:       i.mime,
		Size:       len(i.data),
		CapturedAt: i.capturedAt,
	}
}
