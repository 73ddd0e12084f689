package still

import (
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"math"
	"strings"
	"testing"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	return img
}

func TestEncode(t *testing.T) {
	img, err := Encode(testImage(64, 48), 0.8)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if img.Width() != 64 || img.Height() != 48 {
		t.Errorf("size = %dx%d, want 64x48", img.Width(), img.Height())
	}
	if img.MIME() != MIMEJPEG {
		t.Errorf("MIME() = %q", img.MIME())
	}
	if img.Len() == 0 {
		t.Fatal("encoded data is empty")
	}
	if img.CapturedAt().IsZero() {
		t.Error("CapturedAt() should be set")
	}

	decoded, err := img.Decode()
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if decoded.Bounds().Dx() != 64 || decoded.Bounds().Dy() != 48 {
		t.Errorf("decoded bounds = %v", decoded.Bounds())
	}
}

func TestEncodeEmpty(t *testing.T) {
	if _, err := Encode(nil, 0.9); !errors.Is(err, ErrEmpty) {
		t.Errorf("Encode(nil) error = %v, want ErrEmpty", err)
	}
	if _, err := Encode(image.NewRGBA(image.Rect(0, 0, 0, 0)), 0.9); !errors.Is(err, ErrEmpty) {
		t.Errorf("Encode(0x0) error = %v, want ErrEmpty", err)
	}
}

func TestEncodeTransparentIsWhite(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 8; y < 24; y++ {
		for x := 8; x < 24; x++ {
			src.SetRGBA(x, y, color.RGBA{A: 255})
		}
	}

	img, err := Encode(src, 1)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	decoded, err := img.Decode()
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	r, g, b, _ := decoded.At(1, 1).RGBA()
	if r>>8 < 240 || g>>8 < 240 || b>>8 < 240 {
		t.Errorf("transparent corner = %d,%d,%d, want white", r>>8, g>>8, b>>8)
	}
	r, g, b, _ = decoded.At(16, 16).RGBA()
	if r>>8 > 15 || g>>8 > 15 || b>>8 > 15 {
		t.Errorf("opaque center = %d,%d,%d, want black", r>>8, g>>8, b>>8)
	}
}

func TestBytesIsCopy(t *testing.T) {
	img, err := Encode(testImage(8, 8), 0.9)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	b := img.Bytes()
	b[0] ^= 0xFF
	if img.Bytes()[0] == b[0] {
		t.Error("mutating Bytes() result changed the still")
	}
}

func TestBase64AndDataURL(t *testing.T) {
	img, err := Encode(testImage(8, 8), 0.9)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	b64 := img.Base64()
	if strings.HasPrefix(b64, "data:") {
		t.Error("Base64() must not carry a data URI prefix")
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("base64 decode error = %v", err)
	}
	if string(raw) != string(img.Bytes()) {
		t.Error("Base64() does not decode to Bytes()")
	}

	if url := img.DataURL(); url != "data:image/jpeg;base64,"+b64 {
		t.Errorf("DataURL() = %q...", url[:32])
	}
}

func TestJPEGQuality(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{0, 1},
		{0.5, 50},
		{0.92, 92},
		{1, 100},
		{-0.1, 92},
		{1.5, 92},
		{math.NaN(), 92},
	}
	for _, tt := range tests {
		if got := JPEGQuality(tt.in); got != tt.want {
			t.Errorf("JPEGQuality(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMeta(t *testing.T) {
	img, err := Encode(testImage(10, 20), 0.9)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	m := img.Meta()
	if m.Width != 10 || m.Height != 20 || m.Size != img.Len() || m.MIME != MIMEJPEG {
		t.Errorf("Meta() = %+v", m)
	}
}
