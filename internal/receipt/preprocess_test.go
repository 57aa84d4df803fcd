package receipt

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/school-billing/internal/apperror"
)

func uniform(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestPreprocess_DownscalesLongerSide(t *testing.T) {
	out := Preprocess(uniform(3600, 1200, color.White), DefaultPreprocessOptions())

	assert.Equal(t, 1800, out.Bounds().Dx())
	assert.Equal(t, 600, out.Bounds().Dy())
}

func TestPreprocess_PortraitKeepsAspect(t *testing.T) {
	out := Preprocess(uniform(900, 2700, color.White), DefaultPreprocessOptions())

	assert.Equal(t, 600, out.Bounds().Dx())
	assert.Equal(t, 1800, out.Bounds().Dy())
}

func TestPreprocess_NeverUpscales(t *testing.T) {
	out := Preprocess(uniform(40, 20, color.White), DefaultPreprocessOptions())

	assert.Equal(t, 40, out.Bounds().Dx())
	assert.Equal(t, 20, out.Bounds().Dy())
}

func TestPreprocess_Binarizes(t *testing.T) {
	tests := []struct {
		name  string
		color color.NRGBA
		want  uint8
	}{
		// luminance 140 stretches to 143.6
		{"light gray stays below threshold", color.NRGBA{R: 140, G: 140, B: 140, A: 255}, 0},
		// luminance 150 stretches to 156.6
		{"gray above threshold", color.NRGBA{R: 150, G: 150, B: 150, A: 255}, 255},
		{"white", color.NRGBA{R: 255, G: 255, B: 255, A: 255}, 255},
		{"black", color.NRGBA{R: 0, G: 0, B: 0, A: 255}, 0},
		// 0.299*255 = 76.2 luminance, dark after stretch
		{"pure red is dark", color.NRGBA{R: 255, A: 255}, 0},
		// 0.587*255 + 0.114*255 = 178.8 luminance
		{"cyan is light", color.NRGBA{G: 255, B: 255, A: 255}, 255},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Preprocess(uniform(4, 4, tt.color), DefaultPreprocessOptions())

			got := out.NRGBAAt(1, 1)
			assert.Equal(t, tt.want, got.R)
			assert.Equal(t, tt.want, got.G)
			assert.Equal(t, tt.want, got.B)
			assert.Equal(t, uint8(255), got.A)
		})
	}
}

func TestPreprocess_Deterministic(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 5), B: uint8(x + y), A: 255})
		}
	}

	first := Preprocess(src, DefaultPreprocessOptions())
	second := Preprocess(src, DefaultPreprocessOptions())

	assert.Equal(t, first.Pix, second.Pix)
}

func TestDecodeImage_PNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, uniform(10, 6, color.White)))

	img, err := DecodeImage(buf.Bytes(), "upload.bin")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10, 6), img.Bounds())
	assert.True(t, IsSupported(buf.Bytes(), "upload.bin"))
}

func TestDecodeImage_RejectsUnsupported(t *testing.T) {
	_, err := DecodeImage([]byte("plain text, not a receipt"), "notes.txt")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	_, err = DecodeImage(nil, "empty.png")
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	assert.False(t, IsSupported([]byte("hello"), "notes.txt"))
}

func TestDecodeImage_CorruptImageIsValidationError(t *testing.T) {
	_, err := DecodeImage([]byte("not really a jpeg"), "photo.jpg")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}
