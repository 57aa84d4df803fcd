package receipt

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// PreprocessOptions tunes the OCR normalization pipeline
type PreprocessOptions struct {
	MaxDimension     int     // longer side limit in pixels, never upscaled
	ContrastGain     float64 // linear stretch factor around ContrastMidpoint
	ContrastMidpoint float64
	Threshold        float64 // luminance above this becomes white
}

// DefaultPreprocessOptions returns the tuning used for phone photos of receipts
func DefaultPreprocessOptions() PreprocessOptions {
	return PreprocessOptions{
		MaxDimension:     1800,
		ContrastGain:     1.3,
		ContrastMidpoint: 128,
		Threshold:        150,
	}
}

// Preprocess downscales img so its longer side fits MaxDimension, converts it
// to luminance, stretches contrast and binarizes every channel to 0 or 255.
// The result is deterministic for identical input.
func Preprocess(img image.Image, opts PreprocessOptions) *image.NRGBA {
	if opts.MaxDimension <= 0 {
		opts = DefaultPreprocessOptions()
	}

	// Fit keeps the aspect ratio and returns a copy when img already fits
	scaled := imaging.Fit(img, opts.MaxDimension, opts.MaxDimension, imaging.Lanczos)

	return imaging.AdjustFunc(scaled, func(c color.NRGBA) color.NRGBA {
		v := binarize(luminance(c), opts)
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})
}

func luminance(c color.NRGBA) float64 {
	return 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
}

func binarize(lum float64, opts PreprocessOptions) uint8 {
	stretched := (lum-opts.ContrastMidpoint)*opts.ContrastGain + opts.ContrastMidpoint
	if stretched < 0 {
		stretched = 0
	} else if stretched > 255 {
		stretched = 255
	}
	if stretched > opts.Threshold {
		return 255
	}
	return 0
}
