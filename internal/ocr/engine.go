// Package ocr drives a text recognition engine over preprocessed receipt
// images and hands the text to the receipt heuristics.
package ocr

import (
	"context"
	"image"
)

// DefaultWhitelist restricts recognition to uppercase letters, digits, the
// period, the hyphen, space and currency symbols.
const DefaultWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789.- ₱$"

// PageSegModeSingleBlock treats the image as one uniform block of text
const PageSegModeSingleBlock = 6

// EngineConfig is passed to a Recognizer on every call
type EngineConfig struct {
	Language    string
	Whitelist   string
	PageSegMode int
	DPI         int
}

// DefaultEngineConfig returns the receipt recognition settings
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Language:    "eng",
		Whitelist:   DefaultWhitelist,
		PageSegMode: PageSegModeSingleBlock,
		DPI:         300,
	}
}

// ProgressFunc receives recognition progress as a percentage 0-100
type ProgressFunc func(percent int)

// Recognizer is the external text recognition engine. Implementations call
// progress zero or more times and return the raw recognized text.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, cfg EngineConfig, progress ProgressFunc) (string, error)
}
