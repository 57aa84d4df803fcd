package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strconv"

	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"
)

// TesseractRecognizer runs a local Tesseract engine. A client is created per
// call because gosseract clients are not safe for concurrent use.
type TesseractRecognizer struct {
	logger *zap.Logger
}

// NewTesseractRecognizer creates a Tesseract-backed Recognizer
func NewTesseractRecognizer(logger *zap.Logger) *TesseractRecognizer {
	return &TesseractRecognizer{logger: logger}
}

// Recognize reports coarse progress at each engine stage. Tesseract itself
// cannot be interrupted once Text is called.
func (r *TesseractRecognizer) Recognize(ctx context.Context, img image.Image, cfg EngineConfig, progress ProgressFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if progress == nil {
		progress = func(int) {}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode image for tesseract: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := r.configure(client, cfg); err != nil {
		return "", err
	}
	progress(10)

	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to load image into tesseract: %w", err)
	}
	progress(30)

	text, err := client.Text()
	if err != nil {
		r.logger.Warn("Tesseract recognition failed", zap.Error(err))
		return "", fmt.Errorf("tesseract recognition failed: %w", err)
	}
	progress(100)

	return text, nil
}

func (r *TesseractRecognizer) configure(client *gosseract.Client, cfg EngineConfig) error {
	if cfg.Language != "" {
		if err := client.SetLanguage(cfg.Language); err != nil {
			return fmt.Errorf("failed to set tesseract language: %w", err)
		}
	}
	if cfg.Whitelist != "" {
		if err := client.SetWhitelist(cfg.Whitelist); err != nil {
			return fmt.Errorf("failed to set tesseract whitelist: %w", err)
		}
	}
	if cfg.PageSegMode > 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(cfg.PageSegMode)); err != nil {
			return fmt.Errorf("failed to set page segmentation mode: %w", err)
		}
	}
	if cfg.DPI > 0 {
		if err := client.SetVariable("user_defined_dpi", strconv.Itoa(cfg.DPI)); err != nil {
			return fmt.Errorf("failed to set tesseract dpi: %w", err)
		}
	}
	return nil
}

var _ Recognizer = (*TesseractRecognizer)(nil)
