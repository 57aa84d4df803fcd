package ocr

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/garyjia/school-billing/internal/apperror"
	"github.com/garyjia/school-billing/internal/receipt"
)

// Orchestrator decodes, preprocesses and recognizes one receipt per call.
type Orchestrator struct {
	recognizer Recognizer
	parser     *receipt.Parser
	preprocess receipt.PreprocessOptions
	engine     EngineConfig
	logger     *zap.Logger
}

// NewOrchestrator creates an Orchestrator around an injected Recognizer
func NewOrchestrator(
	recognizer Recognizer,
	parser *receipt.Parser,
	preprocess receipt.PreprocessOptions,
	engine EngineConfig,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		recognizer: recognizer,
		parser:     parser,
		preprocess: preprocess,
		engine:     engine,
		logger:     logger,
	}
}

// Recognize runs the engine once over the preprocessed image and parses the
// resulting text. Engine errors and blank text are returned as extraction
// failures; callers keep their filename-derived fields in that case.
func (o *Orchestrator) Recognize(ctx context.Context, data []byte, filename string, progress ProgressFunc) (receipt.Fields, error) {
	report := monotonic(progress)
	report(0)

	img, err := receipt.DecodeImage(data, filename)
	if err != nil {
		return receipt.Fields{}, apperror.Extraction(fmt.Sprintf("failed to decode %s", filename), err)
	}

	prepared := receipt.Preprocess(img, o.preprocess)

	text, err := o.recognizer.Recognize(ctx, prepared, o.engine, report)
	if err != nil {
		return receipt.Fields{}, apperror.Extraction("recognition engine failed", err)
	}
	if strings.TrimSpace(text) == "" {
		return receipt.Fields{}, apperror.Extraction("recognition returned no text", nil)
	}
	report(100)

	fields := o.parser.ParseText(text)
	o.logger.Debug("Receipt text recognized",
		zap.String("file_name", filename),
		zap.Int("text_length", len(text)),
		zap.String("reference", fields.Reference),
		zap.String("amount", fields.Amount),
		zap.String("date", fields.Date))

	return fields, nil
}

// monotonic clamps progress to 0-100 and drops values that would move it
// backwards. Engines may report from their own goroutines.
func monotonic(progress ProgressFunc) ProgressFunc {
	if progress == nil {
		return func(int) {}
	}
	var (
		mu   sync.Mutex
		last = -1
	)
	return func(percent int) {
		if percent < 0 {
			percent = 0
		} else if percent > 100 {
			percent = 100
		}
		mu.Lock()
		if percent <= last {
			mu.Unlock()
			return
		}
		last = percent
		mu.Unlock()
		progress(percent)
	}
}
