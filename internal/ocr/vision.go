package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const visionTranscriptionPrompt = `Transcribe every line of text on this payment receipt exactly as printed.
Do not summarize, translate or add commentary. Keep reference numbers, amounts and dates verbatim.
Return plain text only, one printed line per output line.`

// VisionRecognizer transcribes receipt text with an OpenAI vision model.
// It only transcribes; field extraction stays with the receipt heuristics.
type VisionRecognizer struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewVisionRecognizer creates a Recognizer backed by the chat completions API
func NewVisionRecognizer(apiKey, model string, logger *zap.Logger) *VisionRecognizer {
	return &VisionRecognizer{
		client: openai.NewClient(apiKey),
		model:  model,
		logger: logger,
	}
}

func (r *VisionRecognizer) Recognize(ctx context.Context, img image.Image, cfg EngineConfig, progress ProgressFunc) (string, error) {
	if progress == nil {
		progress = func(int) {}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode image for vision: %w", err)
	}
	progress(10)

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		MaxTokens:   1024,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: visionTranscriptionPrompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	})
	if err != nil {
		r.logger.Warn("Vision transcription failed", zap.Error(err))
		return "", fmt.Errorf("vision API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from vision API")
	}
	progress(90)

	text := applyWhitelist(resp.Choices[0].Message.Content, cfg.Whitelist)
	progress(100)
	return text, nil
}

// applyWhitelist mirrors the Tesseract character restriction: text is
// uppercased and characters outside the whitelist dropped. Line breaks are
// kept. An empty whitelist passes text through.
func applyWhitelist(text, whitelist string) string {
	if whitelist == "" {
		return text
	}
	allowed := make(map[rune]bool, len(whitelist))
	for _, r := range whitelist {
		allowed[r] = true
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToUpper(text) {
		if r == '\n' || allowed[r] {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var _ Recognizer = (*VisionRecognizer)(nil)
