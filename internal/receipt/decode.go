package receipt

import (
	"bytes"
	"fmt"
	"image"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"

	"github.com/garyjia/school-billing/internal/apperror"
)

// PDFRenderDPI is the resolution e-receipt PDFs are rasterized at
const PDFRenderDPI = 300

// IsSupported reports whether data (with its file name) is an accepted proof
// format: any image/* the decoder understands, or a PDF.
func IsSupported(data []byte, filename string) bool {
	_, ok := sniff(data, filename)
	return ok
}

// DecodeImage decodes a receipt photo or the first page of a PDF receipt.
// EXIF orientation is applied so sideways phone photos come out upright.
func DecodeImage(data []byte, filename string) (image.Image, error) {
	if len(data) == 0 {
		return nil, apperror.Validation("empty file %q", filename)
	}

	kind, ok := sniff(data, filename)
	if !ok {
		return nil, apperror.Validation("unsupported file type for %q", filename)
	}

	switch kind {
	case "pdf":
		return RasterizePDF(data)
	case "webp":
		img, err := webp.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, apperror.Validation("failed to decode webp %q: %v", filename, err)
		}
		return img, nil
	default:
		img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err != nil {
			return nil, apperror.Validation("failed to decode image %q: %v", filename, err)
		}
		return img, nil
	}
}

// RasterizePDF renders the first page of a PDF
func RasterizePDF(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, apperror.Validation("failed to open PDF: %v", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, apperror.Validation("PDF has no pages")
	}

	img, err := doc.ImageDPI(0, PDFRenderDPI)
	if err != nil {
		return nil, fmt.Errorf("failed to render PDF page: %w", err)
	}
	return img, nil
}

// sniff detects the format from content, falling back to the extension
func sniff(data []byte, filename string) (string, bool) {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	contentType := http.DetectContentType(head)

	switch {
	case contentType == "application/pdf":
		return "pdf", true
	case contentType == "image/webp":
		return "webp", true
	case contentType == "image/jpeg", contentType == "image/png", contentType == "image/gif",
		contentType == "image/bmp":
		return "raster", true
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "pdf", true
	case ".webp":
		return "webp", true
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff":
		return "raster", true
	}
	return "", false
}
