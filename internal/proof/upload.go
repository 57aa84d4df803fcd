// Package proof runs the payment-proof review workflow: each uploaded receipt
// is recognized in the background, reviewed, and folded into the invoice
// payload as a payment record.
package proof

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/garyjia/school-billing/internal/domain/workflow"
	"github.com/garyjia/school-billing/internal/ocr"
	"github.com/garyjia/school-billing/internal/receipt"
)

// Upload is a read-only view of one proof in a workspace
type Upload struct {
	ID          string         `json:"id"`
	FileName    string         `json:"fileName"`
	Handle      string         `json:"handle"`
	Reference   string         `json:"reference"`
	Amount      string         `json:"amount"`
	Method      string         `json:"method"`
	Date        string         `json:"date"`
	Status      workflow.State `json:"status"`
	OCRProgress int            `json:"ocrProgress"`
}

// File is one selected receipt
type File struct {
	Name    string
	Content []byte
}

// Edit carries reviewer corrections. Nil fields are left unchanged.
type Edit struct {
	Reference *string
	Amount    *string
	Method    *string
	Date      *string
}

// Recognizer reads payment fields from a receipt image
type Recognizer interface {
	Recognize(ctx context.Context, data []byte, filename string, progress ocr.ProgressFunc) (receipt.Fields, error)
}

// ImageStore keeps proof images and issues display handles for them
type ImageStore interface {
	Store(ctx context.Context, invoiceID, fileName string, content []byte) (string, error)
	Release(ctx context.Context, handle string) error
}

// upload is the mutable record behind Upload. Guarded by Workspace.mu.
type upload struct {
	view    Upload
	machine workflow.StateMachine
	removed bool
}

func (u *upload) snapshot() Upload {
	v := u.view
	v.Status = u.machine.State()
	return v
}

// newReference generates a placeholder reference for a receipt whose text
// has not been read yet.
func newReference() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "PP-" + strings.ToUpper(id[:10])
}
