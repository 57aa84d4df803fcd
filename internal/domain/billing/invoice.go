package billing

import (
	"time"

	"github.com/garyjia/school-billing/internal/domain/entity"
)

// Invoice is a billing statement. Its snapshot is a projection of Data and
// the linked student and is recomputed whenever either is replaced.
type Invoice struct {
	ID        string
	StudentID *string
	Student   *entity.Student
	Data      Payload
	CreatedAt time.Time
	UpdatedAt time.Time

	snapshot Snapshot
}

// NewInvoice builds an invoice and derives its snapshot.
func NewInvoice(id string, payload Payload, student *entity.Student, now time.Time) *Invoice {
	inv := &Invoice{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
	inv.Reproject(payload, student)
	return inv
}

// Reproject replaces the payload and student and re-derives the snapshot.
func (i *Invoice) Reproject(payload Payload, student *entity.Student) {
	snap, merged := Derive(payload, student)
	i.Data = merged
	i.Student = student
	i.StudentID = nil
	if student != nil {
		id := student.ID
		i.StudentID = &id
	}
	i.snapshot = snap
}

// Snapshot returns the derived financial state.
func (i *Invoice) Snapshot() Snapshot {
	return i.snapshot
}

// InvoiceCode returns the derived invoice code, or nil when absent.
func (i *Invoice) InvoiceCode() *string {
	if code := i.snapshot.InvoiceCode(); code != "" {
		return &code
	}
	return nil
}
