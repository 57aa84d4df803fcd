package port

import (
	"context"

	"github.com/garyjia/school-billing/internal/domain/billing"
	"github.com/garyjia/school-billing/internal/domain/entity"
)

// StudentRepository defines persistence operations for Student.
// Lookups return (nil, nil) when no row matches.
type StudentRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Student, error)
	GetByCode(ctx context.Context, code string) (*entity.Student, error)

	// FindByNameFold matches the full name case-insensitively and exactly.
	// It never performs a substring match.
	FindByNameFold(ctx context.Context, name string) (*entity.Student, error)

	// CreateIfAbsent inserts the student unless its code already exists.
	// created reports whether this call inserted the row; when it did not,
	// the stored student is returned. Backends that cannot resolve a
	// concurrent insert return apperror.ErrConflict.
	CreateIfAbsent(ctx context.Context, student *entity.Student) (stored *entity.Student, created bool, err error)
}

// InvoiceRepository defines persistence operations for Invoice.
// Create and Update return apperror.ErrConflict when the invoice code is
// already used by another invoice.
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *billing.Invoice) error
	GetByID(ctx context.Context, id string) (*billing.Invoice, error)
	Update(ctx context.Context, invoice *billing.Invoice) error
}
