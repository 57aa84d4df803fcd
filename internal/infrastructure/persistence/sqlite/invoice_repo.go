package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/school-billing/internal/application/port"
	"github.com/garyjia/school-billing/internal/apperror"
	"github.com/garyjia/school-billing/internal/domain/billing"
	"github.com/garyjia/school-billing/internal/domain/entity"
)

// InvoiceRepository implements port.InvoiceRepository. Snapshot columns are
// written for querying only; reads always re-derive from data.
type InvoiceRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *DB, logger *zap.Logger) *InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new invoice
func (r *InvoiceRepository) Create(ctx context.Context, invoice *billing.Invoice) error {
	data, err := json.Marshal(invoice.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal invoice data: %w", err)
	}
	snap := invoice.Snapshot()

	query := `
		INSERT INTO invoices (
			id, invoice_code, student_id,
			amount_due, amount_paid, balance, status, issued_at, due_at,
			data, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.getExecutor(ctx).ExecContext(ctx, query,
		invoice.ID,
		invoice.InvoiceCode(),
		invoice.StudentID,
		snap.AmountDue().String(),
		snap.AmountPaid().String(),
		snap.Balance().String(),
		string(snap.Status()),
		snap.IssuedAt(),
		snap.DueAt(),
		string(data),
		invoice.CreatedAt,
		invoice.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("invoice code already in use: %w", apperror.ErrConflict)
		}
		r.logger.Error("Failed to create invoice", zap.String("invoice_id", invoice.ID), zap.Error(err))
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

// GetByID retrieves an invoice with its linked student
func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*billing.Invoice, error) {
	query := `
		SELECT i.id, i.data, i.created_at, i.updated_at,
			s.id, s.student_code, s.full_name, s.grade_year, s.section_class, s.status,
			s.created_at, s.updated_at
		FROM invoices i
		LEFT JOIN students s ON s.id = i.student_id
		WHERE i.id = ?
	`

	invoice, err := scanInvoice(r.db.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get invoice by ID", zap.String("invoice_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return invoice, nil
}

// Update rewrites the payload, the student link and the snapshot columns
func (r *InvoiceRepository) Update(ctx context.Context, invoice *billing.Invoice) error {
	data, err := json.Marshal(invoice.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal invoice data: %w", err)
	}
	snap := invoice.Snapshot()

	query := `
		UPDATE invoices SET
			invoice_code = ?, student_id = ?,
			amount_due = ?, amount_paid = ?, balance = ?, status = ?,
			issued_at = ?, due_at = ?, data = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.getExecutor(ctx).ExecContext(ctx, query,
		invoice.InvoiceCode(),
		invoice.StudentID,
		snap.AmountDue().String(),
		snap.AmountPaid().String(),
		snap.Balance().String(),
		string(snap.Status()),
		snap.IssuedAt(),
		snap.DueAt(),
		string(data),
		invoice.UpdatedAt,
		invoice.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("invoice code already in use: %w", apperror.ErrConflict)
		}
		r.logger.Error("Failed to update invoice", zap.String("invoice_id", invoice.ID), zap.Error(err))
		return fmt.Errorf("failed to update invoice: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("invoice %s: %w", invoice.ID, sql.ErrNoRows)
	}
	return nil
}

func scanInvoice(row rowScanner) (*billing.Invoice, error) {
	var (
		id        string
		data      string
		createdAt time.Time
		updatedAt time.Time

		studentID        sql.NullString
		studentCode      sql.NullString
		fullName         sql.NullString
		gradeYear        sql.NullString
		sectionClass     sql.NullString
		studentStatus    sql.NullString
		studentCreatedAt sql.NullTime
		studentUpdatedAt sql.NullTime
	)

	err := row.Scan(
		&id, &data, &createdAt, &updatedAt,
		&studentID, &studentCode, &fullName, &gradeYear, &sectionClass, &studentStatus,
		&studentCreatedAt, &studentUpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	payload, err := billing.DecodePayload([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode invoice data: %w", err)
	}

	var student *entity.Student
	if studentID.Valid {
		student = &entity.Student{
			ID:           studentID.String,
			StudentCode:  studentCode.String,
			FullName:     fullName.String,
			GradeYear:    gradeYear.String,
			SectionClass: sectionClass.String,
			Status:       studentStatus.String,
			CreatedAt:    studentCreatedAt.Time,
			UpdatedAt:    studentUpdatedAt.Time,
		}
	}

	invoice := billing.NewInvoice(id, payload, student, createdAt)
	invoice.UpdatedAt = updatedAt
	return invoice, nil
}

// Verify interface compliance
var _ port.InvoiceRepository = (*InvoiceRepository)(nil)
