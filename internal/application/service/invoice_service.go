package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/school-billing/internal/application/port"
	"github.com/garyjia/school-billing/internal/apperror"
	"github.com/garyjia/school-billing/internal/domain/billing"
)

// InvoiceService creates and updates invoices. Every write resolves the
// student first and then re-derives the snapshot from the full payload.
type InvoiceService interface {
	Create(ctx context.Context, payload billing.Payload) (*billing.Invoice, error)
	Update(ctx context.Context, id string, payload billing.Payload) (*billing.Invoice, error)
	Get(ctx context.Context, id string) (*billing.Invoice, error)
}

type invoiceServiceImpl struct {
	invoiceRepo port.InvoiceRepository
	resolver    *StudentResolver
	logger      Logger
	now         func() time.Time
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(
	invoiceRepo port.InvoiceRepository,
	resolver *StudentResolver,
	logger Logger,
) InvoiceService {
	return &invoiceServiceImpl{
		invoiceRepo: invoiceRepo,
		resolver:    resolver,
		logger:      logger,
		now:         time.Now,
	}
}

// Create resolves the student, derives the snapshot and stores a new invoice
func (s *invoiceServiceImpl) Create(ctx context.Context, payload billing.Payload) (*billing.Invoice, error) {
	if err := validatePayload(payload); err != nil {
		return nil, err
	}

	student, err := s.resolver.Resolve(ctx, payload)
	if err != nil {
		return nil, err
	}

	invoice := billing.NewInvoice(uuid.NewString(), payload, student, s.now().UTC())
	if err := s.invoiceRepo.Create(ctx, invoice); err != nil {
		return nil, s.writeError("create", invoice, err)
	}

	s.logger.Info("Invoice created",
		"invoice_id", invoice.ID,
		"status", string(invoice.Snapshot().Status()),
		"student_id", invoice.StudentID)
	return invoice, nil
}

// Update replaces the payload of an existing invoice and re-derives its
// snapshot. The stored student link is re-resolved from the new payload.
func (s *invoiceServiceImpl) Update(ctx context.Context, id string, payload billing.Payload) (*billing.Invoice, error) {
	if err := validateInvoiceID(id); err != nil {
		return nil, err
	}
	if err := validatePayload(payload); err != nil {
		return nil, err
	}

	invoice, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get invoice", "error", err, "invoice_id", id)
		return nil, apperror.Transient("failed to load invoice", err)
	}
	if invoice == nil {
		return nil, apperror.NotFound("invoice %s not found", id)
	}

	student, err := s.resolver.Resolve(ctx, payload)
	if err != nil {
		return nil, err
	}

	previous := invoice.Snapshot().Status()
	invoice.Reproject(payload, student)
	invoice.UpdatedAt = s.now().UTC()

	if err := s.invoiceRepo.Update(ctx, invoice); err != nil {
		return nil, s.writeError("update", invoice, err)
	}

	s.logger.Info("Invoice updated",
		"invoice_id", invoice.ID,
		"previous_status", string(previous),
		"status", string(invoice.Snapshot().Status()))
	return invoice, nil
}

// Get returns the invoice with its snapshot derived from the stored payload
func (s *invoiceServiceImpl) Get(ctx context.Context, id string) (*billing.Invoice, error) {
	if err := validateInvoiceID(id); err != nil {
		return nil, err
	}

	invoice, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get invoice", "error", err, "invoice_id", id)
		return nil, apperror.Transient("failed to load invoice", err)
	}
	if invoice == nil {
		return nil, apperror.NotFound("invoice %s not found", id)
	}
	return invoice, nil
}

func (s *invoiceServiceImpl) writeError(op string, invoice *billing.Invoice, err error) error {
	if errors.Is(err, apperror.ErrConflict) {
		code := ""
		if c := invoice.InvoiceCode(); c != nil {
			code = *c
		}
		return apperror.Conflict(fmt.Sprintf("invoice code %q is already in use", code), err)
	}
	s.logger.Error("Failed to "+op+" invoice", "error", err, "invoice_id", invoice.ID)
	return apperror.Transient("failed to save invoice", err)
}

func validateInvoiceID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperror.Validation("invalid invoice id %q", id)
	}
	return nil
}

// validatePayload rejects documents that cannot be derived from. Unknown
// status values are left to Derive, which ignores them.
func validatePayload(payload billing.Payload) error {
	if payload == nil {
		return apperror.Validation("invoice payload is required")
	}
	return nil
}
