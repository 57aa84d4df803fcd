package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/garyjia/school-billing/internal/application/port"
	"github.com/garyjia/school-billing/internal/apperror"
	"github.com/garyjia/school-billing/internal/domain/billing"
)

// invoiceDocument is the stored shape of an invoice. The snapshot fields
// are written for querying; reads re-derive them from Data.
type invoiceDocument struct {
	ID          string               `bson:"_id"`
	InvoiceCode *string              `bson:"invoiceCode,omitempty"`
	StudentID   *string              `bson:"studentId"`
	AmountDue   primitive.Decimal128 `bson:"amountDue"`
	AmountPaid  primitive.Decimal128 `bson:"amountPaid"`
	Balance     primitive.Decimal128 `bson:"balance"`
	Status      string               `bson:"status"`
	IssuedAt    *time.Time           `bson:"issuedAt"`
	DueAt       *time.Time           `bson:"dueAt"`
	Data        bson.M               `bson:"data"`
	CreatedAt   time.Time            `bson:"createdAt"`
	UpdatedAt   time.Time            `bson:"updatedAt"`
}

// InvoiceRepository implements port.InvoiceRepository
type InvoiceRepository struct {
	coll     *mongo.Collection
	students *StudentRepository
	logger   *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(store *Store, students *StudentRepository, logger *zap.Logger) *InvoiceRepository {
	return &InvoiceRepository{
		coll:     store.invoices(),
		students: students,
		logger:   logger,
	}
}

// Create inserts a new invoice
func (r *InvoiceRepository) Create(ctx context.Context, invoice *billing.Invoice) error {
	doc, err := toDocument(invoice)
	if err != nil {
		return err
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("invoice code already in use: %w", apperror.ErrConflict)
		}
		r.logger.Error("Failed to create invoice", zap.String("invoice_id", invoice.ID), zap.Error(err))
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

// GetByID retrieves an invoice and its linked student
func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*billing.Invoice, error) {
	var doc invoiceDocument
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get invoice by ID", zap.String("invoice_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	invoice, err := r.fromDocument(ctx, &doc)
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// Update replaces the stored document
func (r *InvoiceRepository) Update(ctx context.Context, invoice *billing.Invoice) error {
	doc, err := toDocument(invoice)
	if err != nil {
		return err
	}

	result, err := r.coll.ReplaceOne(ctx, bson.M{"_id": invoice.ID}, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("invoice code already in use: %w", apperror.ErrConflict)
		}
		r.logger.Error("Failed to update invoice", zap.String("invoice_id", invoice.ID), zap.Error(err))
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("invoice %s: %w", invoice.ID, mongo.ErrNoDocuments)
	}
	return nil
}

func toDocument(invoice *billing.Invoice) (*invoiceDocument, error) {
	snap := invoice.Snapshot()

	due, err := toDecimal128(snap.AmountDue())
	if err != nil {
		return nil, err
	}
	paid, err := toDecimal128(snap.AmountPaid())
	if err != nil {
		return nil, err
	}
	balance, err := toDecimal128(snap.Balance())
	if err != nil {
		return nil, err
	}

	return &invoiceDocument{
		ID:          invoice.ID,
		InvoiceCode: invoice.InvoiceCode(),
		StudentID:   invoice.StudentID,
		AmountDue:   due,
		AmountPaid:  paid,
		Balance:     balance,
		Status:      string(snap.Status()),
		IssuedAt:    snap.IssuedAt(),
		DueAt:       snap.DueAt(),
		Data:        bson.M(toStorable(invoice.Data)),
		CreatedAt:   invoice.CreatedAt,
		UpdatedAt:   invoice.UpdatedAt,
	}, nil
}

func (r *InvoiceRepository) fromDocument(ctx context.Context, doc *invoiceDocument) (*billing.Invoice, error) {
	payload := normalizeDocument(doc.Data)

	inv := billing.NewInvoice(doc.ID, payload, nil, doc.CreatedAt.UTC())
	if doc.StudentID != nil {
		student, err := r.students.GetByID(ctx, *doc.StudentID)
		if err != nil {
			return nil, err
		}
		if student != nil {
			inv.Reproject(payload, student)
		}
	}
	inv.UpdatedAt = doc.UpdatedAt.UTC()
	return inv, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("failed to encode amount %s: %w", d.String(), err)
	}
	return v, nil
}

// toStorable converts a payload into BSON-friendly values. json.Number is
// stored as int64 when integral and as double otherwise.
func toStorable(p billing.Payload) map[string]interface{} {
	out := make(map[string]interface{}, len(p))
	for k, v := range p {
		out[k] = storableValue(v)
	}
	return out
}

func storableValue(v interface{}) interface{} {
	switch val := v.(type) {
	case billing.Payload:
		return toStorable(val)
	case map[string]interface{}:
		return toStorable(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = storableValue(item)
		}
		return out
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	}
	return v
}

// normalizeDocument turns driver-decoded values back into the plain shapes
// billing.Payload expects: nested documents become maps and arrays become
// []interface{}.
func normalizeDocument(doc bson.M) billing.Payload {
	out := make(billing.Payload, len(doc))
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case bson.M:
		return map[string]interface{}(normalizeDocument(val))
	case map[string]interface{}:
		return map[string]interface{}(normalizeDocument(val))
	case bson.D:
		return map[string]interface{}(normalizeDocument(val.Map()))
	case bson.A:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	case int32:
		return int64(val)
	case primitive.DateTime:
		return val.Time().UTC().Format(time.RFC3339)
	case primitive.Decimal128:
		return val.String()
	}
	return v
}

// Verify interface compliance
var _ port.InvoiceRepository = (*InvoiceRepository)(nil)
