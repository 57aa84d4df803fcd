package proof

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/garyjia/school-billing/internal/domain/billing"
	"github.com/garyjia/school-billing/internal/receipt"
)

// Invoices loads and saves the invoice a workspace edits
type Invoices interface {
	Get(ctx context.Context, id string) (*billing.Invoice, error)
	Update(ctx context.Context, id string, payload billing.Payload) (*billing.Invoice, error)
}

// Registry keeps one workspace per invoice under review
type Registry struct {
	invoices   Invoices
	recognizer Recognizer
	parser     *receipt.Parser
	images     ImageStore
	logger     *zap.Logger

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

// NewRegistry creates an empty Registry
func NewRegistry(
	invoices Invoices,
	recognizer Recognizer,
	parser *receipt.Parser,
	images ImageStore,
	logger *zap.Logger,
) *Registry {
	return &Registry{
		invoices:   invoices,
		recognizer: recognizer,
		parser:     parser,
		images:     images,
		logger:     logger,
		workspaces: make(map[string]*Workspace),
	}
}

// Open returns the workspace for an invoice, seeding a new one from the
// stored payload. A missing invoice is reported by the loader.
func (r *Registry) Open(ctx context.Context, invoiceID string) (*Workspace, error) {
	r.mu.Lock()
	if ws, ok := r.workspaces[invoiceID]; ok {
		r.mu.Unlock()
		return ws, nil
	}
	r.mu.Unlock()

	inv, err := r.invoices.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// another request may have opened it while the invoice was loading
	if ws, ok := r.workspaces[invoiceID]; ok {
		return ws, nil
	}
	ws := NewWorkspace(invoiceID, inv.Data, r.recognizer, r.parser, r.images, r.logger)
	r.workspaces[invoiceID] = ws
	r.logger.Debug("Proof workspace opened", zap.String("invoice_id", invoiceID))
	return ws, nil
}

// Save reloads the stored invoice, replays the workspace's additions and
// proof reviews onto it and persists the result through the invoice update
// path, so the snapshot is re-derived. Edits made to the invoice elsewhere
// since the workspace opened are kept.
func (r *Registry) Save(ctx context.Context, invoiceID string) (*billing.Invoice, error) {
	ws, err := r.Open(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	var inv *billing.Invoice
	err = ws.Commit(
		func() (billing.Payload, error) {
			current, err := r.invoices.Get(ctx, invoiceID)
			if err != nil {
				return nil, err
			}
			return current.Data, nil
		},
		func(merged billing.Payload) (billing.Payload, error) {
			saved, err := r.invoices.Update(ctx, invoiceID, merged)
			if err != nil {
				return nil, err
			}
			inv = saved
			return saved.Data, nil
		},
	)
	if err != nil {
		return nil, err
	}

	r.logger.Info("Proof workspace saved",
		zap.String("invoice_id", invoiceID),
		zap.Int("payments", len(inv.Data.Payments())))
	return inv, nil
}

// Close waits for the workspace's recognitions and forgets it
func (r *Registry) Close(invoiceID string) {
	r.mu.Lock()
	ws, ok := r.workspaces[invoiceID]
	delete(r.workspaces, invoiceID)
	r.mu.Unlock()

	if ok {
		ws.Wait()
	}
}

// Shutdown waits for every in-flight recognition
func (r *Registry) Shutdown() {
	r.mu.Lock()
	all := make([]*Workspace, 0, len(r.workspaces))
	for _, ws := range r.workspaces {
		all = append(all, ws)
	}
	r.mu.Unlock()

	for _, ws := range all {
		ws.Wait()
	}
}
