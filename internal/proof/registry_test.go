package proof

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/school-billing/internal/apperror"
	"github.com/garyjia/school-billing/internal/domain/billing"
	"github.com/garyjia/school-billing/internal/domain/entity"
	"github.com/garyjia/school-billing/internal/receipt"
)

type fakeInvoices struct {
	mu      sync.Mutex
	stored  map[string]*billing.Invoice
	gets    int
	updates int
}

func newFakeInvoices(invoices ...*billing.Invoice) *fakeInvoices {
	f := &fakeInvoices{stored: make(map[string]*billing.Invoice)}
	for _, inv := range invoices {
		f.stored[inv.ID] = inv
	}
	return f
}

func (f *fakeInvoices) Get(ctx context.Context, id string) (*billing.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	inv, ok := f.stored[id]
	if !ok {
		return nil, apperror.NotFound("invoice %s not found", id)
	}
	return inv, nil
}

func (f *fakeInvoices) Update(ctx context.Context, id string, payload billing.Payload) (*billing.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	inv, ok := f.stored[id]
	if !ok {
		return nil, apperror.NotFound("invoice %s not found", id)
	}
	inv.Reproject(payload, inv.Student)
	return inv, nil
}

func newTestRegistry(invoices Invoices, rec Recognizer) *Registry {
	return NewRegistry(invoices, rec, receipt.NewParser(receipt.DefaultLocale()), newMemoryImages(), zap.NewNop())
}

func TestRegistry_OpenReusesWorkspace(t *testing.T) {
	payload := billing.Payload{"amountDue": 3000, "invoiceCode": "INV-9"}
	invoices := newFakeInvoices(billing.NewInvoice("inv-9", payload, nil, time.Now()))
	reg := newTestRegistry(invoices, &fakeRecognizer{})

	first, err := reg.Open(context.Background(), "inv-9")
	require.NoError(t, err)
	second, err := reg.Open(context.Background(), "inv-9")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, invoices.gets)
	assert.Equal(t, "INV-9", first.Payload().String("invoiceCode"))

	_, err = reg.Open(context.Background(), "missing")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestRegistry_SavePersistsPayments(t *testing.T) {
	payload := billing.Payload{"amountDue": 1250}
	invoices := newFakeInvoices(billing.NewInvoice("inv-1", payload, nil, time.Now()))
	rec := &fakeRecognizer{fields: receipt.Fields{Reference: "GC-000123", Amount: "1250", Date: "2024-05-16"}}
	reg := newTestRegistry(invoices, rec)
	ctx := context.Background()

	ws, err := reg.Open(ctx, "inv-1")
	require.NoError(t, err)
	created, err := ws.Select(ctx, []File{pngFile(t, "gcash.png")})
	require.NoError(t, err)
	ws.Wait()
	_, err = ws.Add(ctx, created[0].ID)
	require.NoError(t, err)

	saved, err := reg.Save(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, 1, invoices.updates)
	assert.Equal(t, entity.InvoiceStatusPaid, saved.Snapshot().Status())
	assert.Equal(t, "0", saved.Snapshot().Balance().String())

	require.Len(t, ws.Payload().Payments(), 1)
	assert.Equal(t, "GC-000123", ws.Payload().Payments()[0].Reference)
}

func TestRegistry_SaveKeepsConcurrentInvoiceEdits(t *testing.T) {
	payload := billing.Payload{"amountDue": 1000, "invoiceCode": "INV-3"}
	invoices := newFakeInvoices(billing.NewInvoice("inv-3", payload, nil, time.Now()))
	rec := &fakeRecognizer{fields: receipt.Fields{Reference: "GC-000777", Amount: "500", Date: "2024-05-16"}}
	reg := newTestRegistry(invoices, rec)
	ctx := context.Background()

	ws, err := reg.Open(ctx, "inv-3")
	require.NoError(t, err)

	_, err = invoices.Update(ctx, "inv-3", billing.Payload{"amountDue": 2000, "invoiceCode": "INV-3"})
	require.NoError(t, err)

	created, err := ws.Select(ctx, []File{pngFile(t, "gcash.png")})
	require.NoError(t, err)
	ws.Wait()
	_, err = ws.Add(ctx, created[0].ID)
	require.NoError(t, err)
	_, err = ws.Verify(ctx, created[0].ID)
	require.NoError(t, err)

	saved, err := reg.Save(ctx, "inv-3")
	require.NoError(t, err)

	amountDue, ok := saved.Data.Number("amountDue")
	require.True(t, ok)
	assert.Equal(t, "2000", amountDue.String())
	require.Len(t, saved.Data.Payments(), 1)
	assert.Equal(t, "GC-000777", saved.Data.Payments()[0].Reference)
	assert.Equal(t, entity.ProofStatusVerified, saved.Data.Payments()[0].ProofStatus)
	assert.Equal(t, "1500", saved.Snapshot().Balance().String())
}

func TestRegistry_SaveDoesNotReplayCommittedEdits(t *testing.T) {
	invoices := newFakeInvoices(billing.NewInvoice("inv-4", billing.Payload{"amountDue": 900}, nil, time.Now()))
	rec := &fakeRecognizer{fields: receipt.Fields{Amount: "300", Date: "2024-05-16"}}
	reg := newTestRegistry(invoices, rec)
	ctx := context.Background()

	ws, err := reg.Open(ctx, "inv-4")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		created, err := ws.Select(ctx, []File{pngFile(t, "proof.png")})
		require.NoError(t, err)
		ws.Wait()
		_, err = ws.Add(ctx, created[0].ID)
		require.NoError(t, err)
		_, err = reg.Save(ctx, "inv-4")
		require.NoError(t, err)
	}

	stored, err := invoices.Get(ctx, "inv-4")
	require.NoError(t, err)
	assert.Len(t, stored.Data.Payments(), 2)
	assert.Len(t, ws.Payload().Payments(), 2)
	assert.Equal(t, "300", stored.Snapshot().Balance().String())
}

func TestRegistry_CloseForgetsWorkspace(t *testing.T) {
	invoices := newFakeInvoices(billing.NewInvoice("inv-2", billing.Payload{}, nil, time.Now()))
	rec := &fakeRecognizer{gate: make(chan struct{})}
	reg := newTestRegistry(invoices, rec)
	ctx := context.Background()

	ws, err := reg.Open(ctx, "inv-2")
	require.NoError(t, err)
	_, err = ws.Select(ctx, []File{pngFile(t, "r.png")})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		reg.Close("inv-2")
		close(done)
	}()
	close(rec.gate)
	<-done

	reopened, err := reg.Open(ctx, "inv-2")
	require.NoError(t, err)
	assert.NotSame(t, ws, reopened)
	assert.Empty(t, reopened.Uploads())
	assert.Equal(t, 2, invoices.gets)

	reg.Shutdown()
}
