package proof

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/school-billing/internal/apperror"
	"github.com/garyjia/school-billing/internal/domain/billing"
	"github.com/garyjia/school-billing/internal/domain/entity"
	"github.com/garyjia/school-billing/internal/domain/workflow"
	"github.com/garyjia/school-billing/internal/receipt"
	"github.com/garyjia/school-billing/pkg/utils"
)

// Workspace holds the uploads and working payload of one invoice under
// review. All methods are safe for concurrent use.
type Workspace struct {
	invoiceID  string
	recognizer Recognizer
	parser     *receipt.Parser
	images     ImageStore
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.Mutex
	payload billing.Payload
	uploads []*upload
	byID    map[string]*upload
	// payload edits made since the last rebase, in order
	changes []func(billing.Payload)

	inflight sync.WaitGroup
}

// NewWorkspace starts a workspace over a copy of payload
func NewWorkspace(
	invoiceID string,
	payload billing.Payload,
	recognizer Recognizer,
	parser *receipt.Parser,
	images ImageStore,
	logger *zap.Logger,
) *Workspace {
	if payload == nil {
		payload = billing.Payload{}
	}
	return &Workspace{
		invoiceID:  invoiceID,
		recognizer: recognizer,
		parser:     parser,
		images:     images,
		logger:     logger.With(zap.String("invoice_id", invoiceID)),
		now:        time.Now,
		payload:    payload.Clone(),
		byID:       make(map[string]*upload),
	}
}

// InvoiceID returns the invoice this workspace edits
func (w *Workspace) InvoiceID() string {
	return w.invoiceID
}

// Select stores each file, seeds its fields from the file name and starts
// recognition. Every file gets its own goroutine; there is no admission
// limit. Recognition runs detached from ctx and cannot be cancelled.
func (w *Workspace) Select(ctx context.Context, files []File) ([]Upload, error) {
	if len(files) == 0 {
		return nil, apperror.Validation("no files selected")
	}
	for _, f := range files {
		if !receipt.IsSupported(f.Content, f.Name) {
			return nil, apperror.Validation("%s is not an image or PDF receipt", f.Name)
		}
	}

	created := make([]Upload, 0, len(files))
	for _, f := range files {
		handle, err := w.images.Store(ctx, w.invoiceID, f.Name, f.Content)
		if err != nil {
			return created, apperror.Transient("failed to store receipt", err)
		}

		seed := w.parser.ParseFilename(f.Name, w.now())
		u := &upload{
			view: Upload{
				ID:        uuid.NewString(),
				FileName:  f.Name,
				Handle:    handle,
				Reference: newReference(),
				Amount:    seed.Amount,
				Method:    seed.Method,
				Date:      seed.Date,
			},
			machine: workflow.NewUploadMachine(workflow.StatePending),
		}

		w.mu.Lock()
		w.uploads = append(w.uploads, u)
		w.byID[u.view.ID] = u
		if err := u.machine.Fire(ctx, workflow.TriggerStartOCR); err != nil {
			w.mu.Unlock()
			return created, err
		}
		view := u.snapshot()
		w.mu.Unlock()

		created = append(created, view)

		w.inflight.Add(1)
		go w.recognize(context.WithoutCancel(ctx), u, f)
	}

	w.logger.Info("Proof uploads selected", zap.Int("count", len(created)))
	return created, nil
}

// recognize runs OCR for one upload and settles it back to Pending. A failure
// keeps the file-name seed. The result of a removed upload is dropped.
func (w *Workspace) recognize(ctx context.Context, u *upload, f File) {
	defer w.inflight.Done()

	progress := func(percent int) {
		w.mu.Lock()
		defer w.mu.Unlock()
		if !u.removed {
			u.view.OCRProgress = percent
		}
	}

	fields, err := w.recognizer.Recognize(ctx, f.Content, f.Name, progress)

	w.mu.Lock()
	defer w.mu.Unlock()

	if u.removed {
		w.logger.Debug("Discarding recognition result for removed upload", zap.String("upload_id", u.view.ID))
		return
	}
	if fireErr := u.machine.Fire(ctx, workflow.TriggerFinishOCR); fireErr != nil {
		w.logger.Error("Failed to settle upload after recognition",
			zap.String("upload_id", u.view.ID),
			zap.Error(fireErr))
		return
	}

	if err != nil {
		u.view.OCRProgress = 0
		w.logger.Warn("Receipt recognition failed, keeping file name values",
			zap.String("upload_id", u.view.ID),
			zap.String("file_name", f.Name),
			zap.Error(err))
		return
	}

	u.view.OCRProgress = 100
	if fields.Reference != "" {
		u.view.Reference = fields.Reference
	}
	if fields.Amount != "" {
		u.view.Amount = fields.Amount
	}
	if fields.Method != "" {
		u.view.Method = fields.Method
	}
	if fields.Date != "" {
		u.view.Date = fields.Date
	}
	w.logger.Info("Receipt recognized",
		zap.String("upload_id", u.view.ID),
		zap.String("reference", u.view.Reference),
		zap.String("amount", u.view.Amount))
}

// Wait blocks until every in-flight recognition has settled
func (w *Workspace) Wait() {
	w.inflight.Wait()
}

// Uploads returns the current uploads in selection order
func (w *Workspace) Uploads() []Upload {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]Upload, 0, len(w.uploads))
	for _, u := range w.uploads {
		out = append(out, u.snapshot())
	}
	return out
}

// Get returns one upload
func (w *Workspace) Get(id string) (Upload, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	u, err := w.lookup(id)
	if err != nil {
		return Upload{}, err
	}
	return u.snapshot(), nil
}

// Edit applies reviewer corrections to a Pending upload
func (w *Workspace) Edit(id string, edit Edit) (Upload, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	u, err := w.lookup(id)
	if err != nil {
		return Upload{}, err
	}
	if state := u.machine.State(); state != workflow.StatePending {
		return Upload{}, apperror.Validation("upload %s cannot be edited while %s", id, state)
	}

	next := u.view
	if edit.Reference != nil {
		next.Reference = utils.SanitizeString(*edit.Reference)
	}
	if edit.Amount != nil {
		amount, err := utils.ParseAmount(*edit.Amount)
		if err != nil {
			return Upload{}, apperror.Validation("%s", err.Error())
		}
		next.Amount = amount.String()
	}
	if edit.Method != nil {
		if !entity.PaymentMethod(*edit.Method).IsValid() {
			return Upload{}, apperror.Validation("unknown payment method %q", *edit.Method)
		}
		next.Method = *edit.Method
	}
	if edit.Date != nil {
		if err := utils.ValidateISODate(*edit.Date); err != nil {
			return Upload{}, apperror.Validation("%s", err.Error())
		}
		next.Date = *edit.Date
	}

	u.view = next
	return u.snapshot(), nil
}

// Add accepts the upload and appends its payment record to the payload
func (w *Workspace) Add(ctx context.Context, id string) (Upload, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	u, err := w.lookup(id)
	if err != nil {
		return Upload{}, err
	}
	if !u.machine.CanFire(workflow.TriggerAdd) {
		return Upload{}, transitionError(id, u.machine.State(), workflow.TriggerAdd)
	}

	record, err := u.paymentRecord()
	if err != nil {
		return Upload{}, err
	}
	if err := u.machine.Fire(ctx, workflow.TriggerAdd); err != nil {
		return Upload{}, transitionError(id, u.machine.State(), workflow.TriggerAdd)
	}

	w.change(func(p billing.Payload) { p.AppendPayment(record) })
	w.logger.Info("Payment added from proof",
		zap.String("upload_id", id),
		zap.String("reference", record.Reference),
		zap.String("amount", record.Amount.String()))
	return u.snapshot(), nil
}

// Verify marks the payment records carrying the upload's reference as
// verified. Records are matched by reference only.
func (w *Workspace) Verify(ctx context.Context, id string) (Upload, error) {
	return w.review(ctx, id, workflow.TriggerVerify, entity.ProofStatusVerified)
}

// Reject marks the payment records carrying the upload's reference as
// rejected.
func (w *Workspace) Reject(ctx context.Context, id string) (Upload, error) {
	return w.review(ctx, id, workflow.TriggerReject, entity.ProofStatusRejected)
}

func (w *Workspace) review(ctx context.Context, id string, trigger workflow.Trigger, proofStatus string) (Upload, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	u, err := w.lookup(id)
	if err != nil {
		return Upload{}, err
	}
	if err := u.machine.Fire(ctx, trigger); err != nil {
		return Upload{}, transitionError(id, u.machine.State(), trigger)
	}

	reference := u.view.Reference
	matched := w.payload.MarkProofStatus(reference, proofStatus)
	w.changes = append(w.changes, func(p billing.Payload) { p.MarkProofStatus(reference, proofStatus) })
	w.logger.Info("Proof reviewed",
		zap.String("upload_id", id),
		zap.String("proof_status", proofStatus),
		zap.Int("matched_payments", matched))
	return u.snapshot(), nil
}

// Remove discards a non-terminal upload and releases its image. An in-flight
// recognition keeps running; its result is dropped.
func (w *Workspace) Remove(ctx context.Context, id string) error {
	w.mu.Lock()
	u, err := w.lookup(id)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if state := u.machine.State(); !workflow.CanRemove(state) {
		w.mu.Unlock()
		return apperror.Validation("upload %s cannot be removed once %s", id, state)
	}

	u.removed = true
	delete(w.byID, id)
	for i, candidate := range w.uploads {
		if candidate == u {
			w.uploads = append(w.uploads[:i], w.uploads[i+1:]...)
			break
		}
	}
	handle := u.view.Handle
	w.mu.Unlock()

	if err := w.images.Release(ctx, handle); err != nil {
		w.logger.Warn("Failed to release proof image", zap.String("handle", handle), zap.Error(err))
	}
	return nil
}

// Payload returns a copy of the working payload
func (w *Workspace) Payload() billing.Payload {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.payload.Clone()
}

// Commit replays the edits made since the last rebase onto the payload
// returned by load, hands the result to store and rebases on what store
// returns. The workspace stays locked from load to rebase, so an edit
// arriving meanwhile waits and lands on the saved payload.
func (w *Workspace) Commit(
	load func() (billing.Payload, error),
	store func(billing.Payload) (billing.Payload, error),
) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	base, err := load()
	if err != nil {
		return err
	}
	merged := base.Clone()
	for _, apply := range w.changes {
		apply(merged)
	}

	saved, err := store(merged)
	if err != nil {
		return err
	}
	w.payload = saved.Clone()
	w.changes = nil
	return nil
}

// change applies an edit to the working payload and queues it for Commit.
// Callers hold mu.
func (w *Workspace) change(apply func(billing.Payload)) {
	apply(w.payload)
	w.changes = append(w.changes, apply)
}

func (w *Workspace) lookup(id string) (*upload, error) {
	u, ok := w.byID[id]
	if !ok {
		return nil, apperror.NotFound("upload %s not found", id)
	}
	return u, nil
}

// paymentRecord builds the record an accepted upload contributes
func (u *upload) paymentRecord() (billing.PaymentRecord, error) {
	amount, err := utils.ParseAmount(u.view.Amount)
	if err != nil {
		return billing.PaymentRecord{}, apperror.Validation("upload %s: %s", u.view.ID, err.Error())
	}
	if err := utils.ValidateISODate(u.view.Date); err != nil {
		return billing.PaymentRecord{}, apperror.Validation("upload %s: %s", u.view.ID, err.Error())
	}
	method := u.view.Method
	if !entity.PaymentMethod(method).IsValid() {
		method = string(entity.PaymentMethodOther)
	}

	return billing.PaymentRecord{
		Date:          u.view.Date,
		Reference:     u.view.Reference,
		Method:        method,
		Amount:        amount,
		ProofURL:      u.view.Handle,
		ProofStatus:   entity.ProofStatusPending,
		ProofFileName: u.view.FileName,
	}, nil
}

func transitionError(id string, state workflow.State, trigger workflow.Trigger) error {
	return &apperror.Error{
		Kind:    apperror.KindValidation,
		Message: fmt.Sprintf("upload %s cannot %s while %s", id, trigger, state),
		Err:     workflow.ErrInvalidTransition,
	}
}
