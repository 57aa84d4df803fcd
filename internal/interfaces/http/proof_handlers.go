package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/school-billing/internal/apperror"
	"github.com/garyjia/school-billing/internal/domain/billing"
	"github.com/garyjia/school-billing/internal/proof"
)

// EditProofRequest carries reviewer corrections. Omitted fields are kept.
type EditProofRequest struct {
	Reference *string `json:"reference" validate:"omitempty,max=64"`
	Amount    *string `json:"amount" validate:"omitempty,amount"`
	Method    *string `json:"method" validate:"omitempty,payment_method"`
	Date      *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// ProofsResponse is the state of an invoice's proof workspace
type ProofsResponse struct {
	InvoiceID string                  `json:"invoiceId"`
	Uploads   []proof.Upload          `json:"uploads"`
	Payments  []billing.PaymentRecord `json:"payments"`
}

// ListProofs handles GET /api/invoices/:id/proofs
func (h *Handlers) ListProofs(c *gin.Context) {
	ws, ok := h.openWorkspace(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    workspaceResponse(ws),
	})
}

// SelectProofs handles POST /api/invoices/:id/proofs. Every file in the
// multipart field "files" becomes an upload and recognition starts in the
// background; the response shows the uploads in Reading OCR.
func (h *Handlers) SelectProofs(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil || len(form.File["files"]) == 0 {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "multipart field \"files\" is required",
		})
		return
	}

	files := make([]proof.File, 0, len(form.File["files"]))
	for _, header := range form.File["files"] {
		file, err := h.readUpload(header)
		if err != nil {
			h.writeError(c, err, "Failed to read upload")
			return
		}
		files = append(files, file)
	}

	ws, ok := h.openWorkspace(c)
	if !ok {
		return
	}

	created, err := ws.Select(c.Request.Context(), files)
	if err != nil {
		h.writeError(c, err, "Failed to select proofs")
		return
	}

	c.JSON(http.StatusAccepted, Response{
		Success: true,
		Data:    created,
	})
}

// EditProof handles PATCH /api/invoices/:id/proofs/:proofId
func (h *Handlers) EditProof(c *gin.Context) {
	var req EditProofRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ws, ok := h.openWorkspace(c)
	if !ok {
		return
	}

	upload, err := ws.Edit(c.Param("proofId"), proof.Edit{
		Reference: req.Reference,
		Amount:    req.Amount,
		Method:    req.Method,
		Date:      req.Date,
	})
	if err != nil {
		h.writeError(c, err, "Failed to edit proof")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    upload,
	})
}

// AddProof handles POST /api/invoices/:id/proofs/:proofId/add
func (h *Handlers) AddProof(c *gin.Context) {
	h.transition(c, (*proof.Workspace).Add, "Failed to add proof")
}

// VerifyProof handles POST /api/invoices/:id/proofs/:proofId/verify
func (h *Handlers) VerifyProof(c *gin.Context) {
	h.transition(c, (*proof.Workspace).Verify, "Failed to verify proof")
}

// RejectProof handles POST /api/invoices/:id/proofs/:proofId/reject
func (h *Handlers) RejectProof(c *gin.Context) {
	h.transition(c, (*proof.Workspace).Reject, "Failed to reject proof")
}

type workspaceAction func(ws *proof.Workspace, ctx context.Context, id string) (proof.Upload, error)

func (h *Handlers) transition(c *gin.Context, action workspaceAction, logMsg string) {
	ws, ok := h.openWorkspace(c)
	if !ok {
		return
	}

	upload, err := action(ws, c.Request.Context(), c.Param("proofId"))
	if err != nil {
		h.writeError(c, err, logMsg)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"upload":   upload,
			"payments": nonNilPayments(ws.Payload().Payments()),
		},
	})
}

// RemoveProof handles DELETE /api/invoices/:id/proofs/:proofId
func (h *Handlers) RemoveProof(c *gin.Context) {
	ws, ok := h.openWorkspace(c)
	if !ok {
		return
	}

	if err := ws.Remove(c.Request.Context(), c.Param("proofId")); err != nil {
		h.writeError(c, err, "Failed to remove proof")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    workspaceResponse(ws),
	})
}

// SaveProofs handles POST /api/invoices/:id/proofs/save. The workspace
// payload goes through the invoice update path so the snapshot is
// re-derived; a persistence failure blocks the save.
func (h *Handlers) SaveProofs(c *gin.Context) {
	invoice, err := h.proofs.Save(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "Failed to save proofs")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toInvoiceResponse(invoice),
	})
}

func (h *Handlers) openWorkspace(c *gin.Context) (*proof.Workspace, bool) {
	if h.proofs == nil {
		h.writeError(c, apperror.NotFound("proof review is not enabled"), "Proof registry missing")
		return nil, false
	}

	ws, err := h.proofs.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "Failed to open proof workspace")
		return nil, false
	}
	return ws, true
}

func workspaceResponse(ws *proof.Workspace) ProofsResponse {
	return ProofsResponse{
		InvoiceID: ws.InvoiceID(),
		Uploads:   ws.Uploads(),
		Payments:  nonNilPayments(ws.Payload().Payments()),
	}
}

func nonNilPayments(records []billing.PaymentRecord) []billing.PaymentRecord {
	if records == nil {
		return []billing.PaymentRecord{}
	}
	return records
}
