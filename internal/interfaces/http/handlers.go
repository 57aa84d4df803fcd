package http

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garyjia/school-billing/internal/application/service"
	"github.com/garyjia/school-billing/internal/apperror"
	"github.com/garyjia/school-billing/internal/domain/billing"
	"github.com/garyjia/school-billing/internal/domain/entity"
	"github.com/garyjia/school-billing/internal/proof"
	"github.com/garyjia/school-billing/internal/receipt"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	invoices       service.InvoiceService
	proofs         *proof.Registry
	recognizer     proof.Recognizer
	parser         *receipt.Parser
	maxUploadBytes int64
	logger         Logger
	now            func() time.Time
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	invoices service.InvoiceService,
	proofs *proof.Registry,
	recognizer proof.Recognizer,
	parser *receipt.Parser,
	maxUploadBytes int64,
	logger Logger,
) *Handlers {
	return &Handlers{
		invoices:       invoices,
		proofs:         proofs,
		recognizer:     recognizer,
		parser:         parser,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
		now:            time.Now,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool              `json:"success"`
	Data    interface{}       `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// StudentResponse is the student embedded in an invoice response
type StudentResponse struct {
	ID           string `json:"id"`
	StudentCode  string `json:"studentCode"`
	FullName     string `json:"fullName"`
	GradeYear    string `json:"gradeYear"`
	SectionClass string `json:"sectionClass"`
	Status       string `json:"status"`
}

// InvoiceResponse is the canonical invoice shape
type InvoiceResponse struct {
	ID          string           `json:"id"`
	InvoiceCode *string          `json:"invoiceCode"`
	StudentID   *string          `json:"studentId"`
	Student     *StudentResponse `json:"student"`
	AmountDue   json.Number      `json:"amountDue"`
	AmountPaid  json.Number      `json:"amountPaid"`
	Balance     json.Number      `json:"balance"`
	Status      string           `json:"status"`
	IssuedAt    *string          `json:"issuedAt"`
	DueAt       *string          `json:"dueAt"`
	Data        billing.Payload  `json:"data"`
	CreatedAt   string           `json:"createdAt"`
	UpdatedAt   string           `json:"updatedAt"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// CreateInvoice handles POST /api/invoices
func (h *Handlers) CreateInvoice(c *gin.Context) {
	payload, ok := h.bindPayload(c)
	if !ok {
		return
	}

	invoice, err := h.invoices.Create(c.Request.Context(), payload)
	if err != nil {
		h.writeError(c, err, "Failed to create invoice")
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    toInvoiceResponse(invoice),
	})
}

// GetInvoice handles GET /api/invoices/:id
func (h *Handlers) GetInvoice(c *gin.Context) {
	invoice, err := h.invoices.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "Failed to get invoice")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toInvoiceResponse(invoice),
	})
}

// UpdateInvoice handles PUT /api/invoices/:id
func (h *Handlers) UpdateInvoice(c *gin.Context) {
	payload, ok := h.bindPayload(c)
	if !ok {
		return
	}

	invoice, err := h.invoices.Update(c.Request.Context(), c.Param("id"), payload)
	if err != nil {
		h.writeError(c, err, "Failed to update invoice")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toInvoiceResponse(invoice),
	})
}

// RecognizeReceipt handles POST /api/ocr. The file name seeds the fields and
// recognized values override them; a failed recognition still answers 200
// with the seed.
func (h *Handlers) RecognizeReceipt(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "multipart field \"file\" is required",
		})
		return
	}

	file, err := h.readUpload(header)
	if err != nil {
		h.writeError(c, err, "Failed to read upload")
		return
	}
	if !receipt.IsSupported(file.Content, file.Name) {
		h.writeError(c, apperror.Validation("%s is not an image or PDF receipt", file.Name), "Unsupported receipt")
		return
	}

	fields := h.parser.ParseFilename(file.Name, h.now())
	recognized, err := h.recognizer.Recognize(c.Request.Context(), file.Content, file.Name, func(int) {})
	if err != nil {
		h.logger.Info("Receipt recognition failed, answering with file name values",
			"file_name", file.Name,
			"error", err)
	} else {
		fields = mergeFields(fields, recognized)
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: OCRResponse{
			Fields:     fields,
			Recognized: err == nil,
		},
	})
}

// OCRResponse is the result of a one-shot recognition
type OCRResponse struct {
	Fields     receipt.Fields `json:"fields"`
	Recognized bool           `json:"recognized"`
}

func mergeFields(seed, recognized receipt.Fields) receipt.Fields {
	if recognized.Reference != "" {
		seed.Reference = recognized.Reference
	}
	if recognized.Amount != "" {
		seed.Amount = recognized.Amount
	}
	if recognized.Method != "" {
		seed.Method = recognized.Method
	}
	if recognized.Date != "" {
		seed.Date = recognized.Date
	}
	return seed
}

// bindPayload reads the request body as an invoice payload
func (h *Handlers) bindPayload(c *gin.Context) (billing.Payload, bool) {
	raw, err := c.GetRawData()
	if err != nil {
		h.writeError(c, apperror.Validation("failed to read request body"), "Invalid request body")
		return nil, false
	}

	payload, err := billing.DecodePayload(raw)
	if err != nil {
		h.writeError(c, apperror.Validation("request body must be a JSON object"), "Invalid request body")
		return nil, false
	}
	return payload, true
}

func (h *Handlers) readUpload(header *multipart.FileHeader) (proof.File, error) {
	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		return proof.File{}, apperror.Validation("%s exceeds the upload size limit", header.Filename)
	}

	f, err := header.Open()
	if err != nil {
		return proof.File{}, apperror.Transient("failed to open upload", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return proof.File{}, apperror.Transient("failed to read upload", err)
	}
	return proof.File{Name: header.Filename, Content: content}, nil
}

// writeError maps an error to its HTTP status. Transient errors are logged
// and answered with a generic message.
func (h *Handlers) writeError(c *gin.Context, err error, logMsg string) {
	status := statusFor(err)
	message := apperror.MessageOf(err)

	if status >= http.StatusInternalServerError || message == "" {
		h.logger.Error(logMsg, "path", c.Request.URL.Path, "error", err)
		message = "internal server error"
	}

	c.JSON(status, Response{
		Success: false,
		Error:   message,
	})
}

func statusFor(err error) int {
	switch apperror.KindOf(err) {
	case apperror.KindValidation:
		return http.StatusBadRequest
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindConflict:
		return http.StatusConflict
	case apperror.KindExtraction:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// toInvoiceResponse converts the invoice aggregate to the canonical shape
func toInvoiceResponse(invoice *billing.Invoice) InvoiceResponse {
	snap := invoice.Snapshot()
	resp := InvoiceResponse{
		ID:          invoice.ID,
		InvoiceCode: invoice.InvoiceCode(),
		StudentID:   invoice.StudentID,
		Student:     toStudentResponse(invoice.Student),
		AmountDue:   number(snap.AmountDue()),
		AmountPaid:  number(snap.AmountPaid()),
		Balance:     number(snap.Balance()),
		Status:      string(snap.Status()),
		IssuedAt:    formatTime(snap.IssuedAt()),
		DueAt:       formatTime(snap.DueAt()),
		Data:        invoice.Data,
		CreatedAt:   invoice.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   invoice.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if resp.Data == nil {
		resp.Data = billing.Payload{}
	}
	return resp
}

func toStudentResponse(student *entity.Student) *StudentResponse {
	if student == nil {
		return nil
	}
	return &StudentResponse{
		ID:           student.ID,
		StudentCode:  student.StudentCode,
		FullName:     student.FullName,
		GradeYear:    student.GradeYear,
		SectionClass: student.SectionClass,
		Status:       student.Status,
	}
}

// number renders an amount as an exact JSON number
func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
