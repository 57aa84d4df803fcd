package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/school-billing/internal/apperror"
	"github.com/garyjia/school-billing/internal/domain/billing"
	"github.com/garyjia/school-billing/internal/domain/entity"
	"github.com/garyjia/school-billing/internal/ocr"
	"github.com/garyjia/school-billing/internal/proof"
	"github.com/garyjia/school-billing/internal/receipt"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

// stubInvoiceService keeps invoices in memory and can be told to fail
type stubInvoiceService struct {
	mu       sync.Mutex
	invoices map[string]*billing.Invoice
	err      error
}

func newStubInvoiceService() *stubInvoiceService {
	return &stubInvoiceService{invoices: make(map[string]*billing.Invoice)}
}

func (s *stubInvoiceService) Create(ctx context.Context, payload billing.Payload) (*billing.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var student *entity.Student
	if code := payload.String("customer", "accountNo"); code != "" {
		student = &entity.Student{ID: uuid.NewString(), StudentCode: code, FullName: payload.String("customer", "name"), Status: entity.StudentStatusActive}
	}
	inv := billing.NewInvoice(uuid.NewString(), payload, student, time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))
	s.invoices[inv.ID] = inv
	return inv, nil
}

func (s *stubInvoiceService) Update(ctx context.Context, id string, payload billing.Payload) (*billing.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	inv, ok := s.invoices[id]
	if !ok {
		return nil, apperror.NotFound("invoice %s not found", id)
	}
	inv.Reproject(payload, inv.Student)
	return inv, nil
}

func (s *stubInvoiceService) Get(ctx context.Context, id string) (*billing.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	inv, ok := s.invoices[id]
	if !ok {
		return nil, apperror.NotFound("invoice %s not found", id)
	}
	return inv, nil
}

type stubRecognizer struct {
	fields receipt.Fields
	err    error
}

func (r *stubRecognizer) Recognize(ctx context.Context, data []byte, filename string, progress ocr.ProgressFunc) (receipt.Fields, error) {
	progress(100)
	return r.fields, r.err
}

type stubImages struct {
	mu     sync.Mutex
	stored map[string]bool
}

func (s *stubImages) Store(ctx context.Context, invoiceID, fileName string, content []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	handle := "/proofs/" + invoiceID + "/" + uuid.NewString() + "_" + fileName
	s.stored[handle] = true
	return handle, nil
}

func (s *stubImages) Release(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stored, handle)
	return nil
}

type testEnv struct {
	router   *gin.Engine
	invoices *stubInvoiceService
	registry *proof.Registry
	images   *stubImages
}

func setupServer(t *testing.T, rec *stubRecognizer) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	invoices := newStubInvoiceService()
	images := &stubImages{stored: make(map[string]bool)}
	parser := receipt.NewParser(receipt.DefaultLocale())
	registry := proof.NewRegistry(invoices, rec, parser, images, zap.NewNop())

	cfg := DefaultServerConfig()
	cfg.ProofDir = t.TempDir()
	server := NewServer(cfg, invoices, registry, rec, parser, nopLogger{})

	return &testEnv{router: server.Router(), invoices: invoices, registry: registry, images: images}
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte, contentType string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func (e *testEnv) createInvoice(t *testing.T, body string) map[string]interface{} {
	t.Helper()
	w, resp := e.do(t, http.MethodPost, "/api/invoices", []byte(body), "application/json")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return resp["data"].(map[string]interface{})
}

func multipartBody(t *testing.T, field string, names ...string) ([]byte, string) {
	t.Helper()
	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewGray(image.Rect(0, 0, 4, 4))))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range names {
		part, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write(img.Bytes())
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestHealthCheck(t *testing.T) {
	env := setupServer(t, &stubRecognizer{})
	w, resp := env.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])
}

func TestCreateInvoice_CanonicalShape(t *testing.T) {
	env := setupServer(t, &stubRecognizer{})

	data := env.createInvoice(t, `{
		"customer": {"name": "Ana Reyes", "accountNo": "S-1001"},
		"amountDue": 1000,
		"payments": [{"amount": 250.5}],
		"invoice": {"statementNo": "SOA-7", "dueDate": "2024-07-01"}
	}`)

	assert.Equal(t, "SOA-7", data["invoiceCode"])
	assert.Equal(t, 1000.0, data["amountDue"])
	assert.Equal(t, 250.5, data["amountPaid"])
	assert.Equal(t, 749.5, data["balance"])
	assert.Equal(t, "Partially Paid", data["status"])
	assert.Equal(t, "2024-07-01T00:00:00Z", data["dueAt"])
	assert.Nil(t, data["issuedAt"])
	assert.NotEmpty(t, data["studentId"])

	student := data["student"].(map[string]interface{})
	assert.Equal(t, "S-1001", student["studentCode"])
	assert.Equal(t, "Active", student["status"])

	payload := data["data"].(map[string]interface{})
	customer := payload["customer"].(map[string]interface{})
	assert.Equal(t, data["studentId"], customer["studentId"])
	assert.Contains(t, data, "createdAt")
	assert.Contains(t, data, "updatedAt")
}

func TestCreateInvoice_WithoutStudent(t *testing.T) {
	env := setupServer(t, &stubRecognizer{})
	data := env.createInvoice(t, `{"amountDue": 0}`)

	assert.Nil(t, data["student"])
	assert.Nil(t, data["studentId"])
	assert.Nil(t, data["invoiceCode"])
	assert.Equal(t, "Draft", data["status"])
}

func TestInvoiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		serviceErr error
		wantStatus int
		wantError  string
	}{
		{"malformed body", http.MethodPost, "/api/invoices", `{"amountDue":`, nil, http.StatusBadRequest, "request body must be a JSON object"},
		{"array body", http.MethodPost, "/api/invoices", `[1,2]`, nil, http.StatusBadRequest, "request body must be a JSON object"},
		{"unknown invoice", http.MethodGet, "/api/invoices/" + uuid.NewString(), "", nil, http.StatusNotFound, ""},
		{"validation", http.MethodPut, "/api/invoices/abc", `{}`, apperror.Validation("invalid invoice id"), http.StatusBadRequest, "invalid invoice id"},
		{"conflict", http.MethodPost, "/api/invoices", `{"invoiceCode":"INV-1"}`, apperror.Conflict(`invoice code "INV-1" is already in use`, apperror.ErrConflict), http.StatusConflict, `invoice code "INV-1" is already in use`},
		{"transient", http.MethodPost, "/api/invoices", `{}`, apperror.Transient("failed to store invoice", errors.New("disk I/O error")), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupServer(t, &stubRecognizer{})
			env.invoices.err = tt.serviceErr

			w, resp := env.do(t, tt.method, tt.path, []byte(tt.body), "application/json")
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, false, resp["success"])
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, resp["error"])
			}
			assert.NotContains(t, w.Body.String(), "disk I/O")
		})
	}
}

func TestProofWorkflow_EndToEnd(t *testing.T) {
	rec := &stubRecognizer{fields: receipt.Fields{Reference: "GC-778899", Amount: "1000", Date: "2024-05-20"}}
	env := setupServer(t, rec)
	invoice := env.createInvoice(t, `{"amountDue": 1000, "customer": {"name": "Ben", "accountNo": "S-2"}}`)
	id := invoice["id"].(string)
	base := "/api/invoices/" + id + "/proofs"

	body, contentType := multipartBody(t, "files", "gcash_500.png")
	w, resp := env.do(t, http.MethodPost, base, body, contentType)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	created := resp["data"].([]interface{})
	require.Len(t, created, 1)
	upload := created[0].(map[string]interface{})
	assert.Equal(t, "Reading OCR", upload["status"])
	assert.Equal(t, "500", upload["amount"])
	proofID := upload["id"].(string)

	ws, err := env.registry.Open(context.Background(), id)
	require.NoError(t, err)
	ws.Wait()

	w, resp = env.do(t, http.MethodGet, base, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	uploads := resp["data"].(map[string]interface{})["uploads"].([]interface{})
	settled := uploads[0].(map[string]interface{})
	assert.Equal(t, "Pending", settled["status"])
	assert.Equal(t, "GC-778899", settled["reference"])
	assert.Equal(t, 100.0, settled["ocrProgress"])

	w, _ = env.do(t, http.MethodPost, base+"/"+proofID+"/add", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, resp = env.do(t, http.MethodPost, base+"/"+proofID+"/verify", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	payments := resp["data"].(map[string]interface{})["payments"].([]interface{})
	require.Len(t, payments, 1)
	assert.Equal(t, "Verified", payments[0].(map[string]interface{})["proofStatus"])

	w, _ = env.do(t, http.MethodDelete, base+"/"+proofID, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = env.do(t, http.MethodPost, base+"/save", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	saved := resp["data"].(map[string]interface{})
	assert.Equal(t, "Paid", saved["status"])
	assert.Equal(t, 0.0, saved["balance"])
}

func TestSelectProofs_Errors(t *testing.T) {
	env := setupServer(t, &stubRecognizer{})
	invoice := env.createInvoice(t, `{"amountDue": 10}`)
	base := "/api/invoices/" + invoice["id"].(string) + "/proofs"

	body, contentType := multipartBody(t, "other", "a.png")
	w, _ := env.do(t, http.MethodPost, base, body, contentType)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/invoices/"+uuid.NewString()+"/proofs", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, contentType = multipartBody(t, "files", "a.png")
	w, _ = env.do(t, http.MethodPost, "/api/invoices/"+uuid.NewString()+"/proofs", body, contentType)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEditProof_Validation(t *testing.T) {
	env := setupServer(t, &stubRecognizer{err: errors.New("engine down")})
	invoice := env.createInvoice(t, `{"amountDue": 10}`)
	id := invoice["id"].(string)
	base := "/api/invoices/" + id + "/proofs"

	body, contentType := multipartBody(t, "files", "receipt.png")
	w, resp := env.do(t, http.MethodPost, base, body, contentType)
	require.Equal(t, http.StatusAccepted, w.Code)
	proofID := resp["data"].([]interface{})[0].(map[string]interface{})["id"].(string)

	ws, err := env.registry.Open(context.Background(), id)
	require.NoError(t, err)
	ws.Wait()

	w, resp = env.do(t, http.MethodPatch, base+"/"+proofID, []byte(`{"method":"Cheque","amount":"12x","date":"16/05/2024"}`), "application/json")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	fields := resp["fields"].(map[string]interface{})
	assert.Equal(t, "payment_method", fields["Method"])
	assert.Equal(t, "amount", fields["Amount"])
	assert.Equal(t, "datetime", fields["Date"])

	w, resp = env.do(t, http.MethodPatch, base+"/"+proofID, []byte(`{"method":"Maya","amount":"1,000.00","date":"2024-05-16"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	edited := resp["data"].(map[string]interface{})
	assert.Equal(t, "Maya", edited["method"])
	assert.Equal(t, "1000", edited["amount"])

	w, _ = env.do(t, http.MethodPatch, base+"/"+uuid.NewString(), []byte(`{}`), "application/json")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecognizeReceipt(t *testing.T) {
	t.Run("recognized values override the file name", func(t *testing.T) {
		env := setupServer(t, &stubRecognizer{fields: receipt.Fields{Reference: "ABC123456", Amount: "1250", Date: "2024-05-16"}})
		body, contentType := multipartBody(t, "file", "bpi_900.png")

		w, resp := env.do(t, http.MethodPost, "/api/ocr", body, contentType)
		require.Equal(t, http.StatusOK, w.Code)
		data := resp["data"].(map[string]interface{})
		fields := data["fields"].(map[string]interface{})
		assert.Equal(t, true, data["recognized"])
		assert.Equal(t, "ABC123456", fields["reference"])
		assert.Equal(t, "1250", fields["amount"])
		assert.Equal(t, "Bank Transfer", fields["method"])
		assert.Equal(t, "2024-05-16", fields["date"])
	})

	t.Run("failed recognition falls back to the file name", func(t *testing.T) {
		env := setupServer(t, &stubRecognizer{err: apperror.Extraction("recognition returned no text", nil)})
		body, contentType := multipartBody(t, "file", "gcash_1250.png")

		w, resp := env.do(t, http.MethodPost, "/api/ocr", body, contentType)
		require.Equal(t, http.StatusOK, w.Code)
		data := resp["data"].(map[string]interface{})
		fields := data["fields"].(map[string]interface{})
		assert.Equal(t, false, data["recognized"])
		assert.Equal(t, "1250", fields["amount"])
		assert.Equal(t, "GCash", fields["method"])
	})

	t.Run("unsupported file", func(t *testing.T) {
		env := setupServer(t, &stubRecognizer{})
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", "notes.txt")
		require.NoError(t, err)
		_, _ = part.Write([]byte(strings.Repeat("plain text ", 10)))
		require.NoError(t, mw.Close())

		w, _ := env.do(t, http.MethodPost, "/api/ocr", buf.Bytes(), mw.FormDataContentType())
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
