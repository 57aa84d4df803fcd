package service

import (
	"context"
	"strings"
	"sync"

	"github.com/garyjia/school-billing/internal/apperror"
	"github.com/garyjia/school-billing/internal/domain/billing"
	"github.com/garyjia/school-billing/internal/domain/entity"
)

// mockStudentRepo is an in-memory StudentRepository. The hook funcs override
// individual operations when set.
type mockStudentRepo struct {
	mu       sync.Mutex
	students map[string]*entity.Student

	getByCodeFunc      func(ctx context.Context, code string) (*entity.Student, error)
	createIfAbsentFunc func(ctx context.Context, student *entity.Student) (*entity.Student, bool, error)

	createCalls int
	nameQueries []string
}

func newMockStudentRepo(existing ...*entity.Student) *mockStudentRepo {
	m := &mockStudentRepo{students: make(map[string]*entity.Student)}
	for _, s := range existing {
		m.students[s.ID] = s
	}
	return m
}

func (m *mockStudentRepo) GetByID(ctx context.Context, id string) (*entity.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.students[id], nil
}

func (m *mockStudentRepo) GetByCode(ctx context.Context, code string) (*entity.Student, error) {
	if m.getByCodeFunc != nil {
		return m.getByCodeFunc(ctx, code)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byCodeLocked(code), nil
}

func (m *mockStudentRepo) byCodeLocked(code string) *entity.Student {
	for _, s := range m.students {
		if s.StudentCode == code {
			return s
		}
	}
	return nil
}

func (m *mockStudentRepo) FindByNameFold(ctx context.Context, name string) (*entity.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nameQueries = append(m.nameQueries, name)
	for _, s := range m.students {
		if strings.EqualFold(s.FullName, name) {
			return s, nil
		}
	}
	return nil, nil
}

func (m *mockStudentRepo) CreateIfAbsent(ctx context.Context, student *entity.Student) (*entity.Student, bool, error) {
	m.mu.Lock()
	m.createCalls++
	m.mu.Unlock()
	if m.createIfAbsentFunc != nil {
		return m.createIfAbsentFunc(ctx, student)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing := m.byCodeLocked(student.StudentCode); existing != nil {
		return existing, false, nil
	}
	m.students[student.ID] = student
	return student, true, nil
}

func (m *mockStudentRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.students)
}

// mockInvoiceRepo is an in-memory InvoiceRepository enforcing invoice code
// uniqueness.
type mockInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[string]*billing.Invoice
	err      error
}

func newMockInvoiceRepo() *mockInvoiceRepo {
	return &mockInvoiceRepo{invoices: make(map[string]*billing.Invoice)}
}

func (m *mockInvoiceRepo) Create(ctx context.Context, invoice *billing.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.codeTakenLocked(invoice) {
		return apperror.ErrConflict
	}
	m.invoices[invoice.ID] = invoice
	return nil
}

func (m *mockInvoiceRepo) GetByID(ctx context.Context, id string) (*billing.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.invoices[id], nil
}

func (m *mockInvoiceRepo) Update(ctx context.Context, invoice *billing.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.codeTakenLocked(invoice) {
		return apperror.ErrConflict
	}
	m.invoices[invoice.ID] = invoice
	return nil
}

func (m *mockInvoiceRepo) codeTakenLocked(invoice *billing.Invoice) bool {
	code := invoice.InvoiceCode()
	if code == nil {
		return false
	}
	for id, other := range m.invoices {
		if id == invoice.ID {
			continue
		}
		if c := other.InvoiceCode(); c != nil && *c == *code {
			return true
		}
	}
	return false
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}
