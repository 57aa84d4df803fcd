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
	"github.com/garyjia/school-billing/internal/domain/entity"
)

// StudentResolver maps the loosely identified customer of an invoice payload
// to a stored student, creating one when the payload carries both a code and
// a name that match nothing.
type StudentResolver struct {
	repo   port.StudentRepository
	logger Logger
	now    func() time.Time
}

// NewStudentResolver creates a new StudentResolver
func NewStudentResolver(repo port.StudentRepository, logger Logger) *StudentResolver {
	return &StudentResolver{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// studentHints are the identifying fields read from a payload
type studentHints struct {
	id   string
	code string
	name string
}

func hintsFrom(payload billing.Payload) studentHints {
	h := studentHints{
		id:   firstNonEmpty(payload.String("studentId"), payload.String("customer", "studentId")),
		code: firstNonEmpty(payload.String("customer", "accountNo"), payload.String("customer", "studentCode"), payload.String("studentCode")),
		name: payload.String("customer", "name"),
	}
	if _, err := uuid.Parse(h.id); err != nil {
		h.id = ""
	}
	return h
}

// Resolve returns the student the payload refers to, or nil when the payload
// does not carry enough to identify one. Lookups run in order id, code, name;
// the first hit wins. An existing student is never modified.
func (r *StudentResolver) Resolve(ctx context.Context, payload billing.Payload) (*entity.Student, error) {
	h := hintsFrom(payload)

	if h.id != "" {
		student, err := r.repo.GetByID(ctx, h.id)
		if err != nil {
			return nil, apperror.Transient("failed to look up student", fmt.Errorf("get student %s: %w", h.id, err))
		}
		if student != nil {
			return student, nil
		}
	}

	if h.code != "" {
		student, err := r.repo.GetByCode(ctx, h.code)
		if err != nil {
			return nil, apperror.Transient("failed to look up student", fmt.Errorf("get student by code: %w", err))
		}
		if student != nil {
			return student, nil
		}
	}

	if h.name != "" {
		student, err := r.repo.FindByNameFold(ctx, h.name)
		if err != nil {
			return nil, apperror.Transient("failed to look up student", fmt.Errorf("find student by name: %w", err))
		}
		if student != nil {
			return student, nil
		}
	}

	if h.code == "" || h.name == "" {
		return nil, nil
	}

	return r.create(ctx, h)
}

// create inserts a new active student. A uniqueness conflict means another
// request created the same code first; that row is read back exactly once.
func (r *StudentResolver) create(ctx context.Context, h studentHints) (*entity.Student, error) {
	now := r.now().UTC()
	candidate := &entity.Student{
		ID:          uuid.NewString(),
		StudentCode: h.code,
		FullName:    h.name,
		Status:      entity.StudentStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	stored, created, err := r.repo.CreateIfAbsent(ctx, candidate)
	if err == nil {
		if created {
			r.logger.Info("Student created", "student_id", stored.ID, "student_code", stored.StudentCode)
		}
		return stored, nil
	}
	if !errors.Is(err, apperror.ErrConflict) {
		r.logger.Error("Failed to create student", "error", err, "student_code", h.code)
		return nil, apperror.Transient("failed to create student", err)
	}

	r.logger.Info("Student code taken concurrently, re-reading", "student_code", h.code)
	existing, readErr := r.repo.GetByCode(ctx, h.code)
	if readErr != nil {
		return nil, apperror.Transient("failed to look up student", fmt.Errorf("re-read student by code: %w", readErr))
	}
	if existing == nil {
		r.logger.Error("Student conflict could not be resolved", "student_code", h.code)
		return nil, apperror.Conflict(fmt.Sprintf("student code %q conflicts with a concurrent write", h.code), err)
	}
	return existing, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
