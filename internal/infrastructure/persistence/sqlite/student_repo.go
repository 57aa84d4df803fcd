package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/school-billing/internal/application/port"
	"github.com/garyjia/school-billing/internal/apperror"
	"github.com/garyjia/school-billing/internal/domain/entity"
)

const studentColumns = `id, student_code, full_name, grade_year, section_class, status, created_at, updated_at`

// StudentRepository implements port.StudentRepository
type StudentRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewStudentRepository creates a new student repository
func NewStudentRepository(db *DB, logger *zap.Logger) *StudentRepository {
	return &StudentRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves a student by its ID
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*entity.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = ?`

	student, err := scanStudent(r.db.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get student by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	return student, nil
}

// GetByCode retrieves a student by exact student code
func (r *StudentRepository) GetByCode(ctx context.Context, code string) (*entity.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE student_code = ?`

	student, err := scanStudent(r.db.getExecutor(ctx).QueryRowContext(ctx, query, code))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get student by code", zap.String("student_code", code), zap.Error(err))
		return nil, fmt.Errorf("failed to get student by code: %w", err)
	}
	return student, nil
}

// FindByNameFold matches full_name exactly under NOCASE collation. When
// several students share a name the earliest created wins.
func (r *StudentRepository) FindByNameFold(ctx context.Context, name string) (*entity.Student, error) {
	query := `
		SELECT ` + studentColumns + `
		FROM students
		WHERE full_name = ? COLLATE NOCASE
		ORDER BY created_at, id
		LIMIT 1
	`

	student, err := scanStudent(r.db.getExecutor(ctx).QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to find student by name", zap.String("full_name", name), zap.Error(err))
		return nil, fmt.Errorf("failed to find student by name: %w", err)
	}
	return student, nil
}

// CreateIfAbsent inserts the student unless the code exists and returns the
// stored row. The insert and the read back share one IMMEDIATE transaction,
// so a concurrent writer cannot slip between them.
func (r *StudentRepository) CreateIfAbsent(ctx context.Context, student *entity.Student) (*entity.Student, bool, error) {
	var (
		stored  *entity.Student
		created bool
	)

	err := r.db.WithTransaction(ctx, func(ctx context.Context) error {
		query := `
			INSERT INTO students (` + studentColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(student_code) DO NOTHING
		`
		result, err := r.db.getExecutor(ctx).ExecContext(ctx, query,
			student.ID,
			student.StudentCode,
			student.FullName,
			student.GradeYear,
			student.SectionClass,
			student.Status,
			student.CreatedAt,
			student.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.ErrConflict
			}
			return fmt.Errorf("failed to insert student: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		created = affected == 1

		stored, err = r.GetByCode(ctx, student.StudentCode)
		if err != nil {
			return err
		}
		if stored == nil {
			return apperror.ErrConflict
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to create student",
			zap.String("student_code", student.StudentCode),
			zap.Error(err))
		return nil, false, err
	}

	return stored, created, nil
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStudent(row rowScanner) (*entity.Student, error) {
	var s entity.Student
	err := row.Scan(
		&s.ID,
		&s.StudentCode,
		&s.FullName,
		&s.GradeYear,
		&s.SectionClass,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Verify interface compliance
var _ port.StudentRepository = (*StudentRepository)(nil)
