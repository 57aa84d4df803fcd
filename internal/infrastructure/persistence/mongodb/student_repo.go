package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/garyjia/school-billing/internal/application/port"
	"github.com/garyjia/school-billing/internal/apperror"
	"github.com/garyjia/school-billing/internal/domain/entity"
)

// StudentRepository implements port.StudentRepository
type StudentRepository struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewStudentRepository creates a new student repository
func NewStudentRepository(store *Store, logger *zap.Logger) *StudentRepository {
	return &StudentRepository{
		coll:   store.students(),
		logger: logger,
	}
}

// nameFoldFilter matches fullName case-insensitively. The name is escaped
// and anchored so regex metacharacters never widen the match.
func nameFoldFilter(name string) bson.M {
	return bson.M{"fullName": bson.M{
		"$regex":   "^" + regexp.QuoteMeta(name) + "$",
		"$options": "i",
	}}
}

// upsertStudent inserts the document only when no student holds its code
func upsertStudent(student *entity.Student) (bson.M, bson.M) {
	filter := bson.M{"studentCode": student.StudentCode}
	update := bson.M{"$setOnInsert": bson.M{
		"_id":          student.ID,
		"fullName":     student.FullName,
		"gradeYear":    student.GradeYear,
		"sectionClass": student.SectionClass,
		"status":       student.Status,
		"createdAt":    student.CreatedAt,
		"updatedAt":    student.UpdatedAt,
	}}
	return filter, update
}

func (r *StudentRepository) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*entity.Student, error) {
	var student entity.Student
	err := r.coll.FindOne(ctx, filter, opts...).Decode(&student)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &student, nil
}

// GetByID retrieves a student by its ID
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*entity.Student, error) {
	student, err := r.findOne(ctx, bson.M{"_id": id})
	if err != nil {
		r.logger.Error("Failed to get student by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	return student, nil
}

// GetByCode retrieves a student by exact student code
func (r *StudentRepository) GetByCode(ctx context.Context, code string) (*entity.Student, error) {
	student, err := r.findOne(ctx, bson.M{"studentCode": code})
	if err != nil {
		r.logger.Error("Failed to get student by code", zap.String("student_code", code), zap.Error(err))
		return nil, fmt.Errorf("failed to get student by code: %w", err)
	}
	return student, nil
}

// FindByNameFold matches the full name case-insensitively and exactly.
// When several students share a name the earliest created wins.
func (r *StudentRepository) FindByNameFold(ctx context.Context, name string) (*entity.Student, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	student, err := r.findOne(ctx, nameFoldFilter(name), opts)
	if err != nil {
		r.logger.Error("Failed to find student by name", zap.String("full_name", name), zap.Error(err))
		return nil, fmt.Errorf("failed to find student by name: %w", err)
	}
	return student, nil
}

// CreateIfAbsent upserts on studentCode with $setOnInsert, so an existing
// student is returned untouched. Two upserts racing on the same new code can
// both miss and one then fails the unique index; that surfaces as
// apperror.ErrConflict for the caller to re-read.
func (r *StudentRepository) CreateIfAbsent(ctx context.Context, student *entity.Student) (*entity.Student, bool, error) {
	filter, update := upsertStudent(student)
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var stored entity.Student
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			r.logger.Info("Student upsert lost a race",
				zap.String("student_code", student.StudentCode))
			return nil, false, fmt.Errorf("student code %s: %w", student.StudentCode, apperror.ErrConflict)
		}
		r.logger.Error("Failed to upsert student",
			zap.String("student_code", student.StudentCode),
			zap.Error(err))
		return nil, false, fmt.Errorf("failed to upsert student: %w", err)
	}

	return &stored, stored.ID == student.ID, nil
}

// Verify interface compliance
var _ port.StudentRepository = (*StudentRepository)(nil)
