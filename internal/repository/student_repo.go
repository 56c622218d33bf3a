package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/edunotify/edunotify/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type StudentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Student, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.Student, error)
	List(ctx context.Context) ([]domain.Student, error)
	Create(ctx context.Context, s *domain.Student) error
	UpdateCGPA(ctx context.Context, id string, cgpa float64) error
}

type GormStudentRepo struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewGormStudentRepo(db *gorm.DB, logger *zap.Logger) *GormStudentRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStudentRepo{db: db, logger: logger}
}

func (r *GormStudentRepo) GetByID(ctx context.Context, id string) (*domain.Student, error) {
	var model StudentModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	student, err := studentModelToDomain(&model)
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *GormStudentRepo) GetByIDs(ctx context.Context, ids []string) ([]domain.Student, error) {
	if len(ids) == 0 {
		return []domain.Student{}, nil
	}

	var models []StudentModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	return r.toDomain(models), nil
}

func (r *GormStudentRepo) List(ctx context.Context) ([]domain.Student, error) {
	var models []StudentModel
	err := r.db.WithContext(ctx).
		Order("last_name ASC, first_name ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return r.toDomain(models), nil
}

// Create inserts a student. A duplicate student number is reported as domain.ErrConflict.
func (r *GormStudentRepo) Create(ctx context.Context, s *domain.Student) error {
	err := r.db.WithContext(ctx).Create(studentModelFromDomain(s)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: student number %s already exists", domain.ErrConflict, s.StudentNumber)
	}
	return err
}

func (r *GormStudentRepo) UpdateCGPA(ctx context.Context, id string, cgpa float64) error {
	result := r.db.WithContext(ctx).
		Model(&StudentModel{}).
		Where("id = ?", id).
		Update("cgpa", cgpa)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// toDomain drops malformed rows with a warning.
func (r *GormStudentRepo) toDomain(models []StudentModel) []domain.Student {
	students := make([]domain.Student, 0, len(models))
	for i := range models {
		student, err := studentModelToDomain(&models[i])
		if err != nil {
			r.logger.Warn("skipping malformed student row",
				zap.String("studentId", models[i].ID),
				zap.Error(err),
			)
			continue
		}
		students = append(students, student)
	}
	return students
}
