package repository

import (
	"context"

	"github.com/edunotify/edunotify/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CourseRepository interface {
	GetByIDs(ctx context.Context, ids []string) ([]domain.Course, error)
}

type GormCourseRepo struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewGormCourseRepo(db *gorm.DB, logger *zap.Logger) *GormCourseRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormCourseRepo{db: db, logger: logger}
}

func (r *GormCourseRepo) GetByIDs(ctx context.Context, ids []string) ([]domain.Course, error) {
	if len(ids) == 0 {
		return []domain.Course{}, nil
	}

	var models []CourseModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}

	courses := make([]domain.Course, 0, len(models))
	for i := range models {
		course, err := courseModelToDomain(&models[i])
		if err != nil {
			r.logger.Warn("skipping malformed course row",
				zap.String("courseId", models[i].ID),
				zap.Error(err),
			)
			continue
		}
		courses = append(courses, course)
	}
	return courses, nil
}
