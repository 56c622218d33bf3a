package repository

import (
	"context"
	"time"

	"github.com/edunotify/edunotify/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ResultQuery narrows ListDetails. Empty fields match everything.
type ResultQuery struct {
	StudentIDs []string
	Statuses   []domain.ResultStatus
}

type ResultRepository interface {
	ListDetails(ctx context.Context, query ResultQuery) ([]domain.ResultDetail, error)
	PublishByIDs(ctx context.Context, ids []string, publishedAt time.Time) (int64, error)
	CreateBatch(ctx context.Context, results []*domain.Result) error
	ExistingCourseIDs(ctx context.Context, studentID, semester, academicYear string, courseIDs []string) ([]string, error)
}

type GormResultRepo struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewGormResultRepo(db *gorm.DB, logger *zap.Logger) *GormResultRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormResultRepo{db: db, logger: logger}
}

// ListDetails selects results joined with their student and course.
func (r *GormResultRepo) ListDetails(ctx context.Context, query ResultQuery) ([]domain.ResultDetail, error) {
	q := r.db.WithContext(ctx).
		Model(&ResultModel{}).
		InnerJoins("Student").
		InnerJoins("Course")

	if len(query.StudentIDs) > 0 {
		q = q.Where("results.student_id IN ?", query.StudentIDs)
	}
	if len(query.Statuses) > 0 {
		q = q.Where("results.status IN ?", query.Statuses)
	}

	var models []ResultModel
	if err := q.Order("results.created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	details := make([]domain.ResultDetail, 0, len(models))
	for i := range models {
		detail, err := resultDetailFromModel(&models[i])
		if err != nil {
			r.logger.Warn("skipping malformed result row",
				zap.String("resultId", models[i].ID),
				zap.Error(err),
			)
			continue
		}
		details = append(details, detail)
	}
	return details, nil
}

// PublishByIDs flips draft/pending results to published in one conditional update.
// Rows already published are left untouched and not counted.
func (r *GormResultRepo) PublishByIDs(ctx context.Context, ids []string, publishedAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).
		Model(&ResultModel{}).
		Where("id IN ? AND status IN ?", ids, domain.PublishableStatuses()).
		Updates(map[string]any{
			"status":       domain.ResultPublished,
			"published_at": publishedAt,
			"updated_at":   publishedAt,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormResultRepo) CreateBatch(ctx context.Context, results []*domain.Result) error {
	models := make([]ResultModel, 0, len(results))
	for _, res := range results {
		if model := resultModelFromDomain(res); model != nil {
			models = append(models, *model)
		}
	}
	if len(models) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Omit("Student", "Course").CreateInBatches(&models, 100).Error
	})
}

// ExistingCourseIDs returns which of courseIDs already have a result for the student in that term.
func (r *GormResultRepo) ExistingCourseIDs(
	ctx context.Context,
	studentID, semester, academicYear string,
	courseIDs []string,
) ([]string, error) {
	if len(courseIDs) == 0 {
		return []string{}, nil
	}

	var existing []string
	err := r.db.WithContext(ctx).
		Model(&ResultModel{}).
		Where("student_id = ? AND semester = ? AND academic_year = ? AND course_id IN ?",
			studentID, semester, academicYear, courseIDs).
		Pluck("course_id", &existing).Error
	if err != nil {
		return nil, err
	}
	return existing, nil
}
