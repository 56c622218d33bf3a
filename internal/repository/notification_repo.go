package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/edunotify/edunotify/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type NotificationRepository interface {
	CreateBatch(ctx context.Context, records []*domain.NotificationRecord) error
	Finalize(ctx context.Context, ids []string, status domain.NotificationStatus, sentAt *time.Time) (int64, error)
	List(ctx context.Context, limit int) ([]domain.NotificationRecord, error)
}

type GormNotificationRepo struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewGormNotificationRepo(db *gorm.DB, logger *zap.Logger) *GormNotificationRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormNotificationRepo{db: db, logger: logger}
}

func (r *GormNotificationRepo) CreateBatch(ctx context.Context, records []*domain.NotificationRecord) error {
	models := make([]NotificationModel, 0, len(records))
	for _, n := range records {
		if model := notificationModelFromDomain(n); model != nil {
			models = append(models, *model)
		}
	}
	if len(models) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).CreateInBatches(&models, 100).Error
}

// Finalize moves pending records to a terminal status. Records already terminal are left as is.
func (r *GormNotificationRepo) Finalize(
	ctx context.Context,
	ids []string,
	status domain.NotificationStatus,
	sentAt *time.Time,
) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if !status.IsTerminal() {
		return 0, fmt.Errorf("%w: %q is not a terminal status", domain.ErrValidation, status)
	}

	updates := map[string]any{"status": status}
	if sentAt != nil {
		updates["sent_at"] = *sentAt
	}

	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id IN ? AND status = ?", ids, domain.NotificationPending).
		Updates(updates)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormNotificationRepo) List(ctx context.Context, limit int) ([]domain.NotificationRecord, error) {
	if limit < 1 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	var models []NotificationModel
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]domain.NotificationRecord, 0, len(models))
	for i := range models {
		record, err := notificationModelToDomain(&models[i])
		if err != nil {
			r.logger.Warn("skipping malformed notification row",
				zap.String("notificationId", models[i].ID),
				zap.Error(err),
			)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}
