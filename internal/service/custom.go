package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/edunotify/edunotify/internal/domain"
	"github.com/edunotify/edunotify/internal/observability"
	"github.com/edunotify/edunotify/internal/provider"
	"github.com/edunotify/edunotify/internal/render"
	"github.com/edunotify/edunotify/internal/repository"
	"github.com/edunotify/edunotify/internal/validation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	TestEmailSubject = "Test Email - EduNotify System"
	TestEmailMessage = "This is a test email from EduNotify system."
)

// CustomNotification targets explicit students.
type CustomNotification struct {
	StudentIDs []string                `json:"studentIds" validate:"required,min=1,dive,notblank"`
	Title      string                  `json:"title" validate:"notblank,max=200"`
	Message    string                  `json:"message" validate:"notblank,max=10000"`
	Type       domain.NotificationType `json:"type"`
}

// BulkNotification targets every student matching Filter.
type BulkNotification struct {
	Title   string                  `json:"title" validate:"notblank,max=200"`
	Message string                  `json:"message" validate:"notblank,max=10000"`
	Type    domain.NotificationType `json:"type"`
	Filter  domain.StudentFilter    `json:"filter"`
}

type TestEmail struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"notblank"`
}

// NotificationService handles admin-initiated sends that do not touch results.
type NotificationService struct {
	students      repository.StudentRepository
	notifications repository.NotificationRepository
	dispatcher    *Dispatcher
	renderer      *render.Renderer
	logger        *zap.Logger
	now           func() time.Time
	newID         func() string
}

func NewNotificationService(
	students repository.StudentRepository,
	notifications repository.NotificationRepository,
	dispatcher *Dispatcher,
	renderer *render.Renderer,
	logger *zap.Logger,
) (*NotificationService, error) {
	if students == nil || notifications == nil {
		return nil, fmt.Errorf("student and notification repositories are required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if renderer == nil {
		renderer = render.NewRenderer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		students:      students,
		notifications: notifications,
		dispatcher:    dispatcher,
		renderer:      renderer,
		logger:        logger,
		now:           time.Now,
		newID:         uuid.NewString,
	}, nil
}

// SendCustomNotification sends title/message to the given students. Missing and inactive
// students are reported in Errors; an unusable email skips only the email channel.
func (s *NotificationService) SendCustomNotification(
	ctx context.Context,
	req CustomNotification,
) (domain.NotificationResult, error) {
	if err := validation.Struct(req); err != nil {
		return domain.NotificationResult{}, err
	}
	notificationType, err := resolveNotificationType(req.Type)
	if err != nil {
		return domain.NotificationResult{}, err
	}

	ids := dedupeIDs(req.StudentIDs)
	result := domain.NewNotificationResult()

	students, err := s.students.GetByIDs(ctx, ids)
	if err != nil {
		wrapped := fmt.Errorf("failed to fetch students: %w", err)
		result.Fail(wrapped.Error())
		result.Errors = append(result.Errors, wrapped.Error())
		return result, wrapped
	}

	found := make(map[string]domain.Student, len(students))
	for _, st := range students {
		found[st.ID] = st
	}
	targets := make([]domain.Student, 0, len(ids))
	for _, id := range ids {
		st, ok := found[id]
		if !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("Student not found: %s", id))
			continue
		}
		if st.Status != domain.StudentActive {
			result.Errors = append(result.Errors, fmt.Sprintf("Student %s is %s", st.FullName(), st.Status))
			continue
		}
		targets = append(targets, st)
	}

	return s.send(ctx, targets, req.Title, req.Message, notificationType, result)
}

// SendBulkNotification sends title/message to every student matching the filter.
func (s *NotificationService) SendBulkNotification(
	ctx context.Context,
	req BulkNotification,
) (domain.NotificationResult, error) {
	if err := validation.Struct(req); err != nil {
		return domain.NotificationResult{}, err
	}
	notificationType, err := resolveNotificationType(req.Type)
	if err != nil {
		return domain.NotificationResult{}, err
	}

	result := domain.NewNotificationResult()
	all, err := s.students.List(ctx)
	if err != nil {
		wrapped := fmt.Errorf("failed to fetch students: %w", err)
		result.Fail(wrapped.Error())
		result.Errors = append(result.Errors, wrapped.Error())
		return result, wrapped
	}

	targets := domain.FilterStudents(all, req.Filter)
	if len(targets) == 0 {
		result.Message = "No students match the filter"
		return result, nil
	}
	return s.send(ctx, targets, req.Title, req.Message, notificationType, result)
}

func (s *NotificationService) send(
	ctx context.Context,
	targets []domain.Student,
	title, message string,
	notificationType domain.NotificationType,
	result domain.NotificationResult,
) (domain.NotificationResult, error) {
	ctx = observability.WithCorrelationID(ctx, s.newID())
	logger := observability.WithContextLogger(s.logger, ctx)

	if len(targets) == 0 {
		result.Message = "No students to notify"
		return result, nil
	}

	email := s.renderer.PlainEmail(title, message)
	now := s.now().UTC()
	records := make([]*domain.NotificationRecord, 0, len(targets))
	recordByStudent := make(map[string]string, len(targets))
	req := DispatchRequest{
		SMSMode:    SMSModeCustom,
		SMSTitle:   title,
		SMSMessage: message,
	}

	for _, st := range targets {
		studentID := st.ID
		record := &domain.NotificationRecord{
			ID:        s.newID(),
			StudentID: &studentID,
			Title:     title,
			Body:      message,
			Type:      notificationType,
			Status:    domain.NotificationPending,
			CreatedAt: now,
		}
		records = append(records, record)
		recordByStudent[st.ID] = record.ID

		if to, ok := st.NotifiableEmail(); ok {
			req.Emails = append(req.Emails, EmailJob{
				Student: st,
				Message: provider.EmailMessage{
					ToName:    st.FullName(),
					ToEmail:   to,
					StudentID: st.StudentNumber,
					Subject:   email.Subject,
					Text:      email.Text,
				},
			})
		} else {
			result.Errors = append(result.Errors, fmt.Sprintf("No valid email address for %s", st.FullName()))
		}

		if _, err := domain.NormalizePhone(st.Phone); err != nil {
			result.FailureDetails = append(result.FailureDetails, invalidPhoneDetail(st))
			continue
		}
		req.SMSStudentIDs = append(req.SMSStudentIDs, st.ID)
	}

	if err := s.notifications.CreateBatch(ctx, records); err != nil {
		wrapped := fmt.Errorf("failed to create notification records: %w", err)
		logger.Error("custom notification aborted", zap.Error(err))
		result.Fail(wrapped.Error())
		result.Errors = append(result.Errors, wrapped.Error())
		return result, wrapped
	}

	report := s.dispatcher.Dispatch(ctx, req)
	if err := finalizeRecords(ctx, s.notifications, s.now().UTC(), recordByStudent, report); err != nil {
		logger.Error("failed to finalize notification records", zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to finalize notification records: %v", err))
	}

	result.StudentsNotified = len(targets)
	result.Total = len(targets)
	result.EmailsSent = report.EmailsSent
	result.SMSSent = report.SMSSent
	result.SuccessDetails = append(result.SuccessDetails, report.SuccessDetails...)
	result.FailureDetails = append(result.FailureDetails, report.FailureDetails...)
	result.Errors = append(result.Errors, report.Errors...)
	result.Message = fmt.Sprintf("Notified %d students", len(targets))

	logger.Info("custom notification finished",
		zap.String("type", notificationType.String()),
		zap.Int("students", len(targets)),
		zap.Int("emailsSent", result.EmailsSent),
		zap.Int("smsSent", result.SMSSent),
	)
	return result, nil
}

// SendTestEmail sends the fixed test message and records it with type test.
func (s *NotificationService) SendTestEmail(ctx context.Context, req TestEmail) error {
	if err := validation.Struct(req); err != nil {
		return err
	}

	record := &domain.NotificationRecord{
		ID:        s.newID(),
		Title:     TestEmailSubject,
		Body:      TestEmailMessage,
		Type:      domain.NotificationTypeTest,
		Status:    domain.NotificationPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.notifications.CreateBatch(ctx, []*domain.NotificationRecord{record}); err != nil {
		return fmt.Errorf("failed to create notification record: %w", err)
	}

	email := s.renderer.PlainEmail(TestEmailSubject, TestEmailMessage)
	_, sendErr := s.dispatcher.email.Send(ctx, provider.EmailMessage{
		ToName:  strings.TrimSpace(req.Name),
		ToEmail: strings.TrimSpace(req.Email),
		Subject: email.Subject,
		Text:    email.Text,
	})

	status := domain.NotificationSent
	var sentAt *time.Time
	if sendErr != nil {
		status = domain.NotificationFailed
	} else {
		now := s.now().UTC()
		sentAt = &now
	}
	if _, err := s.notifications.Finalize(ctx, []string{record.ID}, status, sentAt); err != nil {
		s.logger.Error("failed to finalize test email record", zap.String("notificationId", record.ID), zap.Error(err))
	}
	if sendErr != nil {
		return fmt.Errorf("test email failed: %w", sendErr)
	}
	return nil
}

func (s *NotificationService) History(ctx context.Context, limit int) ([]domain.NotificationRecord, error) {
	return s.notifications.List(ctx, limit)
}

func resolveNotificationType(t domain.NotificationType) (domain.NotificationType, error) {
	if strings.TrimSpace(t.String()) == "" {
		return domain.NotificationTypeCustom, nil
	}
	return domain.ParseNotificationTypeFromString(t.String())
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
