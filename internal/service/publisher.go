package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edunotify/edunotify/internal/domain"
	"github.com/edunotify/edunotify/internal/lock"
	"github.com/edunotify/edunotify/internal/observability"
	"github.com/edunotify/edunotify/internal/provider"
	"github.com/edunotify/edunotify/internal/render"
	"github.com/edunotify/edunotify/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	publishLockName       = "publish-results"
	defaultPublishLockTTL = 10 * time.Minute

	ErrMsgPublishInProgress = "publish already in progress"
)

type PublisherOptions struct {
	RenotifyPublished bool
	LockTTL           time.Duration
}

// ResultEmailRenderer renders the per-student results email.
type ResultEmailRenderer interface {
	ResultEmail(student domain.Student, details []domain.ResultDetail) (render.Email, error)
}

// ResultPublisher flips pending results to published and notifies every affected student.
type ResultPublisher struct {
	results       repository.ResultRepository
	notifications repository.NotificationRepository
	locker        lock.Locker
	dispatcher    *Dispatcher
	renderer      ResultEmailRenderer
	logger        *zap.Logger
	metrics       *observability.Metrics
	opts          PublisherOptions
	now           func() time.Time
	newID         func() string
}

func NewResultPublisher(
	results repository.ResultRepository,
	notifications repository.NotificationRepository,
	locker lock.Locker,
	dispatcher *Dispatcher,
	renderer ResultEmailRenderer,
	opts PublisherOptions,
	logger *zap.Logger,
) (*ResultPublisher, error) {
	if results == nil || notifications == nil {
		return nil, fmt.Errorf("result and notification repositories are required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if renderer == nil {
		renderer = render.NewRenderer()
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultPublishLockTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ResultPublisher{
		results:       results,
		notifications: notifications,
		locker:        locker,
		dispatcher:    dispatcher,
		renderer:      renderer,
		logger:        logger,
		opts:          opts,
		now:           time.Now,
		newID:         uuid.NewString,
	}, nil
}

func (p *ResultPublisher) SetMetrics(metrics *observability.Metrics) {
	if p == nil {
		return
	}
	p.metrics = metrics
}

// keepLeaseAlive extends the publish lease every third of its TTL until the returned func is called.
// A lost lease is logged and renewal stops.
func (p *ResultPublisher) keepLeaseAlive(ctx context.Context, lease lock.Lease, logger *zap.Logger) func() {
	ttl := p.opts.LockTTL
	interval := max(ttl/3, time.Millisecond)
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := lease.Extend(ctx, ttl)
				if err == nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				logger.Warn("failed to extend publish lock", zap.Error(err))
				if errors.Is(err, domain.ErrConflict) {
					return
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// studentBatch is one student's share of a publish cycle.
type studentBatch struct {
	student domain.Student
	details []domain.ResultDetail
}

// PublishAndNotify runs one publish cycle. The returned result is always populated; err is set
// when the cycle aborted (lock held or store failure), in which case Success is false.
func (p *ResultPublisher) PublishAndNotify(ctx context.Context) (domain.NotificationResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cycleID := p.newID()
	ctx = observability.WithCorrelationID(ctx, cycleID)
	logger := observability.WithContextLogger(p.logger, ctx)
	result := domain.NewNotificationResult()

	if p.locker != nil {
		lease, err := p.locker.Acquire(ctx, publishLockName, p.opts.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrConflict) {
				logger.Info("publish cycle skipped, lock held")
				result.Fail(ErrMsgPublishInProgress)
				result.Errors = append(result.Errors, ErrMsgPublishInProgress)
				p.metrics.ObservePublishCycle("skipped", 0)
				return result, fmt.Errorf("%w: %s", domain.ErrConflict, ErrMsgPublishInProgress)
			}
			return p.abort(logger, result, "failed to acquire publish lock", err)
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("failed to release publish lock", zap.Error(err))
			}
		}()
		stopRenew := p.keepLeaseAlive(ctx, lease, logger)
		defer stopRenew()
	}

	p.metrics.SetPublishInProgress(true)
	defer p.metrics.SetPublishInProgress(false)

	logger.Info("publish cycle started", zap.String("phase", "fetching"))
	statuses := domain.PublishableStatuses()
	if p.opts.RenotifyPublished {
		statuses = append(statuses, domain.ResultPublished)
	}
	details, err := p.results.ListDetails(ctx, repository.ResultQuery{Statuses: statuses})
	if err != nil {
		return p.abort(logger, result, "failed to fetch results", err)
	}
	if len(details) == 0 {
		logger.Info("no results found for notification", zap.String("phase", "done"))
		result.Message = "No results found for notification"
		p.metrics.ObservePublishCycle("empty", 0)
		return result, nil
	}

	logger.Info("publish cycle transitioning", zap.String("phase", "transitioning"), zap.Int("candidates", len(details)))
	publishedAt := p.now().UTC()
	pendingIDs := make([]string, 0, len(details))
	for _, d := range details {
		if d.Result.Status.IsPublishable() {
			pendingIDs = append(pendingIDs, d.Result.ID)
		}
	}
	if len(pendingIDs) > 0 {
		affected, err := p.results.PublishByIDs(ctx, pendingIDs, publishedAt)
		if err != nil {
			return p.abort(logger, result, "failed to update results status", err)
		}
		result.ResultsPublished = int(affected)
		for i := range details {
			if details[i].Result.Status.IsPublishable() {
				details[i].Result.Status = domain.ResultPublished
				details[i].Result.PublishedAt = &publishedAt
			}
		}
	}

	logger.Info("publish cycle grouping", zap.String("phase", "grouping"))
	eligible := make([]studentBatch, 0)
	for _, group := range groupByStudent(details) {
		if _, ok := group.student.NotifiableEmail(); !ok {
			result.Errors = append(result.Errors, skippedEmailMessage(group.student))
			continue
		}
		eligible = append(eligible, group)
	}

	records := make([]*domain.NotificationRecord, 0, len(eligible))
	recordByStudent := make(map[string]string, len(eligible))
	req := DispatchRequest{
		SMSMode:    SMSModeResults,
		SMSTitle:   ResultsSMSTitle,
		SMSMessage: ResultsSMSMessage,
	}
	for _, group := range eligible {
		student := group.student
		email, err := p.renderer.ResultEmail(student, group.details)
		if err != nil {
			logger.Error("failed to render result email", zap.String("studentId", student.ID), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to render email for %s", student.FullName()))
			continue
		}

		studentID := student.ID
		record := &domain.NotificationRecord{
			ID:        p.newID(),
			StudentID: &studentID,
			Title:     email.Subject,
			Body:      email.Text,
			Type:      domain.NotificationTypeResult,
			Status:    domain.NotificationPending,
			CreatedAt: publishedAt,
		}
		records = append(records, record)
		recordByStudent[student.ID] = record.ID

		to, _ := student.NotifiableEmail()
		req.Emails = append(req.Emails, EmailJob{
			Student: student,
			Message: provider.EmailMessage{
				ToName:    student.FullName(),
				ToEmail:   to,
				StudentID: student.StudentNumber,
				Subject:   email.Subject,
				HTML:      email.HTML,
				Text:      email.Text,
			},
		})

		if _, err := domain.NormalizePhone(student.Phone); err != nil {
			result.FailureDetails = append(result.FailureDetails, invalidPhoneDetail(student))
			continue
		}
		req.SMSStudentIDs = append(req.SMSStudentIDs, student.ID)
	}

	if len(records) > 0 {
		if err := p.notifications.CreateBatch(ctx, records); err != nil {
			return p.abort(logger, result, "failed to create notification records", err)
		}
	}

	logger.Info("publish cycle notifying",
		zap.String("phase", "notifying"),
		zap.Int("students", len(req.Emails)),
		zap.Int("smsRecipients", len(req.SMSStudentIDs)),
	)
	report := p.dispatcher.Dispatch(ctx, req)

	logger.Info("publish cycle recording", zap.String("phase", "recording"))
	if err := p.finalize(ctx, recordByStudent, report); err != nil {
		logger.Error("failed to finalize notification records", zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to finalize notification records: %v", err))
	}

	result.StudentsNotified = len(records)
	result.Total = len(records)
	result.EmailsSent = report.EmailsSent
	result.SMSSent = report.SMSSent
	result.SuccessDetails = append(result.SuccessDetails, report.SuccessDetails...)
	result.FailureDetails = append(result.FailureDetails, report.FailureDetails...)
	result.Errors = append(result.Errors, report.Errors...)
	result.Message = fmt.Sprintf("Processed %d results, notified %d students", len(details), result.StudentsNotified)

	p.metrics.ObservePublishCycle("success", result.ResultsPublished)
	logger.Info("publish cycle finished",
		zap.String("phase", "done"),
		zap.Int("resultsPublished", result.ResultsPublished),
		zap.Int("studentsNotified", result.StudentsNotified),
		zap.Int("emailsSent", result.EmailsSent),
		zap.Int("smsSent", result.SMSSent),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

func (p *ResultPublisher) abort(
	logger *zap.Logger,
	result domain.NotificationResult,
	msg string,
	err error,
) (domain.NotificationResult, error) {
	logger.Error("publish cycle aborted", zap.String("reason", msg), zap.Error(err))
	wrapped := fmt.Errorf("%s: %w", msg, err)
	result.Fail(wrapped.Error())
	result.Errors = append(result.Errors, wrapped.Error())
	p.metrics.ObservePublishCycle("failed", 0)
	return result, wrapped
}

func (p *ResultPublisher) finalize(ctx context.Context, recordByStudent map[string]string, report DispatchReport) error {
	return finalizeRecords(ctx, p.notifications, p.now().UTC(), recordByStudent, report)
}

// finalizeRecords marks each student's record sent if any channel delivered, else failed.
func finalizeRecords(
	ctx context.Context,
	notifications repository.NotificationRepository,
	sentAt time.Time,
	recordByStudent map[string]string,
	report DispatchReport,
) error {
	sent := make([]string, 0, len(recordByStudent))
	failed := make([]string, 0)
	for studentID, recordID := range recordByStudent {
		if report.ChannelSucceeded(studentID) {
			sent = append(sent, recordID)
		} else {
			failed = append(failed, recordID)
		}
	}

	var errs []error
	if _, err := notifications.Finalize(ctx, sent, domain.NotificationSent, &sentAt); err != nil {
		errs = append(errs, err)
	}
	if _, err := notifications.Finalize(ctx, failed, domain.NotificationFailed, nil); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// groupByStudent keeps first-seen student order.
func groupByStudent(details []domain.ResultDetail) []studentBatch {
	index := make(map[string]int)
	groups := make([]studentBatch, 0)
	for _, d := range details {
		i, ok := index[d.Student.ID]
		if !ok {
			i = len(groups)
			index[d.Student.ID] = i
			groups = append(groups, studentBatch{student: d.Student})
		}
		groups[i].details = append(groups[i].details, d)
	}
	return groups
}

func skippedEmailMessage(student domain.Student) string {
	email := ""
	if student.Email != nil {
		email = *student.Email
	}
	return fmt.Sprintf("Skipped %s (%s): invalid email address %q", student.FullName(), student.StudentNumber, email)
}

func invalidPhoneDetail(student domain.Student) string {
	return fmt.Sprintf("sms: %s: invalid phone number %q", student.FullName(), student.Phone)
}
