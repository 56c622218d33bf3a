package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edunotify/edunotify/internal/domain"
	"github.com/edunotify/edunotify/internal/lock"
	"github.com/edunotify/edunotify/internal/provider"
	"github.com/edunotify/edunotify/internal/repository"
)

func strPtr(s string) *string { return &s }

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

type fakeStudentRepo struct {
	getByIDFn    func(ctx context.Context, id string) (*domain.Student, error)
	getByIDsFn   func(ctx context.Context, ids []string) ([]domain.Student, error)
	listFn       func(ctx context.Context) ([]domain.Student, error)
	createFn     func(ctx context.Context, s *domain.Student) error
	updateCGPAFn func(ctx context.Context, id string, cgpa float64) error
}

func (f *fakeStudentRepo) GetByID(ctx context.Context, id string) (*domain.Student, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return &domain.Student{ID: id, Status: domain.StudentActive}, nil
}

func (f *fakeStudentRepo) GetByIDs(ctx context.Context, ids []string) ([]domain.Student, error) {
	if f.getByIDsFn != nil {
		return f.getByIDsFn(ctx, ids)
	}
	return []domain.Student{}, nil
}

func (f *fakeStudentRepo) List(ctx context.Context) ([]domain.Student, error) {
	if f.listFn != nil {
		return f.listFn(ctx)
	}
	return []domain.Student{}, nil
}

func (f *fakeStudentRepo) Create(ctx context.Context, s *domain.Student) error {
	if f.createFn != nil {
		return f.createFn(ctx, s)
	}
	return nil
}

func (f *fakeStudentRepo) UpdateCGPA(ctx context.Context, id string, cgpa float64) error {
	if f.updateCGPAFn != nil {
		return f.updateCGPAFn(ctx, id, cgpa)
	}
	return nil
}

type fakeCourseRepo struct {
	getByIDsFn func(ctx context.Context, ids []string) ([]domain.Course, error)
}

func (f *fakeCourseRepo) GetByIDs(ctx context.Context, ids []string) ([]domain.Course, error) {
	if f.getByIDsFn != nil {
		return f.getByIDsFn(ctx, ids)
	}
	courses := make([]domain.Course, 0, len(ids))
	for _, id := range ids {
		courses = append(courses, domain.Course{ID: id, CreditUnits: 3})
	}
	return courses, nil
}

type fakeResultRepo struct {
	listDetailsFn       func(ctx context.Context, query repository.ResultQuery) ([]domain.ResultDetail, error)
	publishByIDsFn      func(ctx context.Context, ids []string, publishedAt time.Time) (int64, error)
	createBatchFn       func(ctx context.Context, results []*domain.Result) error
	existingCourseIDsFn func(ctx context.Context, studentID, semester, academicYear string, courseIDs []string) ([]string, error)
}

func (f *fakeResultRepo) ListDetails(ctx context.Context, query repository.ResultQuery) ([]domain.ResultDetail, error) {
	if f.listDetailsFn != nil {
		return f.listDetailsFn(ctx, query)
	}
	return []domain.ResultDetail{}, nil
}

func (f *fakeResultRepo) PublishByIDs(ctx context.Context, ids []string, publishedAt time.Time) (int64, error) {
	if f.publishByIDsFn != nil {
		return f.publishByIDsFn(ctx, ids, publishedAt)
	}
	return int64(len(ids)), nil
}

func (f *fakeResultRepo) CreateBatch(ctx context.Context, results []*domain.Result) error {
	if f.createBatchFn != nil {
		return f.createBatchFn(ctx, results)
	}
	return nil
}

func (f *fakeResultRepo) ExistingCourseIDs(
	ctx context.Context,
	studentID, semester, academicYear string,
	courseIDs []string,
) ([]string, error) {
	if f.existingCourseIDsFn != nil {
		return f.existingCourseIDsFn(ctx, studentID, semester, academicYear, courseIDs)
	}
	return []string{}, nil
}

// fakeNotificationRepo records every write so tests can assert the final record states.
type fakeNotificationRepo struct {
	createBatchFn func(ctx context.Context, records []*domain.NotificationRecord) error
	finalizeFn    func(ctx context.Context, ids []string, status domain.NotificationStatus, sentAt *time.Time) (int64, error)
	listFn        func(ctx context.Context, limit int) ([]domain.NotificationRecord, error)

	mu       sync.Mutex
	created  []*domain.NotificationRecord
	statuses map[string]domain.NotificationStatus
}

func (f *fakeNotificationRepo) CreateBatch(ctx context.Context, records []*domain.NotificationRecord) error {
	if f.createBatchFn != nil {
		if err := f.createBatchFn(ctx, records); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, records...)
	return nil
}

func (f *fakeNotificationRepo) Finalize(
	ctx context.Context,
	ids []string,
	status domain.NotificationStatus,
	sentAt *time.Time,
) (int64, error) {
	if f.finalizeFn != nil {
		return f.finalizeFn(ctx, ids, status, sentAt)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statuses == nil {
		f.statuses = make(map[string]domain.NotificationStatus)
	}
	for _, id := range ids {
		f.statuses[id] = status
	}
	return int64(len(ids)), nil
}

func (f *fakeNotificationRepo) List(ctx context.Context, limit int) ([]domain.NotificationRecord, error) {
	if f.listFn != nil {
		return f.listFn(ctx, limit)
	}
	return []domain.NotificationRecord{}, nil
}

// statusFor returns the finalized status of the record created for studentID.
func (f *fakeNotificationRepo) statusFor(studentID string) domain.NotificationStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.created {
		if r.StudentID != nil && *r.StudentID == studentID {
			if st, ok := f.statuses[r.ID]; ok {
				return st
			}
			return r.Status
		}
	}
	return ""
}

type fakeEmailSender struct {
	sendFn func(ctx context.Context, msg provider.EmailMessage) (*provider.ProviderResponse, error)

	mu   sync.Mutex
	sent []provider.EmailMessage
}

func (f *fakeEmailSender) SendEmail(ctx context.Context, msg provider.EmailMessage) (*provider.ProviderResponse, error) {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	if f.sendFn != nil {
		return f.sendFn(ctx, msg)
	}
	return &provider.ProviderResponse{StatusCode: 200, MessageID: "email-1"}, nil
}

func (f *fakeEmailSender) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeSMSBatchSender struct {
	healthFn        func(ctx context.Context) error
	notifyResultsFn func(ctx context.Context, req provider.SMSBatchRequest) (*provider.SMSBatchResponse, error)
	notifyCustomFn  func(ctx context.Context, req provider.SMSBatchRequest) (*provider.SMSBatchResponse, error)

	mu       sync.Mutex
	requests []provider.SMSBatchRequest
}

func (f *fakeSMSBatchSender) Health(ctx context.Context) error {
	if f.healthFn != nil {
		return f.healthFn(ctx)
	}
	return nil
}

func (f *fakeSMSBatchSender) NotifyResults(ctx context.Context, req provider.SMSBatchRequest) (*provider.SMSBatchResponse, error) {
	f.record(req)
	if f.notifyResultsFn != nil {
		return f.notifyResultsFn(ctx, req)
	}
	return &provider.SMSBatchResponse{Success: true, SMSSent: len(req.StudentIDs)}, nil
}

func (f *fakeSMSBatchSender) NotifyCustom(ctx context.Context, req provider.SMSBatchRequest) (*provider.SMSBatchResponse, error) {
	f.record(req)
	if f.notifyCustomFn != nil {
		return f.notifyCustomFn(ctx, req)
	}
	return &provider.SMSBatchResponse{Success: true, SMSSent: len(req.StudentIDs)}, nil
}

func (f *fakeSMSBatchSender) record(req provider.SMSBatchRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
}

type fakeSMSGateway struct {
	sendFn func(ctx context.Context, to domain.PhoneNumber, body string) (*provider.ProviderResponse, error)

	mu   sync.Mutex
	sent []string
}

func (f *fakeSMSGateway) Name() string { return "fake" }

func (f *fakeSMSGateway) SendSMS(ctx context.Context, to domain.PhoneNumber, body string) (*provider.ProviderResponse, error) {
	f.mu.Lock()
	f.sent = append(f.sent, to.E164()+"|"+body)
	f.mu.Unlock()
	if f.sendFn != nil {
		return f.sendFn(ctx, to, body)
	}
	return &provider.ProviderResponse{StatusCode: 201, MessageID: "SM1"}, nil
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, key string) (bool, error)
	waitFn  func(ctx context.Context, key string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, key)
	}
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, key string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, key)
	}
	return nil
}

type fakeLocker struct {
	acquireFn func(ctx context.Context, name string, ttl time.Duration) (lock.Lease, error)
	extendFn  func(ctx context.Context, ttl time.Duration) error
	released  bool
	extends   atomic.Int32
}

func (f *fakeLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (lock.Lease, error) {
	if f.acquireFn != nil {
		return f.acquireFn(ctx, name, ttl)
	}
	return &fakeLease{locker: f}, nil
}

type fakeLease struct {
	locker *fakeLocker
}

func (l *fakeLease) Token() string { return "token" }

func (l *fakeLease) Extend(ctx context.Context, ttl time.Duration) error {
	if l.locker == nil {
		return nil
	}
	l.locker.extends.Add(1)
	if l.locker.extendFn != nil {
		return l.locker.extendFn(ctx, ttl)
	}
	return nil
}

func (l *fakeLease) Release(ctx context.Context) error {
	if l.locker != nil {
		l.locker.released = true
	}
	return nil
}
