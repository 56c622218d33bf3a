package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edunotify/edunotify/internal/domain"
	"github.com/edunotify/edunotify/internal/lock"
	"github.com/edunotify/edunotify/internal/provider"
	"github.com/edunotify/edunotify/internal/render"
	"github.com/edunotify/edunotify/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var testPublishTime = time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC)

func newTestDispatcher(t *testing.T, sender provider.EmailSender, sms provider.SMSBatchSender) *Dispatcher {
	t.Helper()

	channel, err := NewEmailChannel(sender, time.Millisecond, 0, zap.NewNop())
	require.NoError(t, err)
	channel.sleep = noSleep

	dispatcher, err := NewDispatcher(channel, sms, 4, zap.NewNop())
	require.NoError(t, err)
	return dispatcher
}

func newTestPublisher(
	t *testing.T,
	results repository.ResultRepository,
	notifications repository.NotificationRepository,
	locker lock.Locker,
	dispatcher *Dispatcher,
	opts PublisherOptions,
	logger *zap.Logger,
) *ResultPublisher {
	t.Helper()

	publisher, err := NewResultPublisher(results, notifications, locker, dispatcher, render.NewRenderer(), opts, logger)
	require.NoError(t, err)
	publisher.now = func() time.Time { return testPublishTime }
	return publisher
}

func testStudent(id, first, email, phone string) domain.Student {
	var emailPtr *string
	if email != "" {
		emailPtr = strPtr(email)
	}
	return domain.Student{
		ID:            id,
		StudentNumber: "MAP/" + strings.ToUpper(id),
		FirstName:     first,
		LastName:      "Adeyemi",
		Email:         emailPtr,
		Phone:         phone,
		Department:    "Computer Science",
		Level:         "ND2",
		Status:        domain.StudentActive,
	}
}

func testDetail(t *testing.T, student domain.Student, resultID string, status domain.ResultStatus, ca, exam float64) domain.ResultDetail {
	t.Helper()

	score, err := domain.ComputeGrade(ca, exam)
	require.NoError(t, err)
	return domain.ResultDetail{
		Result: domain.Result{
			ID:           resultID,
			StudentID:    student.ID,
			CourseID:     "course-" + resultID,
			CAScore:      ca,
			ExamScore:    exam,
			TotalScore:   score.Total,
			Grade:        score.Letter,
			GradePoint:   score.Points,
			Semester:     "First",
			AcademicYear: "2023/2024",
			Status:       status,
		},
		Student: student,
		Course: domain.Course{
			ID:          "course-" + resultID,
			Code:        "COM" + resultID,
			Title:       "Course " + resultID,
			CreditUnits: 3,
		},
	}
}

// statefulResultRepo keeps result rows in memory and applies the same conditional
// status update as the gorm repository.
type statefulResultRepo struct {
	fakeResultRepo

	mu      sync.Mutex
	details []domain.ResultDetail
	stamps  map[string]time.Time
}

func (r *statefulResultRepo) ListDetails(ctx context.Context, query repository.ResultQuery) ([]domain.ResultDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.ResultDetail, 0, len(r.details))
	for _, d := range r.details {
		for _, st := range query.Statuses {
			if d.Result.Status == st {
				out = append(out, d)
				break
			}
		}
	}
	return out, nil
}

func (r *statefulResultRepo) PublishByIDs(ctx context.Context, ids []string, publishedAt time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stamps == nil {
		r.stamps = make(map[string]time.Time)
	}
	var affected int64
	for _, id := range ids {
		for i := range r.details {
			d := &r.details[i]
			if d.Result.ID != id || !d.Result.Status.IsPublishable() {
				continue
			}
			d.Result.Status = domain.ResultPublished
			d.Result.PublishedAt = &publishedAt
			r.stamps[id] = publishedAt
			affected++
		}
	}
	return affected, nil
}

type failingResultRenderer struct {
	failFor string
	next    *render.Renderer
}

func (r failingResultRenderer) ResultEmail(student domain.Student, details []domain.ResultDetail) (render.Email, error) {
	if student.ID == r.failFor {
		return render.Email{}, errors.New("template execution failed")
	}
	return r.next.ResultEmail(student, details)
}

func TestResultPublisherPartialFailureAggregation(t *testing.T) {
	t.Parallel()

	invalid := testStudent("s1", "Bola", "not-an-email", "08031234567")
	failing := testStudent("s2", "Chidi", "chidi@example.com", "12345")
	healthy := testStudent("s3", "Dayo", "dayo@example.com", "08031234567")

	details := []domain.ResultDetail{
		testDetail(t, invalid, "r1", domain.ResultPending, 25, 50),
		testDetail(t, failing, "r2", domain.ResultPending, 20, 40),
		testDetail(t, failing, "r3", domain.ResultDraft, 10, 30),
		testDetail(t, healthy, "r4", domain.ResultPending, 25, 70),
	}

	var publishedIDs []string
	results := &fakeResultRepo{
		listDetailsFn: func(ctx context.Context, query repository.ResultQuery) ([]domain.ResultDetail, error) {
			assert.Len(t, query.Statuses, 2, "draft and pending only")
			return details, nil
		},
		publishByIDsFn: func(ctx context.Context, ids []string, publishedAt time.Time) (int64, error) {
			publishedIDs = ids
			return int64(len(ids)), nil
		},
	}
	notifications := &fakeNotificationRepo{}
	sender := &fakeEmailSender{
		sendFn: func(ctx context.Context, msg provider.EmailMessage) (*provider.ProviderResponse, error) {
			if msg.ToEmail == "chidi@example.com" {
				return nil, &provider.ProviderError{Provider: "emailjs", StatusCode: 503, Transient: true}
			}
			return &provider.ProviderResponse{StatusCode: 200}, nil
		},
	}
	sms := &fakeSMSBatchSender{}
	locker := &fakeLocker{}

	publisher := newTestPublisher(t, results, notifications, locker, newTestDispatcher(t, sender, sms), PublisherOptions{}, zap.NewNop())

	got, err := publisher.PublishAndNotify(context.Background())
	require.NoError(t, err)

	assert.True(t, got.Success, "message %q", got.Message)
	assert.Equal(t, 4, got.ResultsPublished)
	assert.Len(t, publishedIDs, 4)
	assert.Equal(t, 2, got.StudentsNotified)
	assert.Equal(t, 1, got.EmailsSent)
	require.Len(t, got.Errors, 2)
	assert.Contains(t, got.Errors[0], "Bola")
	assert.Equal(t, "Email failed for Chidi Adeyemi (chidi@example.com) after 3 attempts", got.Errors[1])
	assert.Equal(t, "Processed 4 results, notified 2 students", got.Message)

	// 3 attempts for the failing student, 1 for the healthy one.
	assert.Equal(t, 4, sender.calls())

	require.Len(t, sms.requests, 1)
	assert.Equal(t, []string{"s3"}, sms.requests[0].StudentIDs)
	assert.Equal(t, 1, got.SMSSent)

	assert.Len(t, notifications.created, 2)
	assert.Equal(t, domain.NotificationFailed, notifications.statusFor("s2"))
	assert.Equal(t, domain.NotificationSent, notifications.statusFor("s3"))
	assert.Empty(t, notifications.statusFor("s1"), "skipped student gets no record")
	assert.True(t, locker.released, "publish lock should be released")
}

func TestResultPublisherPublishTwiceSharesTimestamp(t *testing.T) {
	t.Parallel()

	student := testStudent("s1", "Ada", "ada@example.com", "08031234567")
	results := &statefulResultRepo{
		details: []domain.ResultDetail{
			testDetail(t, student, "r1", domain.ResultPending, 20, 50),
			testDetail(t, student, "r2", domain.ResultPending, 25, 60),
		},
	}
	notifications := &fakeNotificationRepo{}
	sender := &fakeEmailSender{}
	publisher := newTestPublisher(t, results, notifications, &fakeLocker{},
		newTestDispatcher(t, sender, &fakeSMSBatchSender{}), PublisherOptions{}, zap.NewNop())

	first, err := publisher.PublishAndNotify(context.Background())
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, 2, first.ResultsPublished)
	assert.Equal(t, 1, first.StudentsNotified)
	require.Len(t, notifications.created, 1, "one record per student")
	assert.Equal(t, 1, sender.calls())
	require.Len(t, results.stamps, 2)
	assert.Equal(t, testPublishTime, results.stamps["r1"])
	assert.Equal(t, results.stamps["r1"], results.stamps["r2"])

	second, err := publisher.PublishAndNotify(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, 0, second.ResultsPublished)
	assert.Equal(t, 0, second.StudentsNotified)
	assert.Len(t, notifications.created, 1, "second cycle must not create records")
	assert.Equal(t, 1, sender.calls(), "second cycle must not send email")
}

func TestResultPublisherRenderFailureNotCounted(t *testing.T) {
	t.Parallel()

	broken := testStudent("s1", "Bisi", "bisi@example.com", "08031234567")
	healthy := testStudent("s2", "Chika", "chika@example.com", "08031234567")
	results := &fakeResultRepo{
		listDetailsFn: func(ctx context.Context, query repository.ResultQuery) ([]domain.ResultDetail, error) {
			return []domain.ResultDetail{
				testDetail(t, broken, "r1", domain.ResultPending, 20, 50),
				testDetail(t, healthy, "r2", domain.ResultPending, 20, 50),
			}, nil
		},
	}
	notifications := &fakeNotificationRepo{}
	sms := &fakeSMSBatchSender{}
	publisher := newTestPublisher(t, results, notifications, &fakeLocker{},
		newTestDispatcher(t, &fakeEmailSender{}, sms), PublisherOptions{}, zap.NewNop())
	publisher.renderer = failingResultRenderer{failFor: "s1", next: render.NewRenderer()}

	got, err := publisher.PublishAndNotify(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, got.ResultsPublished)
	assert.Equal(t, 1, got.StudentsNotified)
	assert.Equal(t, 1, got.Total)
	assert.Equal(t, 1, got.EmailsSent)
	assert.Contains(t, got.Errors, "Failed to render email for Bisi Adeyemi")
	assert.Equal(t, "Processed 2 results, notified 1 students", got.Message)
	require.Len(t, notifications.created, 1)
	assert.Equal(t, "s2", *notifications.created[0].StudentID)
	require.Len(t, sms.requests, 1)
	assert.Equal(t, []string{"s2"}, sms.requests[0].StudentIDs)
}

func TestResultPublisherLockHeld(t *testing.T) {
	t.Parallel()

	results := &fakeResultRepo{
		listDetailsFn: func(ctx context.Context, query repository.ResultQuery) ([]domain.ResultDetail, error) {
			t.Error("ListDetails should not be called while the lock is held")
			return nil, nil
		},
	}
	locker := &fakeLocker{
		acquireFn: func(ctx context.Context, name string, ttl time.Duration) (lock.Lease, error) {
			assert.Equal(t, publishLockName, name)
			return nil, domain.ErrConflict
		},
	}
	publisher := newTestPublisher(t, results, &fakeNotificationRepo{}, locker,
		newTestDispatcher(t, &fakeEmailSender{}, &fakeSMSBatchSender{}), PublisherOptions{}, zap.NewNop())

	got, err := publisher.PublishAndNotify(context.Background())
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.False(t, got.Success)
	assert.Equal(t, ErrMsgPublishInProgress, got.Message)
}

func TestResultPublisherKeepLeaseAlive(t *testing.T) {
	t.Parallel()

	locker := &fakeLocker{}
	publisher := newTestPublisher(t, &fakeResultRepo{}, &fakeNotificationRepo{}, locker,
		newTestDispatcher(t, &fakeEmailSender{}, &fakeSMSBatchSender{}), PublisherOptions{LockTTL: 30 * time.Millisecond}, zap.NewNop())

	lease, err := locker.Acquire(context.Background(), publishLockName, publisher.opts.LockTTL)
	require.NoError(t, err)

	stop := publisher.keepLeaseAlive(context.Background(), lease, zap.NewNop())
	require.Eventually(t, func() bool { return locker.extends.Load() >= 2 }, time.Second, 5*time.Millisecond)

	stop()
	extends := locker.extends.Load()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, extends, locker.extends.Load(), "no renewals after stop")
}

func TestResultPublisherKeepLeaseAliveStopsWhenLost(t *testing.T) {
	t.Parallel()

	locker := &fakeLocker{
		extendFn: func(ctx context.Context, ttl time.Duration) error {
			return domain.ErrConflict
		},
	}
	publisher := newTestPublisher(t, &fakeResultRepo{}, &fakeNotificationRepo{}, locker,
		newTestDispatcher(t, &fakeEmailSender{}, &fakeSMSBatchSender{}), PublisherOptions{LockTTL: 30 * time.Millisecond}, zap.NewNop())

	lease, err := locker.Acquire(context.Background(), publishLockName, publisher.opts.LockTTL)
	require.NoError(t, err)

	core, logs := observer.New(zap.WarnLevel)
	stop := publisher.keepLeaseAlive(context.Background(), lease, zap.New(core))
	defer stop()

	require.Eventually(t, func() bool {
		return logs.FilterMessage("failed to extend publish lock").Len() == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(1), locker.extends.Load(), "renewal stops once the lease is lost")
}

func TestResultPublisherStoreFailuresAbort(t *testing.T) {
	t.Parallel()

	student := testStudent("s1", "Efe", "efe@example.com", "08031234567")
	pending := []domain.ResultDetail{testDetail(t, student, "r1", domain.ResultPending, 20, 50)}
	storeErr := errors.New("connection reset")

	tests := []struct {
		name          string
		results       *fakeResultRepo
		notifications *fakeNotificationRepo
		wantMessage   string
	}{
		{
			name: "fetch failure",
			results: &fakeResultRepo{
				listDetailsFn: func(ctx context.Context, query repository.ResultQuery) ([]domain.ResultDetail, error) {
					return nil, storeErr
				},
			},
			notifications: &fakeNotificationRepo{},
			wantMessage:   "failed to fetch results",
		},
		{
			name: "status update failure",
			results: &fakeResultRepo{
				listDetailsFn: func(ctx context.Context, query repository.ResultQuery) ([]domain.ResultDetail, error) {
					return pending, nil
				},
				publishByIDsFn: func(ctx context.Context, ids []string, publishedAt time.Time) (int64, error) {
					return 0, storeErr
				},
			},
			notifications: &fakeNotificationRepo{},
			wantMessage:   "failed to update results status",
		},
		{
			name: "record insert failure",
			results: &fakeResultRepo{
				listDetailsFn: func(ctx context.Context, query repository.ResultQuery) ([]domain.ResultDetail, error) {
					return pending, nil
				},
			},
			notifications: &fakeNotificationRepo{
				createBatchFn: func(ctx context.Context, records []*domain.NotificationRecord) error {
					return storeErr
				},
			},
			wantMessage: "failed to create notification records",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.ErrorLevel)
			sender := &fakeEmailSender{}
			publisher := newTestPublisher(t, tt.results, tt.notifications, &fakeLocker{},
				newTestDispatcher(t, sender, &fakeSMSBatchSender{}), PublisherOptions{}, zap.New(core))

			got, err := publisher.PublishAndNotify(context.Background())
			require.ErrorIs(t, err, storeErr)
			assert.False(t, got.Success)
			assert.True(t, strings.HasPrefix(got.Message, tt.wantMessage), "message = %q, want prefix %q", got.Message, tt.wantMessage)
			assert.Equal(t, 0, sender.calls())
			assert.Equal(t, 1, logs.FilterMessage("publish cycle aborted").Len())
		})
	}
}

func TestResultPublisherRenotifyPublished(t *testing.T) {
	t.Parallel()

	student := testStudent("s1", "Femi", "femi@example.com", "08031234567")
	var publishedIDs []string
	results := &fakeResultRepo{
		listDetailsFn: func(ctx context.Context, query repository.ResultQuery) ([]domain.ResultDetail, error) {
			assert.Len(t, query.Statuses, 3, "published included")
			return []domain.ResultDetail{
				testDetail(t, student, "r1", domain.ResultPublished, 20, 50),
				testDetail(t, student, "r2", domain.ResultPending, 20, 45),
			}, nil
		},
		publishByIDsFn: func(ctx context.Context, ids []string, publishedAt time.Time) (int64, error) {
			publishedIDs = ids
			return int64(len(ids)), nil
		},
	}
	sender := &fakeEmailSender{}
	publisher := newTestPublisher(t, results, &fakeNotificationRepo{}, nil,
		newTestDispatcher(t, sender, &fakeSMSBatchSender{}), PublisherOptions{RenotifyPublished: true}, zap.NewNop())

	got, err := publisher.PublishAndNotify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"r2"}, publishedIDs)
	assert.Equal(t, 1, got.ResultsPublished)
	assert.Equal(t, 1, got.EmailsSent, "one email for both results")
	assert.Equal(t, 1, sender.calls())
}

func TestResultPublisherNoCandidates(t *testing.T) {
	t.Parallel()

	results := &fakeResultRepo{
		publishByIDsFn: func(ctx context.Context, ids []string, publishedAt time.Time) (int64, error) {
			t.Error("PublishByIDs should not be called without candidates")
			return 0, nil
		},
	}
	publisher := newTestPublisher(t, results, &fakeNotificationRepo{}, &fakeLocker{},
		newTestDispatcher(t, &fakeEmailSender{}, &fakeSMSBatchSender{}), PublisherOptions{}, zap.NewNop())

	got, err := publisher.PublishAndNotify(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Success)
	assert.Equal(t, 0, got.ResultsPublished)
	assert.Equal(t, 0, got.StudentsNotified)
	assert.Equal(t, "No results found for notification", got.Message)
}

func TestResultPublisherSMSUnavailable(t *testing.T) {
	t.Parallel()

	student := testStudent("s1", "Gbenga", "gbenga@example.com", "08031234567")
	results := &fakeResultRepo{
		listDetailsFn: func(ctx context.Context, query repository.ResultQuery) ([]domain.ResultDetail, error) {
			return []domain.ResultDetail{testDetail(t, student, "r1", domain.ResultPending, 30, 70)}, nil
		},
	}
	sms := &fakeSMSBatchSender{
		healthFn: func(ctx context.Context) error {
			return errors.New("connection refused")
		},
	}
	notifications := &fakeNotificationRepo{}
	publisher := newTestPublisher(t, results, notifications, &fakeLocker{},
		newTestDispatcher(t, &fakeEmailSender{}, sms), PublisherOptions{}, zap.NewNop())

	got, err := publisher.PublishAndNotify(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Success, "partial failure still succeeds")
	assert.Equal(t, []string{"SMS service unavailable"}, got.Errors)
	assert.Empty(t, sms.requests)
	assert.Equal(t, domain.NotificationSent, notifications.statusFor("s1"), "sent via email")
}

func TestGroupByStudentKeepsFirstSeenOrder(t *testing.T) {
	t.Parallel()

	a := testStudent("a", "Ada", "ada@example.com", "")
	b := testStudent("b", "Bayo", "bayo@example.com", "")
	groups := groupByStudent([]domain.ResultDetail{
		testDetail(t, b, "1", domain.ResultPending, 10, 10),
		testDetail(t, a, "2", domain.ResultPending, 10, 10),
		testDetail(t, b, "3", domain.ResultPending, 10, 10),
	})

	require.Len(t, groups, 2)
	assert.Equal(t, "b", groups[0].student.ID)
	assert.Len(t, groups[0].details, 2)
	assert.Equal(t, "a", groups[1].student.ID)
}
