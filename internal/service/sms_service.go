package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edunotify/edunotify/internal/domain"
	"github.com/edunotify/edunotify/internal/observability"
	"github.com/edunotify/edunotify/internal/provider"
	"github.com/edunotify/edunotify/internal/ratelimit"
	"github.com/edunotify/edunotify/internal/render"
	"github.com/edunotify/edunotify/internal/repository"
	"github.com/edunotify/edunotify/internal/retry"
	"go.uber.org/zap"
)

const (
	SMSMaxAttempts          = 3
	defaultSMSRetryBase     = time.Second
	defaultSMSRetryMaxDelay = 30 * time.Second
	defaultSMSSendDelay     = time.Second
)

// BatchRejectedError is returned for side-service requests refused before any lookup.
type BatchRejectedError struct {
	Message string
	Detail  string
}

func (e *BatchRejectedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

func (e *BatchRejectedError) Unwrap() error { return domain.ErrValidation }

type SMSServiceOptions struct {
	SendDelay time.Duration
	RetryBase time.Duration
	MaxBatch  int
}

// SMSService renders and sends SMS through a gateway, one message per student.
type SMSService struct {
	students repository.StudentRepository
	results  repository.ResultRepository
	gateway  provider.SMSGateway
	limiter  ratelimit.RateLimiter
	renderer *render.Renderer
	logger   *zap.Logger
	metrics  *observability.Metrics
	opts     SMSServiceOptions
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewSMSService(
	students repository.StudentRepository,
	results repository.ResultRepository,
	gateway provider.SMSGateway,
	limiter ratelimit.RateLimiter,
	renderer *render.Renderer,
	opts SMSServiceOptions,
	logger *zap.Logger,
) (*SMSService, error) {
	if students == nil || results == nil {
		return nil, fmt.Errorf("student and result repositories are required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("sms gateway is required")
	}
	if renderer == nil {
		renderer = render.NewRenderer()
	}
	if opts.SendDelay < 0 {
		opts.SendDelay = defaultSMSSendDelay
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = defaultSMSRetryBase
	}
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = MaxSMSBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SMSService{
		students: students,
		results:  results,
		gateway:  gateway,
		limiter:  limiter,
		renderer: renderer,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
		sleep:    retry.SleepWithContext,
	}, nil
}

func (s *SMSService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// GatewayName identifies the upstream gateway in health output.
func (s *SMSService) GatewayName() string {
	return s.gateway.Name()
}

type smsJob struct {
	student domain.Student
	body    string
}

// NotifyResults sends a results summary built from each student's published results.
// With no student ids every active student is targeted.
func (s *SMSService) NotifyResults(ctx context.Context, req provider.SMSBatchRequest) (*provider.SMSBatchResponse, error) {
	tmpl, err := render.ParseSMSTemplateFromString(req.TemplateType)
	if err != nil {
		return nil, err
	}
	if tmpl == render.SMSCustom {
		return nil, fmt.Errorf("%w: template %q is not a results template", domain.ErrValidation, tmpl)
	}
	if len(req.StudentIDs) > s.opts.MaxBatch {
		return nil, &BatchRejectedError{Message: "Batch size too large", Detail: fmt.Sprintf("Maximum %d students per batch", s.opts.MaxBatch)}
	}

	students, err := s.resolveStudents(ctx, req.StudentIDs)
	if err != nil {
		return nil, err
	}

	resp := newSMSBatchResponse(req.TestMode)
	resp.TemplateUsed = tmpl.String()
	if len(students) == 0 {
		resp.Message = "No active students found"
		return resp, nil
	}

	ids := make([]string, 0, len(students))
	for _, st := range students {
		ids = append(ids, st.ID)
	}
	details, err := s.results.ListDetails(ctx, repository.ResultQuery{
		StudentIDs: ids,
		Statuses:   []domain.ResultStatus{domain.ResultPublished},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch published results: %w", err)
	}
	byStudent := make(map[string][]domain.ResultDetail, len(students))
	for _, d := range details {
		byStudent[d.Student.ID] = append(byStudent[d.Student.ID], d)
	}

	jobs := make([]smsJob, 0, len(students))
	for _, st := range students {
		body, err := s.renderer.SMS(tmpl, st, byStudent[st.ID], req.Message)
		if err != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("Failed to render SMS for %s: %v", st.FullName(), err))
			continue
		}
		jobs = append(jobs, smsJob{student: st, body: body})
	}

	s.deliver(ctx, jobs, resp)
	resp.Message = completionMessage(req.TestMode, "Notifications sent successfully")
	return resp, nil
}

// NotifyCustom sends the caller's message to the given students with the custom template.
func (s *SMSService) NotifyCustom(ctx context.Context, req provider.SMSBatchRequest) (*provider.SMSBatchResponse, error) {
	if len(req.StudentIDs) == 0 {
		return nil, &BatchRejectedError{Message: "Student IDs are required", Detail: "Student IDs must be provided as an array"}
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Message) == "" {
		return nil, &BatchRejectedError{Message: "Title and message are required", Detail: "Both title and message fields are required"}
	}
	if len(req.StudentIDs) > s.opts.MaxBatch {
		return nil, &BatchRejectedError{Message: "Batch size too large", Detail: fmt.Sprintf("Maximum %d students per batch", s.opts.MaxBatch)}
	}

	students, err := s.resolveStudents(ctx, req.StudentIDs)
	if err != nil {
		return nil, err
	}

	resp := newSMSBatchResponse(req.TestMode)
	resp.TemplateUsed = render.SMSCustom.String()
	if len(students) == 0 {
		resp.Message = "No active students found"
		return resp, nil
	}

	jobs := make([]smsJob, 0, len(students))
	for _, st := range students {
		body, err := s.renderer.SMS(render.SMSCustom, st, nil, req.Message)
		if err != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("Failed to render SMS for %s: %v", st.FullName(), err))
			continue
		}
		jobs = append(jobs, smsJob{student: st, body: body})
	}

	s.deliver(ctx, jobs, resp)
	resp.Message = completionMessage(req.TestMode, "Custom notifications sent successfully")
	return resp, nil
}

// SendTest sends a one-off message to a raw phone number.
func (s *SMSService) SendTest(ctx context.Context, phone, message string) (*provider.ProviderResponse, error) {
	if strings.TrimSpace(phone) == "" || strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: Phone and message required", domain.ErrValidation)
	}
	to, err := domain.NormalizePhone(phone)
	if err != nil {
		return nil, fmt.Errorf("%w: Invalid phone number", domain.ErrValidation)
	}

	body := fmt.Sprintf("Test: %s - %s", strings.TrimSpace(message), s.renderer.Institution())
	return s.sendWithRetry(ctx, to, body)
}

func (s *SMSService) resolveStudents(ctx context.Context, ids []string) ([]domain.Student, error) {
	var (
		students []domain.Student
		err      error
	)
	if len(ids) == 0 {
		students, err = s.students.List(ctx)
	} else {
		students, err = s.students.GetByIDs(ctx, dedupeIDs(ids))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch students: %w", err)
	}

	active := domain.StudentActive
	return domain.FilterStudents(students, domain.StudentFilter{Status: &active}), nil
}

func (s *SMSService) deliver(ctx context.Context, jobs []smsJob, resp *provider.SMSBatchResponse) {
	logger := observability.WithContextLogger(s.logger, ctx)
	resp.StudentsNotified = len(jobs)
	resp.Total = len(jobs)

	for i, job := range jobs {
		name := job.student.FullName()
		to, err := domain.NormalizePhone(job.student.Phone)
		if err != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("Invalid phone number for %s: %s", name, job.student.Phone))
			resp.FailureDetails = append(resp.FailureDetails, invalidPhoneDetail(job.student))
			continue
		}

		if resp.TestMode {
			logger.Info("test mode, sms not sent", zap.String("studentId", job.student.ID))
			resp.SMSSent++
			resp.SuccessDetails = append(resp.SuccessDetails, fmt.Sprintf("sms (test): %s %s", name, to.E164()))
			continue
		}

		providerResp, err := s.sendWithRetry(ctx, to, job.body)
		if err != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("SMS failed for %s: %s", name, rootMessage(err)))
			resp.FailureDetails = append(resp.FailureDetails, fmt.Sprintf("sms: %s %s: %v", name, to.E164(), err))
			if ctx.Err() != nil {
				return
			}
			continue
		}

		resp.SMSSent++
		detail := fmt.Sprintf("sms: %s %s", name, to.E164())
		if providerResp != nil && providerResp.MessageID != "" {
			detail += " (" + providerResp.MessageID + ")"
		}
		resp.SuccessDetails = append(resp.SuccessDetails, detail)

		if i < len(jobs)-1 && s.opts.SendDelay > 0 {
			if err := s.sleep(ctx, s.opts.SendDelay); err != nil {
				return
			}
		}
	}
}

func (s *SMSService) sendWithRetry(ctx context.Context, to domain.PhoneNumber, body string) (*provider.ProviderResponse, error) {
	gatewayName := s.gateway.Name()
	logger := observability.WithContextLogger(s.logger, ctx).With(
		zap.String("gateway", gatewayName),
		zap.String("to", to.E164()),
	)

	var providerResp *provider.ProviderResponse
	start := s.now()
	attempts, err := retry.Do(ctx, retry.Policy{
		MaxAttempts: SMSMaxAttempts,
		Backoff:     retry.Exponential(s.opts.RetryBase, defaultSMSRetryMaxDelay),
		Retryable: func(err error) bool {
			return !errors.Is(err, context.Canceled) && !provider.IsPermanent(err)
		},
		Sleep: s.sleep,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logger.Warn("sms attempt failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			s.metrics.IncSendRetry(channelSMS)
		},
	}, func(ctx context.Context, attempt int) error {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx, gatewayName); err != nil {
				return fmt.Errorf("rate limiter wait failed: %w", err)
			}
		}
		resp, err := s.gateway.SendSMS(ctx, to, body)
		if err != nil {
			return err
		}
		providerResp = resp
		return nil
	})
	s.metrics.ObserveNotificationSendDuration(channelSMS, s.now().Sub(start))

	if err != nil {
		reason := "permanent_error"
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			reason = "retry_exhausted"
		}
		s.metrics.IncNotificationFailed(channelSMS, reason)
		logger.Error("sms send failed", zap.Int("attempts", attempts), zap.Error(err))
		return nil, err
	}

	s.metrics.IncNotificationSent(channelSMS)
	return providerResp, nil
}

func newSMSBatchResponse(testMode bool) *provider.SMSBatchResponse {
	return &provider.SMSBatchResponse{
		Success:        true,
		Errors:         []string{},
		SuccessDetails: []string{},
		FailureDetails: []string{},
		TestMode:       testMode,
	}
}

func completionMessage(testMode bool, live string) string {
	if testMode {
		return "Test mode completed successfully"
	}
	return live
}

// rootMessage unwraps retry exhaustion so callers see the gateway's own message.
func rootMessage(err error) string {
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) && exhausted.Err != nil {
		return exhausted.Err.Error()
	}
	return err.Error()
}
