package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/edunotify/edunotify/internal/domain"
	"github.com/edunotify/edunotify/internal/observability"
	"github.com/edunotify/edunotify/internal/provider"
	"github.com/edunotify/edunotify/internal/retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultEmailConcurrency = 8
	MaxSMSBatchSize         = 100

	ResultsSMSTitle   = "Results Published"
	ResultsSMSMessage = "Your exam results have been published! Check your email for details or log in to EduNotify to view your results."

	errSMSUnavailable   = "SMS service unavailable"
	errSMSRequestFailed = "SMS service request failed"
)

// SMSMode selects the side-service endpoint used for a dispatch.
type SMSMode int

const (
	SMSModeResults SMSMode = iota
	SMSModeCustom
)

// EmailJob is one student's email.
type EmailJob struct {
	Student domain.Student
	Message provider.EmailMessage
}

type DispatchRequest struct {
	Emails        []EmailJob
	SMSStudentIDs []string
	SMSMode       SMSMode
	SMSTitle      string
	SMSMessage    string
}

// DispatchReport aggregates channel outcomes. Detail and error order follows the request order.
type DispatchReport struct {
	EmailsSent     int
	SMSSent        int
	EmailDelivered map[string]bool
	SMSAccepted    map[string]bool
	SuccessDetails []string
	FailureDetails []string
	Errors         []string
}

// ChannelSucceeded reports whether any channel delivered to the student.
func (r DispatchReport) ChannelSucceeded(studentID string) bool {
	return r.EmailDelivered[studentID] || r.SMSAccepted[studentID]
}

// Dispatcher fans notifications out over the email and SMS channels.
type Dispatcher struct {
	email       *EmailChannel
	sms         provider.SMSBatchSender
	concurrency int
	logger      *zap.Logger
	metrics     *observability.Metrics
}

func NewDispatcher(
	email *EmailChannel,
	sms provider.SMSBatchSender,
	concurrency int,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if email == nil {
		return nil, fmt.Errorf("email channel is required")
	}
	if concurrency < 1 {
		concurrency = DefaultEmailConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		email:       email,
		sms:         sms,
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
	d.email.SetMetrics(metrics)
}

type emailOutcome struct {
	delivered bool
	attempts  int
	err       error
}

type smsOutcome struct {
	sent     int
	accepted map[string]bool
	success  []string
	failure  []string
	errors   []string
}

// Dispatch sends every email concurrently (bounded) while the SMS batches run alongside.
// It waits for both before returning.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) DispatchReport {
	emailOutcomes := make([]emailOutcome, len(req.Emails))
	var sms smsOutcome

	var wg sync.WaitGroup
	if len(req.SMSStudentIDs) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sms = d.sendSMS(ctx, req)
		}()
	}

	g := new(errgroup.Group)
	g.SetLimit(d.concurrency)
	for i := range req.Emails {
		job := req.Emails[i]
		idx := i
		g.Go(func() error {
			attempts, err := d.email.Send(ctx, job.Message)
			emailOutcomes[idx] = emailOutcome{delivered: err == nil, attempts: attempts, err: err}
			return nil
		})
	}
	_ = g.Wait()
	wg.Wait()

	report := DispatchReport{
		EmailDelivered: make(map[string]bool, len(req.Emails)),
		SMSAccepted:    make(map[string]bool, len(req.SMSStudentIDs)),
		SuccessDetails: []string{},
		FailureDetails: []string{},
		Errors:         []string{},
	}

	for i, outcome := range emailOutcomes {
		job := req.Emails[i]
		name := job.Student.FullName()
		if outcome.delivered {
			report.EmailsSent++
			report.EmailDelivered[job.Student.ID] = true
			report.SuccessDetails = append(report.SuccessDetails,
				fmt.Sprintf("email: %s <%s>", name, job.Message.ToEmail))
			continue
		}

		report.Errors = append(report.Errors, emailFailureMessage(name, job.Message.ToEmail, outcome.err))
		report.FailureDetails = append(report.FailureDetails,
			fmt.Sprintf("email: %s <%s>: %v (attempts: %d)", name, job.Message.ToEmail, outcome.err, outcome.attempts))
	}

	report.SMSSent = sms.sent
	for id := range sms.accepted {
		report.SMSAccepted[id] = true
	}
	report.SuccessDetails = append(report.SuccessDetails, sms.success...)
	report.FailureDetails = append(report.FailureDetails, sms.failure...)
	report.Errors = append(report.Errors, sms.errors...)

	return report
}

func emailFailureMessage(name, email string, err error) string {
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return fmt.Sprintf("Email failed for %s (%s) after %d attempts", name, email, exhausted.Attempts)
	}
	return fmt.Sprintf("Email failed for %s (%s)", name, email)
}

func (d *Dispatcher) sendSMS(ctx context.Context, req DispatchRequest) smsOutcome {
	out := smsOutcome{accepted: map[string]bool{}}
	logger := observability.WithContextLogger(d.logger, ctx)

	if d.sms == nil {
		logger.Warn("sms service not configured, skipping sms notifications")
		return out
	}
	if err := d.sms.Health(ctx); err != nil {
		logger.Warn("sms service not available, skipping sms notifications", zap.Error(err))
		d.metrics.IncNotificationFailed(channelSMS, "unavailable")
		out.errors = append(out.errors, errSMSUnavailable)
		return out
	}

	for _, batch := range chunkIDs(req.SMSStudentIDs, MaxSMSBatchSize) {
		body := provider.SMSBatchRequest{
			StudentIDs: batch,
			Title:      req.SMSTitle,
			Message:    req.SMSMessage,
		}

		var resp *provider.SMSBatchResponse
		var err error
		if req.SMSMode == SMSModeCustom {
			resp, err = d.sms.NotifyCustom(ctx, body)
		} else {
			resp, err = d.sms.NotifyResults(ctx, body)
		}
		if err != nil {
			msg := errSMSUnavailable
			if provider.IsRejected(err) {
				msg = errSMSRequestFailed
			}
			logger.Error("sms batch failed", zap.Int("batchSize", len(batch)), zap.Error(err))
			d.metrics.IncNotificationFailed(channelSMS, "batch_error")
			out.errors = appendUnique(out.errors, msg)
			continue
		}
		if resp == nil {
			continue
		}

		out.sent += resp.SMSSent
		out.success = append(out.success, resp.SuccessDetails...)
		out.failure = append(out.failure, resp.FailureDetails...)
		out.errors = append(out.errors, resp.Errors...)
		if resp.Success {
			for _, id := range batch {
				out.accepted[id] = true
			}
		}
		logger.Info("sms batch processed",
			zap.Int("batchSize", len(batch)),
			zap.Int("smsSent", resp.SMSSent),
		)
	}

	return out
}

func chunkIDs(ids []string, size int) [][]string {
	if size < 1 {
		size = MaxSMSBatchSize
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

func appendUnique(list []string, value string) []string {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}
