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
	"github.com/edunotify/edunotify/internal/retry"
	"go.uber.org/zap"
)

const (
	channelEmail = "email"
	channelSMS   = "sms"

	EmailMaxAttempts        = 3
	defaultEmailRetryBase   = time.Second
	defaultEmailSuccessWait = 100 * time.Millisecond
)

// EmailChannel sends one email per student with linear-backoff retry.
type EmailChannel struct {
	sender       provider.EmailSender
	logger       *zap.Logger
	metrics      *observability.Metrics
	retryBase    time.Duration
	successDelay time.Duration
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
}

func NewEmailChannel(
	sender provider.EmailSender,
	retryBase time.Duration,
	successDelay time.Duration,
	logger *zap.Logger,
) (*EmailChannel, error) {
	if sender == nil {
		return nil, fmt.Errorf("email sender is required")
	}
	if retryBase <= 0 {
		retryBase = defaultEmailRetryBase
	}
	if successDelay < 0 {
		successDelay = defaultEmailSuccessWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EmailChannel{
		sender:       sender,
		logger:       logger,
		retryBase:    retryBase,
		successDelay: successDelay,
		now:          time.Now,
		sleep:        retry.SleepWithContext,
	}, nil
}

func (c *EmailChannel) SetMetrics(metrics *observability.Metrics) {
	if c == nil {
		return
	}
	c.metrics = metrics
}

// Send delivers msg, retrying transient failures. It returns the number of attempts made.
func (c *EmailChannel) Send(ctx context.Context, msg provider.EmailMessage) (int, error) {
	if !domain.IsValidEmail(strings.TrimSpace(msg.ToEmail)) {
		return 0, fmt.Errorf("%w: invalid email address %q", domain.ErrValidation, msg.ToEmail)
	}

	logger := observability.WithContextLogger(c.logger, ctx).With(
		zap.String("studentId", msg.StudentID),
		zap.String("to", msg.ToEmail),
	)

	start := c.now()
	attempts, err := retry.Do(ctx, retry.Policy{
		MaxAttempts: EmailMaxAttempts,
		Backoff:     retry.Linear(c.retryBase),
		Retryable:   isRetryableEmailError,
		Sleep:       c.sleep,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logger.Warn("email attempt failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			c.metrics.IncSendRetry(channelEmail)
		},
	}, func(ctx context.Context, attempt int) error {
		resp, err := c.sender.SendEmail(ctx, msg)
		if err != nil {
			return err
		}
		if resp != nil && resp.MessageID != "" {
			logger.Debug("email accepted", zap.String("providerMessageId", resp.MessageID))
		}
		return nil
	})
	c.metrics.ObserveNotificationSendDuration(channelEmail, c.now().Sub(start))

	if err != nil {
		reason := "permanent_error"
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			reason = "retry_exhausted"
		}
		c.metrics.IncNotificationFailed(channelEmail, reason)
		logger.Error("email send failed", zap.Int("attempts", attempts), zap.Error(err))
		return attempts, err
	}

	c.metrics.IncNotificationSent(channelEmail)
	if c.successDelay > 0 {
		// Pacing only; a cancelled wait does not undo the delivered email.
		_ = c.sleep(ctx, c.successDelay)
	}
	return attempts, nil
}

func isRetryableEmailError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrValidation) {
		return false
	}
	return !provider.IsPermanent(err)
}
