package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edunotify/edunotify/internal/domain"
	"github.com/edunotify/edunotify/internal/observability"
	"github.com/edunotify/edunotify/internal/provider"
	"github.com/edunotify/edunotify/internal/service"
	"github.com/edunotify/edunotify/internal/transport"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const smsServiceName = "EduNotify SMS Service"

type SMSNotifier interface {
	NotifyResults(ctx context.Context, req provider.SMSBatchRequest) (*provider.SMSBatchResponse, error)
	NotifyCustom(ctx context.Context, req provider.SMSBatchRequest) (*provider.SMSBatchResponse, error)
	SendTest(ctx context.Context, phone, message string) (*provider.ProviderResponse, error)
	GatewayName() string
}

type SMSRouteOptions struct {
	APILimit transport.RateLimit
	SMSLimit transport.RateLimit
	Checks   []Check
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

type SMSHandler struct {
	sms     SMSNotifier
	checks  []Check
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewSMSHandler(sms SMSNotifier, opts SMSRouteOptions) (*SMSHandler, error) {
	if sms == nil {
		return nil, fmt.Errorf("sms service is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMSHandler{
		sms:     sms,
		checks:  opts.Checks,
		metrics: opts.Metrics,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// RegisterSMSRoutes mounts the side-service under /api. Every route shares the API budget and
// the sending routes also draw from the SMS budget.
func RegisterSMSRoutes(router fiber.Router, sms SMSNotifier, opts SMSRouteOptions) error {
	h, err := NewSMSHandler(sms, opts)
	if err != nil {
		return err
	}

	api := router.Group("/api", transport.NewRateLimiter(opts.APILimit))
	smsLimit := transport.NewRateLimiter(opts.SMSLimit)
	api.Post("/notify-results", smsLimit, h.NotifyResults)
	api.Post("/notify-custom", smsLimit, h.NotifyCustom)
	api.Post("/test-sms", smsLimit, h.TestSMS)
	api.Post("/sms-status", h.StatusCallback)
	api.Get("/health", h.Health)
	return nil
}

func (h *SMSHandler) NotifyResults(c *fiber.Ctx) error {
	var req provider.SMSBatchRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	resp, err := h.sms.NotifyResults(c.UserContext(), req)
	return h.respondBatch(c, resp, err, "Failed to process notifications")
}

func (h *SMSHandler) NotifyCustom(c *fiber.Ctx) error {
	var req provider.SMSBatchRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	resp, err := h.sms.NotifyCustom(c.UserContext(), req)
	return h.respondBatch(c, resp, err, "Failed to send custom notifications")
}

type testSMSRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func (h *SMSHandler) TestSMS(c *fiber.Ctx) error {
	var req testSMSRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	resp, err := h.sms.SendTest(c.UserContext(), req.Phone, req.Message)
	if err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, domain.ErrValidation) {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{
			"success": false,
			"error":   validationMessage(err),
		})
	}

	body := fiber.Map{"success": true, "gateway": h.sms.GatewayName()}
	if resp != nil && resp.MessageID != "" {
		body["messageId"] = resp.MessageID
	}
	return c.Status(fiber.StatusOK).JSON(body)
}

// StatusCallback receives gateway delivery reports (form encoded, Twilio field names).
func (h *SMSHandler) StatusCallback(c *fiber.Ctx) error {
	sid := strings.TrimSpace(c.FormValue("MessageSid"))
	status := strings.TrimSpace(c.FormValue("MessageStatus"))

	observability.WithContextLogger(h.logger, c.UserContext()).Info("sms status update",
		zap.String("messageSid", sid),
		zap.String("messageStatus", status),
		zap.String("errorCode", c.FormValue("ErrorCode")),
	)
	h.metrics.IncSMSStatusUpdate(status)
	return c.Status(fiber.StatusOK).SendString("OK")
}

func (h *SMSHandler) Health(c *fiber.Ctx) error {
	results, healthy := runChecks(c.UserContext(), h.checks)

	status := "OK"
	code := fiber.StatusOK
	if !healthy {
		status = "DEGRADED"
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"service":   smsServiceName,
		"gateway":   h.sms.GatewayName(),
		"checks":    results,
	})
}

func (h *SMSHandler) respondBatch(c *fiber.Ctx, resp *provider.SMSBatchResponse, err error, failMessage string) error {
	if err == nil {
		return c.Status(fiber.StatusOK).JSON(resp)
	}

	var rejected *service.BatchRejectedError
	switch {
	case errors.As(err, &rejected):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": rejected.Message,
			"errors":  []string{rejected.Detail},
		})
	case errors.Is(err, domain.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request",
			"errors":  []string{validationMessage(err)},
		})
	}

	observability.WithContextLogger(h.logger, c.UserContext()).Error("sms batch failed", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(provider.SMSBatchResponse{
		Success:        false,
		Message:        failMessage,
		Errors:         []string{err.Error()},
		SuccessDetails: []string{},
		FailureDetails: []string{},
	})
}

func validationMessage(err error) string {
	return strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": ")
}
