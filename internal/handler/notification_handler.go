package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edunotify/edunotify/internal/domain"
	"github.com/edunotify/edunotify/internal/repository"
	"github.com/edunotify/edunotify/internal/service"
	"github.com/gofiber/fiber/v2"
)

type NotificationService interface {
	SendCustomNotification(ctx context.Context, req service.CustomNotification) (domain.NotificationResult, error)
	SendBulkNotification(ctx context.Context, req service.BulkNotification) (domain.NotificationResult, error)
	SendTestEmail(ctx context.Context, req service.TestEmail) error
	History(ctx context.Context, limit int) ([]domain.NotificationRecord, error)
}

type NotificationHandler struct {
	service NotificationService
}

func NewNotificationHandler(service NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	return &NotificationHandler{service: service}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service NotificationService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications/custom", h.SendCustom)
	v1.Post("/notifications/bulk", h.SendBulk)
	v1.Post("/notifications/test-email", h.SendTestEmail)
	v1.Get("/notifications", h.History)
	return nil
}

type studentFilterRequest struct {
	Department *string `json:"department"`
	Level      *string `json:"level"`
	Status     *string `json:"status"`
}

type bulkNotificationRequest struct {
	Title   string               `json:"title"`
	Message string               `json:"message"`
	Type    string               `json:"type"`
	Filter  studentFilterRequest `json:"filter"`
}

type notificationResponse struct {
	ID        string     `json:"id"`
	StudentID *string    `json:"studentId,omitempty"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Type      string     `json:"type"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	SentAt    *time.Time `json:"sentAt,omitempty"`
}

func (h *NotificationHandler) SendCustom(c *fiber.Ctx) error {
	var req service.CustomNotification
	if err := parseBody(c, &req); err != nil {
		return err
	}

	result, err := h.service.SendCustomNotification(c.UserContext(), req)
	return respondNotificationResult(c, result, err)
}

func (h *NotificationHandler) SendBulk(c *fiber.Ctx) error {
	var req bulkNotificationRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	filter, err := toStudentFilter(req.Filter)
	if err != nil {
		return toHTTPError(err)
	}

	result, err := h.service.SendBulkNotification(c.UserContext(), service.BulkNotification{
		Title:   req.Title,
		Message: req.Message,
		Type:    domain.NotificationType(req.Type),
		Filter:  filter,
	})
	return respondNotificationResult(c, result, err)
}

func (h *NotificationHandler) SendTestEmail(c *fiber.Ctx) error {
	var req service.TestEmail
	if err := parseBody(c, &req); err != nil {
		return err
	}

	if err := h.service.SendTestEmail(c.UserContext(), req); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return toHTTPError(err)
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Test email sent",
	})
}

func (h *NotificationHandler) History(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", repository.DefaultHistoryLimit)
	if limit < 1 {
		return toHTTPError(fmt.Errorf("%w: limit must be >= 1", domain.ErrValidation))
	}

	records, err := h.service.History(c.UserContext(), limit)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]notificationResponse, 0, len(records))
	for _, r := range records {
		data = append(data, notificationResponse{
			ID:        r.ID,
			StudentID: r.StudentID,
			Title:     r.Title,
			Message:   r.Body,
			Type:      r.Type.String(),
			Status:    r.Status.String(),
			CreatedAt: r.CreatedAt,
			SentAt:    r.SentAt,
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": data})
}

// respondNotificationResult returns validation failures as errors and everything else as the
// aggregate body, with 500 when the send aborted.
func respondNotificationResult(c *fiber.Ctx, result domain.NotificationResult, err error) error {
	if err != nil {
		if errors.Is(err, domain.ErrValidation) || result.Message == "" {
			return toHTTPError(err)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(result)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

func toStudentFilter(req studentFilterRequest) (domain.StudentFilter, error) {
	filter := domain.StudentFilter{
		Department: trimmedOrNil(req.Department),
		Level:      trimmedOrNil(req.Level),
	}
	if raw := trimmedOrNil(req.Status); raw != nil {
		status, err := domain.ParseStudentStatusFromString(*raw)
		if err != nil {
			return domain.StudentFilter{}, err
		}
		filter.Status = &status
	}
	return filter, nil
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
