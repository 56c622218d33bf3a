package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/edunotify/edunotify/internal/domain"
	"github.com/edunotify/edunotify/internal/repository"
	"github.com/edunotify/edunotify/internal/service"
	"github.com/gofiber/fiber/v2"
)

type stubNotificationService struct {
	customFn    func(ctx context.Context, req service.CustomNotification) (domain.NotificationResult, error)
	bulkFn      func(ctx context.Context, req service.BulkNotification) (domain.NotificationResult, error)
	testEmailFn func(ctx context.Context, req service.TestEmail) error
	historyFn   func(ctx context.Context, limit int) ([]domain.NotificationRecord, error)
}

func (s *stubNotificationService) SendCustomNotification(
	ctx context.Context,
	req service.CustomNotification,
) (domain.NotificationResult, error) {
	if s.customFn != nil {
		return s.customFn(ctx, req)
	}
	return domain.NewNotificationResult(), nil
}

func (s *stubNotificationService) SendBulkNotification(
	ctx context.Context,
	req service.BulkNotification,
) (domain.NotificationResult, error) {
	if s.bulkFn != nil {
		return s.bulkFn(ctx, req)
	}
	return domain.NewNotificationResult(), nil
}

func (s *stubNotificationService) SendTestEmail(ctx context.Context, req service.TestEmail) error {
	if s.testEmailFn != nil {
		return s.testEmailFn(ctx, req)
	}
	return nil
}

func (s *stubNotificationService) History(ctx context.Context, limit int) ([]domain.NotificationRecord, error) {
	if s.historyFn != nil {
		return s.historyFn(ctx, limit)
	}
	return nil, nil
}

func newNotificationTestApp(t *testing.T, svc NotificationService) *fiber.App {
	t.Helper()

	app := newTestApp()
	if err := RegisterNotificationRoutes(app, svc); err != nil {
		t.Fatalf("RegisterNotificationRoutes() error = %v", err)
	}
	return app
}

func TestNotificationHandlerSendCustom(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		customFn: func(ctx context.Context, req service.CustomNotification) (domain.NotificationResult, error) {
			if strings.TrimSpace(req.Title) == "" {
				return domain.NotificationResult{}, fmt.Errorf("%w: title is required", domain.ErrValidation)
			}
			result := domain.NewNotificationResult()
			if req.Title == "explode" {
				result.Fail("Failed to send notifications")
				return result, errors.New("insert failed")
			}
			result.Message = fmt.Sprintf("Notification sent to %d students", len(req.StudentIDs))
			result.StudentsNotified = len(req.StudentIDs)
			result.EmailsSent = len(req.StudentIDs)
			result.Total = len(req.StudentIDs)
			return result, nil
		},
	}
	app := newNotificationTestApp(t, svc)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantInBody string
	}{
		{
			name:       "sent",
			body:       `{"studentIds":["s1","s2"],"title":"Fees","message":"Pay by Friday","type":"announcement"}`,
			wantStatus: fiber.StatusOK,
			wantInBody: `"emailsSent":2`,
		},
		{
			name:       "validation",
			body:       `{"studentIds":["s1"],"title":" ","message":"Pay by Friday"}`,
			wantStatus: fiber.StatusBadRequest,
			wantInBody: "title is required",
		},
		{
			name:       "malformed body",
			body:       `not json`,
			wantStatus: fiber.StatusBadRequest,
			wantInBody: "invalid request body",
		},
		{
			name:       "aborted send returns aggregate",
			body:       `{"studentIds":["s1"],"title":"explode","message":"x"}`,
			wantStatus: fiber.StatusInternalServerError,
			wantInBody: `"message":"Failed to send notifications"`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, body := performRequest(t, app, http.MethodPost, "/v1/notifications/custom", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body=%s", resp.StatusCode, tt.wantStatus, string(body))
			}
			if !strings.Contains(string(body), tt.wantInBody) {
				t.Fatalf("body = %s, want it to contain %s", string(body), tt.wantInBody)
			}
		})
	}
}

func TestNotificationHandlerSendBulkBuildsFilter(t *testing.T) {
	t.Parallel()

	var got service.BulkNotification
	svc := &stubNotificationService{
		bulkFn: func(ctx context.Context, req service.BulkNotification) (domain.NotificationResult, error) {
			got = req
			result := domain.NewNotificationResult()
			result.Message = "Notification sent to 3 students"
			return result, nil
		},
	}
	app := newNotificationTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodPost, "/v1/notifications/bulk",
		`{"title":"Exams","message":"Timetable is out","type":"general","filter":{"department":" Computer Science ","level":"","status":"active"}}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	if got.Type != domain.NotificationTypeGeneral {
		t.Fatalf("type = %q, want general", got.Type)
	}
	if got.Filter.Department == nil || *got.Filter.Department != "Computer Science" {
		t.Fatalf("department = %v, want Computer Science", got.Filter.Department)
	}
	if got.Filter.Level != nil {
		t.Fatalf("level = %v, want nil for blank value", *got.Filter.Level)
	}
	if got.Filter.Status == nil || *got.Filter.Status != domain.StudentActive {
		t.Fatalf("status = %v, want active", got.Filter.Status)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/notifications/bulk",
		`{"title":"Exams","message":"x","filter":{"status":"expelled"}}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown student status", resp.StatusCode)
	}
}

func TestNotificationHandlerSendTestEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantInBody string
	}{
		{name: "delivered", wantStatus: fiber.StatusOK, wantInBody: "Test email sent"},
		{
			name:       "invalid address",
			err:        fmt.Errorf("%w: invalid email address", domain.ErrValidation),
			wantStatus: fiber.StatusBadRequest,
			wantInBody: "invalid email address",
		},
		{
			name:       "provider failure",
			err:        errors.New("emailjs error: status=502"),
			wantStatus: fiber.StatusBadGateway,
			wantInBody: `"success":false`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app := newNotificationTestApp(t, &stubNotificationService{
				testEmailFn: func(ctx context.Context, req service.TestEmail) error {
					if req.Email != "ada@example.com" || req.Name != "Ada" {
						t.Errorf("request = %+v", req)
					}
					return tt.err
				},
			})

			resp, body := performRequest(t, app, http.MethodPost, "/v1/notifications/test-email",
				`{"email":"ada@example.com","name":"Ada"}`)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body=%s", resp.StatusCode, tt.wantStatus, string(body))
			}
			if !strings.Contains(string(body), tt.wantInBody) {
				t.Fatalf("body = %s, want it to contain %s", string(body), tt.wantInBody)
			}
		})
	}
}

func TestNotificationHandlerHistory(t *testing.T) {
	t.Parallel()

	studentID := "s1"
	sentAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	var gotLimit int
	svc := &stubNotificationService{
		historyFn: func(ctx context.Context, limit int) ([]domain.NotificationRecord, error) {
			gotLimit = limit
			return []domain.NotificationRecord{{
				ID:        "n1",
				StudentID: &studentID,
				Title:     "Results Published",
				Body:      "Your results are out",
				Type:      domain.NotificationTypeResult,
				Status:    domain.NotificationSent,
				CreatedAt: sentAt.Add(-time.Minute),
				SentAt:    &sentAt,
			}}, nil
		},
	}
	app := newNotificationTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/notifications", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	if gotLimit != repository.DefaultHistoryLimit {
		t.Fatalf("limit = %d, want %d", gotLimit, repository.DefaultHistoryLimit)
	}

	var parsed struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if len(parsed.Data) != 1 || parsed.Data[0]["message"] != "Your results are out" || parsed.Data[0]["status"] != "sent" {
		t.Fatalf("data = %v", parsed.Data)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/notifications?limit=5", "")
	if resp.StatusCode != fiber.StatusOK || gotLimit != 5 {
		t.Fatalf("status = %d, limit = %d, want 200 and 5", resp.StatusCode, gotLimit)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/notifications?limit=0", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for limit=0", resp.StatusCode)
	}
}
