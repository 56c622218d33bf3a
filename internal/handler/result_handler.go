package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/edunotify/edunotify/internal/domain"
	"github.com/edunotify/edunotify/internal/service"
	"github.com/edunotify/edunotify/internal/transport"
	"github.com/gofiber/fiber/v2"
)

type ResultService interface {
	AddResults(ctx context.Context, batch service.ResultEntryBatch) ([]domain.Result, error)
}

type ResultPublisher interface {
	PublishAndNotify(ctx context.Context) (domain.NotificationResult, error)
}

type ResultHandler struct {
	results   ResultService
	publisher ResultPublisher
}

func NewResultHandler(results ResultService, publisher ResultPublisher) (*ResultHandler, error) {
	if results == nil || publisher == nil {
		return nil, fmt.Errorf("result service and publisher are required")
	}
	return &ResultHandler{results: results, publisher: publisher}, nil
}

func RegisterResultRoutes(router fiber.Router, results ResultService, publisher ResultPublisher) error {
	h, err := NewResultHandler(results, publisher)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/results", h.AddResults)
	v1.Post("/results/publish", h.Publish)
	return nil
}

type resultResponse struct {
	ID           string    `json:"id"`
	StudentID    string    `json:"studentId"`
	CourseID     string    `json:"courseId"`
	CAScore      float64   `json:"caScore"`
	ExamScore    float64   `json:"examScore"`
	TotalScore   float64   `json:"totalScore"`
	Grade        string    `json:"grade"`
	GradePoint   float64   `json:"gradePoint"`
	Semester     string    `json:"semester"`
	AcademicYear string    `json:"academicYear"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (h *ResultHandler) AddResults(c *fiber.Ctx) error {
	var req service.ResultEntryBatch
	if err := parseBody(c, &req); err != nil {
		return err
	}

	results, err := h.results.AddResults(c.UserContext(), req)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]resultResponse, 0, len(results))
	for _, r := range results {
		data = append(data, resultResponse{
			ID:           r.ID,
			StudentID:    r.StudentID,
			CourseID:     r.CourseID,
			CAScore:      r.CAScore,
			ExamScore:    r.ExamScore,
			TotalScore:   r.TotalScore,
			Grade:        r.Grade,
			GradePoint:   r.GradePoint,
			Semester:     r.Semester,
			AcademicYear: r.AcademicYear,
			Status:       r.Status.String(),
			CreatedAt:    r.CreatedAt,
		})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": data})
}

// Publish always answers with the cycle result; an aborted cycle maps its error to the status code.
func (h *ResultHandler) Publish(c *fiber.Ctx) error {
	result, err := h.publisher.PublishAndNotify(c.UserContext())
	if err != nil {
		return c.Status(transport.StatusFromError(err)).JSON(result)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}
