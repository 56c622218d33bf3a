package handler

import (
	"context"
	"fmt"

	"github.com/edunotify/edunotify/internal/domain"
	"github.com/edunotify/edunotify/internal/service"
	"github.com/gofiber/fiber/v2"
)

type StudentService interface {
	Register(ctx context.Context, req service.NewStudent) (*domain.Student, error)
	List(ctx context.Context, filter domain.StudentFilter) ([]domain.Student, error)
}

type StudentHandler struct {
	service StudentService
}

func RegisterStudentRoutes(router fiber.Router, service StudentService) error {
	if service == nil {
		return fmt.Errorf("student service is required")
	}
	h := &StudentHandler{service: service}

	v1 := router.Group("/v1")
	v1.Post("/students", h.Register)
	v1.Get("/students", h.List)
	return nil
}

type studentResponse struct {
	ID            string   `json:"id"`
	StudentNumber string   `json:"studentId"`
	FirstName     string   `json:"firstName"`
	LastName      string   `json:"lastName"`
	Email         *string  `json:"email,omitempty"`
	Phone         string   `json:"phone"`
	Department    string   `json:"department"`
	Level         string   `json:"level"`
	Status        string   `json:"status"`
	CGPA          *float64 `json:"cgpa,omitempty"`
}

func toStudentResponse(s domain.Student) studentResponse {
	return studentResponse{
		ID:            s.ID,
		StudentNumber: s.StudentNumber,
		FirstName:     s.FirstName,
		LastName:      s.LastName,
		Email:         s.Email,
		Phone:         s.Phone,
		Department:    s.Department,
		Level:         s.Level,
		Status:        s.Status.String(),
		CGPA:          s.CGPA,
	}
}

func (h *StudentHandler) Register(c *fiber.Ctx) error {
	var req service.NewStudent
	if err := parseBody(c, &req); err != nil {
		return err
	}

	student, err := h.service.Register(c.UserContext(), req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(toStudentResponse(*student))
}

func (h *StudentHandler) List(c *fiber.Ctx) error {
	filter, err := toStudentFilter(studentFilterRequest{
		Department: queryPtr(c, "department"),
		Level:      queryPtr(c, "level"),
		Status:     queryPtr(c, "status"),
	})
	if err != nil {
		return toHTTPError(err)
	}

	students, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]studentResponse, 0, len(students))
	for _, s := range students {
		data = append(data, toStudentResponse(s))
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": data})
}

func queryPtr(c *fiber.Ctx, key string) *string {
	v := c.Query(key)
	return &v
}
