package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/edunotify/edunotify/internal/domain"
	"github.com/edunotify/edunotify/internal/repository"
	"github.com/edunotify/edunotify/internal/validation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type NewStudent struct {
	StudentNumber string `json:"studentId" validate:"notblank,max=50"`
	FirstName     string `json:"firstName" validate:"notblank,max=100"`
	LastName      string `json:"lastName" validate:"notblank,max=100"`
	Email         string `json:"email" validate:"omitempty,email"`
	Phone         string `json:"phone" validate:"notblank"`
	Department    string `json:"department" validate:"notblank"`
	Level         string `json:"level" validate:"notblank"`
}

// StudentService registers and lists students.
type StudentService struct {
	students repository.StudentRepository
	logger   *zap.Logger
	newID    func() string
}

func NewStudentService(students repository.StudentRepository, logger *zap.Logger) (*StudentService, error) {
	if students == nil {
		return nil, fmt.Errorf("student repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{students: students, logger: logger, newID: uuid.NewString}, nil
}

// Register stores an active student. The phone must normalize to a mobile number and is
// stored in E.164 form.
func (s *StudentService) Register(ctx context.Context, req NewStudent) (*domain.Student, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	phone, err := domain.NormalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}

	student := &domain.Student{
		ID:            s.newID(),
		StudentNumber: strings.TrimSpace(req.StudentNumber),
		FirstName:     strings.TrimSpace(req.FirstName),
		LastName:      strings.TrimSpace(req.LastName),
		Phone:         phone.E164(),
		Department:    strings.TrimSpace(req.Department),
		Level:         strings.TrimSpace(req.Level),
		Status:        domain.StudentActive,
	}
	if email := strings.TrimSpace(req.Email); email != "" {
		student.Email = &email
	}

	if err := s.students.Create(ctx, student); err != nil {
		return nil, err
	}
	s.logger.Info("student registered",
		zap.String("studentId", student.ID),
		zap.String("studentNumber", student.StudentNumber),
	)
	return student, nil
}

func (s *StudentService) List(ctx context.Context, filter domain.StudentFilter) ([]domain.Student, error) {
	students, err := s.students.List(ctx)
	if err != nil {
		return nil, err
	}
	return domain.FilterStudents(students, filter), nil
}
