package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edunotify/edunotify/internal/domain"
	"github.com/edunotify/edunotify/internal/repository"
	"github.com/edunotify/edunotify/internal/validation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ResultEntry struct {
	CourseID  string  `json:"courseId" validate:"notblank"`
	CAScore   float64 `json:"caScore" validate:"gte=0,lte=30"`
	ExamScore float64 `json:"examScore" validate:"gte=0,lte=70"`
}

// ResultEntryBatch is one student's results for a single term.
type ResultEntryBatch struct {
	StudentID    string        `json:"studentId" validate:"notblank"`
	Semester     string        `json:"semester" validate:"notblank"`
	AcademicYear string        `json:"academicYear" validate:"notblank"`
	Entries      []ResultEntry `json:"entries" validate:"required,min=1,max=50,dive"`
}

// ResultService records graded results and keeps the student's CGPA current.
type ResultService struct {
	students repository.StudentRepository
	courses  repository.CourseRepository
	results  repository.ResultRepository
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

func NewResultService(
	students repository.StudentRepository,
	courses repository.CourseRepository,
	results repository.ResultRepository,
	logger *zap.Logger,
) (*ResultService, error) {
	if students == nil || courses == nil || results == nil {
		return nil, fmt.Errorf("student, course and result repositories are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ResultService{
		students: students,
		courses:  courses,
		results:  results,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

// AddResults validates, grades and stores a batch as pending, then recomputes the CGPA.
func (s *ResultService) AddResults(ctx context.Context, batch ResultEntryBatch) ([]domain.Result, error) {
	if err := validation.Struct(batch); err != nil {
		return nil, err
	}

	studentID := strings.TrimSpace(batch.StudentID)
	semester := strings.TrimSpace(batch.Semester)
	academicYear := strings.TrimSpace(batch.AcademicYear)

	courseIDs := make([]string, 0, len(batch.Entries))
	seen := make(map[string]struct{}, len(batch.Entries))
	graded := make([]domain.GradedScore, 0, len(batch.Entries))
	for i, entry := range batch.Entries {
		courseID := strings.TrimSpace(entry.CourseID)
		if _, dup := seen[courseID]; dup {
			return nil, fmt.Errorf("%w: course %s appears more than once", domain.ErrValidation, courseID)
		}
		seen[courseID] = struct{}{}

		score, err := domain.ComputeGrade(entry.CAScore, entry.ExamScore)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		courseIDs = append(courseIDs, courseID)
		graded = append(graded, score)
	}

	if _, err := s.students.GetByID(ctx, studentID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: student %s", domain.ErrNotFound, studentID)
		}
		return nil, fmt.Errorf("failed to fetch student: %w", err)
	}

	courses, err := s.courses.GetByIDs(ctx, courseIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch courses: %w", err)
	}
	known := make(map[string]struct{}, len(courses))
	for _, c := range courses {
		known[c.ID] = struct{}{}
	}
	for _, id := range courseIDs {
		if _, ok := known[id]; !ok {
			return nil, fmt.Errorf("%w: course %s", domain.ErrNotFound, id)
		}
	}

	existing, err := s.results.ExistingCourseIDs(ctx, studentID, semester, academicYear, courseIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing results: %w", err)
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: results already exist for courses %s in %s %s",
			domain.ErrConflict, strings.Join(existing, ", "), academicYear, semester)
	}

	now := s.now().UTC()
	results := make([]*domain.Result, 0, len(batch.Entries))
	for i, entry := range batch.Entries {
		results = append(results, &domain.Result{
			ID:           s.newID(),
			StudentID:    studentID,
			CourseID:     courseIDs[i],
			CAScore:      entry.CAScore,
			ExamScore:    entry.ExamScore,
			TotalScore:   graded[i].Total,
			Grade:        graded[i].Letter,
			GradePoint:   graded[i].Points,
			Semester:     semester,
			AcademicYear: academicYear,
			Status:       domain.ResultPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	if err := s.results.CreateBatch(ctx, results); err != nil {
		return nil, fmt.Errorf("failed to store results: %w", err)
	}

	if err := s.RecomputeCGPA(ctx, studentID); err != nil {
		s.logger.Error("failed to recompute cgpa",
			zap.String("studentId", studentID),
			zap.Error(err),
		)
	}

	out := make([]domain.Result, 0, len(results))
	for _, r := range results {
		out = append(out, *r)
	}
	return out, nil
}

// RecomputeCGPA recalculates the student's CGPA from every stored result.
func (s *ResultService) RecomputeCGPA(ctx context.Context, studentID string) error {
	details, err := s.results.ListDetails(ctx, repository.ResultQuery{StudentIDs: []string{studentID}})
	if err != nil {
		return fmt.Errorf("failed to fetch results: %w", err)
	}

	grades := make([]domain.WeightedGrade, 0, len(details))
	for _, d := range details {
		grades = append(grades, domain.WeightedGrade{
			Points:      d.Result.GradePoint,
			CreditUnits: d.Course.CreditUnits,
		})
	}
	cgpa, ok := domain.ComputeCGPA(grades)
	if !ok {
		return nil
	}
	return s.students.UpdateCGPA(ctx, studentID, cgpa)
}
