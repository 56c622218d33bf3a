package domain

import (
	"fmt"
	"strings"
	"time"
)

// ResultStatus tracks publication of a course result. Published is terminal.
type ResultStatus string

const (
	ResultDraft     ResultStatus = "draft"
	ResultPending   ResultStatus = "pending"
	ResultPublished ResultStatus = "published"
)

func (s ResultStatus) String() string { return string(s) }

func (s ResultStatus) IsValid() bool {
	switch s {
	case ResultDraft, ResultPending, ResultPublished:
		return true
	}
	return false
}

// IsPublishable reports whether the result may still transition to published.
func (s ResultStatus) IsPublishable() bool {
	return s == ResultDraft || s == ResultPending
}

func ParseResultStatusFromString(s string) (ResultStatus, error) {
	st := ResultStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid result status %q", ErrValidation, s)
	}
	return st, nil
}

// PublishableStatuses lists the statuses flipped by a publish cycle.
func PublishableStatuses() []ResultStatus {
	return []ResultStatus{ResultDraft, ResultPending}
}

type Result struct {
	ID           string
	StudentID    string
	CourseID     string
	CAScore      float64
	ExamScore    float64
	TotalScore   float64
	Grade        string
	GradePoint   float64
	Semester     string
	AcademicYear string
	Status       ResultStatus
	PublishedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate checks score bounds and that the stored grade matches the total.
func (r Result) Validate() error {
	if strings.TrimSpace(r.StudentID) == "" {
		return fmt.Errorf("%w: result student id is required", ErrValidation)
	}
	if strings.TrimSpace(r.CourseID) == "" {
		return fmt.Errorf("%w: result course id is required", ErrValidation)
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("%w: invalid result status %q", ErrValidation, r.Status)
	}
	if err := ValidateScores(r.CAScore, r.ExamScore); err != nil {
		return err
	}
	return nil
}

// ResultDetail is a result joined with its student and course.
type ResultDetail struct {
	Result  Result
	Student Student
	Course  Course
}

// PeriodKey groups results as "<academic year> - <semester>".
func (d ResultDetail) PeriodKey() string {
	return fmt.Sprintf("%s - %s", d.Result.AcademicYear, d.Result.Semester)
}
