package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/edunotify/edunotify/internal/domain"
)

// StudentModel is the persistence model for the students table.
type StudentModel struct {
	ID            string   `gorm:"type:uuid;primaryKey"`
	StudentNumber string   `gorm:"column:student_id;type:varchar(50);not null;uniqueIndex"`
	FirstName     string   `gorm:"type:varchar(100);not null"`
	LastName      string   `gorm:"type:varchar(100);not null"`
	Email         *string  `gorm:"type:varchar(255)"`
	Phone         string   `gorm:"type:varchar(30)"`
	Department    string   `gorm:"type:varchar(100);not null;index"`
	Level         string   `gorm:"type:varchar(20);not null"`
	Status        string   `gorm:"type:varchar(20);not null;default:active"`
	CGPA          *float64 `gorm:"column:cgpa;type:numeric(3,2)"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (StudentModel) TableName() string {
	return "students"
}

// CourseModel is the persistence model for the courses table.
type CourseModel struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	Code        string `gorm:"column:course_code;type:varchar(20);not null;uniqueIndex"`
	Title       string `gorm:"column:course_title;type:varchar(255);not null"`
	CreditUnits int    `gorm:"not null"`
	Department  string `gorm:"type:varchar(100)"`
	Level       string `gorm:"type:varchar(20)"`
	Semester    string `gorm:"type:varchar(20)"`
	IsActive    bool   `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (CourseModel) TableName() string {
	return "courses"
}

// ResultModel is the persistence model for the results table.
type ResultModel struct {
	ID           string     `gorm:"type:uuid;primaryKey"`
	StudentID    string     `gorm:"type:uuid;not null"`
	CourseID     string     `gorm:"type:uuid;not null"`
	CAScore      float64    `gorm:"column:ca_score;type:numeric(5,2);not null"`
	ExamScore    float64    `gorm:"column:exam_score;type:numeric(5,2);not null"`
	TotalScore   float64    `gorm:"column:total_score;type:numeric(5,2);not null"`
	Grade        string     `gorm:"type:varchar(2);not null"`
	GradePoint   float64    `gorm:"type:numeric(3,2);not null"`
	Semester     string     `gorm:"type:varchar(20);not null"`
	AcademicYear string     `gorm:"type:varchar(20);not null"`
	Status       string     `gorm:"type:varchar(20);not null"`
	PublishedAt  *time.Time `gorm:"type:timestamptz"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Student      StudentModel `gorm:"foreignKey:StudentID"`
	Course       CourseModel  `gorm:"foreignKey:CourseID"`
}

func (ResultModel) TableName() string {
	return "results"
}

// NotificationModel is the persistence model for the notifications table.
type NotificationModel struct {
	ID        string     `gorm:"type:uuid;primaryKey"`
	StudentID *string    `gorm:"type:uuid;index"`
	Title     string     `gorm:"type:varchar(200);not null"`
	Message   string     `gorm:"type:text;not null"`
	Type      string     `gorm:"type:varchar(20);not null"`
	Status    string     `gorm:"type:varchar(20);not null"`
	SentAt    *time.Time `gorm:"type:timestamptz"`
	CreatedAt time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

func studentModelToDomain(m *StudentModel) (domain.Student, error) {
	if m == nil {
		return domain.Student{}, fmt.Errorf("%w: nil student row", domain.ErrValidation)
	}
	if strings.TrimSpace(m.ID) == "" {
		return domain.Student{}, fmt.Errorf("%w: student row without id", domain.ErrValidation)
	}
	status, err := domain.ParseStudentStatusFromString(m.Status)
	if err != nil {
		return domain.Student{}, err
	}

	return domain.Student{
		ID:            m.ID,
		StudentNumber: m.StudentNumber,
		FirstName:     m.FirstName,
		LastName:      m.LastName,
		Email:         m.Email,
		Phone:         m.Phone,
		Department:    m.Department,
		Level:         m.Level,
		Status:        status,
		CGPA:          m.CGPA,
	}, nil
}

func studentModelFromDomain(s *domain.Student) *StudentModel {
	if s == nil {
		return nil
	}
	return &StudentModel{
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

func courseModelToDomain(m *CourseModel) (domain.Course, error) {
	if m == nil {
		return domain.Course{}, fmt.Errorf("%w: nil course row", domain.ErrValidation)
	}
	if strings.TrimSpace(m.ID) == "" {
		return domain.Course{}, fmt.Errorf("%w: course row without id", domain.ErrValidation)
	}
	if m.CreditUnits <= 0 {
		return domain.Course{}, fmt.Errorf("%w: course %s has non-positive credit units", domain.ErrValidation, m.Code)
	}

	return domain.Course{
		ID:          m.ID,
		Code:        m.Code,
		Title:       m.Title,
		CreditUnits: m.CreditUnits,
		Department:  m.Department,
		Level:       m.Level,
		Semester:    m.Semester,
		IsActive:    m.IsActive,
	}, nil
}

func resultModelToDomain(m *ResultModel) (domain.Result, error) {
	if m == nil {
		return domain.Result{}, fmt.Errorf("%w: nil result row", domain.ErrValidation)
	}
	status, err := domain.ParseResultStatusFromString(m.Status)
	if err != nil {
		return domain.Result{}, err
	}

	result := domain.Result{
		ID:           m.ID,
		StudentID:    m.StudentID,
		CourseID:     m.CourseID,
		CAScore:      m.CAScore,
		ExamScore:    m.ExamScore,
		TotalScore:   m.TotalScore,
		Grade:        m.Grade,
		GradePoint:   m.GradePoint,
		Semester:     m.Semester,
		AcademicYear: m.AcademicYear,
		Status:       status,
		PublishedAt:  m.PublishedAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if err := result.Validate(); err != nil {
		return domain.Result{}, err
	}
	return result, nil
}

func resultModelFromDomain(r *domain.Result) *ResultModel {
	if r == nil {
		return nil
	}
	return &ResultModel{
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
		PublishedAt:  r.PublishedAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// resultDetailFromModel parses a joined result row. The joined student and course must be valid too.
func resultDetailFromModel(m *ResultModel) (domain.ResultDetail, error) {
	result, err := resultModelToDomain(m)
	if err != nil {
		return domain.ResultDetail{}, err
	}
	student, err := studentModelToDomain(&m.Student)
	if err != nil {
		return domain.ResultDetail{}, fmt.Errorf("result %s: %w", m.ID, err)
	}
	course, err := courseModelToDomain(&m.Course)
	if err != nil {
		return domain.ResultDetail{}, fmt.Errorf("result %s: %w", m.ID, err)
	}
	return domain.ResultDetail{Result: result, Student: student, Course: course}, nil
}

func notificationModelFromDomain(n *domain.NotificationRecord) *NotificationModel {
	if n == nil {
		return nil
	}
	return &NotificationModel{
		ID:        n.ID,
		StudentID: n.StudentID,
		Title:     n.Title,
		Message:   n.Body,
		Type:      n.Type.String(),
		Status:    n.Status.String(),
		SentAt:    n.SentAt,
		CreatedAt: n.CreatedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) (domain.NotificationRecord, error) {
	if m == nil {
		return domain.NotificationRecord{}, fmt.Errorf("%w: nil notification row", domain.ErrValidation)
	}
	nt, err := domain.ParseNotificationTypeFromString(m.Type)
	if err != nil {
		return domain.NotificationRecord{}, err
	}
	status, err := domain.ParseNotificationStatusFromString(m.Status)
	if err != nil {
		return domain.NotificationRecord{}, err
	}
	return domain.NotificationRecord{
		ID:        m.ID,
		StudentID: m.StudentID,
		Title:     m.Title,
		Body:      m.Message,
		Type:      nt,
		Status:    status,
		CreatedAt: m.CreatedAt,
		SentAt:    m.SentAt,
	}, nil
}
