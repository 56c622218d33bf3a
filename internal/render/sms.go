package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/edunotify/edunotify/internal/domain"
)

// SMSTemplate selects the SMS body layout.
type SMSTemplate string

const (
	SMSBasic      SMSTemplate = "basic"
	SMSDetailed   SMSTemplate = "detailed"
	SMSGradeAlert SMSTemplate = "grade_alert"
	SMSCustom     SMSTemplate = "custom"
)

const maxTopCourses = 3

func (t SMSTemplate) String() string { return string(t) }

func (t SMSTemplate) IsValid() bool {
	switch t {
	case SMSBasic, SMSDetailed, SMSGradeAlert, SMSCustom:
		return true
	}
	return false
}

// ParseSMSTemplateFromString defaults an empty value to basic.
func ParseSMSTemplateFromString(s string) (SMSTemplate, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	if normalized == "" {
		return SMSBasic, nil
	}
	t := SMSTemplate(normalized)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid template type %q", domain.ErrValidation, s)
	}
	return t, nil
}

type CourseGrade struct {
	Code  string
	Grade string
}

// SMSData is the typed context of the SMS templates.
type SMSData struct {
	FirstName        string
	StudentNumber    string
	CGPA             string
	ResultCount      int
	PassedCourses    int
	FailedCourses    int
	TopCourses       []CourseGrade
	MoreCourses      int
	Semester         string
	AcademicYear     string
	Message          string
	Institution      string
	InstitutionShort string
}

func isFailingGrade(grade string) bool {
	g := strings.ToUpper(strings.TrimSpace(grade))
	return g == "E" || g == "F"
}

// SMSData summarizes a student's results. E and F count as failed.
func (r *Renderer) SMSData(student domain.Student, details []domain.ResultDetail) SMSData {
	data := SMSData{
		FirstName:        student.FirstName,
		StudentNumber:    student.StudentNumber,
		CGPA:             formatCGPA(student.CGPA),
		ResultCount:      len(details),
		Semester:         "Current",
		Institution:      r.institution,
		InstitutionShort: r.institutionShort,
		TopCourses:       []CourseGrade{},
	}
	if len(details) > 0 {
		data.Semester = details[0].Result.Semester
		data.AcademicYear = details[0].Result.AcademicYear
	}

	passed := make([]domain.ResultDetail, 0, len(details))
	for _, d := range details {
		if strings.TrimSpace(d.Result.Grade) == "" {
			continue
		}
		if isFailingGrade(d.Result.Grade) {
			data.FailedCourses++
			continue
		}
		passed = append(passed, d)
	}
	data.PassedCourses = len(passed)

	sort.SliceStable(passed, func(i, j int) bool {
		return passed[i].Result.GradePoint > passed[j].Result.GradePoint
	})
	for i, d := range passed {
		if i == maxTopCourses {
			data.MoreCourses = len(passed) - maxTopCourses
			break
		}
		data.TopCourses = append(data.TopCourses, CourseGrade{Code: d.Course.Code, Grade: d.Result.Grade})
	}
	return data
}

// SMS renders the chosen template. Custom uses message verbatim inside the greeting.
func (r *Renderer) SMS(tmpl SMSTemplate, student domain.Student, details []domain.ResultDetail, message string) (string, error) {
	if !tmpl.IsValid() {
		return "", fmt.Errorf("%w: invalid template type %q", domain.ErrValidation, tmpl)
	}
	data := r.SMSData(student, details)
	data.Message = strings.TrimSpace(message)
	return executeText("sms_"+tmpl.String()+".txt", data)
}
