package render

import (
	"fmt"
	"sort"
	"time"

	"github.com/edunotify/edunotify/internal/domain"
)

// CourseLine is one row of the results table.
type CourseLine struct {
	Code        string
	Title       string
	CAScore     float64
	ExamScore   float64
	TotalScore  float64
	Grade       string
	GradePoint  float64
	CreditUnits int
}

// Period groups course lines under "<academic year> - <semester>".
type Period struct {
	Name    string
	Courses []CourseLine
}

// ResultEmailData is the typed context of the result email templates.
type ResultEmailData struct {
	Subject       string
	StudentName   string
	StudentNumber string
	Email         string
	CGPA          string
	Semester      string
	AcademicYear  string
	Periods       []Period
	Institution   string
	FromName      string
	SentAt        string
}

// Email is a rendered email ready for a provider.
type Email struct {
	Subject string
	HTML    string
	Text    string
}

// ResultEmailData builds the template context for one student's published results.
// Periods keep first-seen order of details; the headline semester is taken from the first detail.
func (r *Renderer) ResultEmailData(student domain.Student, details []domain.ResultDetail) ResultEmailData {
	email, _ := student.NotifiableEmail()
	data := ResultEmailData{
		Subject:       fmt.Sprintf("%s - %s", ResultEmailSubject, r.institution),
		StudentName:   student.FullName(),
		StudentNumber: student.StudentNumber,
		Email:         email,
		CGPA:          formatCGPA(student.CGPA),
		Institution:   r.institution,
		FromName:      r.fromName,
		SentAt:        r.now().UTC().Format(time.RFC1123),
		Periods:       []Period{},
	}

	index := make(map[string]int)
	for _, d := range details {
		key := d.PeriodKey()
		i, ok := index[key]
		if !ok {
			i = len(data.Periods)
			index[key] = i
			data.Periods = append(data.Periods, Period{Name: key})
		}
		data.Periods[i].Courses = append(data.Periods[i].Courses, CourseLine{
			Code:        d.Course.Code,
			Title:       d.Course.Title,
			CAScore:     d.Result.CAScore,
			ExamScore:   d.Result.ExamScore,
			TotalScore:  d.Result.TotalScore,
			Grade:       d.Result.Grade,
			GradePoint:  d.Result.GradePoint,
			CreditUnits: d.Course.CreditUnits,
		})
	}
	for i := range data.Periods {
		courses := data.Periods[i].Courses
		sort.SliceStable(courses, func(a, b int) bool { return courses[a].Code < courses[b].Code })
	}

	if len(details) > 0 {
		data.Semester = details[0].Result.Semester
		data.AcademicYear = details[0].Result.AcademicYear
	}
	return data
}

// ResultEmail renders the result-published email for one student.
func (r *Renderer) ResultEmail(student domain.Student, details []domain.ResultDetail) (Email, error) {
	data := r.ResultEmailData(student, details)

	html, err := executeHTML("result_email.gohtml", data)
	if err != nil {
		return Email{}, err
	}
	text, err := executeText("result_email.txt", data)
	if err != nil {
		return Email{}, err
	}
	return Email{Subject: data.Subject, HTML: html, Text: text}, nil
}

// PlainEmail wraps a free-form custom message.
func (r *Renderer) PlainEmail(subject, message string) Email {
	return Email{Subject: subject, Text: message}
}
