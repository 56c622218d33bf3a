package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// StudentStatus is the enrollment state of a student.
type StudentStatus string

const (
	StudentActive    StudentStatus = "active"
	StudentInactive  StudentStatus = "inactive"
	StudentGraduated StudentStatus = "graduated"
	StudentSuspended StudentStatus = "suspended"
)

func (s StudentStatus) String() string { return string(s) }

func (s StudentStatus) IsValid() bool {
	switch s {
	case StudentActive, StudentInactive, StudentGraduated, StudentSuspended:
		return true
	}
	return false
}

func ParseStudentStatusFromString(s string) (StudentStatus, error) {
	st := StudentStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid student status %q", ErrValidation, s)
	}
	return st, nil
}

type Student struct {
	ID            string
	StudentNumber string
	FirstName     string
	LastName      string
	Email         *string
	Phone         string
	Department    string
	Level         string
	Status        StudentStatus
	CGPA          *float64
}

func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// NotifiableEmail returns the trimmed email and whether it passes the syntax check.
func (s Student) NotifiableEmail() (string, bool) {
	if s.Email == nil {
		return "", false
	}
	email := strings.TrimSpace(*s.Email)
	return email, IsValidEmail(email)
}

// IsValidEmail performs the loose syntax check used before any email send.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}
