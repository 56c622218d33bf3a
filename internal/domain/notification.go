package domain

import (
	"fmt"
	"strings"
	"time"
)

// NotificationType classifies the event a record was created for.
type NotificationType string

const (
	NotificationTypeGeneral      NotificationType = "general"
	NotificationTypeResult       NotificationType = "result"
	NotificationTypeEnrollment   NotificationType = "enrollment"
	NotificationTypeAnnouncement NotificationType = "announcement"
	NotificationTypeCustom       NotificationType = "custom"
	NotificationTypeTest         NotificationType = "test"
)

func (t NotificationType) String() string { return string(t) }

func (t NotificationType) IsValid() bool {
	switch t {
	case NotificationTypeGeneral, NotificationTypeResult, NotificationTypeEnrollment,
		NotificationTypeAnnouncement, NotificationTypeCustom, NotificationTypeTest:
		return true
	}
	return false
}

func ParseNotificationTypeFromString(s string) (NotificationType, error) {
	nt := NotificationType(strings.ToLower(strings.TrimSpace(s)))
	if !nt.IsValid() {
		return "", fmt.Errorf("%w: invalid notification type %q", ErrValidation, s)
	}
	return nt, nil
}

// NotificationStatus represents the lifecycle of a notification record.
// Pending moves to exactly one of sent or failed.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

func (s NotificationStatus) String() string { return string(s) }

func (s NotificationStatus) IsValid() bool {
	switch s {
	case NotificationPending, NotificationSent, NotificationFailed:
		return true
	}
	return false
}

func (s NotificationStatus) IsTerminal() bool {
	return s == NotificationSent || s == NotificationFailed
}

func ParseNotificationStatusFromString(s string) (NotificationStatus, error) {
	st := NotificationStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid notification status %q", ErrValidation, s)
	}
	return st, nil
}

// Content limits (in characters).
const (
	MaxTitleLength = 200
	MaxBodyLength  = 10000
)

// NotificationRecord is the audit row written per (student, notification event).
type NotificationRecord struct {
	ID        string
	StudentID *string
	Title     string
	Body      string
	Type      NotificationType
	Status    NotificationStatus
	CreatedAt time.Time
	SentAt    *time.Time
}

func (n *NotificationRecord) Validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if len(n.Title) > MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrValidation, MaxTitleLength)
	}
	if strings.TrimSpace(n.Body) == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	if len(n.Body) > MaxBodyLength {
		return fmt.Errorf("%w: message exceeds %d characters", ErrValidation, MaxBodyLength)
	}
	if !n.Type.IsValid() {
		return fmt.Errorf("%w: invalid notification type %q", ErrValidation, n.Type)
	}
	if !n.Status.IsValid() {
		return fmt.Errorf("%w: invalid notification status %q", ErrValidation, n.Status)
	}
	return nil
}

// NotificationResult is the aggregate outcome of one publish or custom send.
type NotificationResult struct {
	Success          bool     `json:"success"`
	Message          string   `json:"message,omitempty"`
	ResultsPublished int      `json:"resultsPublished"`
	StudentsNotified int      `json:"studentsNotified"`
	EmailsSent       int      `json:"emailsSent"`
	SMSSent          int      `json:"smsSent"`
	Total            int      `json:"total"`
	SuccessDetails   []string `json:"successDetails"`
	FailureDetails   []string `json:"failureDetails"`
	Errors           []string `json:"errors"`
}

// NewNotificationResult returns a successful result with non-nil slices.
func NewNotificationResult() NotificationResult {
	return NotificationResult{
		Success:        true,
		SuccessDetails: []string{},
		FailureDetails: []string{},
		Errors:         []string{},
	}
}

// Fail marks the result unsuccessful with the given message.
func (r *NotificationResult) Fail(msg string) {
	r.Success = false
	r.Message = msg
}
