package provider

import (
	"context"

	"github.com/edunotify/edunotify/internal/domain"
)

// EmailMessage is a single transactional email to one student.
type EmailMessage struct {
	ToName    string
	ToEmail   string
	StudentID string
	Subject   string
	HTML      string
	Text      string
}

// Body returns the HTML part when present, otherwise the text part.
func (m EmailMessage) Body() string {
	if m.HTML != "" {
		return m.HTML
	}
	return m.Text
}

// EmailSender is the outbound email relay port.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) (*ProviderResponse, error)
}

// SMSGateway sends a single SMS through an upstream gateway.
type SMSGateway interface {
	Name() string
	SendSMS(ctx context.Context, to domain.PhoneNumber, body string) (*ProviderResponse, error)
}

// SMSBatchSender talks to the SMS side-service, one call per batch of students.
type SMSBatchSender interface {
	Health(ctx context.Context) error
	NotifyResults(ctx context.Context, req SMSBatchRequest) (*SMSBatchResponse, error)
	NotifyCustom(ctx context.Context, req SMSBatchRequest) (*SMSBatchResponse, error)
}

// ProviderResponse stores provider call metadata for audit and logging.
type ProviderResponse struct {
	StatusCode int
	Body       string
	MessageID  string
}
