package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/edunotify/edunotify/internal/domain"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendGridName         = "sendgrid"
	DefaultSendGridHost  = "https://api.sendgrid.com"
	sendGridMailEndpoint = "/v3/mail/send"
)

type SendGridConfig struct {
	Host      string
	APIKey    string
	FromName  string
	FromEmail string
}

var _ EmailSender = (*SendGridSender)(nil)

// SendGridSender sends email through the SendGrid v3 mail API.
type SendGridSender struct {
	host   string
	apiKey string
	from   *sgmail.Email
}

func NewSendGridSender(cfg SendGridConfig) (*SendGridSender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		cfg.Host = DefaultSendGridHost
	}
	host, err := validateEndpoint(sendGridName, cfg.Host)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	if !domain.IsValidEmail(cfg.FromEmail) {
		return nil, fmt.Errorf("sendgrid from email is invalid")
	}

	return &SendGridSender{
		host:   host,
		apiKey: cfg.APIKey,
		from:   sgmail.NewEmail(cfg.FromName, cfg.FromEmail),
	}, nil
}

func (s *SendGridSender) prepare(msg EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.ToEmail))
	if msg.StudentID != "" {
		p.SetCustomArg("student_id", msg.StudentID)
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)

	text := msg.Text
	if text == "" {
		text = msg.HTML
	}
	m.AddContent(sgmail.NewContent("text/plain", text))
	if msg.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	return m
}

func (s *SendGridSender) SendEmail(ctx context.Context, msg EmailMessage) (*ProviderResponse, error) {
	if s == nil {
		return nil, fmt.Errorf("sendgrid sender is not initialized")
	}
	if !domain.IsValidEmail(msg.ToEmail) {
		return nil, fmt.Errorf("%w: invalid recipient email %q", domain.ErrValidation, msg.ToEmail)
	}

	req := sendgrid.GetRequest(s.apiKey, sendGridMailEndpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return nil, transportError(sendGridName, err)
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return nil, statusError(sendGridName, res.StatusCode, res.Body)
	}

	var messageID string
	if ids := res.Headers["X-Message-Id"]; len(ids) > 0 {
		messageID = ids[0]
	}
	return &ProviderResponse{
		StatusCode: res.StatusCode,
		Body:       strings.TrimSpace(res.Body),
		MessageID:  messageID,
	}, nil
}
