package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/edunotify/edunotify/internal/domain"
	"github.com/go-resty/resty/v2"
)

const (
	emailJSName            = "emailjs"
	DefaultEmailJSEndpoint = "https://api.emailjs.com/api/v1.0/email/send"
)

type EmailJSConfig struct {
	Endpoint    string
	ServiceID   string
	TemplateID  string
	PublicKey   string
	PrivateKey  string
	Institution string
	FromName    string
	FromEmail   string
}

type emailJSRequest struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	AccessToken    string            `json:"accessToken,omitempty"`
	TemplateParams map[string]string `json:"template_params"`
}

var _ EmailSender = (*EmailJSSender)(nil)

// EmailJSSender sends templated email through an EmailJS-compatible relay.
type EmailJSSender struct {
	client *resty.Client
	cfg    EmailJSConfig
}

func NewEmailJSSender(cfg EmailJSConfig, client *resty.Client) (*EmailJSSender, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = DefaultEmailJSEndpoint
	}
	endpoint, err := validateEndpoint(emailJSName, cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	cfg.Endpoint = endpoint

	if strings.TrimSpace(cfg.ServiceID) == "" || strings.TrimSpace(cfg.TemplateID) == "" || strings.TrimSpace(cfg.PublicKey) == "" {
		return nil, fmt.Errorf("emailjs service id, template id and public key are required")
	}

	return &EmailJSSender{
		client: newRestyClient(client),
		cfg:    cfg,
	}, nil
}

func (s *EmailJSSender) SendEmail(ctx context.Context, msg EmailMessage) (*ProviderResponse, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("emailjs sender is not initialized")
	}
	if !domain.IsValidEmail(msg.ToEmail) {
		return nil, fmt.Errorf("%w: invalid recipient email %q", domain.ErrValidation, msg.ToEmail)
	}

	body := emailJSRequest{
		ServiceID:   s.cfg.ServiceID,
		TemplateID:  s.cfg.TemplateID,
		UserID:      s.cfg.PublicKey,
		AccessToken: s.cfg.PrivateKey,
		TemplateParams: map[string]string{
			"to_name":     msg.ToName,
			"to_email":    msg.ToEmail,
			"student_id":  msg.StudentID,
			"subject":     msg.Subject,
			"message":     msg.Body(),
			"institution": s.cfg.Institution,
			"from_name":   s.cfg.FromName,
			"from_email":  s.cfg.FromEmail,
			"reply_to":    s.cfg.FromEmail,
		},
	}

	req := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)

	response, err := execute(emailJSName, req, http.MethodPost, s.cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	return toProviderResponse(response, ""), nil
}
