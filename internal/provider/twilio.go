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
	twilioName           = "twilio"
	DefaultTwilioBaseURL = "https://api.twilio.com"
)

type TwilioConfig struct {
	BaseURL        string
	AccountSID     string
	AuthToken      string
	FromNumber     string
	StatusCallback string
}

type twilioMessageResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

var _ SMSGateway = (*TwilioGateway)(nil)

// TwilioGateway sends SMS through the Twilio Messages API using E.164 numbers.
type TwilioGateway struct {
	client   *resty.Client
	endpoint string
	cfg      TwilioConfig
}

func NewTwilioGateway(cfg TwilioConfig, client *resty.Client) (*TwilioGateway, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultTwilioBaseURL
	}
	baseURL, err := validateEndpoint(twilioName, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.AccountSID) == "" || strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, fmt.Errorf("twilio account sid and auth token are required")
	}
	if strings.TrimSpace(cfg.FromNumber) == "" {
		return nil, fmt.Errorf("twilio from number is required")
	}

	return &TwilioGateway{
		client:   newRestyClient(client),
		endpoint: fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", baseURL, cfg.AccountSID),
		cfg:      cfg,
	}, nil
}

func (g *TwilioGateway) Name() string { return twilioName }

func (g *TwilioGateway) SendSMS(ctx context.Context, to domain.PhoneNumber, body string) (*ProviderResponse, error) {
	if g == nil || g.client == nil {
		return nil, fmt.Errorf("twilio gateway is not initialized")
	}
	if to.IsZero() {
		return nil, fmt.Errorf("%w: recipient phone is required", domain.ErrValidation)
	}
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: sms body is required", domain.ErrValidation)
	}

	form := map[string]string{
		"To":   to.E164(),
		"From": g.cfg.FromNumber,
		"Body": body,
	}
	if g.cfg.StatusCallback != "" {
		form["StatusCallback"] = g.cfg.StatusCallback
	}

	var result twilioMessageResponse
	req := g.client.R().
		SetContext(ctx).
		SetBasicAuth(g.cfg.AccountSID, g.cfg.AuthToken).
		SetFormData(form).
		SetResult(&result)

	response, err := execute(twilioName, req, http.MethodPost, g.endpoint)
	if err != nil {
		return nil, err
	}
	return toProviderResponse(response, result.SID), nil
}

// Configured reports whether a sender number is set.
func (g *TwilioGateway) Configured() bool {
	return g != nil && g.cfg.FromNumber != ""
}
