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
	sendchampName            = "sendchamp"
	DefaultSendchampEndpoint = "https://api.sendchamp.com/api/v1/sms/send"
	defaultSendchampRoute    = "dnd"
)

type SendchampConfig struct {
	Endpoint   string
	APIKey     string
	SenderName string
	Route      string
}

type sendchampRequest struct {
	To         []string `json:"to"`
	Message    string   `json:"message"`
	SenderName string   `json:"sender_name"`
	Route      string   `json:"route"`
}

type sendchampResponse struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		BusinessUID string `json:"business_uid"`
		ID          string `json:"id"`
		Status      string `json:"status"`
	} `json:"data"`
}

var _ SMSGateway = (*SendchampGateway)(nil)

// SendchampGateway sends SMS through Sendchamp using 234XXXXXXXXXX numbers.
type SendchampGateway struct {
	client *resty.Client
	cfg    SendchampConfig
}

func NewSendchampGateway(cfg SendchampConfig, client *resty.Client) (*SendchampGateway, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = DefaultSendchampEndpoint
	}
	endpoint, err := validateEndpoint(sendchampName, cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	cfg.Endpoint = endpoint
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("sendchamp api key is required")
	}
	if strings.TrimSpace(cfg.SenderName) == "" {
		return nil, fmt.Errorf("sendchamp sender name is required")
	}
	if cfg.Route == "" {
		cfg.Route = defaultSendchampRoute
	}

	return &SendchampGateway{
		client: newRestyClient(client),
		cfg:    cfg,
	}, nil
}

func (g *SendchampGateway) Name() string { return sendchampName }

func (g *SendchampGateway) Configured() bool {
	return g != nil && g.cfg.SenderName != ""
}

func (g *SendchampGateway) SendSMS(ctx context.Context, to domain.PhoneNumber, body string) (*ProviderResponse, error) {
	if g == nil || g.client == nil {
		return nil, fmt.Errorf("sendchamp gateway is not initialized")
	}
	if to.IsZero() {
		return nil, fmt.Errorf("%w: recipient phone is required", domain.ErrValidation)
	}
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: sms body is required", domain.ErrValidation)
	}

	var result sendchampResponse
	req := g.client.R().
		SetContext(ctx).
		SetAuthToken(g.cfg.APIKey).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetBody(sendchampRequest{
			To:         []string{to.Digits()},
			Message:    body,
			SenderName: g.cfg.SenderName,
			Route:      g.cfg.Route,
		}).
		SetResult(&result)

	response, err := execute(sendchampName, req, http.MethodPost, g.cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	return toProviderResponse(response, result.Data.ID), nil
}
