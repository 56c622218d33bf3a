package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
)

const smsServiceName = "sms-service"

// SMSBatchRequest is the body of the SMS side-service notify endpoints.
type SMSBatchRequest struct {
	StudentIDs   []string `json:"studentIds,omitempty"`
	Title        string   `json:"title"`
	Message      string   `json:"message"`
	TemplateType string   `json:"templateType,omitempty"`
	TestMode     bool     `json:"testMode,omitempty"`
}

// SMSBatchResponse is the aggregate outcome reported by the SMS side-service.
type SMSBatchResponse struct {
	Success          bool     `json:"success"`
	Message          string   `json:"message,omitempty"`
	ResultsPublished int      `json:"resultsPublished"`
	StudentsNotified int      `json:"studentsNotified"`
	EmailsSent       int      `json:"emailsSent"`
	SMSSent          int      `json:"smsSent"`
	Total            int      `json:"total"`
	Errors           []string `json:"errors"`
	SuccessDetails   []string `json:"successDetails"`
	FailureDetails   []string `json:"failureDetails"`
	TemplateUsed     string   `json:"templateUsed,omitempty"`
	TestMode         bool     `json:"testMode"`
}

var _ SMSBatchSender = (*SMSServiceClient)(nil)

// SMSServiceClient calls the SMS side-service over HTTP.
type SMSServiceClient struct {
	client  *resty.Client
	baseURL string
}

func NewSMSServiceClient(baseURL string, client *resty.Client) (*SMSServiceClient, error) {
	trimmed, err := validateEndpoint(smsServiceName, baseURL)
	if err != nil {
		return nil, err
	}
	return &SMSServiceClient{
		client:  newRestyClient(client),
		baseURL: trimmed,
	}, nil
}

func (c *SMSServiceClient) Health(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("sms service client is not initialized")
	}
	req := c.client.R().SetContext(ctx)
	_, err := execute(smsServiceName, req, http.MethodGet, c.baseURL+"/api/health")
	return err
}

func (c *SMSServiceClient) NotifyResults(ctx context.Context, body SMSBatchRequest) (*SMSBatchResponse, error) {
	return c.post(ctx, "/api/notify-results", body)
}

func (c *SMSServiceClient) NotifyCustom(ctx context.Context, body SMSBatchRequest) (*SMSBatchResponse, error) {
	return c.post(ctx, "/api/notify-custom", body)
}

func (c *SMSServiceClient) post(ctx context.Context, path string, body SMSBatchRequest) (*SMSBatchResponse, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("sms service client is not initialized")
	}

	var result SMSBatchResponse
	req := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&result)

	if _, err := execute(smsServiceName, req, http.MethodPost, c.baseURL+path); err != nil {
		return nil, err
	}
	return &result, nil
}
