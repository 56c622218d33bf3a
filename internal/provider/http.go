package provider

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultHTTPTimeout = 10 * time.Second

func newRestyClient(client *resty.Client) *resty.Client {
	if client == nil {
		client = resty.New()
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultHTTPTimeout)
	}
	// Retries are owned by the caller's retry policy.
	client.SetRetryCount(0)
	return client
}

func validateEndpoint(name, endpoint string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if trimmed == "" {
		return "", fmt.Errorf("%s endpoint is required", name)
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return "", fmt.Errorf("invalid %s endpoint: %w", name, err)
	}
	return trimmed, nil
}

// execute runs req and converts transport failures and non-2xx statuses into ProviderError.
func execute(name string, req *resty.Request, method, endpoint string) (*resty.Response, error) {
	response, err := req.Execute(method, endpoint)
	if err != nil {
		return nil, transportError(name, err)
	}
	if response == nil {
		return nil, &ProviderError{
			Provider:  name,
			Message:   "empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return response, nil
	}

	return nil, statusError(name, statusCode, response.String())
}

func providerMessageID(response *resty.Response) string {
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Request-ID", "X-Message-Id", "X-Correlation-ID"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}

func toProviderResponse(response *resty.Response, messageID string) *ProviderResponse {
	if messageID == "" {
		messageID = providerMessageID(response)
	}
	return &ProviderResponse{
		StatusCode: response.StatusCode(),
		Body:       strings.TrimSpace(response.String()),
		MessageID:  messageID,
	}
}
