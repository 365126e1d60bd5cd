package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultProviderTimeout = 10 * time.Second

func newRestyClient(timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0)
	return client
}

func prepareRestyClient(client *resty.Client) (*resty.Client, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultProviderTimeout)
	}
	client.SetRetryCount(0)
	return client, nil
}

func validateEndpoint(endpoint string) (string, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return "", fmt.Errorf("provider endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return "", fmt.Errorf("invalid provider endpoint: %w", err)
	}
	return trimmed, nil
}

// postJSON performs a single provider call and maps the result onto Response.
func postJSON(ctx context.Context, req *resty.Request, endpoint string, body any) (*Response, error) {
	response, err := req.
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(endpoint)
	if err != nil {
		return nil, &ProviderError{
			Message:   "provider request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &ProviderError{
			Kind:      KindProvider,
			Message:   "provider returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	return &Response{
		Accepted:   statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices,
		StatusCode: statusCode,
		Body:       strings.TrimSpace(response.String()),
		MessageID:  providerMessageID(response),
	}, nil
}

func unexpectedRequest(name string, req any) error {
	return &ProviderError{
		Kind:    KindUnexpected,
		Message: fmt.Sprintf("%s provider cannot send %T", name, req),
	}
}

func providerMessageID(response *resty.Response) string {
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Request-ID", "X-Message-ID", "X-Correlation-ID"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
