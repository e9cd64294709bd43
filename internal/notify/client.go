package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"shiftnotify/internal/config"
)

// ProviderError is any refusal or timeout from the delivery provider. The
// caller skips the processed-flag update so the chunk is retried on the next
// scheduled run.
type ProviderError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("notify provider: %v", e.Err)
	}
	return fmt.Sprintf("notify provider: status %d: %s", e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Client is the outbound delivery capability: one call per message, success
// or a provider error.
type Client interface {
	SendEmail(ctx context.Context, templateID, emailAddress string, personalisation map[string]string) error
	SendSms(ctx context.Context, templateID, phoneNumber string, personalisation map[string]string) error
}

// HTTPClient talks to a Notify-style REST provider.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPClient(cfg config.NotifyConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

type emailRequest struct {
	TemplateID      string            `json:"template_id"`
	EmailAddress    string            `json:"email_address"`
	Personalisation map[string]string `json:"personalisation"`
}

type smsRequest struct {
	TemplateID      string            `json:"template_id"`
	PhoneNumber     string            `json:"phone_number"`
	Personalisation map[string]string `json:"personalisation"`
}

func (c *HTTPClient) SendEmail(ctx context.Context, templateID, emailAddress string, personalisation map[string]string) error {
	return c.post(ctx, "/v2/notifications/email", emailRequest{
		TemplateID:      templateID,
		EmailAddress:    emailAddress,
		Personalisation: personalisation,
	})
}

func (c *HTTPClient) SendSms(ctx context.Context, templateID, phoneNumber string, personalisation map[string]string) error {
	return c.post(ctx, "/v2/notifications/sms", smsRequest{
		TemplateID:      templateID,
		PhoneNumber:     phoneNumber,
		Personalisation: personalisation,
	})
}

func (c *HTTPClient) post(ctx context.Context, path string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ProviderError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &ProviderError{StatusCode: resp.StatusCode, Message: string(msg)}
	}
	return nil
}
