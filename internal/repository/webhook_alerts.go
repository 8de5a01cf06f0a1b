package repository

import (
	"context"
	"fmt"
	"time"

	"SigWatch/internal/domain/models"
	apphttp "SigWatch/pkg/http"
)

// WebhookAlertPublisher posts alert events as JSON to a single webhook
// URL, for deployments without a broker.
type WebhookAlertPublisher struct {
	httpc *apphttp.Client
	url   string
}

// NewWebhookAlertPublisher creates a webhook-backed alert publisher.
func NewWebhookAlertPublisher(url string, timeout time.Duration) *WebhookAlertPublisher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookAlertPublisher{
		httpc: apphttp.NewClient(apphttp.WithTimeout(timeout)),
		url:   url,
	}
}

// Publish posts one alert event.
func (p *WebhookAlertPublisher) Publish(ctx context.Context, event *models.AlertEvent) error {
	err := p.httpc.SendAndParse(ctx, &apphttp.RequestOptions{
		Method: "POST",
		URL:    p.url,
		Body:   event,
	}, nil)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	return nil
}

// Close is a no-op.
func (p *WebhookAlertPublisher) Close() error { return nil }
