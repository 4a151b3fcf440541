package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WebhookType tags every webhook body.
const WebhookType = "contact_submission"

// DefaultWebhookTimeout applies when no client is supplied.
const DefaultWebhookTimeout = 10 * time.Second

var ErrWebhookRejected = errors.New("webhook rejected notification")

// WebhookBody is the JSON document posted to the webhook.
type WebhookBody struct {
	Type    string           `json:"type"`
	Payload *SubmissionEvent `json:"payload"`
}

// Webhook posts submission events to an external URL.
type Webhook struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhook creates a webhook notifier. A nil client gets DefaultWebhookTimeout.
func NewWebhook(url string, client *http.Client, logger *zap.Logger) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: DefaultWebhookTimeout}
	}

	return &Webhook{url: url, client: client, logger: logger}
}

// Handle posts one event. Non-2xx responses return ErrWebhookRejected so the
// message is redelivered.
func (w *Webhook) Handle(ctx context.Context, event *SubmissionEvent) error {
	body, err := json.Marshal(WebhookBody{Type: WebhookType, Payload: event})
	if err != nil {
		return fmt.Errorf("marshal webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrWebhookRejected, resp.StatusCode)
	}

	w.logger.Info("submission notified",
		zap.String("reference", event.Reference),
		zap.Int("status", resp.StatusCode),
	)

	return nil
}

// LogHandler records events when no webhook is configured.
func LogHandler(logger *zap.Logger) func(context.Context, *SubmissionEvent) error {
	return func(_ context.Context, event *SubmissionEvent) error {
		logger.Info("submission received",
			zap.String("id", event.ID),
			zap.String("reference", event.Reference),
			zap.String("projectType", event.ProjectType),
			zap.Bool("requestProposal", event.RequestProposal),
			zap.Time("createdAt", event.CreatedAt),
		)

		return nil
	}
}
