// Package connector implements the outbound integrations of Lure.
package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrDelivery is returned when a webhook post fails or is rejected.
var ErrDelivery = errors.New("webhook delivery failed")

// MaxEmbedsPerMessage is the number of embeds a Discord message accepts.
const MaxEmbedsPerMessage = 10

// Embed is one Discord-style rich embed.
type Embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// WebhookPayload is the JSON body posted to the webhook.
type WebhookPayload struct {
	Embeds []Embed `json:"embeds"`
}

// WebhookSink posts embeds to a Discord-compatible webhook URL.
type WebhookSink struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookSink creates a sink for url. timeout bounds every request.
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: log.With().Str("component", "webhook").Logger(),
	}
}

// Deliver posts the embeds as one message. Batches larger than
// MaxEmbedsPerMessage are split over several messages in order.
func (s *WebhookSink) Deliver(ctx context.Context, embeds []Embed) error {
	for start := 0; start < len(embeds); start += MaxEmbedsPerMessage {
		end := min(start+MaxEmbedsPerMessage, len(embeds))
		if err := s.post(ctx, WebhookPayload{Embeds: embeds[start:end]}); err != nil {
			return err
		}
	}
	return nil
}

func (s *WebhookSink) post(ctx context.Context, payload WebhookPayload) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %w", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: webhook returned status %d: %s", ErrDelivery, resp.StatusCode, string(body))
	}
	io.Copy(io.Discard, resp.Body)

	s.logger.Debug().Int("embeds", len(payload.Embeds)).Msg("webhook notification sent")
	return nil
}
