package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/deadhandprotocol/deadhand-backend/interfaces"
)

// WebhookNotifier delivers notifications by POSTing JSON to a relay
// endpoint. The relay owns channel selection (email, SMS, messenger) and
// recipient formatting.
type WebhookNotifier struct {
	endpoint string
	client   *http.Client
	log      *slog.Logger
}

// webhookPayload is the wire format POSTed to the relay.
type webhookPayload struct {
	Recipient string                      `json:"recipient"`
	Kind      interfaces.NotificationKind `json:"kind"`
	VaultID   string                      `json:"vault_id"`
	Subject   string                      `json:"subject"`
	Body      string                      `json:"body"`
	SentAt    time.Time                   `json:"sent_at"`
}

// NewWebhookNotifier creates a notifier POSTing to endpoint with the
// given per-request timeout.
func NewWebhookNotifier(endpoint string, timeout time.Duration, log *slog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

// Notify POSTs the notification. Any non-2xx response is an error so the
// orchestrator's retry policy applies.
func (w *WebhookNotifier) Notify(ctx context.Context, recipient interfaces.Contact, n interfaces.Notification) error {
	payload, err := json.Marshal(webhookPayload{
		Recipient: recipient.String(),
		Kind:      n.Kind,
		VaultID:   n.VaultID.String(),
		Subject:   n.Subject,
		Body:      n.Body,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification delivery failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification relay returned status %d", resp.StatusCode)
	}

	w.log.Debug("Delivered notification",
		slog.String("kind", string(n.Kind)),
		slog.String("vault_id", n.VaultID.String()))
	return nil
}
