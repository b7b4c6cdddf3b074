package notify

import (
	"context"
	"log/slog"

	"github.com/deadhandprotocol/deadhand-backend/interfaces"
)

// LogNotifier writes notifications to the structured log. Development
// default; it never fails.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify logs the notification. Release bodies carry share material and
// are redacted.
func (l *LogNotifier) Notify(ctx context.Context, recipient interfaces.Contact, n interfaces.Notification) error {
	body := n.Body
	if n.Kind == interfaces.NotifyRelease {
		body = "[redacted share material]"
	}
	l.log.Info("Notification",
		slog.String("kind", string(n.Kind)),
		slog.String("vault_id", n.VaultID.String()),
		slog.String("recipient", recipient.String()),
		slog.String("subject", n.Subject),
		slog.String("body", body))
	return nil
}
