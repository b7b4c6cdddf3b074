package interfaces

import "context"

// NotificationKind distinguishes the messages the core sends.
type NotificationKind string

const (
	// NotifySoftWarning is the first missed-check-in warning to the owner.
	NotifySoftWarning NotificationKind = "soft_warning"
	// NotifyCriticalWarning is the final warning to the owner before the
	// trigger boundary.
	NotifyCriticalWarning NotificationKind = "critical_warning"
	// NotifyRelease carries the custodial share to the beneficiary.
	NotifyRelease NotificationKind = "release"
	// NotifyOperatorAlert surfaces operational failures (e.g. exhausted
	// delivery retries) to the operator.
	NotifyOperatorAlert NotificationKind = "operator_alert"
)

// Notification is the payload handed to the notification collaborator.
// For NotifyRelease, Body contains the encoded custodial share; the core
// wipes its plaintext copy immediately after the call returns.
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	VaultID VaultID          `json:"vault_id"`
	Subject string           `json:"subject"`
	Body    string           `json:"body"`
}

// Notifier delivers a notification to a recipient. Implementations are
// expected to provide at-least-once semantics; retry policy and
// idempotent handling live in the orchestrator, not here.
type Notifier interface {
	Notify(ctx context.Context, recipient Contact, n Notification) error
}
