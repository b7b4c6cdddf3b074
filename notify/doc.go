// Package notify delivers notifications to owners, beneficiaries and
// operators. The core treats contacts as opaque addresses; interpreting
// them is the notifier's job.
//
// WebhookNotifier POSTs notification JSON to a configured endpoint, for
// integration with mail or messaging relays. LogNotifier writes
// notifications to the structured log and is the development default.
// Release notifications carry share material in the body, so LogNotifier
// redacts the body for that kind.
package notify
