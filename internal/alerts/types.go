package alerts

import (
	"time"

	"github.com/sudo-init-do/crafthub-ledger/internal/ledger"
)

// Task type constants
const (
	TaskSettleOrder = "settlement:order_delivered"
	TaskWalletEmail = "email:wallet_event"
	TaskAdminAlert  = "email:admin_alert"
)

// Queue names
const (
	QueueSettlement = "settlement"
	QueueEmails     = "emails"
	QueueAlerts     = "alerts"
)

// Common envelope for email-like notifications
type EmailEnvelope struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// SettleOrderPayload is published by order fulfillment when an order is delivered.
type SettleOrderPayload struct {
	OrderID string `json:"order_id"`
}

// WalletEmailPayload carries a committed wallet event to the seller's inbox.
// The recipient address is resolved by the worker.
type WalletEmailPayload struct {
	Event ledger.Event `json:"event"`
}

// Admin alert payload
type AdminAlertPayload struct {
	Severity string    `json:"severity"` // info|warning|critical
	Message  string    `json:"message"`
	SentAt   time.Time `json:"sent_at"`
}
