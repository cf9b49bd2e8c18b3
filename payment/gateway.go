/*
gateway.go - Payment gateway abstraction

PURPOSE:
  The settlement flow talks to the gateway through this interface: submit an
  order and get a hosted checkout URL, later verify the order's status when
  the provider calls back. The concrete Pesapal client lives in pesapal.go;
  tests substitute a fake.

STATUS NORMALIZATION:
  Providers spell statuses inconsistently across API versions. NormalizeStatus
  folds the raw string into the three states settlement cares about by
  substring match, so "COMPLETED", "Completed" and "TRANSACTION COMPLETED"
  all settle.
*/
package payment

import (
	"context"
	"strings"
)

// OrderStatus is the gateway-reported state of an order, normalized.
type OrderStatus string

const (
	StatusCompleted OrderStatus = "completed"
	StatusPending   OrderStatus = "pending"
	StatusFailed    OrderStatus = "failed"
)

// NormalizeStatus folds a raw gateway status string into an OrderStatus.
// Anything neither completed nor pending is failed.
func NormalizeStatus(raw string) OrderStatus {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case strings.Contains(s, "COMPLETED"):
		return StatusCompleted
	case strings.Contains(s, "PENDING"):
		return StatusPending
	default:
		return StatusFailed
	}
}

// OrderRequest describes one checkout order submitted to the gateway.
type OrderRequest struct {
	Reference   string // merchant reference, the ledger reference number
	Amount      string // decimal string, two places
	Currency    string
	Description string
	CallbackURL string

	// Payer details forwarded to the hosted checkout page.
	Email     string
	Phone     string
	FirstName string
	LastName  string
}

// OrderResponse is the gateway's answer to a submitted order.
type OrderResponse struct {
	OrderTrackingID string
	RedirectURL     string
}

// StatusResponse is the gateway's answer to a status query.
type StatusResponse struct {
	Status          OrderStatus
	RawStatus       string
	ConfirmationRef string
	PaymentMethod   string
}

// Gateway is the provider-facing surface of the payment flow.
type Gateway interface {
	// SubmitOrder registers an order and returns the tracking id plus the
	// URL the member is redirected to for checkout.
	SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)

	// VerifyStatus queries the authoritative state of an order. Callbacks
	// are untrusted; settlement always verifies before moving money.
	VerifyStatus(ctx context.Context, orderTrackingID string) (*StatusResponse, error)
}
