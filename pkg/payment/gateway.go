package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Normalized charge statuses. They share their values with the transaction status enum.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrInvalidRequest     = errors.New("payment gateway rejected request")
	ErrNotFound           = errors.New("payment not found at gateway")
	ErrInsufficientFunds  = errors.New("insufficient funds for refund")
	ErrAlreadyRefunded    = errors.New("payment already refunded")
)

// Error is a provider failure. Kind is one of the sentinel errors above so callers
// can match it with errors.Is.
type Error struct {
	Kind        error
	StatusCode  int
	Code        string
	Description string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%v: %d %s: %s", e.Kind, e.StatusCode, e.Code, e.Description)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v: %d %s", e.Kind, e.StatusCode, e.Description)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Description)
}

func (e *Error) Unwrap() error { return e.Kind }

type ChargeRequest struct {
	AmountMinor    int64
	Currency       string
	Description    string
	ReturnURL      string
	PaymentMethod  string
	Metadata       map[string]string
	IdempotencyKey string
}

type Charge struct {
	ExternalID  string
	RedirectURL string
	Status      string
}

type ChargeStatus struct {
	ExternalID    string
	Status        string // normalized
	GatewayStatus string // as reported by the provider
	Raw           json.RawMessage
}

type RefundRequest struct {
	ExternalID     string
	AmountMinor    int64
	Currency       string
	Reason         string
	IdempotencyKey string
}

type Refund struct {
	RefundID string
	Status   string
}

// Gateway is the payment provider boundary. Every call is safe to retry with the
// same idempotency key.
type Gateway interface {
	Name() string
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	QueryStatus(ctx context.Context, externalID string) (*ChargeStatus, error)
	CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error)
}
