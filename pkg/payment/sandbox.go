package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// SandboxGateway is an in-memory provider for development and tests. Charges start
// pending and are moved by Complete/Cancel; Forget makes the gateway deny all
// knowledge of a charge.
type SandboxGateway struct {
	// CheckoutBaseURL prefixes the redirect URL handed to the donor.
	CheckoutBaseURL string

	mu            sync.Mutex
	charges       map[string]*sandboxCharge
	byKey         map[string]string
	refunds       map[string]*Refund
	failNext      int
	statusQueries int
}

type sandboxCharge struct {
	req      ChargeRequest
	status   string
	refunded int64
}

func NewSandboxGateway(checkoutBaseURL string) *SandboxGateway {
	return &SandboxGateway{
		CheckoutBaseURL: checkoutBaseURL,
		charges:         make(map[string]*sandboxCharge),
		byKey:           make(map[string]string),
		refunds:         make(map[string]*Refund),
	}
}

func (s *SandboxGateway) Name() string { return "sandbox" }

func (s *SandboxGateway) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injectedFailure(); err != nil {
		return nil, err
	}
	if req.AmountMinor <= 0 {
		return nil, &Error{Kind: ErrInvalidRequest, StatusCode: 400, Code: "invalid_request", Description: "amount must be positive"}
	}
	if req.IdempotencyKey != "" {
		if id, ok := s.byKey[req.IdempotencyKey]; ok {
			return s.chargeView(id), nil
		}
	}
	id := "sbx_" + uuid.New().String()
	s.charges[id] = &sandboxCharge{req: req, status: StatusPending}
	if req.IdempotencyKey != "" {
		s.byKey[req.IdempotencyKey] = id
	}
	return s.chargeView(id), nil
}

func (s *SandboxGateway) QueryStatus(ctx context.Context, externalID string) (*ChargeStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusQueries++
	if err := s.injectedFailure(); err != nil {
		return nil, err
	}
	ch, ok := s.charges[externalID]
	if !ok {
		return nil, &Error{Kind: ErrNotFound, StatusCode: 404, Code: "not_found", Description: "payment " + externalID + " not found"}
	}
	raw := fmt.Sprintf(`{"id":%q,"status":%q}`, externalID, gatewayStatus(ch.status))
	return &ChargeStatus{
		ExternalID:    externalID,
		Status:        ch.status,
		GatewayStatus: gatewayStatus(ch.status),
		Raw:           []byte(raw),
	}, nil
}

func (s *SandboxGateway) CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injectedFailure(); err != nil {
		return nil, err
	}
	if req.IdempotencyKey != "" {
		if r, ok := s.refunds[req.IdempotencyKey]; ok {
			return r, nil
		}
	}
	ch, ok := s.charges[req.ExternalID]
	if !ok {
		return nil, &Error{Kind: ErrNotFound, StatusCode: 404, Description: "payment " + req.ExternalID + " not found"}
	}
	if ch.status != StatusCompleted {
		return nil, &Error{Kind: ErrInvalidRequest, StatusCode: 400, Code: "invalid_request", Description: "payment is not succeeded"}
	}
	if req.AmountMinor <= 0 {
		return nil, &Error{Kind: ErrInvalidRequest, StatusCode: 400, Code: "invalid_request", Description: "refund amount must be positive"}
	}
	remaining := ch.req.AmountMinor - ch.refunded
	if remaining == 0 {
		return nil, &Error{Kind: ErrAlreadyRefunded, StatusCode: 400, Code: "invalid_request", Description: "payment already refunded"}
	}
	if req.AmountMinor > remaining {
		return nil, &Error{Kind: ErrInsufficientFunds, StatusCode: 400, Code: "invalid_request", Description: "refund amount exceeds payment balance"}
	}
	ch.refunded += req.AmountMinor
	r := &Refund{RefundID: "sbx_rf_" + uuid.New().String(), Status: "succeeded"}
	if req.IdempotencyKey != "" {
		s.refunds[req.IdempotencyKey] = r
	}
	return r, nil
}

// Complete marks a charge as paid by the donor.
func (s *SandboxGateway) Complete(externalID string) error {
	return s.setStatus(externalID, StatusCompleted)
}

// Cancel marks a charge as abandoned or declined.
func (s *SandboxGateway) Cancel(externalID string) error {
	return s.setStatus(externalID, StatusCancelled)
}

// Forget drops a charge so QueryStatus answers ErrNotFound.
func (s *SandboxGateway) Forget(externalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.charges, externalID)
}

// FailNext makes the next n calls fail with ErrGatewayUnavailable.
func (s *SandboxGateway) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// StatusQueries returns how many times QueryStatus was called.
func (s *SandboxGateway) StatusQueries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusQueries
}

// Refunded returns the total refunded against a charge.
func (s *SandboxGateway) Refunded(externalID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.charges[externalID]; ok {
		return ch.refunded
	}
	return 0
}

// ReturnURL is where the donor goes after paying for a charge.
func (s *SandboxGateway) ReturnURL(externalID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.charges[externalID]
	if !ok {
		return "", false
	}
	return ch.req.ReturnURL, true
}

func (s *SandboxGateway) setStatus(externalID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.charges[externalID]
	if !ok {
		return fmt.Errorf("sandbox: unknown charge %s", externalID)
	}
	ch.status = status
	return nil
}

func (s *SandboxGateway) injectedFailure() error {
	if s.failNext > 0 {
		s.failNext--
		return &Error{Kind: ErrGatewayUnavailable, StatusCode: 503, Description: "sandbox injected failure"}
	}
	return nil
}

func (s *SandboxGateway) chargeView(id string) *Charge {
	ch := s.charges[id]
	return &Charge{
		ExternalID:  id,
		RedirectURL: s.CheckoutBaseURL + "/sandbox/checkout/" + id,
		Status:      ch.status,
	}
}

func gatewayStatus(status string) string {
	switch status {
	case StatusCompleted:
		return "succeeded"
	case StatusCancelled:
		return "canceled"
	}
	return "pending"
}
