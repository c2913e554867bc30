package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aligovro/newschools-sub000/pkg/money"
	"go.uber.org/zap"
)

const maxDescriptionLen = 128

// YooKassaGateway talks to the YooKassa v3 API.
type YooKassaGateway struct {
	BaseURL    string
	ShopID     string
	SecretKey  string
	MaxRetries int
	RetryDelay time.Duration
	client     *http.Client
	log        *zap.Logger
}

func NewYooKassaGateway(baseURL, shopID, secretKey string, timeout time.Duration, log *zap.Logger) *YooKassaGateway {
	if baseURL == "" {
		baseURL = "https://api.yookassa.ru"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &YooKassaGateway{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ShopID:     shopID,
		SecretKey:  secretKey,
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
		client:     &http.Client{Timeout: timeout},
		log:        log.Named("yookassa"),
	}
}

func (g *YooKassaGateway) Name() string { return "yookassa" }

type ykAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type ykConfirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type ykPaymentMethodData struct {
	Type string `json:"type"`
}

type ykCreatePaymentReq struct {
	Amount            ykAmount             `json:"amount"`
	Capture           bool                 `json:"capture"`
	Confirmation      ykConfirmation       `json:"confirmation"`
	Description       string               `json:"description,omitempty"`
	Metadata          map[string]string    `json:"metadata,omitempty"`
	PaymentMethodData *ykPaymentMethodData `json:"payment_method_data,omitempty"`
}

type ykPayment struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	Paid         bool            `json:"paid"`
	Amount       ykAmount        `json:"amount"`
	Confirmation *ykConfirmation `json:"confirmation"`
}

type ykRefundReq struct {
	PaymentID   string   `json:"payment_id"`
	Amount      ykAmount `json:"amount"`
	Description string   `json:"description,omitempty"`
}

type ykRefund struct {
	ID        string   `json:"id"`
	PaymentID string   `json:"payment_id"`
	Status    string   `json:"status"`
	Amount    ykAmount `json:"amount"`
}

type ykError struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Parameter   string `json:"parameter"`
}

func (g *YooKassaGateway) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if req.AmountMinor <= 0 {
		return nil, &Error{Kind: ErrInvalidRequest, Description: "amount must be positive"}
	}
	payload := ykCreatePaymentReq{
		Amount:       ykAmount{Value: money.Format(req.AmountMinor), Currency: req.Currency},
		Capture:      true,
		Confirmation: ykConfirmation{Type: "redirect", ReturnURL: req.ReturnURL},
		Description:  truncate(req.Description, maxDescriptionLen),
		Metadata:     req.Metadata,
	}
	if req.PaymentMethod != "" {
		payload.PaymentMethodData = &ykPaymentMethodData{Type: req.PaymentMethod}
	}
	var out ykPayment
	if _, err := g.do(ctx, http.MethodPost, "/v3/payments", req.IdempotencyKey, payload, &out); err != nil {
		return nil, err
	}
	g.log.Info("payment created",
		zap.String("external_id", out.ID),
		zap.String("status", out.Status),
		zap.Int64("amount", req.AmountMinor),
		zap.String("currency", req.Currency),
	)
	ch := &Charge{ExternalID: out.ID, Status: normalizeStatus(out.Status)}
	if out.Confirmation != nil {
		ch.RedirectURL = out.Confirmation.ConfirmationURL
	}
	return ch, nil
}

func (g *YooKassaGateway) QueryStatus(ctx context.Context, externalID string) (*ChargeStatus, error) {
	if externalID == "" {
		return nil, &Error{Kind: ErrInvalidRequest, Description: "external id required"}
	}
	var out ykPayment
	raw, err := g.do(ctx, http.MethodGet, "/v3/payments/"+url.PathEscape(externalID), "", nil, &out)
	if err != nil {
		return nil, err
	}
	return &ChargeStatus{
		ExternalID:    out.ID,
		Status:        normalizeStatus(out.Status),
		GatewayStatus: out.Status,
		Raw:           raw,
	}, nil
}

func (g *YooKassaGateway) CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error) {
	if req.AmountMinor <= 0 {
		return nil, &Error{Kind: ErrInvalidRequest, Description: "refund amount must be positive"}
	}
	payload := ykRefundReq{
		PaymentID:   req.ExternalID,
		Amount:      ykAmount{Value: money.Format(req.AmountMinor), Currency: req.Currency},
		Description: truncate(req.Reason, maxDescriptionLen),
	}
	var out ykRefund
	if _, err := g.do(ctx, http.MethodPost, "/v3/refunds", req.IdempotencyKey, payload, &out); err != nil {
		return nil, classifyRefundError(err)
	}
	if out.Status == "canceled" {
		return nil, &Error{Kind: ErrInvalidRequest, StatusCode: http.StatusOK, Code: "refund_canceled", Description: "refund " + out.ID + " was canceled by the gateway"}
	}
	g.log.Info("refund created",
		zap.String("external_id", req.ExternalID),
		zap.String("refund_id", out.ID),
		zap.String("status", out.Status),
		zap.Int64("amount", req.AmountMinor),
	)
	return &Refund{RefundID: out.ID, Status: out.Status}, nil
}

// do performs the request, retrying transient failures with exponential backoff.
// The idempotence key is reused on every attempt so a retried POST cannot create a
// second payment or refund.
func (g *YooKassaGateway) do(ctx context.Context, method, path, idempotenceKey string, payload, out interface{}) (json.RawMessage, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, &Error{Kind: ErrInvalidRequest, Description: err.Error()}
		}
	}
	delay := g.RetryDelay
	var lastErr error
	for attempt := 0; attempt <= g.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &Error{Kind: ErrGatewayUnavailable, Description: ctx.Err().Error()}
			case <-time.After(delay):
			}
			delay *= 2
		}
		raw, err := g.doOnce(ctx, method, path, idempotenceKey, body, out)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !errors.Is(err, ErrGatewayUnavailable) {
			return nil, err
		}
		g.log.Warn("transient gateway failure",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return nil, lastErr
}

func (g *YooKassaGateway) doOnce(ctx context.Context, method, path, idempotenceKey string, body []byte, out interface{}) (json.RawMessage, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.BaseURL+path, rdr)
	if err != nil {
		return nil, &Error{Kind: ErrInvalidRequest, Description: err.Error()}
	}
	req.SetBasicAuth(g.ShopID, g.SecretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotenceKey != "" {
		req.Header.Set("Idempotence-Key", idempotenceKey)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: ErrGatewayUnavailable, Description: err.Error()}
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: ErrGatewayUnavailable, StatusCode: resp.StatusCode, Description: err.Error()}
	}
	g.log.Debug("gateway response", zap.String("method", method), zap.String("path", path), zap.Int("status", resp.StatusCode))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return nil, &Error{Kind: ErrGatewayUnavailable, StatusCode: resp.StatusCode, Description: "decode response: " + err.Error()}
			}
		}
		return respBody, nil
	}

	var apiErr ykError
	_ = json.Unmarshal(respBody, &apiErr)
	e := &Error{StatusCode: resp.StatusCode, Code: apiErr.Code, Description: apiErr.Description}
	if apiErr.Parameter != "" {
		e.Description = fmt.Sprintf("%s (parameter %s)", apiErr.Description, apiErr.Parameter)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		e.Kind = ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		e.Kind = ErrGatewayUnavailable
	default:
		e.Kind = ErrInvalidRequest
	}
	if e.Description == "" {
		e.Description = http.StatusText(resp.StatusCode)
	}
	return nil, e
}

// classifyRefundError narrows a rejected refund to the refund-specific kinds.
func classifyRefundError(err error) error {
	var e *Error
	if !errors.As(err, &e) || e.Kind != ErrInvalidRequest {
		return err
	}
	desc := strings.ToLower(e.Description)
	switch {
	case strings.Contains(desc, "already") && strings.Contains(desc, "refund"):
		e.Kind = ErrAlreadyRefunded
	case strings.Contains(desc, "parameter amount") || strings.Contains(desc, "exceed"):
		e.Kind = ErrInsufficientFunds
	}
	return e
}

func normalizeStatus(s string) string {
	switch s {
	case "succeeded":
		return StatusCompleted
	case "canceled":
		return StatusCancelled
	default:
		// pending, waiting_for_capture and anything unknown stay pending.
		return StatusPending
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
