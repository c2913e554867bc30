package models

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aligovro/newschools-sub000/internal/domain"
	"gorm.io/datatypes"
)

// PaymentTransaction is one payment attempt at the gateway. Rows are never deleted;
// Status only moves from pending to a terminal state.
type PaymentTransaction struct {
	ID                uint              `gorm:"primaryKey" json:"id"`
	TransactionID     string            `gorm:"size:36;not null;uniqueIndex" json:"transaction_id"`
	ExternalID        string            `gorm:"size:64;not null;uniqueIndex" json:"external_id"`
	OrganizationID    uint              `gorm:"not null;index" json:"organization_id"`
	Amount            int64             `gorm:"not null" json:"amount"` // minor units
	Currency          string            `gorm:"size:3;not null" json:"currency"`
	Status            string            `gorm:"size:20;not null;index" json:"status"` // pending, completed, failed, cancelled
	PaymentMethodSlug string            `gorm:"size:50" json:"payment_method_slug"`
	Gateway           string            `gorm:"size:30;not null" json:"gateway"`
	IdempotencyKey    string            `gorm:"size:64;not null;uniqueIndex" json:"-"`
	ConfirmationURL   string            `gorm:"size:512" json:"-"`
	Metadata          datatypes.JSONMap `json:"metadata"`
	NotFoundAttempts  int               `gorm:"not null;default:0" json:"-"`
	PaidAt            *time.Time        `json:"paid_at"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`

	Organization Organization `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}

func (t *PaymentTransaction) IsTerminal() bool {
	return domain.IsTerminalStatus(t.Status)
}

// MetaString returns a metadata value as a string, or "" when absent.
func (t *PaymentTransaction) MetaString(key string) string {
	v, ok := t.Metadata[key]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprint(v)
}

// MetaUint returns a positive id stored in metadata, or nil.
func (t *PaymentTransaction) MetaUint(key string) *uint {
	s := t.MetaString(key)
	if s == "" {
		return nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return nil
	}
	id := uint(n)
	return &id
}

func (t *PaymentTransaction) MetaBool(key string) bool {
	b, _ := strconv.ParseBool(t.MetaString(key))
	return b
}
