package models

import "time"

// Donation is a ledger entry for money received by an organization. Refunds are
// separate rows with a negative Amount and ParentDonationID set; a donation row is
// never updated except for its RefundedAmount running total.
type Donation struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	OrganizationID        uint       `gorm:"not null;index" json:"organization_id"`
	ProjectID             *uint      `gorm:"index" json:"project_id"`
	ProjectStageID        *uint      `gorm:"index" json:"project_stage_id"`
	FundraiserID          *uint      `gorm:"index" json:"fundraiser_id"`
	PaymentTransactionID  *uint      `gorm:"index" json:"payment_transaction_id"`
	TransactionExternalID *string    `gorm:"size:64;uniqueIndex" json:"transaction_external_id"`
	RefundExternalID      *string    `gorm:"size:64;uniqueIndex" json:"refund_external_id,omitempty"`
	ParentDonationID      *uint      `gorm:"index" json:"parent_donation_id"`
	DonorName             string     `gorm:"size:255" json:"donor_name"`
	DonorEmail            string     `gorm:"size:255" json:"donor_email,omitempty"`
	DonorPhone            string     `gorm:"size:32" json:"donor_phone,omitempty"`
	IsAnonymous           bool       `gorm:"not null;default:false" json:"is_anonymous"`
	Amount                int64      `gorm:"not null" json:"amount"` // minor units, negative for refunds
	RefundedAmount        int64      `gorm:"not null;default:0" json:"refunded_amount"`
	Currency              string     `gorm:"size:3;not null" json:"currency"`
	Status                string     `gorm:"size:20;not null;index" json:"status"`
	PaymentMethodSlug     string     `gorm:"size:50" json:"payment_method_slug"`
	Message               string     `gorm:"type:text" json:"message"`
	Description           string     `gorm:"size:255" json:"description,omitempty"`
	RegionID              *uint      `gorm:"index" json:"region_id"`
	LocalityID            *uint      `gorm:"index" json:"locality_id"`
	IsRecurring           bool       `gorm:"not null;default:false" json:"is_recurring"`
	RecurringPeriod       string     `gorm:"size:20" json:"recurring_period,omitempty"`
	PaidAt                *time.Time `json:"paid_at"`
	CreatedAt             time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`

	Organization Organization `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (Donation) TableName() string {
	return "donations"
}

func (d *Donation) IsRefund() bool {
	return d.ParentDonationID != nil
}

// RefundableBalance is what is left to refund on an original donation.
func (d *Donation) RefundableBalance() int64 {
	return d.Amount - d.RefundedAmount
}
