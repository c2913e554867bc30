package models

import "time"

type Organization struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Slug      string    `gorm:"size:255;uniqueIndex" json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Organization) TableName() string {
	return "organizations"
}

// OrganizationStat holds the running donation totals of an organization in one currency.
type OrganizationStat struct {
	ID              uint      `gorm:"primaryKey" json:"-"`
	OrganizationID  uint      `gorm:"not null;uniqueIndex:idx_org_stats_org_currency" json:"organization_id"`
	Currency        string    `gorm:"size:3;not null;uniqueIndex:idx_org_stats_org_currency" json:"currency"`
	CollectedAmount int64     `gorm:"not null;default:0" json:"collected_amount"`
	RefundedAmount  int64     `gorm:"not null;default:0" json:"refunded_amount"`
	DonationsCount  int64     `gorm:"not null;default:0" json:"donations_count"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (OrganizationStat) TableName() string {
	return "organization_stats"
}
