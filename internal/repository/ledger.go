package repository

import (
	"time"

	"github.com/aligovro/newschools-sub000/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerAggregator keeps project, stage and organization totals in step with the
// donation ledger. Apply must run inside the same gorm transaction that wrote the
// donation row so the pair commits or rolls back together.
type LedgerAggregator struct{}

func NewLedgerAggregator() *LedgerAggregator {
	return &LedgerAggregator{}
}

// Apply adds the signed donation amount to every aggregate the donation points at.
// Refund rows carry a negative amount, which reverses the original credit.
func (a *LedgerAggregator) Apply(tx *gorm.DB, d *models.Donation) error {
	if d.ProjectID != nil {
		if err := tx.Model(&models.Project{}).
			Where("id = ?", *d.ProjectID).
			UpdateColumn("collected_amount", gorm.Expr("collected_amount + ?", d.Amount)).Error; err != nil {
			return err
		}
	}
	if d.ProjectStageID != nil {
		if err := tx.Model(&models.ProjectStage{}).
			Where("id = ?", *d.ProjectStageID).
			UpdateColumn("collected_amount", gorm.Expr("collected_amount + ?", d.Amount)).Error; err != nil {
			return err
		}
	}

	var count, refunded int64
	if d.IsRefund() {
		refunded = -d.Amount
	} else {
		count = 1
	}
	stat := &models.OrganizationStat{
		OrganizationID:  d.OrganizationID,
		Currency:        d.Currency,
		CollectedAmount: d.Amount,
		RefundedAmount:  refunded,
		DonationsCount:  count,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "organization_id"}, {Name: "currency"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"collected_amount": gorm.Expr("collected_amount + ?", d.Amount),
			"refunded_amount":  gorm.Expr("refunded_amount + ?", refunded),
			"donations_count":  gorm.Expr("donations_count + ?", count),
			"updated_at":       time.Now(),
		}),
	}).Create(stat).Error
}
