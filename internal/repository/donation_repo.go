package repository

import (
	"errors"

	"github.com/aligovro/newschools-sub000/internal/models"

	"gorm.io/gorm"
)

var (
	// ErrDuplicateDonation means a donation for this transaction (or gateway refund) is
	// already recorded.
	ErrDuplicateDonation = errors.New("donation already recorded")
	// ErrRefundBalanceChanged means the refundable balance no longer covers the refund,
	// usually because a concurrent refund landed first.
	ErrRefundBalanceChanged = errors.New("refundable balance changed")
)

type DonationRepository struct {
	db *gorm.DB
}

func NewDonationRepository(db *gorm.DB) *DonationRepository {
	return &DonationRepository{db: db}
}

// WithTx returns a repository bound to an open gorm transaction.
func (r *DonationRepository) WithTx(tx *gorm.DB) *DonationRepository {
	return &DonationRepository{db: tx}
}

func (r *DonationRepository) Create(d *models.Donation) error {
	err := r.db.Create(d).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateDonation
	}
	return err
}

func (r *DonationRepository) GetByID(id uint) (*models.Donation, error) {
	var d models.Donation
	if err := r.db.First(&d, id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// GetForOrganization loads a donation only if it belongs to the organization.
func (r *DonationRepository) GetForOrganization(orgID, id uint) (*models.Donation, error) {
	var d models.Donation
	if err := r.db.Where("id = ? AND organization_id = ?", id, orgID).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DonationRepository) FindByTransactionExternalID(externalID string) (*models.Donation, error) {
	var d models.Donation
	if err := r.db.Where("transaction_external_id = ?", externalID).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DonationRepository) ListRefunds(parentID uint) ([]models.Donation, error) {
	var list []models.Donation
	err := r.db.Where("parent_donation_id = ?", parentID).Order("id ASC").Find(&list).Error
	return list, err
}

// AddRefunded raises the running refund total of an original donation, but only while
// the remaining balance still covers amount.
func (r *DonationRepository) AddRefunded(id uint, amount int64) error {
	res := r.db.Model(&models.Donation{}).
		Where("id = ? AND amount - refunded_amount >= ?", id, amount).
		UpdateColumn("refunded_amount", gorm.Expr("refunded_amount + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRefundBalanceChanged
	}
	return nil
}
