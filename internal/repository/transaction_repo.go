package repository

import (
	"errors"
	"time"

	"github.com/aligovro/newschools-sub000/internal/domain"
	"github.com/aligovro/newschools-sub000/internal/models"

	"gorm.io/gorm"
)

var ErrDuplicateTransaction = errors.New("payment transaction already exists")

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// WithTx returns a repository bound to an open gorm transaction.
func (r *TransactionRepository) WithTx(tx *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: tx}
}

// Create inserts a new transaction. A second row with the same external id, public
// transaction id or idempotency key fails with ErrDuplicateTransaction.
func (r *TransactionRepository) Create(t *models.PaymentTransaction) error {
	err := r.db.Create(t).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateTransaction
	}
	return err
}

func (r *TransactionRepository) GetByID(id uint) (*models.PaymentTransaction, error) {
	var t models.PaymentTransaction
	if err := r.db.First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepository) FindByExternalID(externalID string) (*models.PaymentTransaction, error) {
	var t models.PaymentTransaction
	if err := r.db.Where("external_id = ?", externalID).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepository) FindByTransactionID(transactionID string) (*models.PaymentTransaction, error) {
	var t models.PaymentTransaction
	if err := r.db.Where("transaction_id = ?", transactionID).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// TransitionStatus moves the transaction to `to` only if its current status is one of
// `from`, in a single conditional UPDATE. It reports false, not an error, when another
// caller got there first.
func (r *TransactionRepository) TransitionStatus(id uint, from []string, to string) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if to == domain.TransactionStatusCompleted {
		updates["paid_at"] = time.Now()
	}
	res := r.db.Model(&models.PaymentTransaction{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IncrementNotFoundAttempts bumps the gateway NotFound counter and returns its new value.
func (r *TransactionRepository) IncrementNotFoundAttempts(id uint) (int, error) {
	var attempts []int
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PaymentTransaction{}).
			Where("id = ?", id).
			UpdateColumn("not_found_attempts", gorm.Expr("not_found_attempts + 1")).Error; err != nil {
			return err
		}
		return tx.Model(&models.PaymentTransaction{}).
			Where("id = ?", id).
			Pluck("not_found_attempts", &attempts).Error
	})
	if err != nil {
		return 0, err
	}
	if len(attempts) == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return attempts[0], nil
}
