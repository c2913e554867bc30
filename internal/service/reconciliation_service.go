package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aligovro/newschools-sub000/internal/domain"
	"github.com/aligovro/newschools-sub000/internal/models"
	"github.com/aligovro/newschools-sub000/internal/repository"
	"github.com/aligovro/newschools-sub000/pkg/payment"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrTransactionNotFound   = errors.New("payment transaction not found")
	ErrDonationNotFound      = errors.New("donation not found")
	ErrDonationNotRefundable = errors.New("donation cannot be refunded")
	ErrRefundExceedsBalance  = errors.New("refund amount exceeds refundable balance")
	ErrAlreadyFullyRefunded  = errors.New("donation already fully refunded")
	ErrReconciliationGap     = errors.New("gateway state not reflected locally")
)

// Outcome says what a Reconcile call did.
type Outcome string

const (
	// OutcomeApplied: this call moved the transaction out of pending.
	OutcomeApplied Outcome = "applied"
	// OutcomeAlreadyReconciled: the transaction was already terminal, or a concurrent
	// caller won the transition.
	OutcomeAlreadyReconciled Outcome = "already_reconciled"
	// OutcomePending: the gateway has not settled the payment yet.
	OutcomePending Outcome = "pending"
)

type ReconcileResult struct {
	Transaction *models.PaymentTransaction
	Outcome     Outcome
	// Donation is set when this call materialized the donation.
	Donation *models.Donation
}

// GapError reports money that moved at the gateway but could not be recorded here.
// It carries what an operator needs to fix the books by hand.
type GapError struct {
	Operation      string // charge or refund
	ExternalID     string
	RefundID       string
	OrganizationID uint
	AmountMinor    int64
	Currency       string
	Err            error
}

func (e *GapError) Error() string {
	return fmt.Sprintf("reconciliation gap on %s %s (org %d, %d %s): %v",
		e.Operation, e.ExternalID, e.OrganizationID, e.AmountMinor, e.Currency, e.Err)
}

func (e *GapError) Unwrap() []error {
	return []error{ErrReconciliationGap, e.Err}
}

// StatusNotifier is told about every transaction status change this service applies.
type StatusNotifier interface {
	NotifyTransactionStatus(t *models.PaymentTransaction)
}

type RefundInput struct {
	OrganizationID uint
	DonationID     uint
	// AmountMinor of zero refunds the whole remaining balance.
	AmountMinor int64
	Reason      string
	OperatorID  uint
}

// RefundHistory is an original donation with the refund rows recorded against it.
type RefundHistory struct {
	Donation *models.Donation
	Refunds  []models.Donation
}

// ReconciliationService is the only writer of transaction status and the only caller
// of the ledger aggregator.
type ReconciliationService struct {
	db             *gorm.DB
	gateway        payment.Gateway
	txRepo         *repository.TransactionRepository
	donationRepo   *repository.DonationRepository
	auditRepo      *repository.AuditLogRepository
	ledger         *repository.LedgerAggregator
	notifier       StatusNotifier
	notFoundBudget int
	log            *zap.Logger
}

func NewReconciliationService(
	db *gorm.DB,
	gateway payment.Gateway,
	txRepo *repository.TransactionRepository,
	donationRepo *repository.DonationRepository,
	auditRepo *repository.AuditLogRepository,
	ledger *repository.LedgerAggregator,
	notFoundBudget int,
	log *zap.Logger,
) *ReconciliationService {
	if notFoundBudget < 1 {
		notFoundBudget = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ReconciliationService{
		db:             db,
		gateway:        gateway,
		txRepo:         txRepo,
		donationRepo:   donationRepo,
		auditRepo:      auditRepo,
		ledger:         ledger,
		notFoundBudget: notFoundBudget,
		log:            log.Named("reconcile"),
	}
}

func (s *ReconciliationService) SetNotifier(n StatusNotifier) {
	s.notifier = n
}

// Reconcile syncs the transaction with the gateway's view of it.
func (s *ReconciliationService) Reconcile(ctx context.Context, externalID string) (*ReconcileResult, error) {
	t, err := s.txRepo.FindByExternalID(externalID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load transaction: %w", err)
	}
	return s.reconcile(ctx, t)
}

// ReconcileTransaction is Reconcile for a transaction the caller already loaded.
func (s *ReconciliationService) ReconcileTransaction(ctx context.Context, t *models.PaymentTransaction) (*ReconcileResult, error) {
	return s.reconcile(ctx, t)
}

func (s *ReconciliationService) reconcile(ctx context.Context, t *models.PaymentTransaction) (*ReconcileResult, error) {
	if t.IsTerminal() {
		return &ReconcileResult{Transaction: t, Outcome: OutcomeAlreadyReconciled}, nil
	}

	st, err := s.gateway.QueryStatus(ctx, t.ExternalID)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			return s.handleNotFound(t, err)
		}
		return nil, fmt.Errorf("query gateway status: %w", err)
	}

	switch st.Status {
	case domain.TransactionStatusCompleted:
		return s.complete(ctx, t)
	case domain.TransactionStatusCancelled, domain.TransactionStatusFailed:
		return s.close(t, st.Status)
	default:
		return &ReconcileResult{Transaction: t, Outcome: OutcomePending}, nil
	}
}

// complete performs the pending→completed transition and the donation insert in one
// database transaction, so a failed insert leaves the transaction pending for retry.
func (s *ReconciliationService) complete(ctx context.Context, t *models.PaymentTransaction) (*ReconcileResult, error) {
	var donation *models.Donation
	done := *t
	won := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.txRepo.WithTx(tx).TransitionStatus(t.ID, []string{domain.TransactionStatusPending}, domain.TransactionStatusCompleted)
		if err != nil || !ok {
			return err
		}
		won = true
		now := time.Now()
		done.Status = domain.TransactionStatusCompleted
		done.PaidAt = &now
		donation, err = s.materialize(tx, &done)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("complete transaction %s: %w", t.ExternalID, err)
	}
	if !won {
		return s.lost(t)
	}
	*t = done
	s.log.Info("transaction completed",
		zap.String("external_id", t.ExternalID),
		zap.String("transaction_id", t.TransactionID),
		zap.Uint("organization_id", t.OrganizationID),
		zap.Int64("amount", t.Amount),
		zap.String("currency", t.Currency),
	)
	s.notify(t)
	return &ReconcileResult{Transaction: t, Outcome: OutcomeApplied, Donation: donation}, nil
}

func (s *ReconciliationService) close(t *models.PaymentTransaction, status string) (*ReconcileResult, error) {
	ok, err := s.txRepo.TransitionStatus(t.ID, []string{domain.TransactionStatusPending}, status)
	if err != nil {
		return nil, fmt.Errorf("transition status: %w", err)
	}
	if !ok {
		return s.lost(t)
	}
	t.Status = status
	s.log.Info("transaction closed",
		zap.String("external_id", t.ExternalID),
		zap.String("status", status),
	)
	s.notify(t)
	return &ReconcileResult{Transaction: t, Outcome: OutcomeApplied}, nil
}

// lost reloads a transaction another caller has just transitioned.
func (s *ReconciliationService) lost(t *models.PaymentTransaction) (*ReconcileResult, error) {
	fresh, err := s.txRepo.GetByID(t.ID)
	if err != nil {
		return nil, fmt.Errorf("reload transaction: %w", err)
	}
	return &ReconcileResult{Transaction: fresh, Outcome: OutcomeAlreadyReconciled}, nil
}

func (s *ReconciliationService) handleNotFound(t *models.PaymentTransaction, gwErr error) (*ReconcileResult, error) {
	attempts, err := s.txRepo.IncrementNotFoundAttempts(t.ID)
	if err != nil {
		return nil, fmt.Errorf("count not-found attempt: %w", err)
	}
	s.log.Warn("gateway has no record of transaction",
		zap.String("external_id", t.ExternalID),
		zap.Int("attempt", attempts),
		zap.Int("budget", s.notFoundBudget),
	)
	if attempts < s.notFoundBudget {
		return nil, fmt.Errorf("query gateway status: %w", gwErr)
	}
	return s.close(t, domain.TransactionStatusFailed)
}

// MaterializeDonation records the donation for a completed transaction. Running it twice
// for the same transaction is a no-op that returns the existing row.
func (s *ReconciliationService) MaterializeDonation(ctx context.Context, t *models.PaymentTransaction) (*models.Donation, error) {
	var d *models.Donation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		d, err = s.materialize(tx, t)
		return err
	})
	return d, err
}

func (s *ReconciliationService) materialize(tx *gorm.DB, t *models.PaymentTransaction) (*models.Donation, error) {
	donations := s.donationRepo.WithTx(tx)
	d := donationFromTransaction(t)
	err := donations.Create(d)
	if errors.Is(err, repository.ErrDuplicateDonation) {
		s.log.Info("donation already recorded", zap.String("external_id", t.ExternalID))
		return donations.FindByTransactionExternalID(t.ExternalID)
	}
	if err != nil {
		return nil, fmt.Errorf("insert donation: %w", err)
	}
	if err := s.ledger.Apply(tx, d); err != nil {
		return nil, fmt.Errorf("update aggregates: %w", err)
	}
	orgID := d.OrganizationID
	if err := s.auditRepo.WithTx(tx).Create(&models.AuditLog{
		OrganizationID: &orgID,
		Action:         domain.AuditDonationMaterialized,
		Resource:       "donation",
		ResourceID:     fmt.Sprint(d.ID),
		Metadata: datatypes.JSONMap{
			"external_id": t.ExternalID,
			"amount":      d.Amount,
			"currency":    d.Currency,
		},
	}); err != nil {
		return nil, fmt.Errorf("audit donation: %w", err)
	}
	return d, nil
}

func donationFromTransaction(t *models.PaymentTransaction) *models.Donation {
	externalID := t.ExternalID
	txID := t.ID
	name := strings.TrimSpace(t.MetaString(domain.MetaDonorName))
	anonymous := t.MetaBool(domain.MetaIsAnonymous) || name == ""
	if anonymous {
		name = domain.AnonymousDonorName
	}
	paidAt := t.PaidAt
	if paidAt == nil {
		now := time.Now()
		paidAt = &now
	}
	return &models.Donation{
		OrganizationID:        t.OrganizationID,
		ProjectID:             t.MetaUint(domain.MetaProjectID),
		ProjectStageID:        t.MetaUint(domain.MetaProjectStageID),
		FundraiserID:          t.MetaUint(domain.MetaFundraiserID),
		PaymentTransactionID:  &txID,
		TransactionExternalID: &externalID,
		DonorName:             name,
		DonorEmail:            t.MetaString(domain.MetaDonorEmail),
		DonorPhone:            t.MetaString(domain.MetaDonorPhone),
		IsAnonymous:           anonymous,
		Amount:                t.Amount,
		Currency:              t.Currency,
		Status:                domain.DonationStatusCompleted,
		PaymentMethodSlug:     t.PaymentMethodSlug,
		Message:               t.MetaString(domain.MetaMessage),
		RegionID:              t.MetaUint(domain.MetaRegionID),
		LocalityID:            t.MetaUint(domain.MetaLocalityID),
		IsRecurring:           t.MetaBool(domain.MetaIsRecurring),
		RecurringPeriod:       t.MetaString(domain.MetaRecurringType),
		PaidAt:                paidAt,
	}
}

// Refund returns money for a completed donation and records a negative ledger row.
// The gateway call happens first; if the local write then fails, the returned error
// is a *GapError.
func (s *ReconciliationService) Refund(ctx context.Context, in RefundInput) (*models.Donation, error) {
	if in.AmountMinor < 0 {
		return nil, ErrInvalidAmount
	}
	original, err := s.donationRepo.GetForOrganization(in.OrganizationID, in.DonationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDonationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load donation: %w", err)
	}
	if original.IsRefund() || original.TransactionExternalID == nil {
		return nil, ErrDonationNotRefundable
	}
	t, err := s.txRepo.FindByExternalID(*original.TransactionExternalID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDonationNotRefundable
	}
	if err != nil {
		return nil, fmt.Errorf("load transaction: %w", err)
	}
	if t.Status != domain.TransactionStatusCompleted {
		return nil, ErrDonationNotRefundable
	}

	balance := original.RefundableBalance()
	if balance <= 0 {
		return nil, ErrAlreadyFullyRefunded
	}
	amount := in.AmountMinor
	if amount == 0 {
		amount = balance
	}
	if amount > balance {
		return nil, ErrRefundExceedsBalance
	}

	rf, err := s.gateway.CreateRefund(ctx, payment.RefundRequest{
		ExternalID:     t.ExternalID,
		AmountMinor:    amount,
		Currency:       original.Currency,
		Reason:         in.Reason,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		return nil, fmt.Errorf("gateway refund: %w", err)
	}

	refund := refundFromDonation(original, amount, rf.RefundID, in.Reason)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		donations := s.donationRepo.WithTx(tx)
		if err := donations.AddRefunded(original.ID, amount); err != nil {
			return err
		}
		if err := donations.Create(refund); err != nil {
			return err
		}
		if err := s.ledger.Apply(tx, refund); err != nil {
			return err
		}
		orgID := original.OrganizationID
		var operatorID *uint
		if in.OperatorID != 0 {
			operatorID = &in.OperatorID
		}
		return s.auditRepo.WithTx(tx).Create(&models.AuditLog{
			OperatorID:     operatorID,
			OrganizationID: &orgID,
			Action:         domain.AuditDonationRefunded,
			Resource:       "donation",
			ResourceID:     fmt.Sprint(original.ID),
			Metadata: datatypes.JSONMap{
				"refund_id": rf.RefundID,
				"amount":    amount,
				"currency":  original.Currency,
				"reason":    in.Reason,
			},
		})
	})
	if err != nil {
		gap := &GapError{
			Operation:      "refund",
			ExternalID:     t.ExternalID,
			RefundID:       rf.RefundID,
			OrganizationID: original.OrganizationID,
			AmountMinor:    amount,
			Currency:       original.Currency,
			Err:            err,
		}
		reportGap(s.log, s.auditRepo, gap)
		return nil, gap
	}
	s.log.Info("donation refunded",
		zap.Uint("donation_id", original.ID),
		zap.String("refund_id", rf.RefundID),
		zap.Int64("amount", amount),
		zap.String("currency", original.Currency),
	)
	return refund, nil
}

// RefundHistory loads an original donation of the organization and its refunds in
// creation order.
func (s *ReconciliationService) RefundHistory(orgID, donationID uint) (*RefundHistory, error) {
	original, err := s.donationRepo.GetForOrganization(orgID, donationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDonationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load donation: %w", err)
	}
	if original.IsRefund() {
		return nil, ErrDonationNotRefundable
	}
	refunds, err := s.donationRepo.ListRefunds(original.ID)
	if err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	return &RefundHistory{Donation: original, Refunds: refunds}, nil
}

func refundFromDonation(original *models.Donation, amount int64, refundID, reason string) *models.Donation {
	parentID := original.ID
	description := fmt.Sprintf("Возврат пожертвования #%d", original.ID)
	if reason = strings.TrimSpace(reason); reason != "" {
		description += ": " + reason
	}
	now := time.Now()
	return &models.Donation{
		OrganizationID:    original.OrganizationID,
		ProjectID:         original.ProjectID,
		ProjectStageID:    original.ProjectStageID,
		FundraiserID:      original.FundraiserID,
		RefundExternalID:  &refundID,
		ParentDonationID:  &parentID,
		DonorName:         original.DonorName,
		DonorEmail:        original.DonorEmail,
		DonorPhone:        original.DonorPhone,
		IsAnonymous:       original.IsAnonymous,
		Amount:            -amount,
		Currency:          original.Currency,
		Status:            domain.DonationStatusRefund,
		PaymentMethodSlug: original.PaymentMethodSlug,
		Description:       truncateRunes(description, 255),
		RegionID:          original.RegionID,
		LocalityID:        original.LocalityID,
		PaidAt:            &now,
	}
}

func (s *ReconciliationService) notify(t *models.PaymentTransaction) {
	if s.notifier != nil {
		s.notifier.NotifyTransactionStatus(t)
	}
}

// reportGap logs at error level and leaves an audit row for manual reconciliation.
func reportGap(log *zap.Logger, audit *repository.AuditLogRepository, gap *GapError) {
	log.Error("reconciliation gap: manual reconciliation required",
		zap.String("operation", gap.Operation),
		zap.String("external_id", gap.ExternalID),
		zap.String("refund_id", gap.RefundID),
		zap.Uint("organization_id", gap.OrganizationID),
		zap.Int64("amount", gap.AmountMinor),
		zap.String("currency", gap.Currency),
		zap.Error(gap.Err),
	)
	orgID := gap.OrganizationID
	if err := audit.Create(&models.AuditLog{
		OrganizationID: &orgID,
		Action:         domain.AuditReconciliationGap,
		Resource:       gap.Operation,
		ResourceID:     gap.ExternalID,
		Metadata: datatypes.JSONMap{
			"refund_id": gap.RefundID,
			"amount":    gap.AmountMinor,
			"currency":  gap.Currency,
			"error":     gap.Err.Error(),
		},
	}); err != nil {
		log.Error("audit reconciliation gap", zap.String("external_id", gap.ExternalID), zap.Error(err))
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
