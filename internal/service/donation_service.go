package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

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
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrProjectNotFound      = errors.New("project not found")
	ErrInvalidAmount        = errors.New("amount must be positive")
)

// Gateways cap metadata values; YooKassa allows 512 characters.
const maxMetadataValueLen = 512

// CreateDonationInput is a donation request after edge validation; amounts are
// already in minor units.
type CreateDonationInput struct {
	OrganizationID    uint
	AmountMinor       int64
	Currency          string
	PaymentMethodSlug string
	ProjectID         *uint
	ProjectStageID    *uint
	FundraiserID      *uint
	RegionID          *uint
	LocalityID        *uint
	DonorName         string
	DonorEmail        string
	DonorPhone        string
	IsAnonymous       bool
	Message           string
	IsRecurring       bool
	RecurringPeriod   string
}

type CreateDonationResult struct {
	Transaction *models.PaymentTransaction
	RedirectURL string
}

// DonationService starts payments and answers status lookups. It never writes
// status itself; that is left to ReconciliationService.
type DonationService struct {
	gateway            payment.Gateway
	txRepo             *repository.TransactionRepository
	orgRepo            *repository.OrganizationRepository
	auditRepo          *repository.AuditLogRepository
	reconciler         *ReconciliationService
	returnBaseURL      string
	defaultDescription string
	log                *zap.Logger
}

func NewDonationService(
	gateway payment.Gateway,
	txRepo *repository.TransactionRepository,
	orgRepo *repository.OrganizationRepository,
	auditRepo *repository.AuditLogRepository,
	reconciler *ReconciliationService,
	returnBaseURL, defaultDescription string,
	log *zap.Logger,
) *DonationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &DonationService{
		gateway:            gateway,
		txRepo:             txRepo,
		orgRepo:            orgRepo,
		auditRepo:          auditRepo,
		reconciler:         reconciler,
		returnBaseURL:      strings.TrimRight(returnBaseURL, "/"),
		defaultDescription: defaultDescription,
		log:                log.Named("donation"),
	}
}

// CreateDonation creates the gateway charge and records the pending transaction.
func (s *DonationService) CreateDonation(ctx context.Context, in CreateDonationInput) (*CreateDonationResult, error) {
	if in.AmountMinor <= 0 {
		return nil, ErrInvalidAmount
	}
	org, err := s.orgRepo.GetByID(in.OrganizationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrganizationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load organization: %w", err)
	}

	description := fmt.Sprintf("%s: %s", s.defaultDescription, org.Name)
	if in.ProjectID != nil {
		project, err := s.orgRepo.GetProject(org.ID, *in.ProjectID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("load project: %w", err)
		}
		description = fmt.Sprintf("%s: %s", s.defaultDescription, project.Title)
		if in.ProjectStageID != nil {
			if _, err := s.orgRepo.GetStage(project.ID, *in.ProjectStageID); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, ErrProjectNotFound
				}
				return nil, fmt.Errorf("load project stage: %w", err)
			}
		}
	} else if in.ProjectStageID != nil {
		return nil, ErrProjectNotFound
	}

	transactionID := uuid.NewString()
	idempotencyKey := uuid.NewString()
	meta := donationMetadata(transactionID, in)

	charge, err := s.gateway.CreateCharge(ctx, payment.ChargeRequest{
		AmountMinor:    in.AmountMinor,
		Currency:       in.Currency,
		Description:    description,
		ReturnURL:      s.returnURL(transactionID),
		PaymentMethod:  in.PaymentMethodSlug,
		Metadata:       meta,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create charge: %w", err)
	}

	jsonMeta := make(datatypes.JSONMap, len(meta))
	for k, v := range meta {
		jsonMeta[k] = v
	}
	t := &models.PaymentTransaction{
		TransactionID:     transactionID,
		ExternalID:        charge.ExternalID,
		OrganizationID:    org.ID,
		Amount:            in.AmountMinor,
		Currency:          in.Currency,
		Status:            domain.TransactionStatusPending,
		PaymentMethodSlug: in.PaymentMethodSlug,
		Gateway:           s.gateway.Name(),
		IdempotencyKey:    idempotencyKey,
		ConfirmationURL:   charge.RedirectURL,
		Metadata:          jsonMeta,
	}
	if err := s.txRepo.Create(t); err != nil {
		gap := &GapError{
			Operation:      "charge",
			ExternalID:     charge.ExternalID,
			OrganizationID: org.ID,
			AmountMinor:    in.AmountMinor,
			Currency:       in.Currency,
			Err:            err,
		}
		reportGap(s.log, s.auditRepo, gap)
		return nil, gap
	}

	s.log.Info("donation started",
		zap.String("transaction_id", transactionID),
		zap.String("external_id", charge.ExternalID),
		zap.Uint("organization_id", org.ID),
		zap.Int64("amount", in.AmountMinor),
		zap.String("currency", in.Currency),
	)
	return &CreateDonationResult{Transaction: t, RedirectURL: charge.RedirectURL}, nil
}

// GetStatus returns the transaction behind a public transaction id. A pending
// transaction is reconciled first on a best-effort basis; gateway trouble only means
// the caller sees the stored status.
func (s *DonationService) GetStatus(ctx context.Context, transactionID string) (*models.PaymentTransaction, error) {
	t, err := s.txRepo.FindByTransactionID(transactionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load transaction: %w", err)
	}
	if t.IsTerminal() || s.reconciler == nil {
		return t, nil
	}
	res, err := s.reconciler.ReconcileTransaction(ctx, t)
	if err != nil {
		s.log.Warn("best-effort reconcile failed",
			zap.String("transaction_id", transactionID),
			zap.String("external_id", t.ExternalID),
			zap.Error(err),
		)
		return t, nil
	}
	return res.Transaction, nil
}

func (s *DonationService) returnURL(transactionID string) string {
	return s.returnBaseURL + "/payment/return?transaction_id=" + url.QueryEscape(transactionID)
}

func donationMetadata(transactionID string, in CreateDonationInput) map[string]string {
	meta := map[string]string{
		domain.MetaTransactionID:  transactionID,
		domain.MetaOrganizationID: strconv.FormatUint(uint64(in.OrganizationID), 10),
		domain.MetaIsAnonymous:    strconv.FormatBool(in.IsAnonymous),
	}
	set := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			meta[key] = value
		}
	}
	setID := func(key string, id *uint) {
		if id != nil && *id != 0 {
			meta[key] = strconv.FormatUint(uint64(*id), 10)
		}
	}
	set(domain.MetaDonorName, in.DonorName)
	set(domain.MetaDonorEmail, in.DonorEmail)
	set(domain.MetaDonorPhone, in.DonorPhone)
	set(domain.MetaMessage, truncateRunes(in.Message, maxMetadataValueLen))
	setID(domain.MetaProjectID, in.ProjectID)
	setID(domain.MetaProjectStageID, in.ProjectStageID)
	setID(domain.MetaFundraiserID, in.FundraiserID)
	setID(domain.MetaRegionID, in.RegionID)
	setID(domain.MetaLocalityID, in.LocalityID)
	if in.IsRecurring {
		meta[domain.MetaIsRecurring] = "true"
		set(domain.MetaRecurringType, in.RecurringPeriod)
	}
	return meta
}
