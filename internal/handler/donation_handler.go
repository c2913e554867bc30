package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/aligovro/newschools-sub000/internal/service"
	"github.com/aligovro/newschools-sub000/pkg/money"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type DonationHandler struct {
	donations *service.DonationService
}

func NewDonationHandler(donations *service.DonationService) *DonationHandler {
	return &DonationHandler{donations: donations}
}

type createDonationRequest struct {
	Amount            decimal.Decimal `json:"amount" binding:"required,money"`
	Currency          string          `json:"currency" binding:"required,oneof=RUB USD EUR"`
	PaymentMethodSlug string          `json:"payment_method_slug" binding:"required,oneof=bank_card sbp sberbank yoo_money tinkoff_bank"`
	FundraiserID      *uint           `json:"fundraiser_id" binding:"omitempty,min=1"`
	ProjectID         *uint           `json:"project_id" binding:"omitempty,min=1"`
	ProjectStageID    *uint           `json:"project_stage_id" binding:"omitempty,min=1"`
	RegionID          *uint           `json:"region_id" binding:"omitempty,min=1"`
	LocalityID        *uint           `json:"locality_id" binding:"omitempty,min=1"`
	DonorName         string          `json:"donor_name" binding:"max=255"`
	DonorEmail        string          `json:"donor_email" binding:"omitempty,email,max=255"`
	DonorPhone        string          `json:"donor_phone" binding:"max=32"`
	IsAnonymous       bool            `json:"is_anonymous"`
	Message           string          `json:"message" binding:"max=1000"`
	IsRecurring       bool            `json:"is_recurring"`
	RecurringPeriod   string          `json:"recurring_period" binding:"omitempty,oneof=daily weekly monthly"`
}

// Create handles POST /organizations/:org/donation.
func (h *DonationHandler) Create(c *gin.Context) {
	orgID, ok := parseID(c, "org")
	if !ok {
		respondError(c, http.StatusNotFound, "organization not found")
		return
	}
	var req createDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if req.IsRecurring && req.RecurringPeriod == "" {
		respondValidation(c, map[string]string{"recurring_period": "is required for recurring donations"})
		return
	}
	amount, err := money.ToMinor(req.Amount)
	if err != nil {
		respondValidation(c, map[string]string{"amount": err.Error()})
		return
	}

	res, err := h.donations.CreateDonation(c.Request.Context(), service.CreateDonationInput{
		OrganizationID:    orgID,
		AmountMinor:       amount,
		Currency:          req.Currency,
		PaymentMethodSlug: req.PaymentMethodSlug,
		ProjectID:         req.ProjectID,
		ProjectStageID:    req.ProjectStageID,
		FundraiserID:      req.FundraiserID,
		RegionID:          req.RegionID,
		LocalityID:        req.LocalityID,
		DonorName:         strings.TrimSpace(req.DonorName),
		DonorEmail:        strings.TrimSpace(req.DonorEmail),
		DonorPhone:        strings.TrimSpace(req.DonorPhone),
		IsAnonymous:       req.IsAnonymous,
		Message:           req.Message,
		IsRecurring:       req.IsRecurring,
		RecurringPeriod:   req.RecurringPeriod,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, gin.H{
		"transactionId": res.Transaction.TransactionID,
		"redirectUrl":   res.RedirectURL,
	})
}

type transactionStatusResponse struct {
	TransactionID   string     `json:"transaction_id"`
	Status          string     `json:"status"`
	Amount          int64      `json:"amount"`
	FormattedAmount string     `json:"formatted_amount"`
	Currency        string     `json:"currency"`
	PaymentMethod   string     `json:"payment_method"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	PaidAt          *time.Time `json:"paid_at"`
}

// Status handles GET /donation/status/:transactionId.
func (h *DonationHandler) Status(c *gin.Context) {
	t, err := h.donations.GetStatus(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, transactionStatusResponse{
		TransactionID:   t.TransactionID,
		Status:          t.Status,
		Amount:          t.Amount,
		FormattedAmount: money.Format(t.Amount),
		Currency:        t.Currency,
		PaymentMethod:   t.PaymentMethodSlug,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		PaidAt:          t.PaidAt,
	})
}
