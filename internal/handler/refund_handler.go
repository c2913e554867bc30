package handler

import (
	"net/http"

	"github.com/aligovro/newschools-sub000/internal/middleware"
	"github.com/aligovro/newschools-sub000/internal/service"
	"github.com/aligovro/newschools-sub000/pkg/money"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type RefundHandler struct {
	recon *service.ReconciliationService
}

func NewRefundHandler(recon *service.ReconciliationService) *RefundHandler {
	return &RefundHandler{recon: recon}
}

type refundRequest struct {
	// Amount defaults to the whole refundable balance.
	Amount *decimal.Decimal `json:"amount" binding:"omitempty,money"`
	Reason string           `json:"reason" binding:"max=255"`
}

// Refund handles POST /organizations/:org/donations/:donation/refund.
func (h *RefundHandler) Refund(c *gin.Context) {
	orgID, ok := parseID(c, "org")
	if !ok {
		respondError(c, http.StatusNotFound, "organization not found")
		return
	}
	donationID, ok := parseID(c, "donation")
	if !ok {
		respondError(c, http.StatusNotFound, "donation not found")
		return
	}
	var req refundRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}
	var amount int64
	if req.Amount != nil {
		var err error
		if amount, err = money.ToMinor(*req.Amount); err != nil {
			respondValidation(c, map[string]string{"amount": err.Error()})
			return
		}
	}

	refund, err := h.recon.Refund(c.Request.Context(), service.RefundInput{
		OrganizationID: orgID,
		DonationID:     donationID,
		AmountMinor:    amount,
		Reason:         req.Reason,
		OperatorID:     middleware.GetOperatorID(c),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, gin.H{
		"refund":           refund,
		"formatted_amount": money.Format(-refund.Amount),
	})
}

// List handles GET /organizations/:org/donations/:donation/refunds.
func (h *RefundHandler) List(c *gin.Context) {
	orgID, ok := parseID(c, "org")
	if !ok {
		respondError(c, http.StatusNotFound, "organization not found")
		return
	}
	donationID, ok := parseID(c, "donation")
	if !ok {
		respondError(c, http.StatusNotFound, "donation not found")
		return
	}
	history, err := h.recon.RefundHistory(orgID, donationID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	balance := history.Donation.RefundableBalance()
	respondOK(c, gin.H{
		"donation":                     history.Donation,
		"refunds":                      history.Refunds,
		"refundable_balance":           balance,
		"formatted_refundable_balance": money.Format(balance),
	})
}
