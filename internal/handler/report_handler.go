package handler

import (
	"net/http"
	"strconv"

	"github.com/aligovro/newschools-sub000/internal/repository"
	"github.com/aligovro/newschools-sub000/pkg/money"

	"github.com/gin-gonic/gin"
)

type ReportHandler struct {
	reports *repository.ReportRepository
}

func NewReportHandler(reports *repository.ReportRepository) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// ListDonations handles GET /organizations/:org/donations?page=&limit=.
func (h *ReportHandler) ListDonations(c *gin.Context) {
	orgID, ok := parseID(c, "org")
	if !ok {
		respondError(c, http.StatusNotFound, "organization not found")
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	list, total, err := h.reports.ListDonations(orgID, page, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to list donations")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    list,
		"meta":    gin.H{"page": page, "limit": limit, "total": total},
	})
}

type currencyTotals struct {
	Currency           string `json:"currency"`
	CollectedAmount    int64  `json:"collected_amount"`
	CollectedFormatted string `json:"collected_formatted"`
	RefundedAmount     int64  `json:"refunded_amount"`
	DonationsCount     int64  `json:"donations_count"`
}

// Stats handles GET /organizations/:org/donations/stats?days=.
func (h *ReportHandler) Stats(c *gin.Context) {
	orgID, ok := parseID(c, "org")
	if !ok {
		respondError(c, http.StatusNotFound, "organization not found")
		return
	}
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days < 1 || days > 365 {
		days = 30
	}
	stats, err := h.reports.StatsByCurrency(orgID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to load stats")
		return
	}
	daily, err := h.reports.DonationsByDay(orgID, days)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to load stats")
		return
	}
	totals := make([]currencyTotals, 0, len(stats))
	for _, s := range stats {
		totals = append(totals, currencyTotals{
			Currency:           s.Currency,
			CollectedAmount:    s.CollectedAmount,
			CollectedFormatted: money.Format(s.CollectedAmount),
			RefundedAmount:     s.RefundedAmount,
			DonationsCount:     s.DonationsCount,
		})
	}
	if daily == nil {
		daily = []repository.DailyDonationPoint{}
	}
	respondOK(c, gin.H{"totals": totals, "daily": daily, "days": days})
}
