package repository

import (
	"fmt"
	"time"

	"github.com/aligovro/newschools-sub000/internal/models"

	"gorm.io/gorm"
)

type DailyDonationPoint struct {
	Date     string `json:"date"`
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"` // net of refunds, minor units
	Count    int64  `json:"count"`
}

type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// ListDonations returns an organization's ledger rows, refunds included, newest first.
func (r *ReportRepository) ListDonations(orgID uint, page, limit int) ([]models.Donation, int64, error) {
	q := r.db.Model(&models.Donation{}).Where("organization_id = ?", orgID).Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Donation
	err := q.Order("created_at DESC, id DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

func (r *ReportRepository) StatsByCurrency(orgID uint) ([]models.OrganizationStat, error) {
	var list []models.OrganizationStat
	err := r.db.Where("organization_id = ?", orgID).Order("currency ASC").Find(&list).Error
	return list, err
}

const dayLayout = "2006-01-02"

// reportDay normalizes the result of DATE(): MySQL with parseTime yields time.Time,
// sqlite yields text.
type reportDay string

func (d *reportDay) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case time.Time:
		*d = reportDay(v.Format(dayLayout))
		return nil
	case []byte:
		raw = string(v)
	case string:
		raw = v
	case nil:
		*d = ""
		return nil
	default:
		return fmt.Errorf("report day: unsupported type %T", src)
	}
	if len(raw) < len(dayLayout) {
		return fmt.Errorf("report day: malformed value %q", raw)
	}
	day, err := time.Parse(dayLayout, raw[:len(dayLayout)])
	if err != nil {
		return fmt.Errorf("report day: %w", err)
	}
	*d = reportDay(day.Format(dayLayout))
	return nil
}

type dailyRow struct {
	Day      reportDay
	Currency string
	Amount   int64
	Count    int64
}

// DonationsByDay returns daily net amounts and donation counts for the last N days.
// Dates are formatted as YYYY-MM-DD on every driver.
func (r *ReportRepository) DonationsByDay(orgID uint, days int) ([]DailyDonationPoint, error) {
	since := time.Now().AddDate(0, 0, -days)
	var rows []dailyRow
	err := r.db.Model(&models.Donation{}).
		Select("DATE(created_at) as day, currency, COALESCE(SUM(amount), 0) as amount, "+
			"SUM(CASE WHEN parent_donation_id IS NULL THEN 1 ELSE 0 END) as count").
		Where("organization_id = ? AND created_at >= ?", orgID, since).
		Group("DATE(created_at), currency").
		Order("day ASC, currency ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	points := make([]DailyDonationPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, DailyDonationPoint{
			Date:     string(row.Day),
			Currency: row.Currency,
			Amount:   row.Amount,
			Count:    row.Count,
		})
	}
	return points, nil
}
