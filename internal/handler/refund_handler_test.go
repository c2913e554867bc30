package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aligovro/newschools-sub000/config"
	"github.com/aligovro/newschools-sub000/internal/models"
	"github.com/aligovro/newschools-sub000/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) refundPath(donationID uint) string {
	return fmt.Sprintf("/organizations/%d/donations/%d/refund", e.org.ID, donationID)
}

func TestRefund_PartialThenRemainder(t *testing.T) {
	e := newTestEnv(t, config.PaymentConfig{})
	d := e.completeDonation(t, "500")

	w := e.postJSON(t, e.refundPath(d.ID), gin.H{"amount": "200", "reason": "Ошибка в сумме"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "200.00", data["formatted_amount"])
	refund := data["refund"].(map[string]interface{})
	assert.Equal(t, float64(-20000), refund["amount"])
	assert.Equal(t, float64(d.ID), refund["parent_donation_id"])

	// More than the remaining 300.00.
	w = e.postJSON(t, e.refundPath(d.ID), gin.H{"amount": "400"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// No body refunds whatever is left.
	w = e.do(httptest.NewRequest(http.MethodPost, e.refundPath(d.ID), nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "300.00", decode(t, w)["data"].(map[string]interface{})["formatted_amount"])

	w = e.do(httptest.NewRequest(http.MethodPost, e.refundPath(d.ID), nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	original := testutil.Reload[models.Donation](t, e.db, d.ID)
	assert.Equal(t, int64(50000), original.RefundedAmount)
	assert.Equal(t, int64(50000), e.sandbox.Refunded(*d.TransactionExternalID))
	assert.Equal(t, int64(0), testutil.Reload[models.Project](t, e.db, e.project.ID).CollectedAmount)
}

func TestRefund_Errors(t *testing.T) {
	e := newTestEnv(t, config.PaymentConfig{})
	d := e.completeDonation(t, "100")

	assert.Equal(t, http.StatusNotFound, e.postJSON(t, e.refundPath(9999), gin.H{}).Code)
	assert.Equal(t, http.StatusNotFound, e.postJSON(t, fmt.Sprintf("/organizations/%d/donations/x/refund", e.org.ID), gin.H{}).Code)

	w := e.postJSON(t, e.refundPath(d.ID), gin.H{"amount": "0.001"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decode(t, w)["errors"], "amount")

	w = e.postJSON(t, e.refundPath(d.ID), `{"amount":`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	e.sandbox.FailNext(1)
	assert.Equal(t, http.StatusServiceUnavailable, e.postJSON(t, e.refundPath(d.ID), gin.H{"amount": "10"}).Code)
	assert.Zero(t, testutil.Reload[models.Donation](t, e.db, d.ID).RefundedAmount)

	w = e.postJSON(t, e.refundPath(d.ID), gin.H{"amount": "10"})
	require.Equal(t, http.StatusOK, w.Code)
	refundID := uint(decode(t, w)["data"].(map[string]interface{})["refund"].(map[string]interface{})["id"].(float64))
	assert.Equal(t, http.StatusBadRequest, e.postJSON(t, e.refundPath(refundID), gin.H{}).Code)

	// Donations of another organization are invisible.
	other := testutil.CreateOrganization(t, e.db, "school-9")
	path := fmt.Sprintf("/organizations/%d/donations/%d/refund", other.ID, d.ID)
	assert.Equal(t, http.StatusNotFound, e.postJSON(t, path, gin.H{}).Code)
}

func TestRefund_List(t *testing.T) {
	e := newTestEnv(t, config.PaymentConfig{})
	d := e.completeDonation(t, "500")
	listPath := fmt.Sprintf("/organizations/%d/donations/%d/refunds", e.org.ID, d.ID)

	w := e.get(listPath)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Empty(t, data["refunds"])
	assert.Equal(t, "500.00", data["formatted_refundable_balance"])

	for _, amount := range []string{"120", "30"} {
		require.Equal(t, http.StatusOK, e.postJSON(t, e.refundPath(d.ID), gin.H{"amount": amount}).Code)
	}

	w = e.get(listPath)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data = decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(35000), data["refundable_balance"])
	assert.Equal(t, "350.00", data["formatted_refundable_balance"])
	refunds := data["refunds"].([]interface{})
	require.Len(t, refunds, 2)
	first := refunds[0].(map[string]interface{})
	assert.Equal(t, float64(-12000), first["amount"])
	assert.Equal(t, float64(d.ID), first["parent_donation_id"])
	assert.Nil(t, first["payment_transaction_id"])
	assert.Equal(t, float64(-3000), refunds[1].(map[string]interface{})["amount"])

	refundID := uint(first["id"].(float64))
	assert.Equal(t, http.StatusBadRequest, e.get(fmt.Sprintf("/organizations/%d/donations/%d/refunds", e.org.ID, refundID)).Code)
	assert.Equal(t, http.StatusNotFound, e.get(fmt.Sprintf("/organizations/%d/donations/9999/refunds", e.org.ID)).Code)
	other := testutil.CreateOrganization(t, e.db, "school-9")
	assert.Equal(t, http.StatusNotFound, e.get(fmt.Sprintf("/organizations/%d/donations/%d/refunds", other.ID, d.ID)).Code)
}

func TestReports(t *testing.T) {
	e := newTestEnv(t, config.PaymentConfig{})
	first := e.completeDonation(t, "100")
	e.completeDonation(t, "250.25")
	e.startDonation(t, "999")
	w := e.postJSON(t, e.refundPath(first.ID), gin.H{"amount": "40"})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.get(fmt.Sprintf("/organizations/%d/donations?limit=2", e.org.ID))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["data"], 2)
	meta := body["meta"].(map[string]interface{})
	assert.Equal(t, float64(3), meta["total"])
	assert.Equal(t, float64(2), meta["limit"])

	w = e.get(fmt.Sprintf("/organizations/%d/donations/stats?days=7", e.org.ID))
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(7), data["days"])
	totals := data["totals"].([]interface{})
	require.Len(t, totals, 1)
	rub := totals[0].(map[string]interface{})
	assert.Equal(t, "RUB", rub["currency"])
	assert.Equal(t, float64(31025), rub["collected_amount"])
	assert.Equal(t, "310.25", rub["collected_formatted"])
	assert.Equal(t, float64(4000), rub["refunded_amount"])
	assert.Equal(t, float64(2), rub["donations_count"])
	assert.NotEmpty(t, data["daily"])
}
