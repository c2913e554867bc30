package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aligovro/newschools-sub000/config"
	"github.com/aligovro/newschools-sub000/internal/models"
	"github.com/aligovro/newschools-sub000/internal/repository"
	"github.com/aligovro/newschools-sub000/internal/service"
	"github.com/aligovro/newschools-sub000/internal/testutil"
	"github.com/aligovro/newschools-sub000/pkg/payment"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
	RegisterValidators()
}

type testEnv struct {
	db      *gorm.DB
	sandbox *payment.SandboxGateway
	recon   *service.ReconciliationService
	router  *gin.Engine
	org     *models.Organization
	project *models.Project
}

// newTestEnv mounts the public and operator routes without authentication.
func newTestEnv(t *testing.T, payCfg config.PaymentConfig) *testEnv {
	t.Helper()
	return newTestEnvOn(t, testutil.NewDB(t), payCfg)
}

func newTestEnvOn(t *testing.T, db *gorm.DB, payCfg config.PaymentConfig) *testEnv {
	t.Helper()
	sandbox := payment.NewSandboxGateway("http://localhost:8099")
	txRepo := repository.NewTransactionRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	recon := service.NewReconciliationService(db, sandbox, txRepo, repository.NewDonationRepository(db), auditRepo,
		repository.NewLedgerAggregator(), 3, nil)
	donations := service.NewDonationService(sandbox, txRepo, repository.NewOrganizationRepository(db), auditRepo, recon,
		"http://localhost:8099", "Пожертвование", nil)
	webhook, err := NewWebhookHandler(recon, txRepo, auditRepo, &payCfg, false, nil)
	require.NoError(t, err)

	r := gin.New()
	donationHandler := NewDonationHandler(donations)
	r.POST("/organizations/:org/donation", donationHandler.Create)
	r.GET("/donation/status/:transactionId", donationHandler.Status)
	r.GET("/payment/return", NewReturnHandler(donations, nil).Show)
	r.POST("/organizations/:org/payments/yookassa-webhook", webhook.Handle)
	r.GET("/sandbox/checkout/:id", NewSandboxHandler(sandbox, recon, nil).Checkout)
	reports := NewReportHandler(repository.NewReportRepository(db))
	r.GET("/organizations/:org/donations", reports.ListDonations)
	r.GET("/organizations/:org/donations/stats", reports.Stats)
	refunds := NewRefundHandler(recon)
	r.POST("/organizations/:org/donations/:donation/refund", refunds.Refund)
	r.GET("/organizations/:org/donations/:donation/refunds", refunds.List)

	org := testutil.CreateOrganization(t, db, "school-7")
	return &testEnv{
		db:      db,
		sandbox: sandbox,
		recon:   recon,
		router:  r,
		org:     org,
		project: testutil.CreateProject(t, db, org.ID, "Библиотека"),
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) postJSON(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return e.do(req)
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (e *testEnv) donationPath() string {
	return fmt.Sprintf("/organizations/%d/donation", e.org.ID)
}

func (e *testEnv) webhookPath() string {
	return fmt.Sprintf("/organizations/%d/payments/yookassa-webhook", e.org.ID)
}

// startDonation creates a pending donation through the API.
func (e *testEnv) startDonation(t *testing.T, amount string) *models.PaymentTransaction {
	t.Helper()
	w := e.postJSON(t, e.donationPath(), gin.H{
		"amount":              amount,
		"currency":            "RUB",
		"payment_method_slug": "bank_card",
		"project_id":          e.project.ID,
		"donor_name":          "Иван Сидоров",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Data struct {
			TransactionID string `json:"transactionId"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	t2, err := repository.NewTransactionRepository(e.db).FindByTransactionID(resp.Data.TransactionID)
	require.NoError(t, err)
	return t2
}

// completeDonation pays a donation and delivers the webhook.
func (e *testEnv) completeDonation(t *testing.T, amount string) *models.Donation {
	t.Helper()
	tx := e.startDonation(t, amount)
	require.NoError(t, e.sandbox.Complete(tx.ExternalID))
	w := e.postJSON(t, e.webhookPath(), webhookBody(tx.ExternalID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	d, err := repository.NewDonationRepository(e.db).FindByTransactionExternalID(tx.ExternalID)
	require.NoError(t, err)
	return d
}

func webhookBody(externalID string) string {
	return fmt.Sprintf(`{"type":"notification","event":"payment.succeeded","object":{"id":%q,"status":"succeeded"}}`, externalID)
}

func (e *testEnv) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Count(&n).Error)
	return n
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
