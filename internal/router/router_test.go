package router

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aligovro/newschools-sub000/config"
	"github.com/aligovro/newschools-sub000/internal/auth"
	"github.com/aligovro/newschools-sub000/internal/domain"
	"github.com/aligovro/newschools-sub000/internal/handler"
	"github.com/aligovro/newschools-sub000/internal/testutil"
	"github.com/aligovro/newschools-sub000/pkg/payment"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_Routes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Server:    config.ServerConfig{Env: "test"},
		JWT:       config.JWTConfig{AccessSecret: "router-secret", AccessExpiry: time.Hour, Issuer: "newschools"},
		Payment:   config.PaymentConfig{ReturnBaseURL: "http://localhost:8099", NotFoundRetryBudget: 3, DefaultDescription: "Пожертвование"},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
	}
	db := testutil.NewDB(t)
	org := testutil.CreateOrganization(t, db, "school-1")
	other := testutil.CreateOrganization(t, db, "school-2")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r, err := Setup(ctx, cfg, db, payment.NewSandboxGateway(cfg.Payment.ReturnBaseURL), nil)
	require.NoError(t, err)

	do := func(method, path, body, token string) int {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	orgAdmin, err := auth.GenerateAccessToken(&cfg.JWT, 5, org.ID, domain.RoleOrganizationAdmin)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/health", "", ""))
	assert.Equal(t, http.StatusOK, do(http.MethodPost, fmt.Sprintf("/organizations/%d/donation", org.ID),
		`{"amount":"10","currency":"RUB","payment_method_slug":"bank_card"}`, ""))
	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/donation/status/missing", "", ""))
	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/payment/return", "", ""))
	assert.Equal(t, http.StatusOK, do(http.MethodPost, fmt.Sprintf("/organizations/%d/payments/yookassa-webhook", org.ID),
		`{"object":{"id":"unknown"}}`, ""))

	donations := fmt.Sprintf("/organizations/%d/donations", org.ID)
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, donations, "", ""))
	assert.Equal(t, http.StatusOK, do(http.MethodGet, donations, "", orgAdmin))
	assert.Equal(t, http.StatusOK, do(http.MethodGet, donations+"/stats", "", orgAdmin))
	assert.Equal(t, http.StatusForbidden, do(http.MethodGet, fmt.Sprintf("/organizations/%d/donations", other.ID), "", orgAdmin))
	assert.Equal(t, http.StatusNotFound, do(http.MethodPost, donations+"/77/refund", "", orgAdmin))
}

func TestSetup_ProductionRequiresWebhookAuth(t *testing.T) {
	t.Cleanup(func() { gin.SetMode(gin.TestMode) })
	cfg := &config.Config{
		Server:    config.ServerConfig{Env: "production"},
		JWT:       config.JWTConfig{AccessSecret: "router-secret", AccessExpiry: time.Hour, Issuer: "newschools"},
		Payment:   config.PaymentConfig{ReturnBaseURL: "http://localhost:8099", NotFoundRetryBudget: 3},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
	}
	db := testutil.NewDB(t)
	org := testutil.CreateOrganization(t, db, "school-1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := Setup(ctx, cfg, db, payment.NewSandboxGateway(cfg.Payment.ReturnBaseURL), nil)
	require.ErrorIs(t, err, handler.ErrWebhookAuthNotConfigured)

	cfg.Payment.WebhookSecret = "whsec_prod"
	r, err := Setup(ctx, cfg, db, payment.NewSandboxGateway(cfg.Payment.ReturnBaseURL), nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/organizations/%d/payments/yookassa-webhook", org.ID),
		strings.NewReader(`{"object":{"id":"forged"}}`))
	req.RemoteAddr = "203.0.113.66:4000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
