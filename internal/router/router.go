package router

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aligovro/newschools-sub000/config"
	"github.com/aligovro/newschools-sub000/internal/domain"
	"github.com/aligovro/newschools-sub000/internal/handler"
	"github.com/aligovro/newschools-sub000/internal/middleware"
	"github.com/aligovro/newschools-sub000/internal/models"
	"github.com/aligovro/newschools-sub000/internal/repository"
	"github.com/aligovro/newschools-sub000/internal/service"
	"github.com/aligovro/newschools-sub000/internal/ws"
	"github.com/aligovro/newschools-sub000/pkg/payment"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Setup wires repositories, services and handlers. Background work started here stops
// when ctx is cancelled.
func Setup(ctx context.Context, cfg *config.Config, db *gorm.DB, gateway payment.Gateway, log *zap.Logger) (*gin.Engine, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = zap.NewNop()
	}
	handler.RegisterValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	// Skip gin.Logger() to reduce log noise; use gin.Default() if you need request logging
	limiter := middleware.NewIPRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	go limiter.Cleanup(ctx.Done())
	rateMw := middleware.RateLimit(limiter)

	// Repositories
	txRepo := repository.NewTransactionRepository(db)
	donationRepo := repository.NewDonationRepository(db)
	orgRepo := repository.NewOrganizationRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	reportRepo := repository.NewReportRepository(db)
	ledger := repository.NewLedgerAggregator()

	statusHub := ws.NewHub()

	// Services
	reconSvc := service.NewReconciliationService(db, gateway, txRepo, donationRepo, auditRepo, ledger,
		cfg.Payment.NotFoundRetryBudget, log)
	reconSvc.SetNotifier(statusHub)
	donationSvc := service.NewDonationService(gateway, txRepo, orgRepo, auditRepo, reconSvc,
		cfg.Payment.ReturnBaseURL, cfg.Payment.DefaultDescription, log)

	// Handlers
	donationHandler := handler.NewDonationHandler(donationSvc)
	returnHandler := handler.NewReturnHandler(donationSvc, log)
	refundHandler := handler.NewRefundHandler(reconSvc)
	reportHandler := handler.NewReportHandler(reportRepo)
	webhookHandler, err := handler.NewWebhookHandler(reconSvc, txRepo, auditRepo, &cfg.Payment, cfg.IsProduction(), log)
	if err != nil {
		return nil, err
	}
	lookup := func(transactionID string) (*models.PaymentTransaction, error) {
		return txRepo.FindByTransactionID(transactionID)
	}

	authMw := middleware.AuthRequired(&cfg.JWT)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Donor-facing
	r.POST("/organizations/:org/donation", rateMw, donationHandler.Create)
	r.GET("/donation/status/:transactionId", rateMw, donationHandler.Status)
	r.GET("/payment/return", rateMw, returnHandler.Show)
	r.GET("/ws/donation/status/:transactionId", rateMw, ws.UpgradeStatusWS(statusHub, lookup))

	// Gateway notifications are not rate limited; the provider retries on failure.
	r.POST("/organizations/:org/payments/yookassa-webhook", webhookHandler.Handle)

	if sandbox, ok := gateway.(*payment.SandboxGateway); ok {
		r.GET("/sandbox/checkout/:id", handler.NewSandboxHandler(sandbox, reconSvc, log).Checkout)
	}

	// Operators
	orgAdmin := r.Group("/organizations/:org")
	orgAdmin.Use(authMw, middleware.RequireRole(domain.RoleAdmin, domain.RoleOrganizationAdmin), middleware.OrganizationAccess())
	{
		orgAdmin.GET("/donations", reportHandler.ListDonations)
		orgAdmin.GET("/donations/stats", reportHandler.Stats)
		orgAdmin.POST("/donations/:donation/refund", refundHandler.Refund)
		orgAdmin.GET("/donations/:donation/refunds", refundHandler.List)
	}

	return r, nil
}
