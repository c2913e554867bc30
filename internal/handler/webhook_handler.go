package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/aligovro/newschools-sub000/config"
	"github.com/aligovro/newschools-sub000/internal/domain"
	"github.com/aligovro/newschools-sub000/internal/models"
	"github.com/aligovro/newschools-sub000/internal/repository"
	"github.com/aligovro/newschools-sub000/internal/service"
	"github.com/aligovro/newschools-sub000/pkg/payment"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxWebhookBody = 1 << 20

// ErrWebhookAuthNotConfigured is returned when authentication is required but neither a
// signing secret nor a source allowlist is configured.
var ErrWebhookAuthNotConfigured = errors.New("webhook authentication not configured: set PAYMENT_WEBHOOKSECRET or PAYMENT_WEBHOOKALLOWEDCIDRS")

type WebhookHandler struct {
	recon     *service.ReconciliationService
	txRepo    *repository.TransactionRepository
	auditRepo *repository.AuditLogRepository
	secret    string
	allowed   []*net.IPNet
	log       *zap.Logger
}

// NewWebhookHandler parses the source allowlist; entries may be CIDRs or bare addresses.
// With requireAuth set (production) at least one of the two checks must be configured.
func NewWebhookHandler(
	recon *service.ReconciliationService,
	txRepo *repository.TransactionRepository,
	auditRepo *repository.AuditLogRepository,
	cfg *config.PaymentConfig,
	requireAuth bool,
	log *zap.Logger,
) (*WebhookHandler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	h := &WebhookHandler{
		recon:     recon,
		txRepo:    txRepo,
		auditRepo: auditRepo,
		secret:    cfg.WebhookSecret,
		log:       log.Named("webhook"),
	}
	for _, entry := range cfg.WebhookAllowedCIDRs {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			if ip := net.ParseIP(entry); ip != nil && ip.To4() != nil {
				entry += "/32"
			} else {
				entry += "/128"
			}
		}
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("webhook allowlist entry %q: %w", entry, err)
		}
		h.allowed = append(h.allowed, network)
	}
	if h.secret == "" && len(h.allowed) == 0 {
		if requireAuth {
			return nil, ErrWebhookAuthNotConfigured
		}
		h.log.Warn("security: webhook authentication disabled; any caller can trigger reconciliation")
	}
	return h, nil
}

type webhookPayload struct {
	Type   string `json:"type"`
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"object"`
}

// Handle is the gateway notification endpoint. The payload's status is only a hint:
// reconciliation always asks the gateway for the authoritative status.
func (h *WebhookHandler) Handle(c *gin.Context) {
	orgID, ok := parseID(c, "org")
	if !ok {
		respondError(c, http.StatusNotFound, "organization not found")
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid body")
		return
	}
	if reason := h.authenticate(c, body); reason != "" {
		h.reject(c, orgID, reason)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		respondError(c, http.StatusBadRequest, "invalid json")
		return
	}
	externalID := payload.Object.ID
	if externalID == "" {
		respondError(c, http.StatusBadRequest, "object.id required")
		return
	}

	t, err := h.txRepo.FindByExternalID(externalID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		h.log.Info("webhook for unknown transaction ignored", zap.String("external_id", externalID), zap.String("event", payload.Event))
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	if err != nil {
		h.log.Error("load transaction", zap.String("external_id", externalID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "storage error")
		return
	}
	if t.OrganizationID != orgID {
		h.log.Warn("webhook for another organization ignored",
			zap.String("external_id", externalID),
			zap.Uint("path_organization_id", orgID),
			zap.Uint("organization_id", t.OrganizationID),
		)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	res, err := h.recon.ReconcileTransaction(c.Request.Context(), t)
	if err != nil {
		if errors.Is(err, payment.ErrGatewayUnavailable) || errors.Is(err, payment.ErrNotFound) {
			h.log.Warn("reconcile deferred", zap.String("external_id", externalID), zap.Error(err))
			respondError(c, http.StatusServiceUnavailable, "try again later")
			return
		}
		h.log.Error("reconcile failed", zap.String("external_id", externalID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "reconciliation failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "status": res.Transaction.Status})
}

// authenticate returns a non-empty reason when the request must be rejected.
func (h *WebhookHandler) authenticate(c *gin.Context, body []byte) string {
	if len(h.allowed) > 0 && !h.ipAllowed(c.ClientIP()) {
		return "source address not allowed"
	}
	if h.secret != "" && !h.verifySignature(body, c.GetHeader("X-Webhook-Signature")) {
		return "invalid signature"
	}
	return ""
}

func (h *WebhookHandler) ipAllowed(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range h.allowed {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected))
}

func (h *WebhookHandler) reject(c *gin.Context, orgID uint, reason string) {
	h.log.Warn("security: webhook rejected",
		zap.String("reason", reason),
		zap.String("ip", c.ClientIP()),
		zap.Uint("organization_id", orgID),
	)
	if err := h.auditRepo.Create(&models.AuditLog{
		OrganizationID: &orgID,
		Action:         domain.AuditWebhookRejected,
		Resource:       "webhook",
		IP:             c.ClientIP(),
		UserAgent:      c.Request.UserAgent(),
		Metadata:       datatypes.JSONMap{"reason": reason},
	}); err != nil {
		h.log.Error("audit webhook rejection", zap.Error(err))
	}
	respondError(c, http.StatusForbidden, "forbidden")
}
