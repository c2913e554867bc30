package handler

import (
	"net/http"

	"github.com/aligovro/newschools-sub000/internal/service"
	"github.com/aligovro/newschools-sub000/pkg/payment"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SandboxHandler stands in for the provider's checkout page when the sandbox gateway
// is active. It settles the charge, reconciles it as a webhook would, and sends the
// donor back to the return page.
type SandboxHandler struct {
	sandbox *payment.SandboxGateway
	recon   *service.ReconciliationService
	log     *zap.Logger
}

func NewSandboxHandler(sandbox *payment.SandboxGateway, recon *service.ReconciliationService, log *zap.Logger) *SandboxHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SandboxHandler{sandbox: sandbox, recon: recon, log: log.Named("sandbox")}
}

// Checkout handles GET /sandbox/checkout/:id?outcome=succeeded|canceled
func (h *SandboxHandler) Checkout(c *gin.Context) {
	id := c.Param("id")
	returnURL, ok := h.sandbox.ReturnURL(id)
	if !ok {
		respondError(c, http.StatusNotFound, "payment not found")
		return
	}
	var err error
	switch c.DefaultQuery("outcome", "succeeded") {
	case "succeeded":
		err = h.sandbox.Complete(id)
	case "canceled":
		err = h.sandbox.Cancel(id)
	default:
		respondError(c, http.StatusBadRequest, "outcome must be succeeded or canceled")
		return
	}
	if err != nil {
		respondError(c, http.StatusNotFound, "payment not found")
		return
	}
	if _, err := h.recon.Reconcile(c.Request.Context(), id); err != nil {
		h.log.Warn("sandbox reconcile failed", zap.String("external_id", id), zap.Error(err))
	}
	c.Redirect(http.StatusFound, returnURL)
}
