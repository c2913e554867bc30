package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aligovro/newschools-sub000/internal/service"
	"github.com/aligovro/newschools-sub000/pkg/payment"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRespondServiceError(t *testing.T) {
	gap := &service.GapError{Operation: "refund", ExternalID: "yk-1", Err: errors.New("disk full")}

	tests := []struct {
		name string
		err  error
		code int
	}{
		{"organization", service.ErrOrganizationNotFound, http.StatusNotFound},
		{"project", fmt.Errorf("wrap: %w", service.ErrProjectNotFound), http.StatusNotFound},
		{"donation", service.ErrDonationNotFound, http.StatusNotFound},
		{"not refundable", service.ErrDonationNotRefundable, http.StatusBadRequest},
		{"exceeds", service.ErrRefundExceedsBalance, http.StatusBadRequest},
		{"fully refunded", service.ErrAlreadyFullyRefunded, http.StatusBadRequest},
		{"invalid amount", service.ErrInvalidAmount, http.StatusUnprocessableEntity},
		{"gateway down", &payment.Error{Kind: payment.ErrGatewayUnavailable, StatusCode: 503}, http.StatusServiceUnavailable},
		{"gateway rejected", &payment.Error{Kind: payment.ErrInvalidRequest, StatusCode: 400}, http.StatusUnprocessableEntity},
		{"gap", gap, http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			respondServiceError(c, tt.err)
			assert.Equal(t, tt.code, w.Code)
		})
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respondServiceError(c, gap)
	body := decode(t, w)
	assert.Equal(t, true, body["reconciliation_required"])
	assert.Equal(t, "yk-1", body["external_id"])
}
