package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/aligovro/newschools-sub000/internal/service"
	"github.com/aligovro/newschools-sub000/pkg/money"
	"github.com/aligovro/newschools-sub000/pkg/payment"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, APIResponse{Success: false, Message: message})
}

func respondValidation(c *gin.Context, fields map[string]string) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"success": false,
		"message": "validation failed",
		"errors":  fields,
	})
}

// respondServiceError maps service and gateway errors to HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	var gap *service.GapError
	switch {
	case errors.As(err, &gap):
		c.JSON(http.StatusInternalServerError, gin.H{
			"success":                 false,
			"message":                 "payment processed by the gateway but not recorded; manual reconciliation required",
			"reconciliation_required": true,
			"external_id":             gap.ExternalID,
		})
	case errors.Is(err, service.ErrOrganizationNotFound),
		errors.Is(err, service.ErrProjectNotFound),
		errors.Is(err, service.ErrTransactionNotFound),
		errors.Is(err, service.ErrDonationNotFound):
		respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrDonationNotRefundable),
		errors.Is(err, service.ErrRefundExceedsBalance),
		errors.Is(err, service.ErrAlreadyFullyRefunded):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidAmount):
		respondValidation(c, map[string]string{"amount": err.Error()})
	case errors.Is(err, payment.ErrGatewayUnavailable):
		respondError(c, http.StatusServiceUnavailable, "payment gateway unavailable, try again later")
	case errors.Is(err, payment.ErrInvalidRequest),
		errors.Is(err, payment.ErrInsufficientFunds),
		errors.Is(err, payment.ErrAlreadyRefunded),
		errors.Is(err, payment.ErrNotFound):
		respondError(c, http.StatusUnprocessableEntity, err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "internal error")
	}
}

// respondBindError turns binding failures into field errors.
func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		respondValidation(c, map[string]string{"body": "invalid request body"})
		return
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	respondValidation(c, fields)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "money":
		return "must be a positive amount with at most two decimal places"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param()
	}
	return "is invalid"
}

var registerOnce sync.Once

// RegisterValidators installs the money tag and json field names on gin's validator.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				return d.String()
			}
			return nil
		}, decimal.Decimal{})
		_ = v.RegisterValidation("money", validateMoney)
	})
}

func validateMoney(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	if !d.IsPositive() || !money.HasMinorPrecision(d) {
		return false
	}
	_, err = money.ToMinor(d)
	return err == nil
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
