package handler

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/aligovro/newschools-sub000/internal/domain"
	"github.com/aligovro/newschools-sub000/internal/models"
	"github.com/aligovro/newschools-sub000/internal/service"
	"github.com/aligovro/newschools-sub000/pkg/money"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var returnPage = template.Must(template.New("return").Parse(`<!DOCTYPE html>
<html lang="ru">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
{{if .Refresh}}<meta http-equiv="refresh" content="5">{{end}}
<title>{{.Title}}</title>
</head>
<body class="payment-{{.Variant}}">
<main>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{if .Amount}}<p class="amount">{{.Amount}} {{.Currency}}</p>{{end}}
{{if .TransactionID}}<p class="reference">Номер платежа: {{.TransactionID}}</p>{{end}}
</main>
</body>
</html>
`))

type returnView struct {
	Variant       string // success, pending, failure, not-found
	Title         string
	Message       string
	Amount        string
	Currency      string
	TransactionID string
	Refresh       bool
}

type ReturnHandler struct {
	donations *service.DonationService
	log       *zap.Logger
}

func NewReturnHandler(donations *service.DonationService, log *zap.Logger) *ReturnHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReturnHandler{donations: donations, log: log.Named("return")}
}

// Show handles GET /payment/return?transaction_id=... after the donor leaves the
// hosted payment page. Reconciliation here is best-effort; the webhook stays
// authoritative.
func (h *ReturnHandler) Show(c *gin.Context) {
	transactionID := c.Query("transaction_id")
	if transactionID == "" {
		h.render(c, http.StatusNotFound, notFoundView())
		return
	}
	t, err := h.donations.GetStatus(c.Request.Context(), transactionID)
	if errors.Is(err, service.ErrTransactionNotFound) {
		h.render(c, http.StatusNotFound, notFoundView())
		return
	}
	if err != nil {
		h.log.Error("return page lookup", zap.String("transaction_id", transactionID), zap.Error(err))
		h.render(c, http.StatusOK, returnView{
			Variant:       "pending",
			Title:         "Платёж обрабатывается",
			Message:       "Мы проверяем статус платежа. Страница обновится автоматически.",
			TransactionID: transactionID,
			Refresh:       true,
		})
		return
	}
	h.render(c, http.StatusOK, viewForTransaction(t))
}

func viewForTransaction(t *models.PaymentTransaction) returnView {
	v := returnView{
		Amount:        money.Format(t.Amount),
		Currency:      t.Currency,
		TransactionID: t.TransactionID,
	}
	switch t.Status {
	case domain.TransactionStatusCompleted:
		v.Variant = "success"
		v.Title = "Спасибо за пожертвование!"
		v.Message = "Платёж прошёл успешно."
	case domain.TransactionStatusFailed, domain.TransactionStatusCancelled:
		v.Variant = "failure"
		v.Title = "Платёж не прошёл"
		v.Message = "Деньги не были списаны. Попробуйте ещё раз или выберите другой способ оплаты."
	default:
		v.Variant = "pending"
		v.Title = "Платёж обрабатывается"
		v.Message = "Мы проверяем статус платежа. Страница обновится автоматически."
		v.Refresh = true
	}
	return v
}

func notFoundView() returnView {
	return returnView{
		Variant: "not-found",
		Title:   "Платёж не найден",
		Message: "Проверьте ссылку или свяжитесь с организацией.",
	}
}

func (h *ReturnHandler) render(c *gin.Context, status int, v returnView) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(status)
	if err := returnPage.Execute(c.Writer, v); err != nil {
		h.log.Error("render return page", zap.Error(err))
	}
}
