package domain

// Payment transaction statuses. pending is the only non-terminal state.
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
	TransactionStatusCancelled = "cancelled"
)

// IsTerminalStatus reports whether no further transition may leave status.
func IsTerminalStatus(status string) bool {
	switch status {
	case TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled:
		return true
	}
	return false
}

const (
	DonationStatusCompleted = "completed"
	DonationStatusRefund    = "refund"
)

const (
	CurrencyRUB = "RUB"
	CurrencyUSD = "USD"
	CurrencyEUR = "EUR"
)

var SupportedCurrencies = []string{CurrencyRUB, CurrencyUSD, CurrencyEUR}

// Payment method slugs accepted by the donation widget.
const (
	PaymentMethodBankCard = "bank_card"
	PaymentMethodSBP      = "sbp"
	PaymentMethodSberPay  = "sberbank"
	PaymentMethodYooMoney = "yoo_money"
	PaymentMethodTinkoff  = "tinkoff_bank"
)

var PaymentMethods = []string{
	PaymentMethodBankCard,
	PaymentMethodSBP,
	PaymentMethodSberPay,
	PaymentMethodYooMoney,
	PaymentMethodTinkoff,
}

const (
	RecurringDaily   = "daily"
	RecurringWeekly  = "weekly"
	RecurringMonthly = "monthly"
)

const (
	RoleAdmin             = "ADMIN"
	RoleOrganizationAdmin = "ORGANIZATION_ADMIN"
)

// Audit log actions.
const (
	AuditWebhookRejected      = "webhook_rejected"
	AuditDonationMaterialized = "donation_materialized"
	AuditDonationRefunded     = "donation_refunded"
	AuditReconciliationGap    = "reconciliation_gap"
)

// Transaction metadata keys written at charge creation and read back when the
// donation is materialized.
const (
	MetaDonorName      = "donor_name"
	MetaDonorEmail     = "donor_email"
	MetaDonorPhone     = "donor_phone"
	MetaIsAnonymous    = "is_anonymous"
	MetaMessage        = "message"
	MetaProjectID      = "project_id"
	MetaProjectStageID = "project_stage_id"
	MetaFundraiserID   = "fundraiser_id"
	MetaRegionID       = "region_id"
	MetaLocalityID     = "locality_id"
	MetaIsRecurring    = "is_recurring"
	MetaRecurringType  = "recurring_period"
	MetaTransactionID  = "transaction_id"
	MetaOrganizationID = "organization_id"
)

const AnonymousDonorName = "Анонимно"
