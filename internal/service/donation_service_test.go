package service

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/aligovro/newschools-sub000/internal/domain"
	"github.com/aligovro/newschools-sub000/internal/models"
	"github.com/aligovro/newschools-sub000/internal/repository"
	"github.com/aligovro/newschools-sub000/internal/testutil"
	"github.com/aligovro/newschools-sub000/pkg/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDonation_PersistsPendingTransaction(t *testing.T) {
	f := newFixture(t)
	tx := f.start(t, 12345)

	stored := testutil.Reload[models.PaymentTransaction](t, f.db, tx.ID)
	assert.Equal(t, domain.TransactionStatusPending, stored.Status)
	assert.Equal(t, int64(12345), stored.Amount)
	assert.Equal(t, "sandbox", stored.Gateway)
	assert.NotEmpty(t, stored.IdempotencyKey)
	assert.Contains(t, stored.ConfirmationURL, tx.ExternalID)
	assert.Equal(t, "Мария Петрова", stored.MetaString(domain.MetaDonorName))
	assert.Equal(t, tx.TransactionID, stored.MetaString(domain.MetaTransactionID))
	require.NotNil(t, stored.MetaUint(domain.MetaProjectID))
	assert.Equal(t, f.project.ID, *stored.MetaUint(domain.MetaProjectID))
	assert.Nil(t, stored.MetaUint(domain.MetaFundraiserID))
	assert.Zero(t, f.countDonations(t))
}

// capturingGateway records the last charge request.
type capturingGateway struct {
	*payment.SandboxGateway
	last payment.ChargeRequest
}

func (g *capturingGateway) CreateCharge(ctx context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	g.last = req
	return g.SandboxGateway.CreateCharge(ctx, req)
}

func TestCreateDonation_ChargeRequest(t *testing.T) {
	var gw *capturingGateway
	f := newFixtureWithGateway(t, func(s *payment.SandboxGateway) payment.Gateway {
		gw = &capturingGateway{SandboxGateway: s}
		return gw
	}, 3)
	tx := f.start(t, 5000)

	req := gw.last
	assert.Equal(t, int64(5000), req.AmountMinor)
	assert.Equal(t, "RUB", req.Currency)
	assert.Equal(t, "bank_card", req.PaymentMethod)
	assert.Equal(t, "Пожертвование: Новый спортзал", req.Description)
	assert.Equal(t, tx.IdempotencyKey, req.IdempotencyKey)

	u, err := url.Parse(req.ReturnURL)
	require.NoError(t, err)
	assert.Equal(t, "schools.example.com", u.Host)
	assert.Equal(t, "/payment/return", u.Path)
	assert.Equal(t, tx.TransactionID, u.Query().Get("transaction_id"))
}

func TestCreateDonation_Validation(t *testing.T) {
	f := newFixture(t)
	other := testutil.CreateOrganization(t, f.db, "school-43")
	foreignProject := testutil.CreateProject(t, f.db, other.ID, "Чужой проект")
	otherStage := testutil.CreateStage(t, f.db, foreignProject.ID, "Чужой этап")
	projectID := f.project.ID

	tests := []struct {
		name string
		in   CreateDonationInput
		want error
	}{
		{"zero amount", CreateDonationInput{OrganizationID: f.org.ID, Currency: "RUB"}, ErrInvalidAmount},
		{"unknown organization", CreateDonationInput{OrganizationID: 9999, AmountMinor: 100, Currency: "RUB"}, ErrOrganizationNotFound},
		{"project of another organization", CreateDonationInput{OrganizationID: f.org.ID, AmountMinor: 100, Currency: "RUB", ProjectID: &foreignProject.ID}, ErrProjectNotFound},
		{"stage of another project", CreateDonationInput{OrganizationID: f.org.ID, AmountMinor: 100, Currency: "RUB", ProjectID: &projectID, ProjectStageID: &otherStage.ID}, ErrProjectNotFound},
		{"stage without project", CreateDonationInput{OrganizationID: f.org.ID, AmountMinor: 100, Currency: "RUB", ProjectStageID: &f.stage.ID}, ErrProjectNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.donations.CreateDonation(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&models.PaymentTransaction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateDonation_GatewayErrors(t *testing.T) {
	f := newFixture(t)
	f.sandbox.FailNext(1)

	_, err := f.donations.CreateDonation(context.Background(), CreateDonationInput{OrganizationID: f.org.ID, AmountMinor: 100, Currency: "RUB"})
	assert.ErrorIs(t, err, payment.ErrGatewayUnavailable)
}

// fixedIDGateway hands out an external id that is already taken locally.
type fixedIDGateway struct {
	*payment.SandboxGateway
	externalID string
}

func (g *fixedIDGateway) CreateCharge(ctx context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	return &payment.Charge{ExternalID: g.externalID, RedirectURL: "https://pay.example/" + g.externalID, Status: payment.StatusPending}, nil
}

func TestCreateDonation_PersistFailureIsReconciliationGap(t *testing.T) {
	f := newFixtureWithGateway(t, func(s *payment.SandboxGateway) payment.Gateway {
		return &fixedIDGateway{SandboxGateway: s, externalID: "yk-taken"}
	}, 3)
	first, err := f.donations.CreateDonation(context.Background(), CreateDonationInput{OrganizationID: f.org.ID, AmountMinor: 100, Currency: "RUB"})
	require.NoError(t, err)
	assert.Equal(t, "yk-taken", first.Transaction.ExternalID)

	_, err = f.donations.CreateDonation(context.Background(), CreateDonationInput{OrganizationID: f.org.ID, AmountMinor: 700, Currency: "RUB"})
	assert.ErrorIs(t, err, ErrReconciliationGap)
	assert.ErrorIs(t, err, repository.ErrDuplicateTransaction)
	var gap *GapError
	require.True(t, errors.As(err, &gap))
	assert.Equal(t, "charge", gap.Operation)
	assert.Equal(t, int64(700), gap.AmountMinor)

	logs, err := repository.NewAuditLogRepository(f.db).ListByAction(domain.AuditReconciliationGap, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestGetStatus(t *testing.T) {
	f := newFixture(t)
	tx := f.start(t, 1000)

	got, err := f.donations.GetStatus(context.Background(), tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, got.Status)

	// Gateway trouble degrades to the stored status.
	require.NoError(t, f.sandbox.Complete(tx.ExternalID))
	f.sandbox.FailNext(1)
	got, err = f.donations.GetStatus(context.Background(), tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, got.Status)

	got, err = f.donations.GetStatus(context.Background(), tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, got.Status)
	assert.Equal(t, int64(1), f.countDonations(t))

	_, err = f.donations.GetStatus(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}
