package service

import (
	"context"
	"sync"
	"testing"

	"github.com/aligovro/newschools-sub000/internal/models"
	"github.com/aligovro/newschools-sub000/internal/repository"
	"github.com/aligovro/newschools-sub000/internal/testutil"
	"github.com/aligovro/newschools-sub000/pkg/payment"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	mu      sync.Mutex
	changes []string
}

func (n *recordingNotifier) NotifyTransactionStatus(t *models.PaymentTransaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, t.TransactionID+":"+t.Status)
}

func (n *recordingNotifier) Changes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.changes...)
}

type fixture struct {
	db        *gorm.DB
	sandbox   *payment.SandboxGateway
	recon     *ReconciliationService
	donations *DonationService
	notifier  *recordingNotifier
	org       *models.Organization
	project   *models.Project
	stage     *models.ProjectStage
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithGateway(t, nil, 3)
}

// newFixtureWithGateway wires the services against a sandbox, optionally wrapped by gw.
func newFixtureWithGateway(t *testing.T, wrap func(*payment.SandboxGateway) payment.Gateway, budget int) *fixture {
	t.Helper()
	return newFixtureOn(t, testutil.NewDB(t), wrap, budget)
}

func newFixtureOn(t *testing.T, db *gorm.DB, wrap func(*payment.SandboxGateway) payment.Gateway, budget int) *fixture {
	t.Helper()
	sandbox := payment.NewSandboxGateway("http://localhost:8099")
	var gw payment.Gateway = sandbox
	if wrap != nil {
		gw = wrap(sandbox)
	}
	txRepo := repository.NewTransactionRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	recon := NewReconciliationService(db, gw, txRepo, repository.NewDonationRepository(db), auditRepo,
		repository.NewLedgerAggregator(), budget, nil)
	notifier := &recordingNotifier{}
	recon.SetNotifier(notifier)
	donations := NewDonationService(gw, txRepo, repository.NewOrganizationRepository(db), auditRepo, recon,
		"https://schools.example.com/", "Пожертвование", nil)

	org := testutil.CreateOrganization(t, db, "school-42")
	project := testutil.CreateProject(t, db, org.ID, "Новый спортзал")
	stage := testutil.CreateStage(t, db, project.ID, "Фундамент")
	return &fixture{
		db:        db,
		sandbox:   sandbox,
		recon:     recon,
		donations: donations,
		notifier:  notifier,
		org:       org,
		project:   project,
		stage:     stage,
	}
}

// start creates a pending donation for amount minor units against the fixture project.
func (f *fixture) start(t *testing.T, amount int64) *models.PaymentTransaction {
	t.Helper()
	projectID, stageID := f.project.ID, f.stage.ID
	res, err := f.donations.CreateDonation(context.Background(), CreateDonationInput{
		OrganizationID:    f.org.ID,
		AmountMinor:       amount,
		Currency:          "RUB",
		PaymentMethodSlug: "bank_card",
		ProjectID:         &projectID,
		ProjectStageID:    &stageID,
		DonorName:         "Мария Петрова",
		DonorEmail:        "maria@example.com",
		Message:           "На спортзал",
	})
	require.NoError(t, err)
	return res.Transaction
}

// pay starts a donation and settles it at the gateway and locally.
func (f *fixture) pay(t *testing.T, amount int64) (*models.PaymentTransaction, *models.Donation) {
	t.Helper()
	tx := f.start(t, amount)
	require.NoError(t, f.sandbox.Complete(tx.ExternalID))
	res, err := f.recon.Reconcile(context.Background(), tx.ExternalID)
	require.NoError(t, err)
	require.NotNil(t, res.Donation)
	return res.Transaction, res.Donation
}

func (f *fixture) countDonations(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Donation{}).Count(&n).Error)
	return n
}

func (f *fixture) projectCollected(t *testing.T) int64 {
	t.Helper()
	return testutil.Reload[models.Project](t, f.db, f.project.ID).CollectedAmount
}
