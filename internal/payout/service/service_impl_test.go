package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	bankingdomain "github.com/smallbiznis/referralhub/internal/banking/domain"
	bankingrepository "github.com/smallbiznis/referralhub/internal/banking/repository"
	bankingservice "github.com/smallbiznis/referralhub/internal/banking/service"
	"github.com/smallbiznis/referralhub/internal/clock"
	"github.com/smallbiznis/referralhub/internal/config"
	notificationdomain "github.com/smallbiznis/referralhub/internal/notification/domain"
	paymentdomain "github.com/smallbiznis/referralhub/internal/payment/domain"
	paymentrepository "github.com/smallbiznis/referralhub/internal/payment/repository"
	paymentservice "github.com/smallbiznis/referralhub/internal/payment/service"
	"github.com/smallbiznis/referralhub/internal/payout/domain"
	"github.com/smallbiznis/referralhub/internal/payout/repository"
	"github.com/smallbiznis/referralhub/internal/providers/pdf"
	referraldomain "github.com/smallbiznis/referralhub/internal/referral/domain"
	referralrepository "github.com/smallbiznis/referralhub/internal/referral/repository"
	referralservice "github.com/smallbiznis/referralhub/internal/referral/service"
	"github.com/smallbiznis/referralhub/internal/testutil"
	"github.com/smallbiznis/referralhub/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockAuditSvc struct {
	mock.Mock
}

func (m *mockAuditSvc) AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	args := m.Called(ctx, actorType, actorID, action, targetType, targetID, metadata)
	return args.Error(0)
}

type mockNotifySvc struct {
	mock.Mock
}

func (m *mockNotifySvc) Notify(ctx context.Context, req notificationdomain.NotifyRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *mockNotifySvc) ListForUser(ctx context.Context) ([]notificationdomain.Notification, error) {
	args := m.Called(ctx)
	return args.Get(0).([]notificationdomain.Notification), args.Error(1)
}

func (m *mockNotifySvc) MarkRead(ctx context.Context, id snowflake.ID) (notificationdomain.Notification, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(notificationdomain.Notification), args.Error(1)
}

type mockBlob struct {
	mock.Mock
}

func (m *mockBlob) Upload(ctx context.Context, data []byte, contentType string, name string) (string, error) {
	args := m.Called(ctx, data, contentType, name)
	return args.String(0), args.Error(1)
}

type mockPDF struct {
	mock.Mock
}

func (m *mockPDF) GenerateRemittance(ctx context.Context, data pdf.RemittanceData) ([]byte, error) {
	args := m.Called(ctx, data)
	return args.Get(0).([]byte), args.Error(1)
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, bankCode, accountNumber string) (string, error) {
	args := m.Called(ctx, bankCode, accountNumber)
	return args.String(0), args.Error(1)
}

type harness struct {
	db           *gorm.DB
	clock        *clock.FakeClock
	referrals    referraldomain.Service
	referralRepo referraldomain.Repository
	payments     paymentdomain.Service
	payouts      domain.Service
	notify       *mockNotifySvc
	blob         *mockBlob
	pdf          *mockPDF
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(testutil.Epoch)
	policy := config.NewStaticCommissionPolicyHolder(config.DefaultCommissionPolicy())

	audit := new(mockAuditSvc)
	audit.On("AuditLog", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	notify := new(mockNotifySvc)
	notify.On("Notify", mock.Anything, mock.Anything).Return(nil).Maybe()

	referralRepo := referralrepository.Provide()
	referrals := referralservice.New(referralservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Repo:     referralRepo,
		Policy:   policy,
		AuditSvc: audit,
	})
	payments := paymentservice.NewService(paymentservice.Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clk,
		Repo:         paymentrepository.Provide(),
		Policy:       policy,
		ReferralRepo: referralRepo,
		ReferralSvc:  referrals,
		AuditSvc:     audit,
	})
	banking := bankingservice.NewService(bankingservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		Clock:    clk,
		Repo:     bankingrepository.Provide(),
		Resolver: new(mockResolver),
		AuditSvc: audit,
	})

	h := &harness{
		db:           db,
		clock:        clk,
		referrals:    referrals,
		referralRepo: referralRepo,
		payments:     payments,
		notify:       notify,
		blob:         new(mockBlob),
		pdf:          new(mockPDF),
	}
	h.payouts = NewService(Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clk,
		Repo:         repository.Provide(),
		ReferralRepo: referralRepo,
		BankingSvc:   banking,
		NotifySvc:    notify,
		AuditSvc:     audit,
		Blob:         h.blob,
		PDF:          h.pdf,
	})
	return h
}

// eligibleReferral walks a referral through payment and finalization so it
// holds earned commission of 5% of amount.
func (h *harness) eligibleReferral(t *testing.T, partnerID string, amount string) referraldomain.Referral {
	t.Helper()

	referral, err := h.referrals.Create(testutil.PartnerContext(partnerID), referraldomain.CreateReferralRequest{
		CompanyName: "Acme Ltd",
	})
	require.NoError(t, err)

	staff := testutil.StaffContext("staff-1")
	id := referral.ID
	_, err = h.payments.Record(staff, paymentdomain.RecordPaymentRequest{
		ReferralID: &id,
		Amount:     decimal.RequireFromString(amount),
	})
	require.NoError(t, err)

	finalized, err := h.referrals.FinalizeDeal(staff, referral.ID, "")
	require.NoError(t, err)
	return finalized
}

func (h *harness) reload(t *testing.T, id snowflake.ID) referraldomain.Referral {
	t.Helper()
	referral, err := h.referralRepo.FindByID(context.Background(), h.db, id)
	require.NoError(t, err)
	require.NotNil(t, referral)
	return *referral
}

func countActive(t *testing.T, db *gorm.DB, referralID snowflake.ID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&domain.Payout{}).
		Where("referral_id = ? AND status IN ?", referralID, []domain.Status{domain.StatusPending, domain.StatusProcessing}).
		Count(&count).Error)
	return count
}

func TestRequestCreatesPendingPayoutAndConflictsOnRepeat(t *testing.T) {
	h := newHarness(t)
	referral := h.eligibleReferral(t, "partner-1", "100000")
	require.True(t, referral.CommissionEligible)

	ctx := testutil.PartnerContext("partner-1")
	payout, err := h.payouts.Request(ctx, domain.RequestPayoutRequest{ReferralID: referral.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, payout.Status)
	assert.True(t, decimal.RequireFromString("5000").Equal(payout.Amount))
	assert.Equal(t, testutil.Epoch, payout.RequestedAt)
	assert.True(t, h.reload(t, referral.ID).PayoutRequested)

	_, err = h.payouts.Request(ctx, domain.RequestPayoutRequest{ReferralID: referral.ID})
	assert.ErrorIs(t, err, domain.ErrPayoutExists)
	assert.Equal(t, int64(1), countActive(t, h.db, referral.ID))

	h.notify.AssertCalled(t, "Notify", mock.Anything, mock.MatchedBy(func(req notificationdomain.NotifyRequest) bool {
		return req.Audience == notificationdomain.AudienceStaff && req.Type == notificationdomain.TypePayoutRequested
	}))
}

func TestRequestPreconditionOrder(t *testing.T) {
	h := newHarness(t)
	referral := h.eligibleReferral(t, "partner-1", "100000")

	_, err := h.payouts.Request(testutil.PartnerContext("partner-2"), domain.RequestPayoutRequest{ReferralID: referral.ID})
	assert.ErrorIs(t, err, referraldomain.ErrNotFound)

	_, err = h.payouts.Request(testutil.PartnerContext("partner-1"), domain.RequestPayoutRequest{ReferralID: 42})
	assert.ErrorIs(t, err, referraldomain.ErrNotFound)

	pending, err := h.referrals.Create(testutil.PartnerContext("partner-1"), referraldomain.CreateReferralRequest{CompanyName: "Beta"})
	require.NoError(t, err)
	_, err = h.payouts.Request(testutil.PartnerContext("partner-1"), domain.RequestPayoutRequest{
		ReferralID: pending.ID,
		Amount:     decimal.NewNullDecimal(decimal.NewFromInt(-1)),
	})
	assert.ErrorIs(t, err, domain.ErrNotEligible)

	_, err = h.payouts.Request(testutil.PartnerContext("partner-1"), domain.RequestPayoutRequest{
		ReferralID: referral.ID,
		Amount:     decimal.NewNullDecimal(decimal.RequireFromString("5000.01")),
	})
	assert.ErrorIs(t, err, domain.ErrAmountExceedsEarned)

	_, err = h.payouts.Request(testutil.PartnerContext("partner-1"), domain.RequestPayoutRequest{
		ReferralID: referral.ID,
		Amount:     decimal.NewNullDecimal(decimal.Zero),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	assert.Equal(t, int64(0), countActive(t, h.db, referral.ID))
	assert.False(t, h.reload(t, referral.ID).PayoutRequested)
}

func TestRequestWithPartialAmountAndBankSnapshot(t *testing.T) {
	h := newHarness(t)
	referral := h.eligibleReferral(t, "partner-1", "100000")

	require.NoError(t, bankingrepository.Provide().Upsert(context.Background(), h.db, &bankingdomain.PartnerBankAccount{
		PartnerID:     "partner-1",
		BankCode:      "058",
		BankName:      "GTBank",
		AccountNumber: "0123456789",
		AccountName:   "ADA OBI",
		VerifiedAt:    testutil.Epoch,
		CreatedAt:     testutil.Epoch,
		UpdatedAt:     testutil.Epoch,
	}))

	payout, err := h.payouts.Request(testutil.PartnerContext("partner-1"), domain.RequestPayoutRequest{
		ReferralID: referral.ID,
		Amount:     decimal.NewNullDecimal(decimal.RequireFromString("1250.555")),
	})
	require.NoError(t, err)
	assert.Equal(t, "1250.56", payout.Amount.StringFixed(2))
	assert.Equal(t, "0123456789", payout.AccountNumber)
	assert.Equal(t, "ADA OBI", payout.AccountName)
}

func TestProcessPaidRequiresReference(t *testing.T) {
	h := newHarness(t)
	referral := h.eligibleReferral(t, "partner-1", "100000")
	payout, err := h.payouts.Request(testutil.PartnerContext("partner-1"), domain.RequestPayoutRequest{ReferralID: referral.ID})
	require.NoError(t, err)

	staff := testutil.StaffContext("staff-1")
	_, err = h.payouts.Process(staff, domain.ProcessPayoutRequest{
		PayoutID: payout.ID,
		Status:   "paid",
		Proof:    &domain.Proof{Filename: "proof.pdf", ContentType: "application/pdf", Data: []byte("%PDF")},
	})
	assert.ErrorIs(t, err, domain.ErrReferenceRequired)

	stored, err := h.payouts.Get(staff, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Nil(t, stored.ProcessedAt)
	h.blob.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessPaidStampsAndNotifiesPartner(t *testing.T) {
	h := newHarness(t)
	referral := h.eligibleReferral(t, "partner-1", "100000")
	payout, err := h.payouts.Request(testutil.PartnerContext("partner-1"), domain.RequestPayoutRequest{ReferralID: referral.ID})
	require.NoError(t, err)

	h.blob.On("Upload", mock.Anything, []byte("%PDF"), "application/pdf", "proof.pdf").
		Return("http://files.local/payment-proofs/2026/03/x-proof.pdf", nil).Once()
	h.clock.Advance(time.Hour)

	paid, err := h.payouts.Process(testutil.StaffContext("staff-1"), domain.ProcessPayoutRequest{
		PayoutID:         payout.ID,
		Status:           "paid",
		PaymentReference: "PAY-001",
		Proof:            &domain.Proof{Filename: "proof.pdf", ContentType: "application/pdf", Data: []byte("%PDF")},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, paid.Status)
	require.NotNil(t, paid.ProcessedAt)
	assert.Equal(t, testutil.Epoch.Add(time.Hour), *paid.ProcessedAt)
	require.NotNil(t, paid.PaymentReference)
	assert.Equal(t, "PAY-001", *paid.PaymentReference)
	require.NotNil(t, paid.ProofOfPaymentURL)
	assert.Equal(t, "5000.00", paid.AmountPaid.Decimal.StringFixed(2))

	stored, err := h.payouts.Get(testutil.PartnerContext("partner-1"), payout.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, stored.Status)
	assert.NotNil(t, stored.ProcessedAt)

	h.notify.AssertCalled(t, "Notify", mock.Anything, mock.MatchedBy(func(req notificationdomain.NotifyRequest) bool {
		return req.UserID == "partner-1" && req.Type == notificationdomain.TypePayoutPaid
	}))
	h.blob.AssertExpectations(t)

	_, err = h.payouts.Process(testutil.StaffContext("staff-1"), domain.ProcessPayoutRequest{
		PayoutID: payout.ID,
		Status:   "failed",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestProcessUploadFailureWritesNothing(t *testing.T) {
	h := newHarness(t)
	referral := h.eligibleReferral(t, "partner-1", "100000")
	payout, err := h.payouts.Request(testutil.PartnerContext("partner-1"), domain.RequestPayoutRequest{ReferralID: referral.ID})
	require.NoError(t, err)

	h.blob.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("disk full"))

	_, err = h.payouts.Process(testutil.StaffContext("staff-1"), domain.ProcessPayoutRequest{
		PayoutID:         payout.ID,
		Status:           "paid",
		PaymentReference: "PAY-001",
		Proof:            &domain.Proof{Filename: "proof.pdf", Data: []byte("%PDF")},
	})
	assert.ErrorIs(t, err, domain.ErrProofUpload)

	stored, err := h.payouts.Get(testutil.StaffContext("staff-1"), payout.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Nil(t, stored.PaymentReference)
}

func TestProcessValidatesArguments(t *testing.T) {
	h := newHarness(t)
	referral := h.eligibleReferral(t, "partner-1", "100000")
	payout, err := h.payouts.Request(testutil.PartnerContext("partner-1"), domain.RequestPayoutRequest{ReferralID: referral.ID})
	require.NoError(t, err)
	staff := testutil.StaffContext("staff-1")

	_, err = h.payouts.Process(staff, domain.ProcessPayoutRequest{PayoutID: payout.ID, Status: "cancelled"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = h.payouts.Process(staff, domain.ProcessPayoutRequest{
		PayoutID:         payout.ID,
		Status:           "paid",
		PaymentReference: "PAY-1",
		AmountPaid:       decimal.NewNullDecimal(decimal.RequireFromString("5000.01")),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmountPaid)

	_, err = h.payouts.Process(staff, domain.ProcessPayoutRequest{PayoutID: 99, Status: "processing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	processing, err := h.payouts.Process(staff, domain.ProcessPayoutRequest{PayoutID: payout.ID, Status: "processing"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, processing.Status)
	assert.Nil(t, processing.ProcessedAt)

	_, err = h.payouts.Process(staff, domain.ProcessPayoutRequest{PayoutID: payout.ID, Status: "processing"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestProcessFailedReopensReferral(t *testing.T) {
	h := newHarness(t)
	referral := h.eligibleReferral(t, "partner-1", "100000")
	partner := testutil.PartnerContext("partner-1")
	payout, err := h.payouts.Request(partner, domain.RequestPayoutRequest{ReferralID: referral.ID})
	require.NoError(t, err)

	failed, err := h.payouts.Process(testutil.StaffContext("staff-1"), domain.ProcessPayoutRequest{
		PayoutID: payout.ID,
		Status:   "failed",
		Notes:    "account closed",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, failed.Status)
	assert.Nil(t, failed.ProcessedAt)
	require.NotNil(t, failed.ProcessedBy)
	assert.Equal(t, "staff-1", *failed.ProcessedBy)
	assert.False(t, h.reload(t, referral.ID).PayoutRequested)

	_, err = h.payouts.Request(partner, domain.RequestPayoutRequest{ReferralID: referral.ID})
	require.NoError(t, err)
}

func TestCancelClearsPayoutRequested(t *testing.T) {
	h := newHarness(t)
	referral := h.eligibleReferral(t, "partner-1", "100000")
	partner := testutil.PartnerContext("partner-1")
	payout, err := h.payouts.Request(partner, domain.RequestPayoutRequest{ReferralID: referral.ID})
	require.NoError(t, err)

	_, err = h.payouts.Cancel(testutil.PartnerContext("partner-2"), payout.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	cancelled, err := h.payouts.Cancel(partner, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	reloaded := h.reload(t, referral.ID)
	assert.False(t, reloaded.PayoutRequested)
	assert.True(t, reloaded.PayoutEligible())

	_, err = h.payouts.Cancel(partner, payout.ID)
	assert.ErrorIs(t, err, domain.ErrNotCancellable)
}

func TestCancelRefusesProcessingPayout(t *testing.T) {
	h := newHarness(t)
	referral := h.eligibleReferral(t, "partner-1", "100000")
	partner := testutil.PartnerContext("partner-1")
	payout, err := h.payouts.Request(partner, domain.RequestPayoutRequest{ReferralID: referral.ID})
	require.NoError(t, err)

	_, err = h.payouts.Process(testutil.StaffContext("staff-1"), domain.ProcessPayoutRequest{PayoutID: payout.ID, Status: "processing"})
	require.NoError(t, err)

	_, err = h.payouts.Cancel(partner, payout.ID)
	assert.ErrorIs(t, err, domain.ErrNotCancellable)
	assert.True(t, h.reload(t, referral.ID).PayoutRequested)
}

func TestListByStatusPaginates(t *testing.T) {
	h := newHarness(t)
	partner := testutil.PartnerContext("partner-1")
	for i := 0; i < 3; i++ {
		referral := h.eligibleReferral(t, "partner-1", "1000")
		_, err := h.payouts.Request(partner, domain.RequestPayoutRequest{ReferralID: referral.ID})
		require.NoError(t, err)
		h.clock.Advance(time.Minute)
	}

	staff := testutil.StaffContext("staff-1")
	first, err := h.payouts.ListByStatus(staff, domain.ListPayoutsRequest{
		Pagination: pagination.Pagination{PageSize: 2},
		Status:     "pending",
	})
	require.NoError(t, err)
	require.Len(t, first.Payouts, 2)
	assert.True(t, first.HasMore)
	assert.True(t, first.Payouts[0].CreatedAt.After(first.Payouts[1].CreatedAt))

	second, err := h.payouts.ListByStatus(staff, domain.ListPayoutsRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
		Status:     "pending",
	})
	require.NoError(t, err)
	require.Len(t, second.Payouts, 1)
	assert.False(t, second.HasMore)

	_, err = h.payouts.ListByStatus(staff, domain.ListPayoutsRequest{Status: "archived"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	mine, err := h.payouts.ListForPartner(partner)
	require.NoError(t, err)
	assert.Len(t, mine, 3)

	others, err := h.payouts.ListForPartner(testutil.PartnerContext("partner-2"))
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestRemittanceRequiresPaidPayout(t *testing.T) {
	h := newHarness(t)
	referral := h.eligibleReferral(t, "partner-1", "100000")
	partner := testutil.PartnerContext("partner-1")
	payout, err := h.payouts.Request(partner, domain.RequestPayoutRequest{ReferralID: referral.ID})
	require.NoError(t, err)

	_, err = h.payouts.Remittance(partner, payout.ID)
	assert.ErrorIs(t, err, domain.ErrNotPaid)

	_, err = h.payouts.Process(testutil.StaffContext("staff-1"), domain.ProcessPayoutRequest{
		PayoutID:         payout.ID,
		Status:           "paid",
		PaymentReference: "PAY-001",
	})
	require.NoError(t, err)

	h.pdf.On("GenerateRemittance", mock.Anything, mock.MatchedBy(func(data pdf.RemittanceData) bool {
		return data.PayoutID == payout.ID.String() &&
			data.ReferralCode == referral.Code &&
			data.PaymentReference == "PAY-001" &&
			data.AmountPaid == "5000.00"
	})).Return([]byte("%PDF-1.4"), nil).Once()

	doc, err := h.payouts.Remittance(partner, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), doc)
	h.pdf.AssertExpectations(t)

	_, err = h.payouts.Remittance(testutil.PartnerContext("partner-2"), payout.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
