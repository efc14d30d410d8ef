package service

import (
	"context"
	"testing"

	"github.com/smallbiznis/referralhub/internal/banking/domain"
	"github.com/smallbiznis/referralhub/internal/banking/repository"
	"github.com/smallbiznis/referralhub/internal/clock"
	"github.com/smallbiznis/referralhub/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, bankCode, accountNumber string) (string, error) {
	args := m.Called(ctx, bankCode, accountNumber)
	return args.String(0), args.Error(1)
}

type mockAuditSvc struct {
	mock.Mock
}

func (m *mockAuditSvc) AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	args := m.Called(ctx, actorType, actorID, action, targetType, targetID, metadata)
	return args.Error(0)
}

func newTestService(t *testing.T, resolver *mockResolver, audit *mockAuditSvc) domain.Service {
	t.Helper()
	return NewService(Params{
		DB:       testutil.NewDB(t),
		Log:      zap.NewNop(),
		Clock:    clock.NewFakeClock(testutil.Epoch),
		Repo:     repository.Provide(),
		Resolver: resolver,
		AuditSvc: audit,
	})
}

func TestSetAccountResolvesAndUpserts(t *testing.T) {
	resolver := new(mockResolver)
	resolver.On("Resolve", mock.Anything, "058", "0123456789").Return("ADA OBI", nil).Once()
	resolver.On("Resolve", mock.Anything, "044", "9876543210").Return("ADA OBI", nil).Once()
	audit := new(mockAuditSvc)
	audit.On("AuditLog", mock.Anything, "", mock.Anything, "bank_account.set", "bank_account", mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(t, resolver, audit)
	ctx := testutil.PartnerContext("partner-1")

	account, err := svc.SetAccount(ctx, domain.SetAccountRequest{BankCode: "058", AccountNumber: "0123456789"})
	require.NoError(t, err)
	assert.Equal(t, "ADA OBI", account.AccountName)

	_, err = svc.SetAccount(ctx, domain.SetAccountRequest{BankCode: "044", BankName: "Access", AccountNumber: "9876543210"})
	require.NoError(t, err)

	stored, err := svc.GetAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, "044", stored.BankCode)
	assert.Equal(t, "9876543210", stored.AccountNumber)
	resolver.AssertExpectations(t)
}

func TestSetAccountValidatesBeforeLookup(t *testing.T) {
	resolver := new(mockResolver)
	svc := newTestService(t, resolver, new(mockAuditSvc))
	ctx := testutil.PartnerContext("partner-1")

	_, err := svc.SetAccount(ctx, domain.SetAccountRequest{BankCode: "05", AccountNumber: "0123456789"})
	assert.ErrorIs(t, err, domain.ErrInvalidBankCode)

	_, err = svc.SetAccount(ctx, domain.SetAccountRequest{BankCode: "058", AccountNumber: "12345"})
	assert.ErrorIs(t, err, domain.ErrInvalidAccountNumber)

	resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything)
}

func TestSetAccountPropagatesLookupFailure(t *testing.T) {
	resolver := new(mockResolver)
	resolver.On("Resolve", mock.Anything, mock.Anything, mock.Anything).Return("", domain.ErrAccountNotResolved)
	svc := newTestService(t, resolver, new(mockAuditSvc))

	_, err := svc.SetAccount(testutil.PartnerContext("partner-1"), domain.SetAccountRequest{BankCode: "058", AccountNumber: "0123456789"})
	assert.ErrorIs(t, err, domain.ErrAccountNotResolved)

	_, err = svc.GetAccount(testutil.PartnerContext("partner-1"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetAccountRequiresPartner(t *testing.T) {
	svc := newTestService(t, new(mockResolver), new(mockAuditSvc))
	_, err := svc.SetAccount(testutil.StaffContext("staff-1"), domain.SetAccountRequest{})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

