package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/referralhub/internal/actorcontext"
	"github.com/smallbiznis/referralhub/internal/authorization"
	"github.com/smallbiznis/referralhub/internal/config"
	"github.com/smallbiznis/referralhub/internal/observability"
	paymentdomain "github.com/smallbiznis/referralhub/internal/payment/domain"
	payoutdomain "github.com/smallbiznis/referralhub/internal/payout/domain"
	"github.com/smallbiznis/referralhub/internal/ratelimit"
	referraldomain "github.com/smallbiznis/referralhub/internal/referral/domain"
	"github.com/smallbiznis/referralhub/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type mockPayoutSvc struct {
	mock.Mock
}

func (m *mockPayoutSvc) Request(ctx context.Context, req payoutdomain.RequestPayoutRequest) (payoutdomain.Payout, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(payoutdomain.Payout), args.Error(1)
}

func (m *mockPayoutSvc) Process(ctx context.Context, req payoutdomain.ProcessPayoutRequest) (payoutdomain.Payout, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(payoutdomain.Payout), args.Error(1)
}

func (m *mockPayoutSvc) Cancel(ctx context.Context, id snowflake.ID) (payoutdomain.Payout, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(payoutdomain.Payout), args.Error(1)
}

func (m *mockPayoutSvc) Get(ctx context.Context, id snowflake.ID) (payoutdomain.Payout, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(payoutdomain.Payout), args.Error(1)
}

func (m *mockPayoutSvc) ListForPartner(ctx context.Context) ([]payoutdomain.Payout, error) {
	args := m.Called(ctx)
	return args.Get(0).([]payoutdomain.Payout), args.Error(1)
}

func (m *mockPayoutSvc) ListByStatus(ctx context.Context, req payoutdomain.ListPayoutsRequest) (payoutdomain.ListPayoutsResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(payoutdomain.ListPayoutsResponse), args.Error(1)
}

func (m *mockPayoutSvc) Remittance(ctx context.Context, id snowflake.ID) ([]byte, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]byte), args.Error(1)
}

type mockPaymentSvc struct {
	mock.Mock
}

func (m *mockPaymentSvc) Record(ctx context.Context, req paymentdomain.RecordPaymentRequest) (paymentdomain.Payment, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(paymentdomain.Payment), args.Error(1)
}

func (m *mockPaymentSvc) Confirm(ctx context.Context, id snowflake.ID) (paymentdomain.Payment, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(paymentdomain.Payment), args.Error(1)
}

func (m *mockPaymentSvc) Update(ctx context.Context, id snowflake.ID, patch paymentdomain.Patch) (paymentdomain.Payment, error) {
	args := m.Called(ctx, id, patch)
	return args.Get(0).(paymentdomain.Payment), args.Error(1)
}

type testServer struct {
	engine  *gin.Engine
	payouts *mockPayoutSvc
	payment *mockPaymentSvc
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	enforcer, err := authorization.NewEnforcer(testutil.NewDB(t))
	require.NoError(t, err)

	cfg := config.Config{
		Environment: "test",
		Auth:        config.AuthConfig{JWTSecret: testSecret, JWTIssuer: "identity"},
	}
	engine := NewEngine(observability.Config{Environment: "test"}, cfg)
	ts := testServer{
		engine:  engine,
		payouts: new(mockPayoutSvc),
		payment: new(mockPaymentSvc),
	}

	srv := NewServer(ServerParams{
		Engine:     engine,
		Cfg:        cfg,
		Log:        zap.NewNop(),
		AuthzSvc:   authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer}),
		PayoutSvc:  ts.payouts,
		PaymentSvc: ts.payment,
	})
	srv.RegisterRoutes()
	return ts
}

func signToken(t *testing.T, subject, role string, ttl time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "identity",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (ts testServer) do(t *testing.T, method, path, token string, body []byte, contentType string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)

	var payload map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec, payload := ts.do(t, http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", payload["status"])
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	rec, payload := ts.do(t, http.MethodGet, "/partner/payouts", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, payload["success"])
	assert.Equal(t, "unauthorized", payload["type"])

	expired := signToken(t, "partner-1", actorcontext.RolePartner, -time.Minute)
	rec, _ = ts.do(t, http.MethodGet, "/partner/payouts", expired, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: actorcontext.RoleStaff,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "staff-1",
			Issuer:    "identity",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := forged.SignedString([]byte("other-secret"))
	require.NoError(t, err)
	rec, _ = ts.do(t, http.MethodGet, "/admin/payouts", signed, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	ts.payouts.AssertNotCalled(t, "ListForPartner", mock.Anything)
	ts.payouts.AssertNotCalled(t, "ListByStatus", mock.Anything, mock.Anything)
}

func TestRoleGroupsAreSeparated(t *testing.T) {
	ts := newTestServer(t)

	partner := signToken(t, "partner-1", actorcontext.RolePartner, time.Hour)
	rec, payload := ts.do(t, http.MethodPost, "/admin/payouts/1/process", partner, []byte(`{"status":"paid"}`), "application/json")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", payload["type"])

	staff := signToken(t, "staff-1", actorcontext.RoleStaff, time.Hour)
	rec, _ = ts.do(t, http.MethodPost, "/partner/payouts", staff, []byte(`{"referral_id":"1"}`), "application/json")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	ts.payouts.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
	ts.payouts.AssertNotCalled(t, "Request", mock.Anything, mock.Anything)
}

func TestRequestPayout(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, "partner-1", actorcontext.RolePartner, time.Hour)

	ts.payouts.On("Request", mock.Anything, payoutdomain.RequestPayoutRequest{ReferralID: 42}).
		Return(payoutdomain.Payout{ID: 7, ReferralID: 42, PartnerID: "partner-1", Amount: decimal.RequireFromString("5000"), Status: payoutdomain.StatusPending}, nil).Once()

	rec, payload := ts.do(t, http.MethodPost, "/partner/payouts", token, []byte(`{"referral_id":"42"}`), "application/json")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, payload["success"])
	data := payload["data"].(map[string]any)
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, "5000", data["amount"])

	ts.payouts.On("Request", mock.Anything, payoutdomain.RequestPayoutRequest{ReferralID: 42}).
		Return(payoutdomain.Payout{}, payoutdomain.ErrPayoutExists).Once()

	rec, payload = ts.do(t, http.MethodPost, "/partner/payouts", token, []byte(`{"referral_id":"42"}`), "application/json")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", payload["type"])
	assert.Equal(t, "payout already requested", payload["message"])

	rec, payload = ts.do(t, http.MethodPost, "/partner/payouts", token, []byte(`{"referral_id":"abc"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", payload["type"])

	ts.payouts.AssertExpectations(t)
}

func TestProcessPayoutMultipart(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, "staff-1", actorcontext.RoleStaff, time.Hour)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("status", "paid"))
	require.NoError(t, writer.WriteField("payment_reference", "TRX-9"))
	require.NoError(t, writer.WriteField("amount_paid", "4500.00"))
	part, err := writer.CreateFormFile("proof", "receipt.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 receipt"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	ts.payouts.On("Process", mock.Anything, mock.MatchedBy(func(req payoutdomain.ProcessPayoutRequest) bool {
		return req.PayoutID == 9 &&
			req.Status == "paid" &&
			req.PaymentReference == "TRX-9" &&
			req.AmountPaid.Valid && req.AmountPaid.Decimal.Equal(decimal.RequireFromString("4500")) &&
			req.Proof != nil && req.Proof.Filename == "receipt.pdf" && string(req.Proof.Data) == "%PDF-1.4 receipt"
	})).Return(payoutdomain.Payout{ID: 9, Status: payoutdomain.StatusPaid}, nil).Once()

	rec, payload := ts.do(t, http.MethodPost, "/admin/payouts/9/process", token, body.Bytes(), writer.FormDataContentType())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "paid", payload["data"].(map[string]any)["status"])
	ts.payouts.AssertExpectations(t)
}

func TestProcessPayoutErrors(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, "staff-1", actorcontext.RoleStaff, time.Hour)

	ts.payouts.On("Process", mock.Anything, mock.MatchedBy(func(req payoutdomain.ProcessPayoutRequest) bool {
		return req.PayoutID == 3 && req.Proof == nil
	})).Return(payoutdomain.Payout{}, payoutdomain.ErrReferenceRequired).Once()

	rec, payload := ts.do(t, http.MethodPost, "/admin/payouts/3/process", token, []byte(`{"status":"paid"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", payload["type"])
	assert.Equal(t, []any{"payment_reference: payment reference is required when marking a payout paid"}, payload["errors"])

	ts.payouts.On("Process", mock.Anything, mock.MatchedBy(func(req payoutdomain.ProcessPayoutRequest) bool {
		return req.PayoutID == 4
	})).Return(payoutdomain.Payout{}, ratelimit.ErrLocked).Once()

	rec, _ = ts.do(t, http.MethodPost, "/admin/payouts/4/process", token, []byte(`{"status":"processing"}`), "application/json")
	assert.Equal(t, http.StatusConflict, rec.Code)

	ts.payouts.AssertExpectations(t)
}

func TestUpdatePaymentRejectsImmutableFields(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, "staff-1", actorcontext.RoleStaff, time.Hour)

	rec, payload := ts.do(t, http.MethodPatch, "/admin/payments/5", token, []byte(`{"amount":"10.00"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", payload["type"])
	ts.payment.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)

	ts.payment.On("Update", mock.Anything, snowflake.ID(5), mock.MatchedBy(func(p paymentdomain.Patch) bool {
		return p.Notes != nil && *p.Notes == "wire" && p.PaymentMethod == nil
	})).Return(paymentdomain.Payment{ID: 5, Notes: "wire"}, nil).Once()

	rec, payload = ts.do(t, http.MethodPatch, "/admin/payments/5", token, []byte(`{"notes":" wire "}`), "application/json")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, payload["success"])
	ts.payment.AssertExpectations(t)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{referraldomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{payoutdomain.ErrNotEligible, http.StatusConflict, "conflict"},
		{payoutdomain.ErrNotCancellable, http.StatusConflict, "conflict"},
		{paymentdomain.ErrAlreadyConfirmed, http.StatusConflict, "conflict"},
		{referraldomain.ErrUseFinalize, http.StatusBadRequest, "validation_error"},
		{payoutdomain.ErrAmountExceedsEarned, http.StatusBadRequest, "validation_error"},
		{payoutdomain.ErrProofUpload, http.StatusBadGateway, "upstream_error"},
		{ratelimit.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{payoutdomain.ErrUnauthenticated, http.StatusUnauthorized, "unauthorized"},
		{authorization.ErrForbidden, http.StatusForbidden, "forbidden"},
		{assert.AnError, http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, payload := mapError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.kind, payload.Type, tc.err.Error())
		assert.False(t, payload.Success)
	}
}

func TestClassifyErrorForLog(t *testing.T) {
	kind, code := classifyErrorForLog(payoutdomain.ErrPayoutExists)
	assert.Equal(t, "conflict", kind)
	assert.Equal(t, "payout_already_requested", code)

	kind, code = classifyErrorForLog(newValidationError("amount", "invalid"))
	assert.Equal(t, "validation_error", kind)
	assert.Equal(t, "invalid_request", code)

	kind, code = classifyErrorForLog(assert.AnError)
	assert.Equal(t, "internal_error", kind)
	assert.Equal(t, "internal_error", code)
}
