package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/referralhub/internal/banking/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestResolver(url string) *HTTPResolver {
	r := NewHTTPResolver(url, "sk_test", nil, zap.NewNop())
	r.initialInterval = time.Millisecond
	return r
}

func TestResolveReturnsAccountName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/bank/resolve", req.URL.Path)
		assert.Equal(t, "0123456789", req.URL.Query().Get("account_number"))
		assert.Equal(t, "058", req.URL.Query().Get("bank_code"))
		assert.Equal(t, "Bearer sk_test", req.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"account_number":"0123456789","account_name":"ADA OBI"}}`))
	}))
	defer srv.Close()

	name, err := newTestResolver(srv.URL).Resolve(context.Background(), "058", "0123456789")
	require.NoError(t, err)
	assert.Equal(t, "ADA OBI", name)
}

func TestResolveRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"status":true,"data":{"account_name":"ADA OBI"}}`))
	}))
	defer srv.Close()

	name, err := newTestResolver(srv.URL).Resolve(context.Background(), "058", "0123456789")
	require.NoError(t, err)
	assert.Equal(t, "ADA OBI", name)
	assert.Equal(t, int32(3), calls.Load())
}

func TestResolveClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := newTestResolver(srv.URL).Resolve(context.Background(), "058", "0123456789")
	assert.ErrorIs(t, err, domain.ErrAccountNotResolved)
	assert.Equal(t, int32(1), calls.Load())
}

func TestResolveExhaustionIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestResolver(srv.URL).Resolve(context.Background(), "058", "0123456789")
	assert.ErrorIs(t, err, domain.ErrLookupUnavailable)
}
