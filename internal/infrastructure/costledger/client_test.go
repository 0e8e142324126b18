package costledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/transfer-service/internal/application"
	apperrors "github.com/wms-platform/transfer-service/pkg/errors"
	"github.com/wms-platform/transfer-service/pkg/logging"
	"github.com/wms-platform/transfer-service/pkg/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	retry := resilience.DefaultRetryConfig()
	retry.InitialDelay = time.Millisecond
	retry.MaxDelay = 5 * time.Millisecond

	return NewClient(Config{
		BaseURL:      server.URL,
		SiteCurrency: "USD",
		Timeout:      time.Second,
		Retry:        retry,
	}, logging.NewNop())
}

func TestClient_ConvertCurrency(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/api/v1/currency/convert", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req convertRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "EUR", req.From)
		assert.Equal(t, "USD", req.To)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(convertResponse{Amount: req.Amount.Mul(decimal.RequireFromString("1.10"))})
	})

	got, err := client.ConvertCurrency(context.Background(), decimal.NewFromInt(10), "EUR")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(11).Equal(got), got.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_ConvertCurrencyShortCircuitsSiteCurrency(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	for _, currency := range []string{"", "USD", "usd"} {
		got, err := client.ConvertCurrency(context.Background(), decimal.NewFromInt(7), currency)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(7).Equal(got))
	}
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestClient_InvoiceRetriesServerErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var inv application.Invoice
		require.NoError(t, json.NewDecoder(r.Body).Decode(&inv))
		assert.Equal(t, "WH-1", inv.From)
		assert.True(t, decimal.NewFromInt(50).Equal(inv.Amount))
		w.WriteHeader(http.StatusCreated)
	})

	err := client.Invoice(context.Background(), application.Invoice{
		From: "WH-1", To: "WH-2", Amount: decimal.NewFromInt(50), Currency: "USD", Domain: "default",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_InvoiceDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "unknown station", http.StatusUnprocessableEntity)
	})

	err := client.Invoice(context.Background(), application.Invoice{From: "WH-1", To: "WH-9", Amount: decimal.NewFromInt(1)})
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnprocessableEntity, statusErr.Status)
	assert.Equal(t, "unknown station", statusErr.Body)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_OpenBreakerIsServiceUnavailable(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	breaker := resilience.DefaultCircuitBreakerConfig("cost-ledger-test")
	breaker.FailureThreshold = 1
	retry := resilience.DefaultRetryConfig()
	retry.InitialDelay = time.Millisecond
	retry.MaxDelay = time.Millisecond

	client := NewClient(Config{
		BaseURL:      server.URL,
		SiteCurrency: "USD",
		Timeout:      time.Second,
		Breaker:      breaker,
		Retry:        retry,
	}, logging.NewNop())

	err := client.Invoice(context.Background(), application.Invoice{From: "WH-1", To: "WH-2", Amount: decimal.NewFromInt(3)})
	require.Error(t, err)

	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, apperrors.CodeServiceUnavailable, appErr.Code)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
