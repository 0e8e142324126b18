package costledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/wms-platform/transfer-service/internal/application"
	apperrors "github.com/wms-platform/transfer-service/pkg/errors"
	"github.com/wms-platform/transfer-service/pkg/logging"
	"github.com/wms-platform/transfer-service/pkg/resilience"
)

// Config holds cost ledger client configuration
type Config struct {
	BaseURL      string
	SiteCurrency string
	Timeout      time.Duration
	Breaker      *resilience.CircuitBreakerConfig
	Retry        *resilience.RetryConfig
}

// StatusError is returned when the ledger answers with an unexpected status
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cost ledger %s returned status %d: %s", e.Op, e.Status, e.Body)
}

type convertRequest struct {
	Amount decimal.Decimal `json:"amount"`
	From   string          `json:"from"`
	To     string          `json:"to"`
}

type convertResponse struct {
	Amount decimal.Decimal `json:"amount"`
}

// Client talks to the cost ledger over HTTP JSON
type Client struct {
	baseURL      string
	siteCurrency string
	httpClient   *http.Client
	breaker      *resilience.CircuitBreaker
	retry        *resilience.RetryConfig
	logger       *logging.Logger
}

// NewClient creates a new Client
func NewClient(config Config, logger *logging.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Breaker == nil {
		config.Breaker = resilience.DefaultCircuitBreakerConfig("cost-ledger")
	}
	if config.Retry == nil {
		config.Retry = resilience.DefaultRetryConfig()
	}
	config.Retry.Retryable = isRetryable

	logger = logger.WithComponent("cost-ledger")
	return &Client{
		baseURL:      strings.TrimRight(config.BaseURL, "/"),
		siteCurrency: config.SiteCurrency,
		httpClient:   &http.Client{Timeout: config.Timeout},
		breaker:      resilience.NewCircuitBreaker(config.Breaker, logger.Logger),
		retry:        config.Retry,
		logger:       logger,
	}
}

var _ application.CostLedger = (*Client)(nil)

// ConvertCurrency converts amount from currency into the site currency
func (c *Client) ConvertCurrency(ctx context.Context, amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	if currency == "" || strings.EqualFold(currency, c.siteCurrency) || amount.IsZero() {
		return amount, nil
	}

	var out convertResponse
	err := c.call(ctx, "convert", "/api/v1/currency/convert", convertRequest{
		Amount: amount,
		From:   currency,
		To:     c.siteCurrency,
	}, &out)
	if err != nil {
		return decimal.Zero, err
	}
	return out.Amount, nil
}

// Invoice records a cost movement between two stations
func (c *Client) Invoice(ctx context.Context, invoice application.Invoice) error {
	if err := c.call(ctx, "invoice", "/api/v1/invoices", invoice, nil); err != nil {
		return err
	}

	c.logger.Info("Invoice recorded",
		"from", invoice.From,
		"to", invoice.To,
		"amount", invoice.Amount.String(),
		"currency", invoice.Currency,
	)
	return nil
}

func (c *Client) call(ctx context.Context, op, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", op, err)
	}

	err = resilience.Retry(ctx, c.retry, func(ctx context.Context) error {
		return c.breaker.Call(ctx, func(ctx context.Context) error {
			return c.do(ctx, op, path, payload, out)
		})
	})
	if err != nil {
		c.logger.WithError(err).Warn("Cost ledger call failed", "op", op)
		switch {
		case errors.Is(err, resilience.ErrCircuitOpen):
			return apperrors.ErrServiceUnavailable("cost ledger").Wrap(err)
		case errors.Is(err, context.DeadlineExceeded):
			return apperrors.ErrTimeout("cost ledger " + op).Wrap(err)
		}
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, path string, payload []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if id := logging.UserIDFromContext(ctx); id != "" {
		req.Header.Set("X-User-ID", id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cost ledger %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(buf.String())}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

// isRetryable retries transport failures and 5xx answers, never an open breaker
func isRetryable(err error) bool {
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status >= http.StatusInternalServerError
	}
	return true
}
