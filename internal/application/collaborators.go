package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/transfer-service/internal/domain"
	"github.com/wms-platform/transfer-service/pkg/cloudevents"
)

// Invoice is the cost movement pushed to the ledger between two stations
type Invoice struct {
	From     string          `json:"from"`
	To       string          `json:"to"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Domain   string          `json:"domain"`
}

// CostLedger converts currencies and records invoices
type CostLedger interface {
	ConvertCurrency(ctx context.Context, amount decimal.Decimal, currency string) (decimal.Decimal, error)
	Invoice(ctx context.Context, invoice Invoice) error
}

// NotificationBus pushes order changes to live station sessions
type NotificationBus interface {
	Broadcast(ctx context.Context, channel string, payload cloudevents.OrderChangedData) error
}

// StockNotifier evaluates alarm thresholds after a node quantity change
type StockNotifier interface {
	Evaluate(ctx context.Context, node *domain.InventoryNode, delta int) error
}

// Settings are the site-level knobs the engine reads
type Settings struct {
	Domain             string
	Currency           string
	RetailLiftPercent  decimal.Decimal
	CurrencyPrecisions map[string]int32
	StalenessWindow    time.Duration
	TimeoutWindow      time.Duration
	Sandbox            bool
}

// DefaultSettings returns the site defaults
func DefaultSettings() Settings {
	return Settings{
		Domain:             "default",
		Currency:           "USD",
		RetailLiftPercent:  decimal.NewFromInt(20),
		CurrencyPrecisions: map[string]int32{"USD": 2, "EUR": 2, "JPY": 0},
		StalenessWindow:    30 * 24 * time.Hour,
		TimeoutWindow:      30 * 24 * time.Hour,
	}
}

// Precision returns the rounding precision for a currency
func (s Settings) Precision(currency string) int32 {
	if currency == "" {
		currency = s.Currency
	}
	if p, ok := s.CurrencyPrecisions[currency]; ok {
		return p
	}
	return 2
}
