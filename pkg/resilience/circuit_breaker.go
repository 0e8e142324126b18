// Package resilience guards calls to remote collaborators with a circuit
// breaker and bounded exponential retries.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker rejects calls
var ErrCircuitOpen = errors.New("circuit breaker is open")

// StateObserver receives breaker state changes, typically a metrics sink
type StateObserver interface {
	SetCircuitBreakerState(name string, state int)
	RecordCircuitBreakerTrip(name string)
}

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	Name string
	// HalfOpenProbes is the number of calls let through while half-open
	HalfOpenProbes uint32
	// ResetInterval clears the closed-state counts; zero never clears them
	ResetInterval time.Duration
	// OpenTimeout is how long the breaker stays open before probing
	OpenTimeout       time.Duration
	FailureThreshold  uint32
	FailureRatio      float64
	MinRequestsToTrip uint32
	Observer          StateObserver
}

// DefaultCircuitBreakerConfig is tuned for a slow ledger that fails in bursts
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:              name,
		HalfOpenProbes:    2,
		ResetInterval:     time.Minute,
		OpenTimeout:       20 * time.Second,
		FailureThreshold:  5,
		FailureRatio:      0.5,
		MinRequestsToTrip: 10,
	}
}

func (c *CircuitBreakerConfig) readyToTrip(counts gobreaker.Counts) bool {
	if counts.ConsecutiveFailures >= c.FailureThreshold {
		return true
	}
	if counts.Requests < c.MinRequestsToTrip {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= c.FailureRatio
}

// CircuitBreaker wraps gobreaker with slog logging and an optional observer
type CircuitBreaker struct {
	cb     *gobreaker.CircuitBreaker
	name   string
	logger *slog.Logger
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *CircuitBreakerConfig, logger *slog.Logger) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.HalfOpenProbes,
		Interval:    config.ResetInterval,
		Timeout:     config.OpenTimeout,
		ReadyToTrip: config.readyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			if config.Observer == nil {
				return
			}
			config.Observer.SetCircuitBreakerState(name, int(to))
			if to == gobreaker.StateOpen {
				config.Observer.RecordCircuitBreakerTrip(name)
			}
		},
	}

	return &CircuitBreaker{
		cb:     gobreaker.NewCircuitBreaker(settings),
		name:   config.Name,
		logger: logger,
	}
}

// Call runs fn through the breaker. Rejections wrap ErrCircuitOpen.
func (c *CircuitBreaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Warn("Circuit breaker rejected call", "name", c.name, "state", c.cb.State().String())
		return fmt.Errorf("%w: %s", ErrCircuitOpen, c.name)
	}
	return err
}

// State returns the current state of the circuit breaker
func (c *CircuitBreaker) State() gobreaker.State {
	return c.cb.State()
}

func (c *CircuitBreaker) Name() string {
	return c.name
}
