package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all transfer-service metrics
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Kafka metrics
	KafkaEventsPublished *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec

	// MongoDB metrics
	MongoDBOperations        *prometheus.CounterVec
	MongoDBOperationDuration *prometheus.HistogramVec

	// Outbox metrics
	OutboxPending   prometheus.Gauge
	OutboxPublished *prometheus.CounterVec
	OutboxRetries   *prometheus.CounterVec
	OutboxDuration  *prometheus.HistogramVec

	// Job metrics
	JobsEnqueued *prometheus.CounterVec
	JobsExecuted *prometheus.CounterVec
	JobDuration  *prometheus.HistogramVec

	// Business metrics
	OrdersCreated     *prometheus.CounterVec
	OrderTransitions  *prometheus.CounterVec
	InventoryMoves    *prometheus.CounterVec
	VariancesRecorded *prometheus.CounterVec
	InvoiceFailures   prometheus.Counter
	OrdersTimedOut    prometheus.Counter

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "wms",
	}
}

// New creates a new Metrics instance on its own registry
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	ns := config.Namespace
	constLabels := prometheus.Labels{"service": config.ServiceName}

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: name, Help: help}, append([]string{"service"}, labels...))
	}
	histogram := func(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: name, Help: help, Buckets: buckets}, append([]string{"service"}, labels...))
	}

	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,

		HTTPRequestsTotal:   counter("http_requests_total", "Total number of HTTP requests", "method", "path", "status"),
		HTTPRequestDuration: histogram("http_request_duration_seconds", "HTTP request duration in seconds", []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}, "method", "path"),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "http_requests_in_flight", Help: "Number of HTTP requests currently being processed", ConstLabels: constLabels,
		}),

		KafkaEventsPublished: counter("kafka_events_published_total", "Total number of Kafka events published", "topic", "event_type", "status"),
		KafkaPublishDuration: histogram("kafka_publish_duration_seconds", "Kafka publish duration in seconds", []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1}, "topic"),

		MongoDBOperations:        counter("mongodb_operations_total", "Total number of MongoDB operations", "collection", "operation", "status"),
		MongoDBOperationDuration: histogram("mongodb_operation_duration_seconds", "MongoDB operation duration in seconds", []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}, "collection", "operation"),

		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "outbox_pending_events", Help: "Unpublished events found in the last outbox poll", ConstLabels: constLabels,
		}),
		OutboxPublished: counter("outbox_events_published_total", "Outbox events relayed to Kafka", "event_type", "status"),
		OutboxRetries:   counter("outbox_event_retries_total", "Outbox publish retries", "event_type"),
		OutboxDuration:  histogram("outbox_publish_duration_seconds", "Outbox relay duration in seconds", []float64{.001, .005, .01, .05, .1, .5, 1}, "event_type"),

		JobsEnqueued: counter("transfer_jobs_enqueued_total", "Background jobs enqueued", "job"),
		JobsExecuted: counter("transfer_jobs_executed_total", "Background jobs executed", "job", "status"),
		JobDuration:  histogram("transfer_job_duration_seconds", "Background job duration in seconds", []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60}, "job"),

		OrdersCreated:     counter("transfer_orders_created_total", "Transfer orders created", "scope"),
		OrderTransitions:  counter("transfer_order_transitions_total", "Transfer order state transitions", "from", "to"),
		InventoryMoves:    counter("transfer_inventory_movements_total", "Inventory ledger movements", "job", "status"),
		VariancesRecorded: counter("transfer_variances_recorded_total", "Item variances recorded on receipt", "direction"),
		InvoiceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "transfer_invoice_failures_total", Help: "Invoices the cost ledger rejected", ConstLabels: constLabels,
		}),
		OrdersTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "transfer_orders_timed_out_total", Help: "Orders moved to TIMEOUT by the sweep", ConstLabels: constLabels,
		}),

		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "circuit_breaker_state", Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"service", "name"}),
		CircuitBreakerTrips: counter("circuit_breaker_trips_total", "Total number of circuit breaker trips", "name"),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.KafkaEventsPublished,
		m.KafkaPublishDuration,
		m.MongoDBOperations,
		m.MongoDBOperationDuration,
		m.OutboxPending,
		m.OutboxPublished,
		m.OutboxRetries,
		m.OutboxDuration,
		m.JobsEnqueued,
		m.JobsExecuted,
		m.JobDuration,
		m.OrdersCreated,
		m.OrderTransitions,
		m.InventoryMoves,
		m.VariancesRecorded,
		m.InvoiceFailures,
		m.OrdersTimedOut,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
	)

	return m
}

// Handler returns an HTTP handler for metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, code int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments in-flight requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements in-flight requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}

// RecordKafkaPublish records a Kafka publish event
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, status(success)).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

// RecordMongoDBOperation records a MongoDB operation
func (m *Metrics) RecordMongoDBOperation(collection, operation string, success bool, duration time.Duration) {
	m.MongoDBOperations.WithLabelValues(m.serviceName, collection, operation, status(success)).Inc()
	m.MongoDBOperationDuration.WithLabelValues(m.serviceName, collection, operation).Observe(duration.Seconds())
}

// SetOutboxPending sets the number of events seen in the last poll
func (m *Metrics) SetOutboxPending(count int) {
	m.OutboxPending.Set(float64(count))
}

// RecordOutboxPublish records an outbox relay attempt
func (m *Metrics) RecordOutboxPublish(eventType string, success bool, duration time.Duration) {
	m.OutboxPublished.WithLabelValues(m.serviceName, eventType, status(success)).Inc()
	m.OutboxDuration.WithLabelValues(m.serviceName, eventType).Observe(duration.Seconds())
}

// RecordOutboxRetry records an outbox retry
func (m *Metrics) RecordOutboxRetry(eventType string) {
	m.OutboxRetries.WithLabelValues(m.serviceName, eventType).Inc()
}

// RecordJobEnqueued records a job handed to the queue
func (m *Metrics) RecordJobEnqueued(job string) {
	m.JobsEnqueued.WithLabelValues(m.serviceName, job).Inc()
}

// RecordJobExecuted records a finished job execution
func (m *Metrics) RecordJobExecuted(job string, success bool, duration time.Duration) {
	m.JobsExecuted.WithLabelValues(m.serviceName, job, status(success)).Inc()
	m.JobDuration.WithLabelValues(m.serviceName, job).Observe(duration.Seconds())
}

// RecordOrderCreated records an order creation
func (m *Metrics) RecordOrderCreated(scope string) {
	m.OrdersCreated.WithLabelValues(m.serviceName, scope).Inc()
}

// RecordTransition records an order state transition
func (m *Metrics) RecordTransition(from, to string) {
	m.OrderTransitions.WithLabelValues(m.serviceName, from, to).Inc()
}

// RecordMovement records one applied or failed inventory delta
func (m *Metrics) RecordMovement(job string, success bool) {
	m.InventoryMoves.WithLabelValues(m.serviceName, job, status(success)).Inc()
}

// RecordVariance records an item variance by sign
func (m *Metrics) RecordVariance(quantity int) {
	direction := "over"
	if quantity < 0 {
		direction = "short"
	}
	m.VariancesRecorded.WithLabelValues(m.serviceName, direction).Inc()
}

// RecordInvoiceFailure records an invoice the ledger did not accept
func (m *Metrics) RecordInvoiceFailure() {
	m.InvoiceFailures.Inc()
}

// RecordOrdersTimedOut records orders moved to TIMEOUT
func (m *Metrics) RecordOrdersTimedOut(count int64) {
	m.OrdersTimedOut.Add(float64(count))
}

// SetCircuitBreakerState sets the circuit breaker state
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(name string) {
	m.CircuitBreakerTrips.WithLabelValues(m.serviceName, name).Inc()
}
