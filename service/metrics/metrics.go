package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal    *prometheus.CounterVec
	solanaRPCCallDuration  *prometheus.HistogramVec
	solanaRPCRateLimitHits *prometheus.CounterVec
	solanaRPCRetries       *prometheus.CounterVec

	// Scan Metrics
	accountsScannedTotal *prometheus.CounterVec
	scanDuration         *prometheus.HistogramVec
	scanRiskLevel        *prometheus.GaugeVec

	// Close / Batch Metrics
	closeOutcomesTotal     *prometheus.CounterVec
	batchSizeCurrent       *prometheus.GaugeVec
	batchTooLargeTotal     *prometheus.CounterVec
	reclaimedLamportsTotal *prometheus.CounterVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),

		// Scan Metrics
		accountsScannedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accounts_scanned_total",
				Help: "Total number of accounts discovered by scans, by kind",
			},
			[]string{"wallet_address", "kind"},
		),
		scanDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scan_duration_seconds",
				Help:    "Duration of full wallet scans in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"wallet_address", "status"},
		),
		scanRiskLevel: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "scan_risk_level",
				Help: "Risk level of the latest scan (0=low, 1=medium, 2=high)",
			},
			[]string{"wallet_address"},
		),

		// Close / Batch Metrics
		closeOutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "close_outcomes_total",
				Help: "Total number of per-account close outcomes",
			},
			[]string{"wallet_address", "outcome"},
		),
		batchSizeCurrent: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "close_batch_size",
				Help: "Current adaptive batch size for close transactions",
			},
			[]string{"wallet_address"},
		),
		batchTooLargeTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "close_batch_too_large_total",
				Help: "Total number of transaction-too-large batch shrinks",
			},
			[]string{"wallet_address"},
		),
		reclaimedLamportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reclaimed_lamports_total",
				Help: "Total lamports reclaimed from closed accounts",
			},
			[]string{"wallet_address"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.solanaRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// Scan metric helpers

// RecordAccountsScanned records accounts discovered by a scan.
func (m *Metrics) RecordAccountsScanned(walletAddress, kind string, count int) {
	m.accountsScannedTotal.WithLabelValues(walletAddress, kind).Add(float64(count))
}

// RecordScanDuration records a full scan's duration and status.
func (m *Metrics) RecordScanDuration(walletAddress, status string, duration float64) {
	m.scanDuration.WithLabelValues(walletAddress, status).Observe(duration)
}

// RecordScanRiskLevel records the risk level of the latest scan.
func (m *Metrics) RecordScanRiskLevel(walletAddress string, level float64) {
	m.scanRiskLevel.WithLabelValues(walletAddress).Set(level)
}

// Close / batch metric helpers

// RecordCloseOutcome records a per-account close outcome ("closed" or "failed").
func (m *Metrics) RecordCloseOutcome(walletAddress, outcome string) {
	m.closeOutcomesTotal.WithLabelValues(walletAddress, outcome).Inc()
}

// RecordBatchSize records the current adaptive batch size.
func (m *Metrics) RecordBatchSize(walletAddress string, size int) {
	m.batchSizeCurrent.WithLabelValues(walletAddress).Set(float64(size))
}

// RecordBatchTooLarge records a transaction-too-large shrink event.
func (m *Metrics) RecordBatchTooLarge(walletAddress string) {
	m.batchTooLargeTotal.WithLabelValues(walletAddress).Inc()
}

// RecordReclaimedLamports records lamports reclaimed by successful closes.
func (m *Metrics) RecordReclaimedLamports(walletAddress string, lamports uint64) {
	m.reclaimedLamportsTotal.WithLabelValues(walletAddress).Add(float64(lamports))
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
