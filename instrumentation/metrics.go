package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the authorization server
type Metrics struct {
	// HTTP Layer Metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Authorization Code Flow Metrics
	AuthorizationDecisions metric.Int64Counter
	CodeIssued             metric.Int64Counter
	CodeExchanged          metric.Int64Counter
	TokenRequestsRejected  metric.Int64Counter

	// Security Metrics
	CodeRedemptionFailed metric.Int64Counter
	ClientAuthFailed     metric.Int64Counter
	AuditEventsTotal     metric.Int64Counter

	// Storage Metrics
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram
	StorageGrantsCleaned     metric.Int64Counter
	StorageGrantsCount       metric.Int64ObservableGauge
	StorageClientsCount      metric.Int64ObservableGauge
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	httpMeter := inst.Meter("http")
	serverMeter := inst.Meter("server")
	securityMeter := inst.Meter("security")
	storageMeter := inst.Meter("storage")

	var err error

	// HTTP Layer Metrics
	m.HTTPRequestsTotal, err = httpMeter.Int64Counter(
		"oauth.http.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.requests.total counter: %w", err)
	}

	m.HTTPRequestDuration, err = httpMeter.Float64Histogram(
		"oauth.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.request.duration histogram: %w", err)
	}

	// Authorization Code Flow Metrics
	m.AuthorizationDecisions, err = serverMeter.Int64Counter(
		"oauth.authorization.decisions",
		metric.WithDescription("Number of authorization decisions by result"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization.decisions counter: %w", err)
	}

	m.CodeIssued, err = serverMeter.Int64Counter(
		"oauth.code.issued",
		metric.WithDescription("Number of authorization codes issued"),
		metric.WithUnit("{code}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create code.issued counter: %w", err)
	}

	m.CodeExchanged, err = serverMeter.Int64Counter(
		"oauth.code.exchanged",
		metric.WithDescription("Number of authorization codes exchanged for tokens"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create code.exchanged counter: %w", err)
	}

	m.TokenRequestsRejected, err = serverMeter.Int64Counter(
		"oauth.token.rejected",
		metric.WithDescription("Number of token requests rejected by error code"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.rejected counter: %w", err)
	}

	// Security Metrics
	m.CodeRedemptionFailed, err = securityMeter.Int64Counter(
		"oauth.code.redemption_failed",
		metric.WithDescription("Number of failed authorization code redemptions"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create code.redemption_failed counter: %w", err)
	}

	m.ClientAuthFailed, err = securityMeter.Int64Counter(
		"oauth.client.auth_failed",
		metric.WithDescription("Number of failed client authentications"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create client.auth_failed counter: %w", err)
	}

	m.AuditEventsTotal, err = securityMeter.Int64Counter(
		"oauth.audit.events.total",
		metric.WithDescription("Total number of audit events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit.events.total counter: %w", err)
	}

	// Storage Metrics
	m.StorageOperationTotal, err = storageMeter.Int64Counter(
		"storage.operation.total",
		metric.WithDescription("Total number of storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.total counter: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	m.StorageGrantsCleaned, err = storageMeter.Int64Counter(
		"storage.grants.cleaned",
		metric.WithDescription("Number of expired grants removed by cleanup"),
		metric.WithUnit("{grant}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.grants.cleaned counter: %w", err)
	}

	m.StorageGrantsCount, err = storageMeter.Int64ObservableGauge(
		"storage.grants.count",
		metric.WithDescription("Number of outstanding authorization grants"),
		metric.WithUnit("{grant}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.grants.count gauge: %w", err)
	}

	m.StorageClientsCount, err = storageMeter.Int64ObservableGauge(
		"storage.clients.count",
		metric.WithDescription("Number of registered clients"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.clients.count gauge: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	}

	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordAuthorizationDecision records the outcome of an authorization request.
// result is "code" on success or the error code otherwise.
func (m *Metrics) RecordAuthorizationDecision(ctx context.Context, clientID, result string) {
	m.AuthorizationDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("result", result),
	))
}

// RecordCodeIssued records an issued authorization code
func (m *Metrics) RecordCodeIssued(ctx context.Context, clientID string) {
	m.CodeIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordCodeExchange records an authorization code exchange
func (m *Metrics) RecordCodeExchange(ctx context.Context, clientID string, refreshIssued bool) {
	m.CodeExchanged.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.Bool("refresh_issued", refreshIssued),
	))
}

// RecordTokenRejected records a rejected token request
func (m *Metrics) RecordTokenRejected(ctx context.Context, errorCode string) {
	m.TokenRequestsRejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error", errorCode),
	))
}

// RecordCodeRedemptionFailed records a failed code redemption with its reason
// ("not_found", "client_mismatch", "redirect_mismatch")
func (m *Metrics) RecordCodeRedemptionFailed(ctx context.Context, reason string) {
	m.CodeRedemptionFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordClientAuthFailed records a failed client authentication
func (m *Metrics) RecordClientAuthFailed(ctx context.Context) {
	m.ClientAuthFailed.Add(ctx, 1)
}

// RecordAuditEvent records an audit event
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.String("result", result),
	}

	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordGrantsCleaned records the number of expired grants removed in one cleanup pass
func (m *Metrics) RecordGrantsCleaned(ctx context.Context, count int) {
	if count <= 0 {
		return
	}
	m.StorageGrantsCleaned.Add(ctx, int64(count))
}
