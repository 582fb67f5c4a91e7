// Package instrumentation provides OpenTelemetry instrumentation for the keyper
// authorization server.
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:     "keyper",
//		ServiceVersion:  "1.0.0",
//		Enabled:         true,
//		MetricsExporter: instrumentation.MetricsExporterPrometheus,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	http.Handle("/metrics", inst.MetricsHandler())
//
// Traces are exported over OTLP/HTTP when TracesExporter is "otlp" and OTLPEndpoint
// points at a collector.
//
// # Available Metrics
//
// HTTP Layer:
//   - oauth.http.requests.total{method, endpoint, status}
//   - oauth.http.request.duration{endpoint}
//
// Authorization code flow:
//   - oauth.authorization.decisions{client_id, result}
//   - oauth.code.issued{client_id}
//   - oauth.code.exchanged{client_id, refresh_issued}
//   - oauth.token.rejected{error}
//
// Security:
//   - oauth.code.redemption_failed{reason}
//   - oauth.client.auth_failed
//   - oauth.audit.events.total{event_type}
//
// Storage:
//   - storage.operation.total{operation, result}
//   - storage.operation.duration{operation}
//   - storage.grants.cleaned
//   - storage.grants.count, storage.clients.count (gauges)
//
// # Cardinality
//
// client_id is the only unbounded label. Deployments with many clients should
// aggregate it away with recording rules.
//
// # Disabled Mode
//
// When Enabled is false, no-op providers are used and recording calls cost nothing.
//
// # Security Considerations
//
// Never record authorization codes, token values or client secrets in spans or
// metric labels. Client IP addresses are attached to spans only when LogClientIPs is set.
package instrumentation
