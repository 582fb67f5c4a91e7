package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/keyper-oauth/keyper/instrumentation"
	"github.com/keyper-oauth/keyper/issuer"
	"github.com/keyper-oauth/keyper/security"
	"github.com/keyper-oauth/keyper/storage"
)

// maxCodeAttempts bounds code regeneration when the store reports a duplicate
const maxCodeAttempts = 3

// Server makes the authorization and token decisions of the authorization code grant.
// It holds no per-request state; the grant store is the only shared mutable resource.
type Server struct {
	clients     storage.ClientRegistry
	grants      storage.GrantStore
	codeIssuer  issuer.CodeIssuer
	tokenIssuer issuer.TokenIssuer

	Auditor         *security.Auditor
	Instrumentation *instrumentation.Instrumentation
	Logger          *slog.Logger
	Config          *Config

	tracer  trace.Tracer
	metrics *instrumentation.Metrics
	now     func() time.Time
}

// New creates a new authorization server
func New(clients storage.ClientRegistry, grants storage.GrantStore, config *Config, logger *slog.Logger) (*Server, error) {
	if clients == nil {
		return nil, fmt.Errorf("client registry is required")
	}
	if grants == nil {
		return nil, fmt.Errorf("grant store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applySecureDefaults(config, logger)

	srv := &Server{
		clients:     clients,
		grants:      grants,
		codeIssuer:  issuer.NewCodeIssuer(),
		tokenIssuer: issuer.NewTokenIssuer(),
		Config:      config,
		Logger:      logger,
		now:         time.Now,
	}

	// Configure expiry tolerance if storage supports it
	type gracePeriodSetter interface {
		SetClockSkewGracePeriod(d time.Duration)
	}
	if setter, ok := grants.(gracePeriodSetter); ok {
		setter.SetClockSkewGracePeriod(config.clockSkewGrace())
	}

	return srv, nil
}

// SetCodeIssuer replaces the authorization code generator
func (s *Server) SetCodeIssuer(ci issuer.CodeIssuer) {
	if ci != nil {
		s.codeIssuer = ci
	}
}

// SetTokenIssuer replaces the access and refresh token generator
func (s *Server) SetTokenIssuer(ti issuer.TokenIssuer) {
	if ti != nil {
		s.tokenIssuer = ti
	}
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetInstrumentation sets the OpenTelemetry instrumentation for server and storage
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.Instrumentation = inst
	if inst == nil {
		s.tracer = nil
		s.metrics = nil
		return
	}
	s.tracer = inst.Tracer("server")
	s.metrics = inst.Metrics()

	type instrumentationSetter interface {
		SetInstrumentation(*instrumentation.Instrumentation)
	}
	grantSetter, ok := s.grants.(instrumentationSetter)
	if ok {
		grantSetter.SetInstrumentation(inst)
	}
	// A single backend usually serves both roles; configure it only once
	if clientSetter, ok := s.clients.(instrumentationSetter); ok && clientSetter != grantSetter {
		clientSetter.SetInstrumentation(inst)
	}
}

// GetClient looks up a registered client
func (s *Server) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	return s.clients.GetClient(ctx, clientID)
}

// CleanupExpiredGrants runs one purge of expired grants.
// It returns zero without error when the grant store cannot purge.
func (s *Server) CleanupExpiredGrants(ctx context.Context) (int, error) {
	cleaner, ok := s.grants.(storage.ExpiredGrantCleaner)
	if !ok {
		return 0, nil
	}

	count, err := cleaner.DeleteExpiredGrants(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired grants: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordGrantsCleaned(ctx, count)
	}
	if count > 0 {
		s.Logger.Debug("Cleaned up expired grants", "count", count)
	}
	return count, nil
}

// RunCleanup purges expired grants every Config.CleanupInterval until ctx is done.
// It returns immediately when the grant store cannot purge.
func (s *Server) RunCleanup(ctx context.Context) error {
	if _, ok := s.grants.(storage.ExpiredGrantCleaner); !ok {
		s.Logger.Debug("Grant store expires grants itself, cleanup loop not started")
		return nil
	}

	ticker := time.NewTicker(s.Config.cleanupInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.CleanupExpiredGrants(ctx); err != nil {
				s.Logger.Warn("Expired grant cleanup failed", "error", err)
			}
		}
	}
}

// startSpan starts a server span; the returned span is nil without instrumentation
func (s *Server) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, nil
	}
	return s.tracer.Start(ctx, name)
}

func endSpan(span trace.Span) {
	if span != nil {
		span.End()
	}
}

// recordAudit counts an audit event when both auditing and metrics are on
func (s *Server) recordAudit(ctx context.Context, eventType string) {
	if s.metrics != nil && s.Auditor.Enabled() {
		s.metrics.RecordAuditEvent(ctx, eventType)
	}
}
