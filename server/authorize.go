package server

import (
	"context"
	"errors"
	"net/url"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keyper-oauth/keyper/instrumentation"
	"github.com/keyper-oauth/keyper/internal/util"
	"github.com/keyper-oauth/keyper/security"
	"github.com/keyper-oauth/keyper/storage"
)

// Authorize decides an authorization request (RFC 6749 section 4.1.1).
//
// Checks run in order and stop at the first failure: response type, client,
// redirect URI, scope. On success exactly one grant has been stored and the
// returned code redeems it. Every error carries the request's state unchanged.
func (s *Server) Authorize(ctx context.Context, req *AuthorizationRequest) (*AuthorizationResult, *AuthorizationError) {
	ctx, span := s.startSpan(ctx, "oauth.authorize")
	defer endSpan(span)

	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrResponseType, req.ResponseType),
		attribute.String(instrumentation.AttrClientID, req.ClientID),
		attribute.Bool(instrumentation.AttrStatePresent, req.State != ""),
	)

	result, authErr := s.authorize(ctx, span, req)
	if authErr != nil {
		instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrError, string(authErr.Code)))
		instrumentation.SetSpanError(span, string(authErr.Code))
		if s.metrics != nil {
			s.metrics.RecordAuthorizationDecision(ctx, req.ClientID, string(authErr.Code))
		}
		if s.Auditor != nil {
			s.Auditor.LogAuthorizationDenied(req.ClientID, req.ClientIP, string(authErr.Code), authErr.Description)
			s.recordAudit(ctx, security.EventAuthorizationDenied)
		}
		return nil, authErr
	}

	instrumentation.SetSpanSuccess(span)
	if s.metrics != nil {
		s.metrics.RecordAuthorizationDecision(ctx, req.ClientID, ResponseTypeCode)
	}
	return result, nil
}

func (s *Server) authorize(ctx context.Context, span trace.Span, req *AuthorizationRequest) (*AuthorizationResult, *AuthorizationError) {
	if req.ResponseType != ResponseTypeCode {
		s.Logger.Debug("Unsupported response type",
			"response_type", req.ResponseType,
			"client_id", req.ClientID)
		return nil, newAuthorizationError(AuthErrUnsupportedResponseType, req.State)
	}

	client, err := s.clients.GetClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			s.Logger.Debug("Unknown client", "client_id", req.ClientID)
			return nil, newAuthorizationError(AuthErrUnauthorizedClient, req.State)
		}
		instrumentation.RecordError(span, err)
		s.Logger.Error("Client registry unavailable", "client_id", req.ClientID, "error", err)
		s.auditStorageUnavailable(ctx, req.ClientID, req.ClientIP, "get_client")
		return nil, newAuthorizationError(AuthErrServerError, req.State)
	}
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrClientType, string(client.ClientType)))

	redirectURI, ok := resolveRedirectURI(client, req.RedirectURI)
	if !ok {
		s.Logger.Debug("Redirect URI rejected",
			"client_id", req.ClientID,
			"provided_uri", req.RedirectURI,
			"registered_uris", len(client.RedirectURIs))
		if s.Auditor != nil {
			s.Auditor.LogEvent(security.Event{
				Type:      security.EventInvalidRedirect,
				ClientID:  req.ClientID,
				IPAddress: req.ClientIP,
				Details: map[string]any{
					"provided": req.RedirectURI != "",
				},
			})
			s.recordAudit(ctx, security.EventInvalidRedirect)
		}
		return nil, newAuthorizationError(AuthErrInvalidRequest, req.State)
	}

	scopes := storage.ParseScope(req.Scope)
	if !s.Config.scopeSupported(scopes) {
		s.Logger.Debug("Unsupported scope requested", "client_id", req.ClientID, "scope", req.Scope)
		return nil, newAuthorizationError(AuthErrInvalidScope, req.State)
	}
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrScope, req.Scope))

	grant, authErr := s.issueGrant(ctx, req, redirectURI, scopes)
	if authErr != nil {
		return nil, authErr
	}
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrGrantID, grant.ID))

	s.Logger.Debug("Authorization code issued",
		"client_id", grant.ClientID,
		"grant_id", grant.ID,
		"code_prefix", util.SafeTruncate(grant.Code, util.CodeLogPrefixLength))

	if s.metrics != nil {
		s.metrics.RecordCodeIssued(ctx, grant.ClientID)
	}
	if s.Auditor != nil {
		s.Auditor.LogCodeIssued(grant.UserID, grant.ClientID, req.ClientIP, grant.ID, grant.Scope())
		s.recordAudit(ctx, security.EventAuthorizationCodeIssued)
	}

	return &AuthorizationResult{
		Code:        grant.Code,
		State:       req.State,
		RedirectURI: redirectURI,
		GrantID:     grant.ID,
	}, nil
}

// issueGrant generates a code and stores its grant, regenerating on collision
func (s *Server) issueGrant(ctx context.Context, req *AuthorizationRequest, redirectURI string, scopes []string) (*storage.Grant, *AuthorizationError) {
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := s.codeIssuer.Generate()
		if err != nil {
			s.Logger.Error("Failed to generate authorization code", "error", err)
			return nil, newAuthorizationError(AuthErrServerError, req.State)
		}

		now := s.now()
		grant := &storage.Grant{
			ID:          uuid.NewString(),
			Code:        code,
			ClientID:    req.ClientID,
			RedirectURI: redirectURI,
			Scopes:      scopes,
			UserID:      req.UserID,
			CreatedAt:   now,
			ExpiresAt:   now.Add(s.Config.codeTTL()),
		}

		err = s.grants.CreateGrant(ctx, grant)
		if err == nil {
			return grant, nil
		}
		if errors.Is(err, storage.ErrGrantExists) {
			s.Logger.Warn("Authorization code collision, regenerating",
				"client_id", req.ClientID,
				"attempt", attempt)
			continue
		}

		s.Logger.Error("Failed to store authorization grant", "client_id", req.ClientID, "error", err)
		s.auditStorageUnavailable(ctx, req.ClientID, req.ClientIP, "create_grant")
		return nil, newAuthorizationError(AuthErrServerError, req.State)
	}

	s.Logger.Error("Authorization code collisions exhausted retries",
		"client_id", req.ClientID,
		"attempts", maxCodeAttempts)
	return nil, newAuthorizationError(AuthErrServerError, req.State)
}

// resolveRedirectURI picks the redirect target for a request.
//
//	provided  registered  result
//	absent    none        rejected
//	absent    some        first registered URI
//	present   none        provided URI if it parses as a URI, else rejected
//	present   some        provided URI if registered, else rejected
func resolveRedirectURI(client *storage.Client, provided string) (string, bool) {
	switch {
	case provided == "" && len(client.RedirectURIs) == 0:
		return "", false
	case provided == "":
		return client.DefaultRedirectURI(), true
	case len(client.RedirectURIs) == 0:
		// Unchecked, but it must be able to carry the code back
		if _, err := url.Parse(provided); err != nil {
			return "", false
		}
		return provided, true
	case client.HasRedirectURI(provided):
		return provided, true
	default:
		return "", false
	}
}

func (s *Server) auditStorageUnavailable(ctx context.Context, clientID, clientIP, operation string) {
	if s.Auditor == nil {
		return
	}
	s.Auditor.LogEvent(security.Event{
		Type:      security.EventStorageUnavailable,
		ClientID:  clientID,
		IPAddress: clientIP,
		Details: map[string]any{
			"operation": operation,
		},
	})
	s.recordAudit(ctx, security.EventStorageUnavailable)
}
