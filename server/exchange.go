package server

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keyper-oauth/keyper/instrumentation"
	"github.com/keyper-oauth/keyper/internal/util"
	"github.com/keyper-oauth/keyper/security"
	"github.com/keyper-oauth/keyper/storage"
)

// Exchange decides an access token request (RFC 6749 section 4.1.3).
//
// The code is consumed before client_id and redirect_uri are compared, so a
// request that fails those checks still burns the code. client_id and
// redirect_uri are only compared when present.
func (s *Server) Exchange(ctx context.Context, req *AccessTokenRequest) (*AccessToken, *TokenError) {
	ctx, span := s.startSpan(ctx, "oauth.exchange")
	defer endSpan(span)

	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrGrantType, req.GrantType))
	if req.ClientID != "" {
		instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrClientID, req.ClientID))
	}

	token, tokenErr := s.exchange(ctx, span, req)
	if tokenErr != nil {
		instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrError, string(tokenErr.Code)))
		instrumentation.SetSpanError(span, string(tokenErr.Code))
		if s.metrics != nil {
			s.metrics.RecordTokenRejected(ctx, string(tokenErr.Code))
		}
		return nil, tokenErr
	}

	instrumentation.SetSpanSuccess(span)
	return token, nil
}

func (s *Server) exchange(ctx context.Context, span trace.Span, req *AccessTokenRequest) (*AccessToken, *TokenError) {
	if req.GrantType != GrantTypeAuthorizationCode {
		s.Logger.Debug("Unsupported grant type", "grant_type", req.GrantType)
		return nil, newTokenError(TokenErrUnsupportedGrantType)
	}

	grant, err := s.grants.ConsumeGrant(ctx, req.Code)
	if err != nil {
		if errors.Is(err, storage.ErrGrantNotFound) {
			s.rejectRedemption(ctx, req, "not_found", "")
			return nil, newTokenError(TokenErrInvalidGrant)
		}
		instrumentation.RecordError(span, err)
		s.Logger.Error("Grant store unavailable", "client_id", req.ClientID, "error", err)
		s.auditStorageUnavailable(ctx, req.ClientID, req.ClientIP, "consume_grant")
		return nil, newTokenError(TokenErrServerError)
	}

	// From here on the code is burned whatever the outcome
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrGrantID, grant.ID))

	if req.ClientID != "" && req.ClientID != grant.ClientID {
		s.rejectRedemption(ctx, req, "client_mismatch", grant.ClientID)
		return nil, newTokenError(TokenErrInvalidGrant)
	}
	if req.RedirectURI != "" && req.RedirectURI != grant.RedirectURI {
		s.rejectRedemption(ctx, req, "redirect_mismatch", grant.ClientID)
		return nil, newTokenError(TokenErrInvalidGrant)
	}

	token, err := s.mintToken(grant)
	if err != nil {
		instrumentation.RecordError(span, err)
		s.Logger.Error("Failed to generate access token", "client_id", grant.ClientID, "error", err)
		return nil, newTokenError(TokenErrServerError)
	}

	instrumentation.AddOAuthFlowAttributes(span, grant.ClientID, grant.UserID, token.Scope)
	instrumentation.AddTokenAttributes(span, token.TokenType, token.ExpiresIn, token.RefreshToken != "")

	s.Logger.Debug("Authorization code exchanged",
		"client_id", grant.ClientID,
		"grant_id", grant.ID,
		"code_prefix", util.SafeTruncate(req.Code, util.CodeLogPrefixLength))

	if s.metrics != nil {
		s.metrics.RecordCodeExchange(ctx, grant.ClientID, token.RefreshToken != "")
	}
	if s.Auditor != nil {
		s.Auditor.LogTokenIssued(grant.UserID, grant.ClientID, req.ClientIP, grant.ID, token.Scope)
		s.recordAudit(ctx, security.EventTokenIssued)
	}

	return token, nil
}

// mintToken creates the access token response for a redeemed grant
func (s *Server) mintToken(grant *storage.Grant) (*AccessToken, error) {
	accessToken, err := s.tokenIssuer.Generate()
	if err != nil {
		return nil, err
	}

	now := s.now()
	token := &AccessToken{
		AccessToken: accessToken,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   s.Config.AccessTokenTTL,
		Scope:       grant.Scope(),
		ExpiresAt:   now.Add(time.Duration(s.Config.AccessTokenTTL) * time.Second),
	}

	if s.Config.IssueRefreshTokens {
		refreshToken, err := s.tokenIssuer.Generate()
		if err != nil {
			return nil, err
		}
		token.RefreshToken = refreshToken
		token.RefreshExpiresAt = now.Add(time.Duration(s.Config.RefreshTokenTTL) * time.Second)
	}

	return token, nil
}

// rejectRedemption logs a failed redemption in detail; the client only sees invalid_grant
func (s *Server) rejectRedemption(ctx context.Context, req *AccessTokenRequest, reason, grantClientID string) {
	attrs := []any{
		"reason", reason,
		"client_id", req.ClientID,
		"code_prefix", util.SafeTruncate(req.Code, util.CodeLogPrefixLength),
	}
	if grantClientID != "" {
		attrs = append(attrs, "expected_client_id", grantClientID)
	}
	if reason == "redirect_mismatch" {
		attrs = append(attrs, "provided_uri", req.RedirectURI)
	}
	s.Logger.Debug("Authorization code validation failed", attrs...)

	if s.metrics != nil {
		s.metrics.RecordCodeRedemptionFailed(ctx, reason)
	}
	if s.Auditor != nil {
		s.Auditor.LogCodeRedemptionFailed(req.ClientID, req.ClientIP, reason)
		s.recordAudit(ctx, security.EventCodeRedemptionFailed)
	}
}
