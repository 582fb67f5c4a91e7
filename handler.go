package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keyper-oauth/keyper/instrumentation"
	"github.com/keyper-oauth/keyper/internal/util"
	"github.com/keyper-oauth/keyper/security"
	"github.com/keyper-oauth/keyper/server"
	"github.com/keyper-oauth/keyper/storage"
)

// Client authentication methods advertised in metadata (RFC 8414 / RFC 7591)
const (
	AuthMethodClientSecretBasic = "client_secret_basic"
	AuthMethodClientSecretPost  = "client_secret_post"
	AuthMethodNone              = "none"
)

// singleValueParams must not be repeated in a request (RFC 6749 Section 3.1)
var singleValueParams = []string{
	"response_type", "client_id", "redirect_uri", "scope", "state",
	"grant_type", "code", "client_secret",
}

// UserIDFunc returns the resource owner the authorization request is made on behalf of.
// Authentication of the resource owner happens upstream; an empty ID is allowed.
type UserIDFunc func(r *http.Request) string

// Handler is a thin HTTP adapter for the OAuth Server.
// It handles HTTP requests and delegates to the Server for decisions.
type Handler struct {
	server *Server
	logger *slog.Logger
	tracer trace.Tracer // OpenTelemetry tracer for HTTP layer

	userID UserIDFunc
}

// NewHandler creates a new HTTP handler
func NewHandler(server *Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server: server,
		logger: logger,
	}

	// Initialize tracer if instrumentation is enabled
	if server.Instrumentation != nil {
		h.tracer = server.Instrumentation.Tracer("http")
	}

	return h
}

// SetUserIDFunc sets how the resource owner is identified for authorization requests
func (h *Handler) SetUserIDFunc(fn UserIDFunc) {
	h.userID = fn
}

// Routes returns a router serving every authorization server endpoint.
// Middleware is left to the caller, who mounts the returned router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ServeIndex)
	r.Get("/healthz", h.ServeHealth)
	r.Get("/.well-known/oauth-authorization-server", h.ServeAuthorizationServerMetadata)
	r.HandleFunc("/authorize", h.ServeAuthorization)
	r.HandleFunc("/authorization", h.ServeAuthorization)
	r.HandleFunc("/token", h.ServeToken)
	return r
}

// ServeIndex answers the root path with a short greeting
func (h *Handler) ServeIndex(w http.ResponseWriter, _ *http.Request) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintln(w, "keyper OAuth 2.0 authorization server")
}

// ServeHealth reports liveness
func (h *Handler) ServeHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ServeAuthorizationServerMetadata serves RFC 8414 authorization server metadata
func (h *Handler) ServeAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	security.SetSecurityHeaders(w, h.server.Config.Issuer)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.buildAuthServerMetadata())
}

func (h *Handler) buildAuthServerMetadata() *AuthorizationServerMetadata {
	return &AuthorizationServerMetadata{
		Issuer:                 h.server.Config.Issuer,
		AuthorizationEndpoint:  h.server.Config.AuthorizationEndpoint(),
		TokenEndpoint:          h.server.Config.TokenEndpoint(),
		ScopesSupported:        h.server.Config.SupportedScopes,
		ResponseTypesSupported: []string{server.ResponseTypeCode},
		GrantTypesSupported:    []string{server.GrantTypeAuthorizationCode},
		TokenEndpointAuthMethodsSupported: []string{
			AuthMethodClientSecretBasic,
			AuthMethodClientSecretPost,
			AuthMethodNone,
		},
	}
}

// ServeAuthorization handles authorization requests (RFC 6749 Section 4.1.1).
// A granted request is answered with a 302 to the resolved redirect URI carrying
// code and state. A rejected one is answered directly with a JSON error body.
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	// Create span if tracing is enabled
	var span trace.Span
	ctx := r.Context()
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "oauth.http.authorization")
		defer span.End()
		r = r.WithContext(ctx)
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		h.recordHTTPMetrics(ctx, "authorization", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientIP := h.clientIP(r, span)

	if oauthErr := parseParams(r); oauthErr != nil {
		oauthErr.State = requestState(r)
		h.finishWithError(ctx, w, span, "authorization", r.Method, oauthErr, startTime)
		return
	}

	req := &server.AuthorizationRequest{
		ResponseType: r.Form.Get("response_type"),
		ClientID:     r.Form.Get("client_id"),
		RedirectURI:  r.Form.Get("redirect_uri"),
		Scope:        r.Form.Get("scope"),
		State:        r.Form.Get("state"),
		ClientIP:     clientIP,
	}
	if h.userID != nil {
		req.UserID = h.userID(r)
	}

	result, authErr := h.server.Authorize(ctx, req)
	if authErr != nil {
		h.finishWithError(ctx, w, span, "authorization", r.Method, fromAuthorizationError(authErr), startTime)
		return
	}

	location, err := util.AppendQuery(result.RedirectURI, "code", result.Code, "state", result.State)
	if err != nil {
		// Authorize only resolves URIs that parse, so this is not reachable from a request
		h.logger.Error("Redirect URI cannot carry the authorization response",
			"client_id", req.ClientID,
			"grant_id", result.GrantID,
			"error", err)
		instrumentation.RecordError(span, err)
		oauthErr := ErrServerError("Failed to build redirect")
		oauthErr.State = req.State
		h.finishWithError(ctx, w, span, "authorization", r.Method, oauthErr, startTime)
		return
	}

	h.logger.Info("Authorization code issued",
		"client_id", req.ClientID,
		"grant_id", result.GrantID,
		"request_id", middleware.GetReqID(ctx))

	h.recordHTTPMetrics(ctx, "authorization", r.Method, http.StatusFound, startTime)
	instrumentation.AddHTTPAttributes(span, r.Method, "authorization", http.StatusFound)
	instrumentation.SetSpanSuccess(span)

	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	security.SetNoStoreHeaders(w)
	http.Redirect(w, r, location, http.StatusFound)
}

// ServeToken handles access token requests (RFC 6749 Section 4.1.3).
// Parameters are read from the form body, or from the query string for GET.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	// Create span if tracing is enabled
	var span trace.Span
	ctx := r.Context()
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "oauth.http.token")
		defer span.End()
		r = r.WithContext(ctx)
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		h.recordHTTPMetrics(ctx, "token", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientIP := h.clientIP(r, span)

	if oauthErr := parseParams(r); oauthErr != nil {
		h.finishWithError(ctx, w, span, "token", r.Method, oauthErr, startTime)
		return
	}

	grantType := r.Form.Get("grant_type")
	code := r.Form.Get("code")
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrGrantType, grantType))

	// Authenticate before the code is touched so a bad secret never burns it
	clientID, oauthErr := h.authenticateClient(r, clientIP)
	if oauthErr != nil {
		h.finishWithError(ctx, w, span, "token", r.Method, oauthErr, startTime)
		return
	}

	if grantType == server.GrantTypeAuthorizationCode && code == "" {
		h.finishWithError(ctx, w, span, "token", r.Method, ErrInvalidRequest("Required parameter 'code' missing"), startTime)
		return
	}

	token, tokenErr := h.server.Exchange(ctx, &server.AccessTokenRequest{
		GrantType:   grantType,
		Code:        code,
		RedirectURI: r.Form.Get("redirect_uri"),
		ClientID:    clientID,
		ClientIP:    clientIP,
	})
	if tokenErr != nil {
		h.finishWithError(ctx, w, span, "token", r.Method, fromTokenError(tokenErr), startTime)
		return
	}

	h.logger.Info("Token exchange successful",
		"client_id", clientID,
		"request_id", middleware.GetReqID(ctx))

	h.recordHTTPMetrics(ctx, "token", r.Method, http.StatusOK, startTime)
	instrumentation.AddHTTPAttributes(span, r.Method, "token", http.StatusOK)
	instrumentation.SetSpanSuccess(span)

	h.writeTokenResponse(w, token)
}

// parseParams parses query and form parameters and rejects repeated ones
func parseParams(r *http.Request) *OAuthError {
	if err := r.ParseForm(); err != nil {
		return ErrInvalidRequest("Failed to parse request")
	}
	for _, name := range singleValueParams {
		if len(r.Form[name]) > 1 {
			return ErrInvalidRequest(fmt.Sprintf("Parameter '%s' must not be repeated", name))
		}
	}
	return nil
}

// requestState recovers state from a request whose parameters failed validation,
// preferring the query string over the form body
func requestState(r *http.Request) string {
	if state := r.URL.Query().Get("state"); state != "" {
		return state
	}
	return r.PostFormValue("state")
}

// clientIP extracts the client address and adds it to the span when IP logging is allowed
func (h *Handler) clientIP(r *http.Request, span trace.Span) string {
	clientIP := security.GetClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
	if h.server.Instrumentation != nil && h.server.Instrumentation.ShouldLogClientIPs() {
		instrumentation.AddSecurityAttributes(span, clientIP)
	}
	return clientIP
}

// authenticateClient verifies client credentials when the request presents any,
// from either Basic Auth (RFC 6749 Section 2.3.1) or the client_secret parameter.
// It returns the client ID to pass on: the authenticated one, or the client_id
// parameter as given when no credentials were presented.
func (h *Handler) authenticateClient(r *http.Request, clientIP string) (string, *OAuthError) {
	formClientID := r.Form.Get("client_id")
	formSecret := r.Form.Get("client_secret")
	basicID, basicSecret, hasBasic := r.BasicAuth()

	if !hasBasic && formSecret == "" {
		return formClientID, nil
	}
	if hasBasic && formSecret != "" {
		return "", ErrInvalidRequest("Multiple client authentication methods used")
	}

	clientID, secret := formClientID, formSecret
	if hasBasic {
		// Basic credentials are form-urlencoded before encoding (RFC 6749 Section 2.3.1)
		var err error
		if clientID, err = url.QueryUnescape(basicID); err != nil {
			return "", ErrInvalidRequest("Malformed Authorization header")
		}
		if secret, err = url.QueryUnescape(basicSecret); err != nil {
			return "", ErrInvalidRequest("Malformed Authorization header")
		}
		if formClientID != "" && formClientID != clientID {
			return "", ErrInvalidRequest("client_id does not match the authenticated client")
		}
	}

	if clientID == "" {
		h.logAuthFailure(r.Context(), "", clientIP, "missing_client_id", "Client credentials without client_id")
		return "", ErrInvalidClient("Client authentication failed")
	}

	client, err := h.server.GetClient(r.Context(), clientID)
	if err != nil {
		if !errors.Is(err, storage.ErrClientNotFound) {
			h.logger.Error("Client lookup failed", "client_id", clientID, "error", err)
			return "", ErrServerError("Client registry unavailable")
		}
		// Same bcrypt cost as a known client
		_ = security.CompareClientSecret("", secret)
		h.logAuthFailure(r.Context(), clientID, clientIP, "unknown_client", "Unknown client")
		return "", ErrInvalidClient("Client authentication failed")
	}

	if err := security.CompareClientSecret(client.ClientSecretHash, secret); err != nil {
		h.logAuthFailure(r.Context(), clientID, clientIP, "client_authentication_failed", "Client authentication failed")
		return "", ErrInvalidClient("Client authentication failed")
	}

	return client.ClientID, nil
}

// logAuthFailure logs authentication failures with optional auditing.
func (h *Handler) logAuthFailure(ctx context.Context, clientID, clientIP, reason, message string) {
	h.logger.Warn(message, "client_id", clientID, "reason", reason)
	if h.server.Instrumentation != nil {
		h.server.Instrumentation.Metrics().RecordClientAuthFailed(ctx)
	}
	if h.server.Auditor.Enabled() {
		h.server.Auditor.LogAuthFailure("", clientID, clientIP, reason)
		if h.server.Instrumentation != nil {
			h.server.Instrumentation.Metrics().RecordAuditEvent(ctx, security.EventAuthFailure)
		}
	}
}

// finishWithError records the failed request and writes its error response
func (h *Handler) finishWithError(ctx context.Context, w http.ResponseWriter, span trace.Span, endpoint, method string, oauthErr *OAuthError, startTime time.Time) {
	h.recordHTTPMetrics(ctx, endpoint, method, oauthErr.Status, startTime)
	instrumentation.AddHTTPAttributes(span, method, endpoint, oauthErr.Status)
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrError, oauthErr.Code))
	instrumentation.SetSpanError(span, oauthErr.Code)

	h.logger.Debug("Request rejected",
		"endpoint", endpoint,
		"error", oauthErr.Code,
		"status", oauthErr.Status,
		"request_id", middleware.GetReqID(ctx))

	h.writeError(w, oauthErr)
}

func (h *Handler) writeTokenResponse(w http.ResponseWriter, token *server.AccessToken) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	security.SetNoStoreHeaders(w)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(&TokenResponse{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		ExpiresIn:    token.ExpiresIn,
		RefreshToken: token.RefreshToken,
		Scope:        token.Scope,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, oauthErr *OAuthError) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	security.SetNoStoreHeaders(w)

	// RFC 7235 Section 3.1: a 401 carries a challenge
	if oauthErr.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", h.realm()))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(oauthErr.Status)
	_ = json.NewEncoder(w).Encode(&ErrorResponse{
		Error:            oauthErr.Code,
		ErrorDescription: oauthErr.Description,
		ErrorURI:         oauthErr.URI,
		State:            oauthErr.State,
	})
}

func (h *Handler) realm() string {
	if h.server.Config.Issuer != "" {
		return h.server.Config.Issuer
	}
	return "keyper"
}

func (h *Handler) recordHTTPMetrics(ctx context.Context, endpoint, method string, status int, startTime time.Time) {
	if h.server.Instrumentation == nil {
		return
	}

	duration := time.Since(startTime).Seconds() * 1000 // convert to milliseconds
	h.server.Instrumentation.Metrics().RecordHTTPRequest(ctx, method, endpoint, status, duration)
}
