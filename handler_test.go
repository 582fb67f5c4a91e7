package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"golang.org/x/oauth2"

	"github.com/keyper-oauth/keyper/internal/testutil"
	"github.com/keyper-oauth/keyper/security"
	"github.com/keyper-oauth/keyper/storage"
	"github.com/keyper-oauth/keyper/storage/memory"
)

const (
	testSecret         = "7Fjfp0ZBr1KtDRbnfVdmIw"
	testPublicClientID = "native-app"
	testOpenClientID   = "cli-tool"
)

var (
	testSecretHashOnce sync.Once
	testSecretHash     string
)

func secretHash(t *testing.T) string {
	t.Helper()
	testSecretHashOnce.Do(func() {
		hash, err := security.HashClientSecret(testSecret)
		if err != nil {
			t.Fatalf("HashClientSecret() error = %v", err)
		}
		testSecretHash = hash
	})
	return testSecretHash
}

func setupTestHandler(t *testing.T) (*Handler, *memory.Store) {
	t.Helper()

	store := newTestStore(t)

	confidential := testutil.GenerateTestClient()
	confidential.ClientSecretHash = secretHash(t)
	if err := store.SaveClient(context.Background(), confidential); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	public := &storage.Client{
		ClientID:     testPublicClientID,
		ClientType:   storage.ClientTypePublic,
		RedirectURIs: []string{"http://127.0.0.1:8400/callback"},
	}
	if err := store.SaveClient(context.Background(), public); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	// No registered redirect URIs: any provided redirect_uri is taken unchecked
	noRedirects := &storage.Client{
		ClientID:   testOpenClientID,
		ClientType: storage.ClientTypePublic,
	}
	if err := store.SaveClient(context.Background(), noRedirects); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	srv, err := NewServer(store, store, &Config{Issuer: "https://auth.example.com"})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	return NewHandler(srv, nil), store
}

// authorizeCode runs a successful authorization request and returns the issued code
func authorizeCode(t *testing.T, h *Handler, clientID string) string {
	t.Helper()

	q := url.Values{
		"response_type": {"code"},
		"client_id":     {clientID},
		"state":         {testutil.TestState},
	}
	req := httptest.NewRequest(http.MethodGet, "/authorize?"+q.Encode(), nil)
	w := httptest.NewRecorder()

	h.ServeAuthorization(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("authorization status = %d, want %d: %s", w.Code, http.StatusFound, w.Body.String())
	}
	location, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("invalid Location header: %v", err)
	}
	code := location.Query().Get("code")
	if code == "" {
		t.Fatalf("Location %q carries no code", location)
	}
	return code
}

func postToken(h *Handler, form url.Values, setup func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if setup != nil {
		setup(req)
	}
	w := httptest.NewRecorder()
	h.ServeToken(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp
}

func TestNewHandler(t *testing.T) {
	handler, _ := setupTestHandler(t)

	if handler.logger == nil {
		t.Error("logger should not be nil")
	}
	if handler.tracer != nil {
		t.Error("tracer should be nil without instrumentation")
	}
}

func TestHandler_ServeAuthorization_Redirect(t *testing.T) {
	handler, _ := setupTestHandler(t)

	// redirect_uri percent-encoded the way RFC 6749 Section 4.1.1 shows it
	target := "/authorize?response_type=code&client_id=s6BhdRkqt3&state=xyz" +
		"&redirect_uri=https%3A%2F%2Fclient%2Eexample%2Ecom%2Fcb"
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()

	handler.ServeAuthorization(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusFound, w.Body.String())
	}

	location, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("invalid Location header: %v", err)
	}
	if got := location.Scheme + "://" + location.Host + location.Path; got != testutil.TestRedirectURI {
		t.Errorf("redirect target = %q, want %q", got, testutil.TestRedirectURI)
	}
	if got := location.Query().Get("state"); got != testutil.TestState {
		t.Errorf("state = %q, want %q", got, testutil.TestState)
	}
	if location.Query().Get("code") == "" {
		t.Error("code missing from redirect")
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want %q", got, "no-store")
	}
}

func TestHandler_ServeAuthorization_NoStateOmitted(t *testing.T) {
	handler, _ := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/authorize?response_type=code&client_id=s6BhdRkqt3", nil)
	w := httptest.NewRecorder()

	handler.ServeAuthorization(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusFound)
	}
	location, _ := url.Parse(w.Header().Get("Location"))
	if _, ok := location.Query()["state"]; ok {
		t.Errorf("state should be omitted when not sent: %s", location)
	}
}

func TestHandler_ServeAuthorization_Post(t *testing.T) {
	handler, _ := setupTestHandler(t)

	form := url.Values{"response_type": {"code"}, "client_id": {testutil.TestClientID}}
	req := httptest.NewRequest(http.MethodPost, "/authorize", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	handler.ServeAuthorization(w, req)

	if w.Code != http.StatusFound {
		t.Errorf("status = %d, want %d: %s", w.Code, http.StatusFound, w.Body.String())
	}
}

func TestHandler_ServeAuthorization_Errors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		query      string
		body       string
		wantStatus int
		wantError  string
		wantState  string
	}{
		{
			name:       "missing response type",
			method:     http.MethodGet,
			query:      "client_id=s6BhdRkqt3&state=xyz",
			wantStatus: http.StatusBadRequest,
			wantError:  ErrorCodeUnsupportedResponseType,
			wantState:  "xyz",
		},
		{
			name:       "token response type",
			method:     http.MethodGet,
			query:      "response_type=token&client_id=s6BhdRkqt3&state=xyz",
			wantStatus: http.StatusBadRequest,
			wantError:  ErrorCodeUnsupportedResponseType,
			wantState:  "xyz",
		},
		{
			name:       "unknown client",
			method:     http.MethodGet,
			query:      "response_type=code&client_id=unknown&state=abc",
			wantStatus: http.StatusUnauthorized,
			wantError:  ErrorCodeUnauthorizedClient,
			wantState:  "abc",
		},
		{
			name:       "unregistered redirect uri",
			method:     http.MethodGet,
			query:      "response_type=code&client_id=s6BhdRkqt3&state=xyz&redirect_uri=https%3A%2F%2Fevil.example.com%2Fcb",
			wantStatus: http.StatusBadRequest,
			wantError:  ErrorCodeInvalidRequest,
			wantState:  "xyz",
		},
		{
			name:       "repeated parameter",
			method:     http.MethodGet,
			query:      "response_type=code&client_id=s6BhdRkqt3&client_id=other&state=xyz",
			wantStatus: http.StatusBadRequest,
			wantError:  ErrorCodeInvalidRequest,
			wantState:  "xyz",
		},
		{
			name:       "unparseable redirect uri for client without registrations",
			method:     http.MethodGet,
			query:      "response_type=code&client_id=cli-tool&state=xyz&redirect_uri=" + url.QueryEscape("http://[::1"),
			wantStatus: http.StatusBadRequest,
			wantError:  ErrorCodeInvalidRequest,
			wantState:  "xyz",
		},
		{
			name:       "repeated parameter in post body",
			method:     http.MethodPost,
			body:       "response_type=code&client_id=s6BhdRkqt3&client_id=other&state=xyz",
			wantStatus: http.StatusBadRequest,
			wantError:  ErrorCodeInvalidRequest,
			wantState:  "xyz",
		},
		{
			name:       "malformed post body",
			method:     http.MethodPost,
			body:       "response_type=code&client_id=s6BhdRkqt3&state=xyz&%zz",
			wantStatus: http.StatusBadRequest,
			wantError:  ErrorCodeInvalidRequest,
			wantState:  "xyz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, store := setupTestHandler(t)

			req := httptest.NewRequest(tt.method, "/authorize?"+tt.query, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			}
			w := httptest.NewRecorder()

			handler.ServeAuthorization(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if loc := w.Header().Get("Location"); loc != "" {
				t.Errorf("rejected request must not redirect, got Location %q", loc)
			}
			resp := decodeError(t, w)
			if resp.Error != tt.wantError {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantError)
			}
			if resp.State != tt.wantState {
				t.Errorf("state = %q, want %q", resp.State, tt.wantState)
			}
			if store.GrantCount() != 0 {
				t.Errorf("GrantCount() = %d, want 0", store.GrantCount())
			}
		})
	}
}

func TestHandler_ServeAuthorization_MethodNotAllowed(t *testing.T) {
	handler, _ := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodDelete, "/authorize", nil)
	w := httptest.NewRecorder()

	handler.ServeAuthorization(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandler_ServeAuthorization_UserID(t *testing.T) {
	handler, store := setupTestHandler(t)
	handler.SetUserIDFunc(func(r *http.Request) string {
		return r.Header.Get("X-Remote-User")
	})

	req := httptest.NewRequest(http.MethodGet, "/authorize?response_type=code&client_id=s6BhdRkqt3", nil)
	req.Header.Set("X-Remote-User", "alice")
	w := httptest.NewRecorder()

	handler.ServeAuthorization(w, req)

	location, _ := url.Parse(w.Header().Get("Location"))
	grant, err := store.ConsumeGrant(context.Background(), location.Query().Get("code"))
	if err != nil {
		t.Fatalf("ConsumeGrant() error = %v", err)
	}
	if grant.UserID != "alice" {
		t.Errorf("UserID = %q, want %q", grant.UserID, "alice")
	}
}

func TestHandler_ServeToken(t *testing.T) {
	handler, _ := setupTestHandler(t)
	code := authorizeCode(t, handler, testutil.TestClientID)

	w := postToken(handler, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {testutil.TestRedirectURI},
		"client_id":    {testutil.TestClientID},
	}, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want %q", got, "no-store")
	}
	if got := w.Header().Get("Pragma"); got != "no-cache" {
		t.Errorf("Pragma = %q, want %q", got, "no-cache")
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want %q", got, "application/json")
	}

	var resp TokenResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode token response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Error("access_token is empty")
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("token_type = %q, want %q", resp.TokenType, "Bearer")
	}
	if resp.ExpiresIn != 3600 {
		t.Errorf("expires_in = %d, want %d", resp.ExpiresIn, 3600)
	}
	if resp.RefreshToken != "" {
		t.Error("refresh_token should not be issued by default")
	}
}

func TestHandler_ServeToken_GetQuery(t *testing.T) {
	handler, _ := setupTestHandler(t)
	code := authorizeCode(t, handler, testutil.TestClientID)

	q := url.Values{"grant_type": {"authorization_code"}, "code": {code}}
	req := httptest.NewRequest(http.MethodGet, "/token?"+q.Encode(), nil)
	w := httptest.NewRecorder()

	handler.ServeToken(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestHandler_ServeToken_Errors(t *testing.T) {
	tests := []struct {
		name       string
		form       func(code string) url.Values
		wantStatus int
		wantError  string
	}{
		{
			name: "unsupported grant type",
			form: func(code string) url.Values {
				return url.Values{"grant_type": {"password"}, "code": {code}}
			},
			wantStatus: http.StatusBadRequest,
			wantError:  ErrorCodeUnsupportedGrantType,
		},
		{
			name: "missing code",
			form: func(string) url.Values {
				return url.Values{"grant_type": {"authorization_code"}}
			},
			wantStatus: http.StatusBadRequest,
			wantError:  ErrorCodeInvalidRequest,
		},
		{
			name: "unknown code",
			form: func(string) url.Values {
				return url.Values{"grant_type": {"authorization_code"}, "code": {"SplxlOBeZQQYbYS6WxSbIA"}}
			},
			wantStatus: http.StatusBadRequest,
			wantError:  ErrorCodeInvalidGrant,
		},
		{
			name: "client mismatch",
			form: func(code string) url.Values {
				return url.Values{"grant_type": {"authorization_code"}, "code": {code}, "client_id": {testPublicClientID}}
			},
			wantStatus: http.StatusBadRequest,
			wantError:  ErrorCodeInvalidGrant,
		},
		{
			name: "redirect mismatch",
			form: func(code string) url.Values {
				return url.Values{"grant_type": {"authorization_code"}, "code": {code}, "redirect_uri": {"https://client.example.com/other"}}
			},
			wantStatus: http.StatusBadRequest,
			wantError:  ErrorCodeInvalidGrant,
		},
		{
			name: "repeated code",
			form: func(code string) url.Values {
				return url.Values{"grant_type": {"authorization_code"}, "code": {code, code}}
			},
			wantStatus: http.StatusBadRequest,
			wantError:  ErrorCodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _ := setupTestHandler(t)
			code := authorizeCode(t, handler, testutil.TestClientID)

			w := postToken(handler, tt.form(code), nil)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			resp := decodeError(t, w)
			if resp.Error != tt.wantError {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantError)
			}
			if resp.State != "" {
				t.Errorf("token errors carry no state, got %q", resp.State)
			}
		})
	}
}

func TestHandler_ServeToken_Replay(t *testing.T) {
	handler, _ := setupTestHandler(t)
	code := authorizeCode(t, handler, testutil.TestClientID)
	form := url.Values{"grant_type": {"authorization_code"}, "code": {code}}

	if w := postToken(handler, form, nil); w.Code != http.StatusOK {
		t.Fatalf("first exchange status = %d, want %d", w.Code, http.StatusOK)
	}

	w := postToken(handler, form, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("replay status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, w); resp.Error != ErrorCodeInvalidGrant {
		t.Errorf("error = %q, want %q", resp.Error, ErrorCodeInvalidGrant)
	}
}

func TestHandler_ServeToken_ClientAuthentication(t *testing.T) {
	tests := []struct {
		name       string
		form       url.Values
		setup      func(*http.Request)
		wantStatus int
		wantError  string
	}{
		{
			name:       "basic auth",
			setup:      func(r *http.Request) { r.SetBasicAuth(testutil.TestClientID, testSecret) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "client secret post",
			form:       url.Values{"client_id": {testutil.TestClientID}, "client_secret": {testSecret}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong secret",
			setup:      func(r *http.Request) { r.SetBasicAuth(testutil.TestClientID, "wrong") },
			wantStatus: http.StatusUnauthorized,
			wantError:  ErrorCodeInvalidClient,
		},
		{
			name:       "unknown client",
			setup:      func(r *http.Request) { r.SetBasicAuth("unknown", testSecret) },
			wantStatus: http.StatusUnauthorized,
			wantError:  ErrorCodeInvalidClient,
		},
		{
			name:       "client without secret",
			form:       url.Values{"client_id": {testPublicClientID}, "client_secret": {"anything"}},
			wantStatus: http.StatusUnauthorized,
			wantError:  ErrorCodeInvalidClient,
		},
		{
			name:       "two methods",
			form:       url.Values{"client_secret": {testSecret}},
			setup:      func(r *http.Request) { r.SetBasicAuth(testutil.TestClientID, testSecret) },
			wantStatus: http.StatusBadRequest,
			wantError:  ErrorCodeInvalidRequest,
		},
		{
			name:       "basic and form client id disagree",
			form:       url.Values{"client_id": {testPublicClientID}},
			setup:      func(r *http.Request) { r.SetBasicAuth(testutil.TestClientID, testSecret) },
			wantStatus: http.StatusBadRequest,
			wantError:  ErrorCodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _ := setupTestHandler(t)
			code := authorizeCode(t, handler, testutil.TestClientID)

			form := url.Values{"grant_type": {"authorization_code"}, "code": {code}}
			for k, v := range tt.form {
				form[k] = v
			}

			w := postToken(handler, form, tt.setup)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantError == "" {
				return
			}

			if resp := decodeError(t, w); resp.Error != tt.wantError {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantError)
			}
			if tt.wantStatus == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("401 response without WWW-Authenticate")
			}

			// A failed authentication leaves the code redeemable
			retry := postToken(handler, url.Values{"grant_type": {"authorization_code"}, "code": {code}}, nil)
			if retry.Code != http.StatusOK {
				t.Errorf("code should survive failed client authentication, retry status = %d", retry.Code)
			}
		})
	}
}

func TestHandler_ServeToken_MethodNotAllowed(t *testing.T) {
	handler, _ := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodPut, "/token", nil)
	w := httptest.NewRecorder()

	handler.ServeToken(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandler_ServeAuthorizationServerMetadata(t *testing.T) {
	handler, _ := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/oauth-authorization-server", nil)
	w := httptest.NewRecorder()

	handler.ServeAuthorizationServerMetadata(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var meta AuthorizationServerMetadata
	if err := json.NewDecoder(w.Body).Decode(&meta); err != nil {
		t.Fatalf("failed to decode metadata: %v", err)
	}
	if meta.Issuer != "https://auth.example.com" {
		t.Errorf("Issuer = %q, want %q", meta.Issuer, "https://auth.example.com")
	}
	if meta.AuthorizationEndpoint != "https://auth.example.com/authorize" {
		t.Errorf("AuthorizationEndpoint = %q", meta.AuthorizationEndpoint)
	}
	if meta.TokenEndpoint != "https://auth.example.com/token" {
		t.Errorf("TokenEndpoint = %q", meta.TokenEndpoint)
	}
	if len(meta.ResponseTypesSupported) != 1 || meta.ResponseTypesSupported[0] != "code" {
		t.Errorf("ResponseTypesSupported = %v, want [code]", meta.ResponseTypesSupported)
	}
	if w.Header().Get("Strict-Transport-Security") == "" {
		t.Error("https issuer should get HSTS")
	}
}

func TestHandler_Routes(t *testing.T) {
	handler, _ := setupTestHandler(t)
	ts := httptest.NewServer(handler.Routes())
	defer ts.Close()

	client := ts.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/", http.StatusOK},
		{"/healthz", http.StatusOK},
		{"/.well-known/oauth-authorization-server", http.StatusOK},
		{"/authorize?response_type=code&client_id=s6BhdRkqt3", http.StatusFound},
		{"/authorization?response_type=code&client_id=s6BhdRkqt3", http.StatusFound},
		{"/token?grant_type=refresh_token", http.StatusBadRequest},
		{"/missing", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := client.Get(ts.URL + tt.path)
			if err != nil {
				t.Fatalf("GET %s error = %v", tt.path, err)
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("GET %s status = %d, want %d", tt.path, resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

// TestHandler_OAuth2ClientInterop drives the endpoints with golang.org/x/oauth2
func TestHandler_OAuth2ClientInterop(t *testing.T) {
	tests := []struct {
		name         string
		clientID     string
		clientSecret string
		redirectURL  string
		authStyle    oauth2.AuthStyle
	}{
		{
			name:         "confidential client with basic auth",
			clientID:     testutil.TestClientID,
			clientSecret: testSecret,
			redirectURL:  testutil.TestRedirectURI,
			authStyle:    oauth2.AuthStyleInHeader,
		},
		{
			name:         "confidential client with form credentials",
			clientID:     testutil.TestClientID,
			clientSecret: testSecret,
			redirectURL:  testutil.TestRedirectURI,
			authStyle:    oauth2.AuthStyleInParams,
		},
		{
			name:        "public client",
			clientID:    testPublicClientID,
			redirectURL: "http://127.0.0.1:8400/callback",
			authStyle:   oauth2.AuthStyleInParams,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _ := setupTestHandler(t)
			ts := httptest.NewServer(handler.Routes())
			defer ts.Close()

			conf := &oauth2.Config{
				ClientID:     tt.clientID,
				ClientSecret: tt.clientSecret,
				RedirectURL:  tt.redirectURL,
				Scopes:       []string{"read", "write"},
				Endpoint: oauth2.Endpoint{
					AuthURL:   ts.URL + "/authorize",
					TokenURL:  ts.URL + "/token",
					AuthStyle: tt.authStyle,
				},
			}

			client := ts.Client()
			client.CheckRedirect = func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			}
			resp, err := client.Get(conf.AuthCodeURL(testutil.TestState))
			if err != nil {
				t.Fatalf("authorization request error = %v", err)
			}
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusFound {
				t.Fatalf("authorization status = %d, want %d", resp.StatusCode, http.StatusFound)
			}

			location, err := url.Parse(resp.Header.Get("Location"))
			if err != nil {
				t.Fatalf("invalid Location: %v", err)
			}
			if !strings.HasPrefix(location.String(), tt.redirectURL) {
				t.Errorf("redirected to %q, want prefix %q", location, tt.redirectURL)
			}
			if got := location.Query().Get("state"); got != testutil.TestState {
				t.Errorf("state = %q, want %q", got, testutil.TestState)
			}

			ctx := context.WithValue(context.Background(), oauth2.HTTPClient, ts.Client())
			code := location.Query().Get("code")

			token, err := conf.Exchange(ctx, code)
			if err != nil {
				t.Fatalf("Exchange() error = %v", err)
			}
			if token.AccessToken == "" {
				t.Error("AccessToken is empty")
			}
			if token.Type() != "Bearer" {
				t.Errorf("Type() = %q, want %q", token.Type(), "Bearer")
			}
			if token.Expiry.IsZero() {
				t.Error("Expiry should be set from expires_in")
			}
			if got := token.Extra("scope"); got != "read write" {
				t.Errorf("scope = %v, want %q", got, "read write")
			}

			_, err = conf.Exchange(ctx, code)
			var retrieveErr *oauth2.RetrieveError
			if !errors.As(err, &retrieveErr) {
				t.Fatalf("replayed Exchange() error = %v, want *oauth2.RetrieveError", err)
			}
			if retrieveErr.ErrorCode != ErrorCodeInvalidGrant {
				t.Errorf("ErrorCode = %q, want %q", retrieveErr.ErrorCode, ErrorCodeInvalidGrant)
			}
		})
	}
}
