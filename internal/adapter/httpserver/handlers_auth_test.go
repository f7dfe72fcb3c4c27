package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/phxgg/kickbridge/internal/domain"
	"github.com/phxgg/kickbridge/internal/kick"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleLogin_RedirectsWithStateAndChallenge(t *testing.T) {
	var gotState, gotChallenge string
	srv := newTestServer(t, withOAuth(&mockOAuthFlow{
		authorizeURLFn: func(state, codeChallenge string) string {
			gotState, gotChallenge = state, codeChallenge
			return "https://id.example.com/oauth/authorize?state=" + state
		},
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.NotEmpty(t, gotState)
	assert.NotEmpty(t, gotChallenge)
	assert.Contains(t, rec.Header().Get("Location"), gotState)
	assert.NotEmpty(t, rec.Header().Get("Set-Cookie"), "state must be persisted in the session")
}

func TestHandleOAuthCallback_StateMismatch(t *testing.T) {
	srv := newTestServer(t)

	// First request plants the state cookie.
	loginReq := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	loginRec := httptest.NewRecorder()
	srv.echo.ServeHTTP(loginRec, loginReq)

	callbackReq := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=wrong", nil)
	for _, cookie := range loginRec.Result().Cookies() {
		callbackReq.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, callbackReq)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleOAuthCallback_MissingCode(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?state=whatever", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleOAuthCallback_UpstreamDenied(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?error=access_denied", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleOAuthCallback_HappyPath(t *testing.T) {
	// Upstream API serving the identity lookup after the code exchange.
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users", r.URL.Path)
		require.Equal(t, "Bearer upstream-access", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"user_id":123,"name":"alice","email":"a@example.com","profile_picture":"pic"}]}`))
	}))
	defer upstream.Close()

	var storedAccount *domain.Account
	var exchangedCode, exchangedVerifier string

	srv := newTestServer(t,
		withOAuth(&mockOAuthFlow{
			exchangeFn: func(_ context.Context, code, codeVerifier string) (*kick.Token, error) {
				exchangedCode, exchangedVerifier = code, codeVerifier
				return &kick.Token{
					AccessToken:  "upstream-access",
					RefreshToken: "upstream-refresh",
					TokenType:    "Bearer",
					ExpiresIn:    7200,
					Scope:        "user:read chat:write",
				}, nil
			},
		}),
		withAccounts(&mockAccountRepo{
			upsertFn: func(_ context.Context, account *domain.Account) (*domain.Account, error) {
				storedAccount = account
				return account, nil
			},
		}),
	)
	srv.config.KickAPIBaseURL = upstream.URL

	loginReq := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	loginRec := httptest.NewRecorder()
	srv.echo.ServeHTTP(loginRec, loginReq)

	location, err := url.Parse(loginRec.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	callbackReq := httptest.NewRequest(http.MethodGet, "/auth/callback?code=auth-code&state="+state, nil)
	for _, cookie := range loginRec.Result().Cookies() {
		callbackReq.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, callbackReq)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "auth-code", exchangedCode)
	assert.NotEmpty(t, exchangedVerifier, "PKCE verifier must survive the session round trip")

	require.NotNil(t, storedAccount)
	assert.Equal(t, "kick", storedAccount.Provider)
	assert.Equal(t, "123", storedAccount.ProviderAccountID)
	assert.Equal(t, "upstream-access", storedAccount.AccessToken)
	assert.Equal(t, []string{"user:read", "chat:write"}, storedAccount.Scope)

	body := rec.Body.String()
	assert.Contains(t, body, `"access_token":"issued-access"`)
	assert.Contains(t, body, `"refresh_token":"issued-refresh"`)
	assert.Contains(t, body, `"name":"alice"`)
}

func TestHandleOAuthCallback_StateIsSingleUse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"user_id":123,"name":"alice"}]}`))
	}))
	defer upstream.Close()

	srv := newTestServer(t, withOAuth(&mockOAuthFlow{
		exchangeFn: func(context.Context, string, string) (*kick.Token, error) {
			return &kick.Token{AccessToken: "upstream-access", ExpiresIn: 7200}, nil
		},
	}))
	srv.config.KickAPIBaseURL = upstream.URL

	loginRec := httptest.NewRecorder()
	srv.echo.ServeHTTP(loginRec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	location, err := url.Parse(loginRec.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")

	first := httptest.NewRequest(http.MethodGet, "/auth/callback?code=auth-code&state="+state, nil)
	for _, cookie := range loginRec.Result().Cookies() {
		first.AddCookie(cookie)
	}
	firstRec := httptest.NewRecorder()
	srv.echo.ServeHTTP(firstRec, first)
	require.Equal(t, http.StatusOK, firstRec.Code)

	// Replay with the refreshed cookie from the first callback.
	second := httptest.NewRequest(http.MethodGet, "/auth/callback?code=auth-code&state="+state, nil)
	for _, cookie := range firstRec.Result().Cookies() {
		second.AddCookie(cookie)
	}
	secondRec := httptest.NewRecorder()
	srv.echo.ServeHTTP(secondRec, second)

	assert.Equal(t, http.StatusUnauthorized, secondRec.Code)
}
