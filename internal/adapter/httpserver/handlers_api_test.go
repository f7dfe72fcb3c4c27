package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/phxgg/kickbridge/internal/domain"
	"github.com/phxgg/kickbridge/internal/kick"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// apiTestServer wires the bearer and client middleware with a real kick
// client pointed at the given upstream handler.
func apiTestServer(t *testing.T, upstream http.Handler) (*Server, func()) {
	t.Helper()

	api := httptest.NewServer(upstream)

	client := kick.NewClient(api.URL, kick.Token{AccessToken: "upstream-access", TokenType: "Bearer"})
	srv := newTestServer(t,
		withTokens(bearerTokens(&mockTokenService{})),
		withClients(&mockClientProvider{
			ensureFn: func(context.Context, string, string) (*kick.Client, *domain.Account, error) {
				return client, &domain.Account{Provider: "kick", ProviderAccountID: "123"}, nil
			},
		}),
	)
	return srv, api.Close
}

func authedRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("Authorization", "Bearer valid-access")
	return req
}

func TestHandleCurrentUser_ProxiesUpstream(t *testing.T) {
	srv, done := apiTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"user_id":123,"name":"alice"}]}`))
	}))
	defer done()

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/me", ""))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"alice"`)
}

func TestHandleCurrentUser_NoLinkedAccount(t *testing.T) {
	srv := newTestServer(t,
		withTokens(bearerTokens(&mockTokenService{})),
		withClients(&mockClientProvider{
			ensureFn: func(context.Context, string, string) (*kick.Client, *domain.Account, error) {
				return nil, nil, domain.ErrAccountNotFound
			},
		}),
	)

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/me", ""))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleChannelBySlug(t *testing.T) {
	srv, done := apiTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/channels", r.URL.Path)
		require.Equal(t, "cool-streamer", r.URL.Query().Get("slug"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"broadcaster_user_id":42,"slug":"cool-streamer","stream_title":"hi"}]}`))
	}))
	defer done()

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/channels/cool-streamer", ""))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"slug":"cool-streamer"`)
}

func TestHandleSendChat(t *testing.T) {
	srv, done := apiTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"message_id":"msg-1","is_sent":true}}`))
	}))
	defer done()

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/chat", `{"broadcaster_user_id":42,"content":"hello"}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message_id":"msg-1"}`, rec.Body.String())
}

func TestHandleSendChat_MissingFields(t *testing.T) {
	srv, done := apiTestServer(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("upstream must not be called")
	}))
	defer done()

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/chat", `{"content":""}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSendChat_UpstreamFailure(t *testing.T) {
	srv, done := apiTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer done()

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/chat", `{"broadcaster_user_id":42,"content":"hello"}`))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
