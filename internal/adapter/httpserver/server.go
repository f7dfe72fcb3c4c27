// Package httpserver is the HTTP surface of the service: OAuth login flow,
// token endpoints, webhook intake, the websocket event feed, and the
// authenticated API passthrough.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/phxgg/kickbridge/internal/domain"
	"github.com/phxgg/kickbridge/internal/events"
	"github.com/phxgg/kickbridge/internal/kick"
	"github.com/phxgg/kickbridge/internal/platform/config"
	"github.com/phxgg/kickbridge/internal/token"
)

const providerKick = "kick"

type tokenService interface {
	IssuePair(ctx context.Context, subjectID string) (*token.Pair, error)
	Verify(ctx context.Context, tokenStr string, kind domain.TokenKind) (*token.Claims, error)
	Revoke(ctx context.Context, jti, reason string) (bool, error)
	RevokeAll(ctx context.Context, subjectID string, kind domain.TokenKind) (int, error)
}

type clientProvider interface {
	EnsureValidClientFor(ctx context.Context, provider, providerAccountID string) (*kick.Client, *domain.Account, error)
}

type oauthFlow interface {
	AuthorizeURL(state, codeChallenge string) string
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*kick.Token, error)
	Revoke(ctx context.Context, token, hint string) error
}

type webhookVerifier interface {
	Verify(ctx context.Context, envelope *kick.WebhookEnvelope) error
}

// HealthCheck is a named health check function.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	tokens   tokenService
	clients  clientProvider
	oauth    oauthFlow
	verifier webhookVerifier
	router   *events.Router
	registry *events.Registry
	accounts domain.AccountRepository

	sessionStore *sessions.CookieStore
	upgrader     websocket.Upgrader
	healthChecks []HealthCheck
	startTime    time.Time
	clock        clockwork.Clock
}

func NewServer(
	cfg *config.Config,
	tokens tokenService,
	clients clientProvider,
	oauth oauthFlow,
	verifier webhookVerifier,
	router *events.Router,
	registry *events.Registry,
	accounts domain.AccountRepository,
	healthChecks []HealthCheck,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		tokens:       tokens,
		clients:      clients,
		oauth:        oauth,
		verifier:     verifier,
		router:       router,
		registry:     registry,
		accounts:     accounts,
		sessionStore: setupSessionStore(cfg),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     newCheckOrigin(cfg.AppEnv == "development"),
		},
		healthChecks: healthChecks,
		startTime:    time.Now(),
		clock:        clockwork.NewRealClock(),
	}

	srv.registerRoutes()
	return srv
}

func setupSessionStore(cfg *config.Config) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   cfg.AppEnv == "production",
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// newCheckOrigin allows any origin in development and same-host origins
// otherwise. The event feed authenticates with a bearer token, not a cookie,
// so cross-origin reads leak nothing, but browser clients still deserve a
// sane default.
func newCheckOrigin(isDevelopment bool) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if isDevelopment {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return origin == "https://"+r.Host || origin == "http://"+r.Host
	}
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Session keys
const (
	sessionName            = "kickbridge-session"
	sessionKeyOAuthState   = "oauth_state"
	sessionKeyCodeVerifier = "code_verifier"
)
