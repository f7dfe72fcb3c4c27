package httpserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/phxgg/kickbridge/internal/domain"
	"github.com/phxgg/kickbridge/internal/events"
	"github.com/phxgg/kickbridge/internal/kick"
	"github.com/phxgg/kickbridge/internal/platform/config"
	"github.com/phxgg/kickbridge/internal/token"
)

// --- Mock implementations ---

type mockTokenService struct {
	issuePairFn func(ctx context.Context, subjectID string) (*token.Pair, error)
	verifyFn    func(ctx context.Context, tokenStr string, kind domain.TokenKind) (*token.Claims, error)
	revokeFn    func(ctx context.Context, jti, reason string) (bool, error)
	revokeAllFn func(ctx context.Context, subjectID string, kind domain.TokenKind) (int, error)
}

func (m *mockTokenService) IssuePair(ctx context.Context, subjectID string) (*token.Pair, error) {
	if m.issuePairFn != nil {
		return m.issuePairFn(ctx, subjectID)
	}
	return &token.Pair{
		AccessToken:  "issued-access",
		RefreshToken: "issued-refresh",
		AccessJTI:    "jti-access",
		RefreshJTI:   "jti-refresh",
		ExpiresIn:    900,
	}, nil
}

func (m *mockTokenService) Verify(ctx context.Context, tokenStr string, kind domain.TokenKind) (*token.Claims, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, tokenStr, kind)
	}
	return nil, domain.ErrTokenInvalid
}

func (m *mockTokenService) Revoke(ctx context.Context, jti, reason string) (bool, error) {
	if m.revokeFn != nil {
		return m.revokeFn(ctx, jti, reason)
	}
	return true, nil
}

func (m *mockTokenService) RevokeAll(ctx context.Context, subjectID string, kind domain.TokenKind) (int, error) {
	if m.revokeAllFn != nil {
		return m.revokeAllFn(ctx, subjectID, kind)
	}
	return 0, nil
}

type mockClientProvider struct {
	ensureFn func(ctx context.Context, provider, providerAccountID string) (*kick.Client, *domain.Account, error)
}

func (m *mockClientProvider) EnsureValidClientFor(ctx context.Context, provider, providerAccountID string) (*kick.Client, *domain.Account, error) {
	if m.ensureFn != nil {
		return m.ensureFn(ctx, provider, providerAccountID)
	}
	return nil, nil, domain.ErrAccountNotFound
}

type mockOAuthFlow struct {
	authorizeURLFn func(state, codeChallenge string) string
	exchangeFn     func(ctx context.Context, code, codeVerifier string) (*kick.Token, error)
	revokeFn       func(ctx context.Context, token, hint string) error
}

func (m *mockOAuthFlow) AuthorizeURL(state, codeChallenge string) string {
	if m.authorizeURLFn != nil {
		return m.authorizeURLFn(state, codeChallenge)
	}
	return "https://id.example.com/oauth/authorize?state=" + state
}

func (m *mockOAuthFlow) ExchangeCode(ctx context.Context, code, codeVerifier string) (*kick.Token, error) {
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, code, codeVerifier)
	}
	return nil, errors.New("not implemented")
}

func (m *mockOAuthFlow) Revoke(ctx context.Context, token, hint string) error {
	if m.revokeFn != nil {
		return m.revokeFn(ctx, token, hint)
	}
	return nil
}

type mockVerifier struct {
	verifyFn func(ctx context.Context, envelope *kick.WebhookEnvelope) error
}

func (m *mockVerifier) Verify(ctx context.Context, envelope *kick.WebhookEnvelope) error {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, envelope)
	}
	return nil
}

type mockAccountRepo struct {
	getFn    func(ctx context.Context, provider, providerAccountID string) (*domain.Account, error)
	upsertFn func(ctx context.Context, account *domain.Account) (*domain.Account, error)
}

func (m *mockAccountRepo) Get(ctx context.Context, provider, providerAccountID string) (*domain.Account, error) {
	if m.getFn != nil {
		return m.getFn(ctx, provider, providerAccountID)
	}
	return nil, domain.ErrAccountNotFound
}

func (m *mockAccountRepo) Upsert(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, account)
	}
	return account, nil
}

func (m *mockAccountRepo) UpdateTokens(context.Context, string, string, string, string, string, []string, time.Time) error {
	return nil
}

// --- Test server construction ---

type serverOption func(*serverDeps)

type serverDeps struct {
	tokens       tokenService
	clients      clientProvider
	oauth        oauthFlow
	verifier     webhookVerifier
	accounts     domain.AccountRepository
	healthChecks []HealthCheck
}

func withTokens(t tokenService) serverOption       { return func(d *serverDeps) { d.tokens = t } }
func withClients(c clientProvider) serverOption    { return func(d *serverDeps) { d.clients = c } }
func withOAuth(o oauthFlow) serverOption           { return func(d *serverDeps) { d.oauth = o } }
func withVerifier(v webhookVerifier) serverOption  { return func(d *serverDeps) { d.verifier = v } }
func withAccounts(a domain.AccountRepository) serverOption {
	return func(d *serverDeps) { d.accounts = a }
}
func withHealthChecks(checks ...HealthCheck) serverOption {
	return func(d *serverDeps) { d.healthChecks = checks }
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:         "test",
		Port:           "8080",
		SessionSecret:  "test-session-secret-0123456789abcdef",
		KickAPIBaseURL: "https://api.kick.example/v1",
	}
}

func newTestServer(t *testing.T, opts ...serverOption) *Server {
	t.Helper()

	deps := &serverDeps{
		tokens:   &mockTokenService{},
		clients:  &mockClientProvider{},
		oauth:    &mockOAuthFlow{},
		verifier: &mockVerifier{},
		accounts: &mockAccountRepo{},
	}
	for _, opt := range opts {
		opt(deps)
	}

	registry := events.NewRegistry()
	router := events.NewRouter(registry)

	return NewServer(testConfig(), deps.tokens, deps.clients, deps.oauth, deps.verifier,
		router, registry, deps.accounts, deps.healthChecks)
}
