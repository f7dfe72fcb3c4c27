package kick

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const oauthCallTimeout = 10 * time.Second

// Scopes is the fixed scope list requested on every authorization.
var Scopes = []string{
	"user:read",
	"channel:read",
	"channel:write",
	"channel:rewards:read",
	"channel:rewards:write",
	"chat:write",
	"streamkey:read",
	"events:subscribe",
	"moderation:ban",
	"moderation:chat_message:manage",
	"kicks:read",
}

// Token is an upstream OAuth token response. RefreshToken may be empty on a
// refresh grant, meaning the stored one is unchanged.
type Token struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
}

// OAuthClient talks to the Kick identity endpoints: authorize-URL building
// (with PKCE), code exchange, refresh grant, and upstream revocation.
type OAuthClient struct {
	clientID     string
	clientSecret string
	redirectURI  string
	baseURL      string
	httpClient   *http.Client
}

func NewOAuthClient(clientID, clientSecret, redirectURI, oauthBaseURL string) *OAuthClient {
	return &OAuthClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		baseURL:      oauthBaseURL,
		httpClient:   &http.Client{Timeout: oauthCallTimeout},
	}
}

// AuthorizeURL builds the authorization redirect target for one login
// attempt. The caller keeps state and the code verifier in the session and
// presents them again on callback.
func (c *OAuthClient) AuthorizeURL(state, codeChallenge string) string {
	q := url.Values{}
	q.Set("client_id", c.clientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", c.redirectURI)
	q.Set("state", state)
	q.Set("scope", strings.Join(Scopes, " "))
	q.Set("code_challenge", codeChallenge)
	q.Set("code_challenge_method", "S256")
	return c.baseURL + "/oauth/authorize?" + q.Encode()
}

// ExchangeCode trades an authorization code (plus its PKCE verifier) for a
// token set.
func (c *OAuthClient) ExchangeCode(ctx context.Context, code, codeVerifier string) (*Token, error) {
	data := url.Values{}
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", c.redirectURI)
	data.Set("code_verifier", codeVerifier)
	return c.tokenRequest(ctx, data)
}

// Refresh performs the refresh grant with a stored refresh token.
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	data := url.Values{}
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	return c.tokenRequest(ctx, data)
}

// Revoke invalidates a token upstream. hint is "access_token" or
// "refresh_token".
func (c *OAuthClient) Revoke(ctx context.Context, token, hint string) error {
	endpoint := fmt.Sprintf("%s/oauth/revoke?token=%s&token_hint_type=%s", c.baseURL, url.QueryEscape(token), url.QueryEscape(hint))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute revoke request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return apiError(resp.StatusCode, body)
	}
	return nil
}

func (c *OAuthClient) tokenRequest(ctx context.Context, data url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, body)
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	return &token, nil
}
