package kick

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const apiCallTimeout = 10 * time.Second

// Client calls the Kick public API with a user access token. A fresh client
// is built per request by the session refresher, so the token it carries is
// always validated first.
type Client struct {
	baseURL    string
	token      Token
	httpClient *http.Client
}

func NewClient(apiBaseURL string, token Token) *Client {
	return &Client{
		baseURL:    apiBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: apiCallTimeout},
	}
}

// Token returns the access token set the client was built with.
func (c *Client) Token() Token {
	return c.token
}

// User is the identity of the token holder.
type User struct {
	UserID         int64  `json:"user_id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	ProfilePicture string `json:"profile_picture"`
}

// CurrentUser returns the identity behind the client's access token.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var payload struct {
		Data []User `json:"data"`
	}
	if err := c.get(ctx, "/users", nil, &payload); err != nil {
		return nil, err
	}
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("no user data returned")
	}
	return &payload.Data[0], nil
}

// Channel is a read-only channel projection.
type Channel struct {
	BroadcasterUserID  int64  `json:"broadcaster_user_id"`
	Slug               string `json:"slug"`
	ChannelDescription string `json:"channel_description"`
	StreamTitle        string `json:"stream_title"`
}

// ChannelBySlug fetches one channel by its slug.
func (c *Client) ChannelBySlug(ctx context.Context, slug string) (*Channel, error) {
	var payload struct {
		Data []Channel `json:"data"`
	}
	q := url.Values{}
	q.Set("slug", slug)
	if err := c.get(ctx, "/channels", q, &payload); err != nil {
		return nil, err
	}
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("channel %q not found", slug)
	}
	return &payload.Data[0], nil
}

// SendChatMessage posts a chat message to a broadcaster's channel as the
// token holder. Returns the created message id.
func (c *Client) SendChatMessage(ctx context.Context, broadcasterUserID int64, content string) (string, error) {
	reqBody := map[string]any{
		"broadcaster_user_id": broadcasterUserID,
		"content":             content,
		"type":                "user",
	}
	var payload struct {
		Data struct {
			MessageID string `json:"message_id"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/chat", reqBody, &payload); err != nil {
		return "", err
	}
	return payload.Data.MessageID, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return apiError(resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
