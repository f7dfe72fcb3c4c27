package kick

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

const keyFetchTimeout = 10 * time.Second

// KeyFetcher retrieves the platform's current webhook signing public key.
type KeyFetcher interface {
	FetchPublicKey(ctx context.Context) (*rsa.PublicKey, error)
}

// HTTPKeyFetcher fetches the signing key from the public-key endpoint.
type HTTPKeyFetcher struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPKeyFetcher(apiBaseURL string) *HTTPKeyFetcher {
	return &HTTPKeyFetcher{
		baseURL:    apiBaseURL,
		httpClient: &http.Client{Timeout: keyFetchTimeout},
	}
}

func (f *HTTPKeyFetcher) FetchPublicKey(ctx context.Context) (*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/public-key", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create public key request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch public key: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, apiError(resp.StatusCode, body)
	}

	var payload struct {
		Data struct {
			PublicKey string `json:"public_key"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode public key response: %w", err)
	}

	return ParsePublicKeyPEM(payload.Data.PublicKey)
}

// ParsePublicKeyPEM decodes a PEM-encoded RSA public key.
func ParsePublicKeyPEM(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("public key is not valid PEM")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA")
	}
	return rsaKey, nil
}

// PublicKeyCache holds the platform signing key with a TTL and collapses
// concurrent cache misses into a single fetch. A fetch failure leaves the
// cache empty so the next caller retries.
type PublicKeyCache struct {
	fetcher KeyFetcher
	ttl     time.Duration // <= 0 means the key never expires
	clock   clockwork.Clock
	group   singleflight.Group

	mu        sync.RWMutex
	key       *rsa.PublicKey
	fetchedAt time.Time
}

func NewPublicKeyCache(fetcher KeyFetcher, ttl time.Duration, clock clockwork.Clock) *PublicKeyCache {
	return &PublicKeyCache{
		fetcher: fetcher,
		ttl:     ttl,
		clock:   clock,
	}
}

// Get returns the cached key, fetching it when the cache is cold or expired.
// Callers racing a miss share one in-flight fetch and its outcome.
func (c *PublicKeyCache) Get(ctx context.Context) (*rsa.PublicKey, error) {
	if key := c.cached(); key != nil {
		return key, nil
	}

	v, err, _ := c.group.Do("public-key", func() (any, error) {
		// A waiter may have populated the cache while we queued.
		if key := c.cached(); key != nil {
			return key, nil
		}

		key, err := c.fetcher.FetchPublicKey(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.key = key
		c.fetchedAt = c.clock.Now()
		c.mu.Unlock()

		return key, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*rsa.PublicKey), nil
}

// Refresh invalidates the cache unconditionally and fetches a fresh key.
func (c *PublicKeyCache) Refresh(ctx context.Context) (*rsa.PublicKey, error) {
	c.mu.Lock()
	c.key = nil
	c.mu.Unlock()
	return c.Get(ctx)
}

func (c *PublicKeyCache) cached() *rsa.PublicKey {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.key == nil {
		return nil
	}
	if c.ttl > 0 && c.clock.Since(c.fetchedAt) >= c.ttl {
		return nil
	}
	return c.key
}
