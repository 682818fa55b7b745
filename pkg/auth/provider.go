// Package auth acquires Azure AD access tokens for the data backends
// via the client-credentials flow. The orchestrator never touches
// tokens; backends consume this package transitively.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/retry"
)

// Well-known resource scopes for the two backends.
const (
	ScopeSQL     = "https://database.windows.net/.default"
	ScopePowerBI = "https://analysis.windows.net/powerbi/api/.default"
)

// refreshSkew renews tokens slightly before they expire so an in-flight
// query never presents a token that dies mid-execution.
const refreshSkew = 2 * time.Minute

// TokenProvider supplies access tokens for a resource scope.
type TokenProvider interface {
	GetAccessToken(ctx context.Context, scope string) (string, error)
}

// ClientCredentials identifies the AAD app registration.
type ClientCredentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

type cachedToken struct {
	value     string
	expiresAt time.Time
}

// AADProvider implements TokenProvider with the OAuth2
// client-credentials grant, caching one token per scope.
type AADProvider struct {
	creds      ClientCredentials
	httpClient *http.Client
	tokenURL   string
	logger     *zap.Logger

	mu     sync.Mutex
	tokens map[string]cachedToken
}

// NewAADProvider creates a token provider for the given app
// registration. httpClient may be nil.
func NewAADProvider(creds ClientCredentials, httpClient *http.Client, logger *zap.Logger) (*AADProvider, error) {
	if creds.TenantID == "" || creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("tenant id, client id and client secret are required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &AADProvider{
		creds:      creds,
		httpClient: httpClient,
		tokenURL:   fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", creds.TenantID),
		logger:     logger.Named("auth"),
		tokens:     map[string]cachedToken{},
	}, nil
}

// SetTokenURL overrides the token endpoint. Used by tests.
func (p *AADProvider) SetTokenURL(u string) {
	p.tokenURL = u
}

// GetAccessToken returns a cached token for the scope, fetching a new
// one when missing or near expiry.
func (p *AADProvider) GetAccessToken(ctx context.Context, scope string) (string, error) {
	p.mu.Lock()
	cached, ok := p.tokens[scope]
	p.mu.Unlock()

	if ok && time.Now().Before(cached.expiresAt.Add(-refreshSkew)) {
		return cached.value, nil
	}

	token, expiresAt, err := p.fetchToken(ctx, scope)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.tokens[scope] = cachedToken{value: token, expiresAt: expiresAt}
	p.mu.Unlock()

	return token, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (p *AADProvider) fetchToken(ctx context.Context, scope string) (string, time.Time, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {p.creds.ClientID},
		"client_secret": {p.creds.ClientSecret},
		"scope":         {scope},
	}

	tr, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (tokenResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL,
			strings.NewReader(form.Encode()))
		if err != nil {
			return tokenResponse{}, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return tokenResponse{}, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return tokenResponse{}, err
		}
		if resp.StatusCode != http.StatusOK {
			return tokenResponse{}, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, body)
		}

		var tr tokenResponse
		if err := json.Unmarshal(body, &tr); err != nil {
			return tokenResponse{}, fmt.Errorf("decode token response: %w", err)
		}
		if tr.AccessToken == "" {
			return tokenResponse{}, fmt.Errorf("token endpoint returned no access_token")
		}
		return tr, nil
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("acquire token: %w", err)
	}

	expiresAt := tokenExpiry(tr)
	p.logger.Debug("acquired access token",
		zap.String("scope", scope),
		zap.Time("expires_at", expiresAt))

	return tr.AccessToken, expiresAt, nil
}

// tokenExpiry prefers the exp claim embedded in the JWT over the
// expires_in hint, since the claim is what the resource enforces.
func tokenExpiry(tr tokenResponse) time.Time {
	parser := jwt.NewParser()
	claims := &jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(tr.AccessToken, claims); err == nil &&
		claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	if tr.ExpiresIn > 0 {
		return time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return time.Now().Add(30 * time.Minute)
}

// StaticTokenProvider returns a fixed token. Used by tests and local
// setups where a token is provisioned out of band.
type StaticTokenProvider struct {
	Token string
}

// GetAccessToken implements TokenProvider.
func (s *StaticTokenProvider) GetAccessToken(ctx context.Context, scope string) (string, error) {
	return s.Token, nil
}
