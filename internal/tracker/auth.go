package tracker

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// AuthProvider yields the token to attach to each API request.
type AuthProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenAuth is a static personal access token.
type TokenAuth struct {
	token string
}

// NewTokenAuth creates an auth provider around a fixed token.
func NewTokenAuth(token string) *TokenAuth {
	return &TokenAuth{token: token}
}

func (a *TokenAuth) Token(ctx context.Context) (string, error) {
	if a.token == "" {
		return "", fmt.Errorf("tracker token is empty")
	}
	return a.token, nil
}

// AppAuth authenticates as an installed tracker app. It signs a short-lived
// RS256 JWT with the app's private key, exchanges it for an installation
// token, and caches that token until shortly before expiry.
type AppAuth struct {
	appID          string
	installationID int64
	privateKey     *rsa.PrivateKey
	baseURL        string
	client         *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewAppAuth creates an app auth provider from a PEM-encoded RSA private key.
func NewAppAuth(appID string, installationID int64, privateKeyPEM []byte, baseURL string) (*AppAuth, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse app private key: %w", err)
	}
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	if baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}

	return &AppAuth{
		appID:          appID,
		installationID: installationID,
		privateKey:     key,
		baseURL:        baseURL,
		client:         &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (a *AppAuth) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Refresh a minute early to keep in-flight requests off an expired token
	if a.token != "" && time.Now().Add(time.Minute).Before(a.expires) {
		return a.token, nil
	}

	appJWT, err := a.signAppJWT()
	if err != nil {
		return "", err
	}

	token, expires, err := a.exchangeInstallationToken(ctx, appJWT)
	if err != nil {
		return "", err
	}

	a.token = token
	a.expires = expires
	log.Debug().Time("expires", expires).Msg("Refreshed installation token")
	return a.token, nil
}

func (a *AppAuth) signAppJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    a.appID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-30 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(a.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign app JWT: %w", err)
	}
	return signed, nil
}

func (a *AppAuth) exchangeInstallationToken(ctx context.Context, appJWT string) (string, time.Time, error) {
	requestURL := fmt.Sprintf("%s/app/installations/%d/access_tokens", a.baseURL, a.installationID)

	req, err := http.NewRequestWithContext(ctx, "POST", requestURL, nil)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Add("Authorization", "Bearer "+appJWT)
	req.Header.Add("Accept", "application/vnd.github+json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", time.Time{}, fmt.Errorf("installation token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return payload.Token, payload.ExpiresAt, nil
}
