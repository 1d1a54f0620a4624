package macrokiosk

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

	"jpjgate/internal/constants"
	"jpjgate/internal/errors"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
)

const (
	tokenLifetime = constants.DefaultTokenLifetimeMin * time.Minute
	// Cached below the real lifetime so a token handed out near the cache
	// boundary still has headroom to survive the request it is used for.
	tokenCacheTTL = constants.DefaultTokenCacheMin * time.Minute
)

// TokenManager obtains and caches the short-lived bearer token used to
// authenticate sends. The JWT it builds is proof-of-identity sent to the
// token endpoint; the bearer string the endpoint returns is a separate,
// opaque credential.
//
// The cache is guarded by a mutex: concurrent misses may each hit the token
// endpoint, but the stored value is always a valid, unexpired token.
type TokenManager struct {
	baseURL       string
	tokenEndpoint string
	username      string
	password      string
	apiKey        []byte
	client        *http.Client
	logger        *logrus.Logger
	now           func() time.Time

	mu          sync.Mutex
	cachedToken string
	cachedUntil time.Time
}

type tokenClaims struct {
	Username string `json:"username"`
	Password string `json:"password"`
	jwt.RegisteredClaims
}

func NewTokenManager(cfg Config, httpClient *http.Client, logger *logrus.Logger) *TokenManager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	return &TokenManager{
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		tokenEndpoint: cfg.TokenEndpoint,
		username:      cfg.Username,
		password:      cfg.Password,
		apiKey:        []byte(cfg.APIKey),
		client:        httpClient,
		logger:        logger,
		now:           time.Now,
	}
}

// GetToken returns the cached bearer token, or authenticates against the
// token endpoint if no unexpired token is cached.
func (tm *TokenManager) GetToken(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.cachedToken != "" && tm.now().Before(tm.cachedUntil) {
		tm.logger.Debug("Using cached gateway token")
		return tm.cachedToken, nil
	}

	token, err := tm.authenticate(ctx)
	if err != nil {
		return "", err
	}

	tm.cachedToken = token
	tm.cachedUntil = tm.now().Add(tokenCacheTTL)
	return token, nil
}

// Invalidate evicts the cached token. Callers invoke this after a 401/403
// from the send endpoint so the next attempt re-authenticates.
func (tm *TokenManager) Invalidate() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.cachedToken = ""
	tm.cachedUntil = time.Time{}
	tm.logger.Info("Gateway token cache invalidated")
}

// HasCachedToken reports whether an unexpired token is cached.
func (tm *TokenManager) HasCachedToken() bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	return tm.cachedToken != "" && tm.now().Before(tm.cachedUntil)
}

func (tm *TokenManager) authenticate(ctx context.Context) (string, error) {
	proof, err := tm.buildProof()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeAuthentication, "failed to sign token request")
	}

	endpoint := tm.baseURL + tm.tokenEndpoint
	form := url.Values{}
	form.Set("username", tm.username)
	form.Set("password", tm.password)
	form.Set("token", proof)

	tm.logger.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"username": tm.username,
	}).Info("Requesting gateway token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeAuthentication, "failed to create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := tm.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeTokenEndpoint, "token endpoint unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		tm.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   string(body),
		}).Error("Token request failed")
		return "", errors.New(errors.ErrCodeAuthentication,
			fmt.Sprintf("token request failed with status %d", resp.StatusCode))
	}

	var result tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeAuthentication, "failed to decode token response")
	}

	if result.Token == "" {
		return "", errors.New(errors.ErrCodeAuthentication, "token missing from response")
	}

	tm.logger.Info("Gateway token obtained")
	return result.Token, nil
}

// buildProof assembles the HS256-signed JWT sent as proof-of-identity.
func (tm *TokenManager) buildProof() (string, error) {
	now := tm.now()
	claims := tokenClaims{
		Username: tm.username,
		Password: tm.password,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.apiKey)
}
