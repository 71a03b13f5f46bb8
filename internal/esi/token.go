package esi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rewired-gh/buybackd/internal/logger"
)

// tokenSkew is how long before expiry a cached access token is replaced.
const tokenSkew = 60 * time.Second

// ErrCredential is returned when the login service rejects the refresh token
// or the client credentials.
var ErrCredential = errors.New("esi: credential rejected")

// TokenSource exchanges a long-lived refresh token for short-lived access
// tokens. It is safe for concurrent use.
type TokenSource struct {
	http         *resty.Client
	loginURL     string
	clientID     string
	clientSecret string

	mu           sync.Mutex
	refreshToken string
	accessToken  string
	expiresAt    time.Time
	now          func() time.Time
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
}

// NewTokenSource creates a token source for the given application credentials.
func NewTokenSource(loginURL, clientID, clientSecret, refreshToken string, cfg ClientConfig) *TokenSource {
	return &TokenSource{
		http:         newRestyClient(cfg),
		loginURL:     loginURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
		now:          time.Now,
	}
}

// AccessToken returns a valid access token, refreshing it when the cached one
// is missing or about to expire.
func (s *TokenSource) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken != "" && s.now().Before(s.expiresAt.Add(-tokenSkew)) {
		return s.accessToken, nil
	}

	resp, err := s.http.R().
		SetContext(ctx).
		SetBasicAuth(s.clientID, s.clientSecret).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": s.refreshToken,
		}).
		Post(s.loginURL)
	if err != nil {
		return "", fmt.Errorf("failed to refresh access token: %w", err)
	}
	if resp.StatusCode() == 400 || resp.StatusCode() == 401 || resp.StatusCode() == 403 {
		return "", fmt.Errorf("%w: status %q", ErrCredential, resp.Status())
	}
	if resp.IsError() {
		return "", statusError(resp)
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.Body(), &tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrCredential)
	}

	s.accessToken = tr.AccessToken
	s.expiresAt = s.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	// The login service may rotate the refresh token.
	if tr.RefreshToken != "" && tr.RefreshToken != s.refreshToken {
		logger.Debug("Refresh token rotated")
		s.refreshToken = tr.RefreshToken
	}
	logger.Debug("Access token refreshed, valid until %s", s.expiresAt.Format(time.RFC3339))
	return s.accessToken, nil
}
