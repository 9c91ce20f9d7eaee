package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/miladnoo/Heray/monitoring"
	"github.com/miladnoo/Heray/v1/models"
)

var (
	// ErrInvalidCredentials is returned when the provider rejects a password or refresh token
	ErrInvalidCredentials = errors.New("invalid login credentials")
	// ErrInvalidToken is returned when an access token is missing, malformed, expired or revoked
	ErrInvalidToken = errors.New("invalid or expired session token")
)

// ProviderError is a non-credential failure reported by the auth provider
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("auth provider returned status %d: %s", e.StatusCode, e.Message)
}

// Provider is a client for the hosted auth provider's password and session endpoints
type Provider struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewProvider creates a client rooted at the provider's base URL
func NewProvider(baseURL, apiKey string, timeout time.Duration) *Provider {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Provider{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type providerUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (u *providerUser) identity() *models.AdminIdentity {
	if u == nil {
		return nil
	}
	return &models.AdminIdentity{UserID: u.ID, Email: u.Email}
}

type providerSession struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    int           `json:"expires_in"`
	TokenType    string        `json:"token_type"`
	User         *providerUser `json:"user"`
}

// providerErrorBody covers both the OAuth-style and the newer error shapes
type providerErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (b *providerErrorBody) message() string {
	for _, m := range []string{b.ErrorDescription, b.Msg, b.Message, b.Error} {
		if m != "" {
			return m
		}
	}
	return ""
}

// SignInWithPassword exchanges email and password for a session
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*models.SessionTokens, error) {
	body := map[string]string{"email": email, "password": password}
	var session providerSession
	if err := p.do(ctx, "sign_in", http.MethodPost, "/auth/v1/token?grant_type=password", "", body, &session); err != nil {
		return nil, err
	}
	return session.tokens(), nil
}

// RefreshSession exchanges a refresh token for a new session
func (p *Provider) RefreshSession(ctx context.Context, refreshToken string) (*models.SessionTokens, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var session providerSession
	if err := p.do(ctx, "refresh", http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", body, &session); err != nil {
		return nil, err
	}
	return session.tokens(), nil
}

// SignOut revokes the session behind an access token. Tokens the provider
// no longer recognizes count as already signed out.
func (p *Provider) SignOut(ctx context.Context, accessToken string) error {
	err := p.do(ctx, "sign_out", http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
	if errors.Is(err, ErrInvalidToken) {
		return nil
	}
	return err
}

// GetUser resolves an access token to the signed-in user
func (p *Provider) GetUser(ctx context.Context, accessToken string) (*models.AdminIdentity, error) {
	var user providerUser
	if err := p.do(ctx, "get_user", http.MethodGet, "/auth/v1/user", accessToken, nil, &user); err != nil {
		return nil, err
	}
	if user.Email == "" {
		return nil, fmt.Errorf("%w: user has no email", ErrInvalidToken)
	}
	return user.identity(), nil
}

func (s *providerSession) tokens() *models.SessionTokens {
	return &models.SessionTokens{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresIn:    s.ExpiresIn,
		TokenType:    s.TokenType,
		User:         s.User.identity(),
	}
}

func (p *Provider) do(ctx context.Context, operation, method, path, bearer string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", p.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	res, err := p.HTTPClient.Do(req)
	if err != nil {
		monitoring.RecordExternalCall(ctx, "auth_provider", operation, time.Since(start), err)
		return fmt.Errorf("failed to reach auth provider: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		monitoring.RecordExternalCall(ctx, "auth_provider", operation, time.Since(start), err)
		return fmt.Errorf("failed to read auth provider response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		callErr := classifyProviderError(res.StatusCode, bearer != "", data)
		monitoring.RecordExternalCall(ctx, "auth_provider", operation, time.Since(start), callErr)
		return callErr
	}
	monitoring.RecordExternalCall(ctx, "auth_provider", operation, time.Since(start), nil)

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode auth provider response: %w", err)
	}
	return nil
}

// classifyProviderError maps rejections of the presented credential to the
// sentinel errors and leaves everything else as a ProviderError
func classifyProviderError(status int, withBearer bool, data []byte) error {
	var body providerErrorBody
	_ = json.Unmarshal(data, &body)
	message := body.message()
	if message == "" {
		message = http.StatusText(status)
	}

	switch {
	case withBearer && (status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusNotFound):
		return fmt.Errorf("%w: %s", ErrInvalidToken, message)
	case !withBearer && (status == http.StatusBadRequest || status == http.StatusUnauthorized):
		return fmt.Errorf("%w: %s", ErrInvalidCredentials, message)
	default:
		return &ProviderError{StatusCode: status, Message: message}
	}
}
