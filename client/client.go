// Package client is the Go client for the Privora auth API, including the
// recovery flow state machine used by the password-reset screens.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIError is a structured failure from the server: the HTTP status, the
// stable error kind from the response envelope, and the human message.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsKind reports whether err is an APIError with the given kind.
func IsKind(err error, kind string) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Kind == kind
}

// Error kinds returned by the server.
const (
	KindValidation         = "validation"
	KindWeakPassword       = "weak_password"
	KindDuplicateEmail     = "duplicate_email"
	KindInvalidCredentials = "invalid_credentials"
	KindUnauthorized       = "unauthorized"
	KindUserNotFound       = "user_not_found"
	KindCodeInvalid        = "code_invalid"
	KindCodeExpired        = "code_expired"
	KindCodeNotFound       = "code_not_found"
	KindTooManyAttempts    = "too_many_attempts"
	KindResendTooSoon      = "resend_too_soon"
	KindRateLimited        = "rate_limited"
	KindPrecondition       = "precondition_failed"
	KindUnavailable        = "unavailable"
)

// Account is the public account view returned by the API.
type Account struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Session is a logged-in account plus its bearer token.
type Session struct {
	Account Account
	Token   string
}

// Client talks to the auth API. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client for the API at baseURL (e.g. "https://api.example.com").
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	User    json.RawMessage `json:"user"`
	Token   string          `json:"token"`
}

// Register creates an account and returns the resulting session.
func (c *Client) Register(ctx context.Context, email, name, password string) (Session, error) {
	env, err := c.post(ctx, "/api/auth/register", map[string]string{
		"email":    email,
		"name":     name,
		"password": password,
	})
	if err != nil {
		return Session{}, err
	}
	return sessionFrom(env)
}

// Login authenticates and returns a session.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	env, err := c.post(ctx, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return Session{}, err
	}
	return sessionFrom(env)
}

// Me returns the account behind a bearer token.
func (c *Client) Me(ctx context.Context, token string) (Account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/auth/me", nil)
	if err != nil {
		return Account{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	env, err := c.do(req)
	if err != nil {
		return Account{}, err
	}

	var account Account
	if err := json.Unmarshal(env.User, &account); err != nil {
		return Account{}, fmt.Errorf("decode account: %w", err)
	}
	return account, nil
}

// ForgotPassword asks the server to start a recovery for email.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	_, err := c.post(ctx, "/api/auth/forgot-password", map[string]string{"email": email})
	return err
}

// VerifyOTP submits a recovery code for server-side verification.
func (c *Client) VerifyOTP(ctx context.Context, email, otp string) error {
	_, err := c.post(ctx, "/api/auth/verify-otp", map[string]string{
		"email": email,
		"otp":   otp,
	})
	return err
}

// ResendOTP requests a replacement recovery code.
func (c *Client) ResendOTP(ctx context.Context, email string) error {
	_, err := c.post(ctx, "/api/auth/resend-otp", map[string]string{"email": email})
	return err
}

// ResetPassword completes a recovery with the verified code and new password.
func (c *Client) ResetPassword(ctx context.Context, email, otp, newPassword string) error {
	_, err := c.post(ctx, "/api/auth/reset-password", map[string]string{
		"email":       email,
		"otp":         otp,
		"newPassword": newPassword,
	})
	return err
}

// VerifyEmail submits an email-verification code.
func (c *Client) VerifyEmail(ctx context.Context, email, otp string) error {
	_, err := c.post(ctx, "/api/auth/verify-email", map[string]string{
		"email": email,
		"otp":   otp,
	})
	return err
}

func (c *Client) post(ctx context.Context, path string, body map[string]string) (*apiEnvelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) do(req *http.Request) (*apiEnvelope, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var env apiEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &APIError{Status: resp.StatusCode, Message: "unreadable response"}
	}

	if resp.StatusCode >= 400 || !env.Success {
		return nil, &APIError{
			Status:  resp.StatusCode,
			Kind:    env.Error,
			Message: env.Message,
		}
	}

	return &env, nil
}

func sessionFrom(env *apiEnvelope) (Session, error) {
	var account Account
	if err := json.Unmarshal(env.User, &account); err != nil {
		return Session{}, fmt.Errorf("decode account: %w", err)
	}
	if env.Token == "" {
		return Session{}, fmt.Errorf("missing token in response")
	}
	return Session{Account: account, Token: env.Token}, nil
}
