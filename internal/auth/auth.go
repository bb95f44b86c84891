// Package auth is a client for a hosted GoTrue-compatible auth service.
// The signed-in session is persisted through a SessionStore so it
// survives restarts.
package auth

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/conorfennell/flashstudy/internal/domain"
)

var (
	ErrEmptyFields      = errors.New("fields cannot be empty")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrNotSignedIn      = errors.New("not signed in")
	ErrDisabled         = errors.New("auth is not configured")
)

// SessionStore persists the current session. storage.DB implements it.
type SessionStore interface {
	SaveSession(ctx context.Context, s domain.Session) error
	LoadSession(ctx context.Context) (*domain.Session, error)
	ClearSession(ctx context.Context) error
}

// Response is the outcome of an auth action as shown to the user.
type Response struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// ResponseFor turns the result of an auth action into a Response.
func ResponseFor(err error, success string) Response {
	switch {
	case err == nil:
		return Response{OK: true, Message: success}
	case errors.Is(err, ErrEmptyFields):
		return Response{Message: "Fields cannot be empty"}
	case errors.Is(err, ErrPasswordMismatch):
		return Response{Message: "Passwords do not match"}
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return Response{Message: ae.Message}
	}
	return Response{Message: err.Error()}
}

// APIError is a non-2xx answer from the auth service.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth service returned %d: %s", e.Code, e.Message)
}

// Nonce is a one-time value for ID token sign in. Raw goes to the auth
// service; Hashed is what the identity provider embeds in the token.
type Nonce struct {
	Raw    string `json:"raw"`
	Hashed string `json:"hashed"`
}

// CreateNonce returns a random nonce and its SHA-256 hex digest.
func CreateNonce() Nonce {
	raw := uuid.NewString()
	sum := sha256.Sum256([]byte(raw))
	return Nonce{Raw: raw, Hashed: hex.EncodeToString(sum[:])}
}

type Client struct {
	baseURL     string
	apiKey      string
	redirectURL string
	http        *http.Client
	store       SessionStore
	now         func() time.Time
}

// New returns a Client for the service at baseURL (the project URL, without /auth/v1).
// An empty baseURL yields a client whose remote calls fail with ErrDisabled.
func New(baseURL, apiKey, redirectURL string, timeout time.Duration, store SessionStore) *Client {
	if baseURL != "" {
		baseURL = strings.TrimRight(baseURL, "/") + "/auth/v1"
	}
	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		redirectURL: redirectURL,
		http:        &http.Client{Timeout: timeout},
		store:       store,
		now:         time.Now,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// SignUp registers a new user. When the service confirms immediately the
// returned session is stored.
func (c *Client) SignUp(ctx context.Context, email, password, confirm string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" || strings.TrimSpace(confirm) == "" {
		return ErrEmptyFields
	}
	if password != confirm {
		return ErrPasswordMismatch
	}

	var tr tokenResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.call(ctx, http.MethodPost, "/signup", nil, "", body, &tr); err != nil {
		return fmt.Errorf("failed to sign up: %w", err)
	}
	if tr.AccessToken == "" {
		slog.Info("Sign up pending confirmation", "email", email)
		return nil
	}
	return c.storeToken(ctx, tr)
}

// SignIn signs in with email and password.
func (c *Client) SignIn(ctx context.Context, email, password string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" {
		return ErrEmptyFields
	}
	return c.grant(ctx, "password", map[string]string{"email": email, "password": password})
}

// SignInWithIDToken exchanges an identity provider token, e.g. from Google,
// for a session. nonce is the raw value from CreateNonce.
func (c *Client) SignInWithIDToken(ctx context.Context, provider, idToken, nonce string) error {
	if provider == "" || idToken == "" {
		return ErrEmptyFields
	}
	body := map[string]string{"provider": provider, "id_token": idToken}
	if nonce != "" {
		body["nonce"] = nonce
	}
	return c.grant(ctx, "id_token", body)
}

// SendPasswordReset asks the service to mail a recovery link.
func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return ErrEmptyFields
	}
	query := url.Values{}
	if c.redirectURL != "" {
		query.Set("redirect_to", c.redirectURL)
	}
	if err := c.call(ctx, http.MethodPost, "/recover", query, "", map[string]string{"email": email}, nil); err != nil {
		return fmt.Errorf("failed to send password reset: %w", err)
	}
	return nil
}

// UpdatePassword sets a new password for the signed-in user.
func (c *Client) UpdatePassword(ctx context.Context, password string) error {
	if strings.TrimSpace(password) == "" {
		return ErrEmptyFields
	}
	s, err := c.Session(ctx)
	if err != nil {
		return err
	}
	if s == nil {
		return ErrNotSignedIn
	}
	if err := c.call(ctx, http.MethodPut, "/user", nil, s.AccessToken, map[string]string{"password": password}, nil); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// Session returns the stored session, refreshing it first when the access
// token has expired. It returns nil, nil when signed out.
func (c *Client) Session(ctx context.Context) (*domain.Session, error) {
	s, err := c.store.LoadSession(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil || !s.Expired(c.now()) {
		return s, nil
	}
	if s.RefreshToken == "" {
		return nil, c.store.ClearSession(ctx)
	}

	slog.Debug("Refreshing expired session", "user", s.UserID)
	if err := c.grant(ctx, "refresh_token", map[string]string{"refresh_token": s.RefreshToken}); err != nil {
		return nil, err
	}
	return c.store.LoadSession(ctx)
}

// Logout revokes the session remotely and always clears it locally.
func (c *Client) Logout(ctx context.Context) error {
	s, err := c.store.LoadSession(ctx)
	if err != nil {
		return err
	}
	if s != nil {
		if err := c.call(ctx, http.MethodPost, "/logout", nil, s.AccessToken, nil, nil); err != nil {
			slog.Warn("Remote logout failed, clearing local session anyway", "error", err)
		}
	}
	return c.store.ClearSession(ctx)
}

// Enabled reports whether an auth service is configured.
func (c *Client) Enabled() bool { return c.baseURL != "" }

func (c *Client) grant(ctx context.Context, grantType string, body any) error {
	var tr tokenResponse
	query := url.Values{"grant_type": {grantType}}
	if err := c.call(ctx, http.MethodPost, "/token", query, "", body, &tr); err != nil {
		return fmt.Errorf("failed to obtain token (%s): %w", grantType, err)
	}
	return c.storeToken(ctx, tr)
}

func (c *Client) storeToken(ctx context.Context, tr tokenResponse) error {
	if tr.AccessToken == "" {
		return errors.New("auth service returned no access token")
	}
	s := domain.Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		UserID:       tr.User.ID,
		Email:        tr.User.Email,
	}
	switch {
	case tr.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(tr.ExpiresAt, 0)
	case tr.ExpiresIn > 0:
		s.ExpiresAt = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	default:
		s.ExpiresAt = tokenExpiry(tr.AccessToken)
	}
	if s.UserID == "" {
		s.UserID = tokenSubject(tr.AccessToken)
	}
	return c.store.SaveSession(ctx, s)
}

// tokenExpiry reads the exp claim without verifying the signature; the
// token is only ever sent back to the service that issued it.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

func tokenSubject(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, bearer string, body, out any) error {
	if c.baseURL == "" {
		return ErrDisabled
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode auth response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 16<<10))
	var payload struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &payload) == nil {
		for _, m := range []string{payload.ErrorDescription, payload.Msg, payload.Message, payload.Error} {
			if m != "" {
				msg = m
				break
			}
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Code: resp.StatusCode, Message: msg}
}
