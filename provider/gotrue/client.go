package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goliatone/go-authstate"
	goerrors "github.com/goliatone/go-errors"
)

// Client is an authstate.SessionStore backed by a hosted GoTrue-style
// identity API. It holds the current session in memory, rotates the access
// token before expiry, and broadcasts session-change events in order.
type Client struct {
	cfg       Config
	http      *http.Client
	logger    authstate.Logger
	validator *TokenValidator
	hub       *authstate.Broadcaster

	mu      sync.Mutex
	session *authstate.SessionObject
	refresh *time.Timer
	closed  bool
}

var _ authstate.SessionStore = (*Client)(nil)

// New creates a Client. Pass a TokenValidator to have access tokens verified
// locally before they are mirrored; nil trusts the platform response.
func New(cfg Config, validator *TokenValidator) (*Client, error) {
	if cfg.baseURL() == "" {
		return nil, goerrors.New("gotrue: base URL is required", goerrors.CategoryBadInput)
	}
	if cfg.APIKey == "" {
		return nil, goerrors.New("gotrue: API key is required", goerrors.CategoryBadInput)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = authstate.DefaultLogger()
	}

	if cfg.RefreshLeeway <= 0 {
		cfg.RefreshLeeway = 60 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 10 * time.Second
	}

	return &Client{
		cfg:       cfg,
		http:      httpClient,
		logger:    logger,
		validator: validator,
		hub:       authstate.NewBroadcaster(0),
	}, nil
}

// Close stops the refresh timer and releases every subscription.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	if c.refresh != nil {
		c.refresh.Stop()
		c.refresh = nil
	}
	c.mu.Unlock()

	c.hub.Close()
	if c.validator != nil {
		c.validator.Close()
	}
}

func (c *Client) Subscribe() *authstate.Subscription {
	return c.hub.Subscribe()
}

// SignUp registers a new identity. When the platform has email confirmation
// disabled it returns a live session and the client signs in immediately;
// otherwise the returned session is nil and the caller waits for the
// confirmation flow.
func (c *Client) SignUp(ctx context.Context, email, password string) (*authstate.SessionObject, error) {
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/signup", nil, map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.AccessToken == "" {
		return nil, nil
	}

	session, err := c.adopt(resp)
	if err != nil {
		return nil, err
	}

	c.hub.Publish(authstate.SessionEvent{Type: authstate.EventSignedIn, Session: session.Clone()})
	return session.Clone(), nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*authstate.SessionObject, error) {
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"password"}}, map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}

	session, err := c.adopt(resp)
	if err != nil {
		return nil, err
	}

	c.hub.Publish(authstate.SessionEvent{Type: authstate.EventSignedIn, Session: session.Clone()})
	return session.Clone(), nil
}

func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	if c.refresh != nil {
		c.refresh.Stop()
		c.refresh = nil
	}
	c.mu.Unlock()

	if session != nil {
		if err := c.do(ctx, http.MethodPost, "/logout", nil, nil, nil); err != nil {
			// the local session is already gone; the server-side revocation
			// failing should not resurrect it
			c.logger.Warn("gotrue: server-side logout failed", "error", err)
		}
	}

	c.hub.Publish(authstate.SessionEvent{Type: authstate.EventSignedOut})
	return nil
}

func (c *Client) ResetPassword(ctx context.Context, email, redirectTo string) error {
	var query url.Values
	if redirectTo != "" {
		query = url.Values{"redirect_to": {redirectTo}}
	}
	return c.do(ctx, http.MethodPost, "/recover", query, map[string]string{
		"email": email,
	}, nil)
}

func (c *Client) GetSession(ctx context.Context) (*authstate.SessionObject, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Clone(), nil
}

func (c *Client) GetIdentity(ctx context.Context) (authstate.Identity, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session == nil {
		return nil, goerrors.New("no identity is signed in", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	var user userPayload
	if err := c.do(ctx, http.MethodGet, "/user", nil, nil, &user); err != nil {
		return nil, err
	}

	return identity{id: user.ID, email: user.Email}, nil
}

// adopt validates and installs a fresh token response as the current session.
func (c *Client) adopt(resp tokenResponse) (*authstate.SessionObject, error) {
	session, err := c.sessionFromResponse(resp)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, goerrors.New("gotrue: client is closed", goerrors.CategoryOperation)
	}

	c.session = session
	c.scheduleRefreshLocked(session)
	return session, nil
}

func (c *Client) sessionFromResponse(resp tokenResponse) (*authstate.SessionObject, error) {
	now := time.Now()
	session := &authstate.SessionObject{
		UserID:       resp.User.ID,
		Email:        resp.User.Email,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		IssuedAt:     &now,
	}

	if resp.ExpiresIn > 0 {
		exp := now.Add(time.Duration(resp.ExpiresIn) * time.Second)
		session.ExpiresAt = &exp
	}

	if c.validator != nil {
		claims, err := c.validator.Validate(resp.AccessToken)
		if err != nil {
			return nil, err
		}
		fromClaims, err := authstate.SessionFromClaims(claims)
		if err != nil {
			return nil, err
		}
		session.UserID = fromClaims.UserID
		if fromClaims.Email != "" {
			session.Email = fromClaims.Email
		}
		if fromClaims.ExpiresAt != nil {
			session.ExpiresAt = fromClaims.ExpiresAt
		}
	}

	if session.UserID == "" {
		return nil, goerrors.New("gotrue: token response carries no user id", goerrors.CategoryOperation)
	}

	return session, nil
}

// scheduleRefreshLocked arms the rotation timer. Callers hold c.mu.
func (c *Client) scheduleRefreshLocked(session *authstate.SessionObject) {
	if c.refresh != nil {
		c.refresh.Stop()
		c.refresh = nil
	}

	if session.RefreshToken == "" || session.ExpiresAt == nil {
		return
	}

	delay := time.Until(*session.ExpiresAt) - c.cfg.RefreshLeeway
	if delay < 0 {
		delay = 0
	}

	c.refresh = time.AfterFunc(delay, c.refreshSession)
}

func (c *Client) refreshSession() {
	c.mu.Lock()
	session := c.session
	closed := c.closed
	c.mu.Unlock()

	if closed || session == nil || session.RefreshToken == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"refresh_token"}}, map[string]string{
		"refresh_token": session.RefreshToken,
	}, &resp)

	if err != nil {
		c.logger.Warn("gotrue: token refresh failed", "error", err)
		if session.Expired(time.Now()) {
			// the mirror cannot outlive the token it mirrors
			c.mu.Lock()
			c.session = nil
			c.mu.Unlock()
			c.hub.Publish(authstate.SessionEvent{Type: authstate.EventSignedOut})
			return
		}

		c.mu.Lock()
		if !c.closed {
			c.refresh = time.AfterFunc(c.cfg.RetryInterval, c.refreshSession)
		}
		c.mu.Unlock()
		return
	}

	next, err := c.adopt(resp)
	if err != nil {
		c.logger.Error("gotrue: refreshed token rejected", "error", err)
		return
	}

	c.hub.Publish(authstate.SessionEvent{Type: authstate.EventTokenRefreshed, Session: next.Clone()})
}

// do issues one API request. Non-2xx responses become CategoryAuth errors
// whose message is the platform's, surfaced untranslated.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.cfg.baseURL() + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "gotrue: failed to encode request")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "gotrue: failed to build request")
	}

	req.Header.Set("apikey", c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.Lock()
	if c.session != nil && c.session.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.session.AccessToken)
	}
	c.mu.Unlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "gotrue: request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "gotrue: failed to read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiErrorFromResponse(resp.StatusCode, payload)
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryOperation, "gotrue: failed to decode response")
		}
	}

	return nil
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int         `json:"expires_in"`
	RefreshToken string      `json:"refresh_token"`
	User         userPayload `json:"user"`
}

type userPayload struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

type apiError struct {
	Code             int    `json:"code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorField       string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e apiError) message() string {
	for _, candidate := range []string{e.Msg, e.Message, e.ErrorDescription, e.ErrorField} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

func apiErrorFromResponse(status int, payload []byte) error {
	var body apiError
	_ = json.Unmarshal(payload, &body)

	msg := body.message()
	if msg == "" {
		msg = fmt.Sprintf("request failed with status %d", status)
	}

	category := goerrors.CategoryAuth
	code := goerrors.CodeUnauthorized
	switch {
	case status == http.StatusTooManyRequests:
		category = goerrors.CategoryRateLimit
		code = goerrors.CodeBadRequest
	case status >= 500:
		category = goerrors.CategoryOperation
		code = goerrors.CodeInternal
	}

	return goerrors.New(msg, category).
		WithCode(code).
		WithMetadata(map[string]any{"status": status})
}

type identity struct {
	id    string
	email string
}

func (i identity) ID() string    { return i.id }
func (i identity) Email() string { return i.email }

var _ authstate.Identity = identity{}
