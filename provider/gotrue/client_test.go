package gotrue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-authstate"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

type fakePlatform struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []map[string]string
	handler  http.HandlerFunc
}

func (f *fakePlatform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.requests = append(f.requests, r)
	f.bodies = append(f.bodies, body)
	f.mu.Unlock()

	f.handler(w, r)
}

func (f *fakePlatform) lastRequest() *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

func (f *fakePlatform) lastBody() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.bodies) == 0 {
		return nil
	}
	return f.bodies[len(f.bodies)-1]
}

func signToken(t *testing.T, sub, email string, expiresIn time.Duration) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": email,
		"iat":   jwt.NewNumericDate(now),
		"exp":   jwt.NewNumericDate(now.Add(expiresIn)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newTestClient(t *testing.T, platform *fakePlatform, withValidator bool) *Client {
	t.Helper()

	srv := httptest.NewServer(platform)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig(srv.URL, "anon-key")

	var validator *TokenValidator
	if withValidator {
		cfg.JWTSecret = testSecret
		var err error
		validator, err = NewTokenValidator(context.Background(), cfg)
		require.NoError(t, err)
	}

	client, err := New(cfg, validator)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func tokenResponseJSON(t *testing.T, token, refreshToken, userID, email string, expiresIn int) []byte {
	t.Helper()
	raw, err := json.Marshal(tokenResponse{
		AccessToken:  token,
		TokenType:    "bearer",
		ExpiresIn:    expiresIn,
		RefreshToken: refreshToken,
		User:         userPayload{ID: userID, Email: email},
	})
	require.NoError(t, err)
	return raw
}

func TestSignInInstallsSession(t *testing.T) {
	userID := "6e1a2b76-0f6e-4e55-9112-9f2df1f0a001"
	token := signToken(t, userID, "op@example.com", time.Hour)

	platform := &fakePlatform{handler: func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		w.Write(tokenResponseJSON(t, token, "refresh-1", userID, "op@example.com", 3600))
	}}

	client := newTestClient(t, platform, true)

	sub := client.Subscribe()
	defer sub.Unsubscribe()

	session, err := client.SignIn(context.Background(), "op@example.com", "secret123")
	require.NoError(t, err)

	assert.Equal(t, userID, session.UserID)
	assert.Equal(t, "op@example.com", session.Email)
	assert.Equal(t, token, session.AccessToken)
	require.NotNil(t, session.ExpiresAt)
	assert.False(t, session.Expired(time.Now()))

	assert.Equal(t, map[string]string{
		"email":    "op@example.com",
		"password": "secret123",
	}, platform.lastBody())

	select {
	case ev := <-sub.C:
		assert.Equal(t, authstate.EventSignedIn, ev.Type)
		require.NotNil(t, ev.Session)
		assert.Equal(t, userID, ev.Session.UserID)
	case <-time.After(time.Second):
		t.Fatal("expected a signed_in event")
	}

	current, err := client.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, userID, current.UserID)
}

func TestSignInSurfacesPlatformMessage(t *testing.T) {
	platform := &fakePlatform{handler: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
	}}

	client := newTestClient(t, platform, false)

	_, err := client.SignIn(context.Background(), "op@example.com", "wrong")
	require.Error(t, err)

	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich))
	assert.Equal(t, "Invalid login credentials", rich.Message)
	assert.Equal(t, goerrors.CategoryAuth, rich.Category)
}

func TestSignInRejectsTamperedToken(t *testing.T) {
	bogus := signToken(t, "abc", "op@example.com", time.Hour) + "tampered"

	platform := &fakePlatform{handler: func(w http.ResponseWriter, r *http.Request) {
		w.Write(tokenResponseJSON(t, bogus, "refresh-1", "abc", "op@example.com", 3600))
	}}

	client := newTestClient(t, platform, true)

	_, err := client.SignIn(context.Background(), "op@example.com", "secret123")
	require.Error(t, err)

	current, err := client.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestSignUpWithoutSessionAwaitsConfirmation(t *testing.T) {
	platform := &fakePlatform{handler: func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/signup", r.URL.Path)
		w.Write([]byte(`{"id":"abc","email":"op@example.com"}`))
	}}

	client := newTestClient(t, platform, false)

	session, err := client.SignUp(context.Background(), "op@example.com", "secret123")
	require.NoError(t, err)
	assert.Nil(t, session)

	current, err := client.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestSignOutClearsMirrorAndNotifiesServer(t *testing.T) {
	userID := "6e1a2b76-0f6e-4e55-9112-9f2df1f0a001"
	token := signToken(t, userID, "op@example.com", time.Hour)

	platform := &fakePlatform{handler: func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			w.Write(tokenResponseJSON(t, token, "refresh-1", userID, "op@example.com", 3600))
		case "/logout":
			w.WriteHeader(http.StatusNoContent)
		}
	}}

	client := newTestClient(t, platform, true)

	_, err := client.SignIn(context.Background(), "op@example.com", "secret123")
	require.NoError(t, err)

	sub := client.Subscribe()
	defer sub.Unsubscribe()

	require.NoError(t, client.SignOut(context.Background()))

	last := platform.lastRequest()
	require.NotNil(t, last)
	assert.Equal(t, "/logout", last.URL.Path)

	select {
	case ev := <-sub.C:
		assert.Equal(t, authstate.EventSignedOut, ev.Type)
		assert.Nil(t, ev.Session)
	case <-time.After(time.Second):
		t.Fatal("expected a signed_out event")
	}

	current, err := client.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestResetPasswordPassesRedirect(t *testing.T) {
	platform := &fakePlatform{handler: func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/recover", r.URL.Path)
		assert.Equal(t, "https://app.local/update-password", r.URL.Query().Get("redirect_to"))
		w.Write([]byte(`{}`))
	}}

	client := newTestClient(t, platform, false)

	err := client.ResetPassword(context.Background(), "op@example.com", "https://app.local/update-password")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"email": "op@example.com"}, platform.lastBody())
}

func TestTokenRefreshRotatesSession(t *testing.T) {
	userID := "6e1a2b76-0f6e-4e55-9112-9f2df1f0a001"
	first := signToken(t, userID, "op@example.com", 2*time.Second)
	second := signToken(t, userID, "op@example.com", time.Hour)

	platform := &fakePlatform{handler: func(w http.ResponseWriter, r *http.Request) {
		grant := r.URL.Query().Get("grant_type")
		if grant == "refresh_token" {
			w.Write(tokenResponseJSON(t, second, "refresh-2", userID, "op@example.com", 3600))
			return
		}
		w.Write(tokenResponseJSON(t, first, "refresh-1", userID, "op@example.com", 2))
	}}

	srv := httptest.NewServer(platform)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig(srv.URL, "anon-key")
	cfg.JWTSecret = testSecret
	cfg.RefreshLeeway = time.Second

	validator, err := NewTokenValidator(context.Background(), cfg)
	require.NoError(t, err)

	client, err := New(cfg, validator)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	sub := client.Subscribe()
	defer sub.Unsubscribe()

	_, err = client.SignIn(context.Background(), "op@example.com", "secret123")
	require.NoError(t, err)

	// consume the sign-in event, then wait for the scheduled rotation
	select {
	case ev := <-sub.C:
		require.Equal(t, authstate.EventSignedIn, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a signed_in event")
	}

	select {
	case ev := <-sub.C:
		assert.Equal(t, authstate.EventTokenRefreshed, ev.Type)
		require.NotNil(t, ev.Session)
		assert.Equal(t, second, ev.Session.AccessToken)
		assert.Equal(t, "refresh-2", ev.Session.RefreshToken)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a token_refreshed event")
	}

	body := platform.lastBody()
	assert.Equal(t, "refresh-1", body["refresh_token"])
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{APIKey: "anon"}, nil)
	assert.Error(t, err)

	_, err = New(Config{BaseURL: "https://example.test"}, nil)
	assert.Error(t, err)
}
