// Package embedded is an in-process SessionStore for development and tests:
// credentials are bcrypt-hashed in memory and access tokens are HS256 JWTs,
// so the full session flow runs without the hosted platform.
package embedded

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-authstate"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type account struct {
	id           uuid.UUID
	email        string
	passwordHash string
	createdAt    time.Time
}

// Store implements authstate.SessionStore entirely in process.
type Store struct {
	mu            sync.Mutex
	accounts      map[string]*account
	session       *authstate.SessionObject
	resetRequests map[string]string

	hub        *authstate.Broadcaster
	signingKey []byte
	issuer     string
	ttl        time.Duration
	bcryptCost int
	logger     authstate.Logger
	closed     bool
}

var _ authstate.SessionStore = (*Store)(nil)

type Option func(*Store)

// WithSigningKey sets the HS256 key used to mint access tokens.
func WithSigningKey(key []byte) Option {
	return func(s *Store) {
		if len(key) > 0 {
			s.signingKey = key
		}
	}
}

// WithTokenTTL sets the access-token lifetime (default 1 hour).
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithIssuer(issuer string) Option {
	return func(s *Store) {
		if issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithBcryptCost lowers the hashing cost for test suites.
func WithBcryptCost(cost int) Option {
	return func(s *Store) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.bcryptCost = cost
		}
	}
}

func WithLogger(logger authstate.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		accounts:      map[string]*account{},
		resetRequests: map[string]string{},
		hub:           authstate.NewBroadcaster(0),
		signingKey:    []byte(uuid.NewString()),
		issuer:        "authstate-embedded",
		ttl:           time.Hour,
		bcryptCost:    bcrypt.DefaultCost,
		logger:        authstate.DefaultLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Close releases every subscription. The store itself keeps its accounts so a
// test can inspect them afterwards.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.hub.Close()
}

func (s *Store) Subscribe() *authstate.Subscription {
	return s.hub.Subscribe()
}

// SignUp registers the account and signs it in immediately, the behavior of
// a platform with email confirmation disabled.
func (s *Store) SignUp(ctx context.Context, email, password string) (*authstate.SessionObject, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, goerrors.New("email and password are required", goerrors.CategoryBadInput)
	}

	s.mu.Lock()
	if _, exists := s.accounts[email]; exists {
		s.mu.Unlock()
		return nil, goerrors.New("User already registered", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		s.mu.Unlock()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	acct := &account{
		id:           accountID(email),
		email:        email,
		passwordHash: string(hash),
		createdAt:    time.Now(),
	}
	s.accounts[email] = acct

	session, err := s.installSessionLocked(acct)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.hub.Publish(authstate.SessionEvent{Type: authstate.EventSignedIn, Session: session.Clone()})
	return session.Clone(), nil
}

func (s *Store) SignIn(ctx context.Context, email, password string) (*authstate.SessionObject, error) {
	email = normalizeEmail(email)

	s.mu.Lock()
	acct, exists := s.accounts[email]
	if !exists {
		s.mu.Unlock()
		return nil, invalidCredentials()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.passwordHash), []byte(password)); err != nil {
		s.mu.Unlock()
		return nil, invalidCredentials()
	}

	session, err := s.installSessionLocked(acct)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.hub.Publish(authstate.SessionEvent{Type: authstate.EventSignedIn, Session: session.Clone()})
	return session.Clone(), nil
}

func (s *Store) SignOut(ctx context.Context) error {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()

	s.hub.Publish(authstate.SessionEvent{Type: authstate.EventSignedOut})
	return nil
}

// ResetPassword records the request. It succeeds for unknown accounts too so
// callers cannot probe which emails exist.
func (s *Store) ResetPassword(ctx context.Context, email, redirectTo string) error {
	email = normalizeEmail(email)
	if email == "" {
		return goerrors.New("email is required", goerrors.CategoryBadInput)
	}

	s.mu.Lock()
	s.resetRequests[email] = redirectTo
	s.mu.Unlock()

	s.logger.Debug("embedded: password reset requested", "email", email)
	return nil
}

// ResetRequested reports whether a reset was requested for the email, and the
// redirect target it carried. Test helper.
func (s *Store) ResetRequested(email string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.resetRequests[normalizeEmail(email)]
	return target, ok
}

func (s *Store) GetSession(ctx context.Context) (*authstate.SessionObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Clone(), nil
}

func (s *Store) GetIdentity(ctx context.Context) (authstate.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, goerrors.New("no identity is signed in", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	return s.session.Identity(), nil
}

// RefreshSession rotates the current access token and emits the refresh
// event, mimicking the platform's background rotation.
func (s *Store) RefreshSession(ctx context.Context) (*authstate.SessionObject, error) {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return nil, goerrors.New("no session to refresh", goerrors.CategoryOperation)
	}

	acct := s.accounts[normalizeEmail(s.session.Email)]
	if acct == nil {
		s.mu.Unlock()
		return nil, goerrors.New("session account is gone", goerrors.CategoryOperation)
	}

	session, err := s.installSessionLocked(acct)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.hub.Publish(authstate.SessionEvent{Type: authstate.EventTokenRefreshed, Session: session.Clone()})
	return session.Clone(), nil
}

// installSessionLocked mints a token and swaps the current session. Callers
// hold s.mu.
func (s *Store) installSessionLocked(acct *account) (*authstate.SessionObject, error) {
	if s.closed {
		return nil, goerrors.New("embedded store is closed", goerrors.CategoryOperation)
	}

	now := time.Now()
	exp := now.Add(s.ttl)

	token, err := s.mintToken(acct, now, exp)
	if err != nil {
		return nil, err
	}

	s.session = &authstate.SessionObject{
		UserID:       acct.id.String(),
		Email:        acct.email,
		AccessToken:  token,
		RefreshToken: uuid.NewString(),
		IssuedAt:     &now,
		ExpiresAt:    &exp,
	}

	return s.session, nil
}

func invalidCredentials() error {
	return goerrors.New("Invalid login credentials", goerrors.CategoryAuth).
		WithTextCode("INVALID_CREDENTIALS").
		WithCode(goerrors.CodeUnauthorized)
}

// accountID derives a stable id from the email so repeated runs of a dev
// environment keep the same identity ids.
func accountID(email string) uuid.UUID {
	if id, err := hashid.NewUUID(email); err == nil {
		return id
	}
	return uuid.New()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
