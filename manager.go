package authstate

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Manager mirrors the platform session into process-local State and performs
// the one-time user-record bootstrap. Construct with New, wire into the
// application lifecycle with Start and Close, and read through Snapshot.
type Manager struct {
	store  SessionStore
	users  UserStore
	logger Logger

	mu    sync.RWMutex
	state State

	sub     *Subscription
	done    chan struct{}
	wg      sync.WaitGroup
	started bool
	closed  bool
}

type Option func(*Manager)

func WithLogger(logger Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a Manager. It holds no state until Start runs.
func New(store SessionStore, users UserStore, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		users:  users,
		logger: defLogger{},
		state:  State{Loading: true},
		done:   make(chan struct{}),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// Start seeds State from the store's current session and begins consuming
// session-change events. A session fetch failure is treated as "no session"
// so the process starts unauthenticated rather than crashing; the failure is
// logged. Start may be called once.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	session, err := m.store.GetSession(ctx)
	if err != nil {
		m.logger.Error("session fetch failed, starting signed out", "error", err)
		session = nil
	}

	if session == nil {
		m.setState(State{Loading: false})
	} else {
		m.applySession(ctx, session)
	}

	// The subscription is owned by this Manager for exactly one lifetime
	// scope: acquired here, released in Close.
	m.sub = m.store.Subscribe()

	m.wg.Add(1)
	go m.consume(ctx)

	return nil
}

// Close releases the subscription and waits for the consumer goroutine. The
// final State is frozen; late events are discarded.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	started := m.started
	m.mu.Unlock()

	close(m.done)
	if started {
		m.sub.Unsubscribe()
		m.wg.Wait()
	}

	return nil
}

// Snapshot returns a copy of the current State.
func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// HasRole evaluates the cached role set against the required list. See
// RoleSet.HasAny for the admin and empty-list semantics.
func (m *Manager) HasRole(required ...Role) bool {
	return m.Snapshot().Roles.HasAny(required...)
}

// SignIn is a pass-through to the platform. State converges via the event
// channel; the returned error carries the platform message untranslated.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*SessionObject, error) {
	return m.store.SignIn(ctx, email, password)
}

// SignUp is a pass-through to the platform.
func (m *Manager) SignUp(ctx context.Context, email, password string) (*SessionObject, error) {
	return m.store.SignUp(ctx, email, password)
}

// SignOut is a pass-through to the platform.
func (m *Manager) SignOut(ctx context.Context) error {
	return m.store.SignOut(ctx)
}

// ResetPassword is a pass-through to the platform. redirectTo is where the
// platform sends the user after completing the reset.
func (m *Manager) ResetPassword(ctx context.Context, email, redirectTo string) error {
	return m.store.ResetPassword(ctx, email, redirectTo)
}

// consume is the single coordinating task: events are processed one at a
// time, to completion, in delivery order. Overlapping in-flight resolutions
// cannot happen, so the latest event always wins.
func (m *Manager) consume(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-m.done:
			return
		case <-m.sub.Done():
			return
		case <-ctx.Done():
			return
		case ev := <-m.sub.C:
			m.handle(ctx, ev)
		}
	}
}

func (m *Manager) handle(ctx context.Context, ev SessionEvent) {
	if ev.Session == nil {
		m.setState(State{Loading: false})
		return
	}

	m.applySession(ctx, ev.Session)

	// Only a fresh sign in bootstraps; refreshes observe an existing record.
	if ev.Type == EventSignedIn {
		m.bootstrap(ctx, ev.Session)
	}
}

// applySession publishes the session in two steps so concurrent readers never
// see a signed-in user as signed out: the session becomes visible immediately
// with Loading set, then roles land once the store answers.
func (m *Manager) applySession(ctx context.Context, session *SessionObject) {
	m.setState(State{
		Session: session,
		User:    session.Identity(),
		Loading: true,
	})

	roles := m.resolveRoles(ctx, session.UserID)

	m.setState(State{
		Session: session,
		User:    session.Identity(),
		Roles:   roles,
		Loading: false,
	})
}

// bootstrap ensures a user record exists for the identity. Failures are
// logged and absorbed: the user stays signed in with whatever roles resolved.
func (m *Manager) bootstrap(ctx context.Context, session *SessionObject) {
	id, err := session.GetUserUUID()
	if err != nil {
		m.logger.Error("bootstrap skipped, identity id is not a uuid", "user_id", session.UserID, "error", err)
		return
	}

	record, created, err := m.users.Bootstrap(ctx, id, session.Email)
	if err != nil {
		m.logger.Error("user record bootstrap failed", "user_id", session.UserID, "error", err)
		return
	}

	if !created {
		return
	}

	m.logger.Info("bootstrapped user record", "user_id", session.UserID, "roles", record.Roles)

	roles := m.resolveRoles(ctx, session.UserID)
	m.mu.Lock()
	if !m.closed && m.state.Session == session {
		m.state.Roles = roles
	}
	m.mu.Unlock()
}

// resolveRoles degrades to an empty set on any failure: a transient read
// error means least privilege, never a crashed session flow.
func (m *Manager) resolveRoles(ctx context.Context, userID string) RoleSet {
	id, err := uuid.Parse(userID)
	if err != nil {
		m.logger.Error("role resolution skipped, identity id is not a uuid", "user_id", userID, "error", err)
		return nil
	}

	record, err := m.users.GetRecord(ctx, id)
	if err != nil {
		if !IsRecordNotFound(err) {
			m.logger.Error("role resolution failed", "user_id", userID, "error", err)
		}
		return nil
	}

	return record.Roles.Clone()
}

func (m *Manager) setState(next State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// A resolution that lands after Close must be a no-op.
	if m.closed {
		return
	}
	m.state = next
}
