package authstate

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of an identity as known to the platform
type Identity interface {
	ID() string
	Email() string
}

// UserStore is the slice of the user-record store the Manager needs: role
// lookup and first-sign-in bootstrap.
type UserStore interface {
	GetRecord(ctx context.Context, id uuid.UUID) (*UserRecord, error)
	Bootstrap(ctx context.Context, id uuid.UUID, email string) (*UserRecord, bool, error)
}

// SessionStore is the hosted identity platform. It owns credentials, token
// issuance and refresh; we only mirror what it reports.
type SessionStore interface {
	SignUp(ctx context.Context, email, password string) (*SessionObject, error)
	SignIn(ctx context.Context, email, password string) (*SessionObject, error)
	SignOut(ctx context.Context) error
	ResetPassword(ctx context.Context, email, redirectTo string) error

	// GetSession returns the current session, or nil when no identity is
	// signed in. A transient failure is an error, not a nil session.
	GetSession(ctx context.Context) (*SessionObject, error)
	GetIdentity(ctx context.Context) (Identity, error)

	// Subscribe registers a listener for session-change events. Events for a
	// subscription are delivered in the order the underlying changes occurred.
	Subscribe() *Subscription
}

// DefaultLogger returns the package's printf-backed logger, used wherever an
// explicit Logger was not injected.
func DefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTHSTATE "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTHSTATE "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTHSTATE "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTHSTATE "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
