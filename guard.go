package authstate

import (
	"net/http"

	"github.com/goliatone/go-router"
)

// Outcome is the route-guard decision for one evaluation. The guard holds no
// state of its own; every navigation re-evaluates against the current State.
type Outcome int

const (
	// OutcomePending means role resolution has not completed; render a
	// placeholder and perform no redirect
	OutcomePending Outcome = iota
	// OutcomeUnauthenticated redirects to the login entry point
	OutcomeUnauthenticated
	// OutcomeForbidden redirects to the default landing page
	OutcomeForbidden
	// OutcomeGranted lets the nested view render
	OutcomeGranted
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeUnauthenticated:
		return "unauthenticated"
	case OutcomeForbidden:
		return "forbidden"
	case OutcomeGranted:
		return "granted"
	default:
		return "unknown"
	}
}

// Evaluate is the pure decision function. allowed must be non-empty for
// non-admin roles to ever grant access.
func Evaluate(state State, allowed []Role) Outcome {
	if state.Loading {
		return OutcomePending
	}
	if !state.Authenticated() {
		return OutcomeUnauthenticated
	}
	if !state.Roles.HasAny(allowed...) {
		return OutcomeForbidden
	}
	return OutcomeGranted
}

// Guard gates routes on a Manager's State.
type Guard struct {
	manager     *Manager
	logger      Logger
	loginPath   string
	landingPath string
	pending     router.HandlerFunc
}

type GuardOption func(*Guard)

// WithLoginPath overrides the unauthenticated redirect target (default "/").
func WithLoginPath(path string) GuardOption {
	return func(g *Guard) {
		if path != "" {
			g.loginPath = path
		}
	}
}

// WithLandingPath overrides the forbidden redirect target (default
// "/dashboard").
func WithLandingPath(path string) GuardOption {
	return func(g *Guard) {
		if path != "" {
			g.landingPath = path
		}
	}
}

// WithPendingHandler overrides the placeholder rendered while State is still
// loading.
func WithPendingHandler(h router.HandlerFunc) GuardOption {
	return func(g *Guard) {
		if h != nil {
			g.pending = h
		}
	}
}

func WithGuardLogger(logger Logger) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func NewGuard(manager *Manager, opts ...GuardOption) *Guard {
	g := &Guard{
		manager:     manager,
		logger:      defLogger{},
		loginPath:   "/",
		landingPath: "/dashboard",
		pending:     defaultPendingHandler,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// Protected returns middleware gating a route group on the allowed roles.
// The allowed list is the guard's only per-route configuration.
func (g *Guard) Protected(allowed ...Role) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			state := g.manager.Snapshot()

			switch Evaluate(state, allowed) {
			case OutcomePending:
				return g.pending(ctx)
			case OutcomeUnauthenticated:
				return ctx.Redirect(g.loginPath, http.StatusSeeOther)
			case OutcomeForbidden:
				g.logger.Warn("route access denied",
					"user_id", state.UserID(),
					"allowed_roles", allowed,
					"path", ctx.Path(),
				)
				return ctx.Redirect(g.landingPath, http.StatusSeeOther)
			default:
				ctx.SetContext(WithStateContext(ctx.Context(), state))
				return next(ctx)
			}
		}
	}
}

// RedirectFor maps a decision to its redirect target; empty when the outcome
// performs no redirect.
func (g *Guard) RedirectFor(outcome Outcome) string {
	switch outcome {
	case OutcomeUnauthenticated:
		return g.loginPath
	case OutcomeForbidden:
		return g.landingPath
	default:
		return ""
	}
}

func defaultPendingHandler(ctx router.Context) error {
	return ctx.Status(http.StatusServiceUnavailable).SendString("checking session")
}
