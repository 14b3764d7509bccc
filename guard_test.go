package authstate_test

import (
	"testing"

	"github.com/goliatone/go-authstate"
	"github.com/stretchr/testify/assert"
)

func authenticatedState(roles ...authstate.Role) authstate.State {
	session := &authstate.SessionObject{UserID: "user-1", Email: "user@example.com"}
	return authstate.State{
		Session: session,
		User:    session.Identity(),
		Roles:   roles,
	}
}

func TestEvaluate(t *testing.T) {
	producao := []authstate.Role{"producao"}

	t.Run("loading is pending regardless of roles", func(t *testing.T) {
		state := authenticatedState(authstate.RoleAdmin)
		state.Loading = true
		assert.Equal(t, authstate.OutcomePending, authstate.Evaluate(state, producao))
	})

	t.Run("unauthenticated regardless of allowed roles", func(t *testing.T) {
		assert.Equal(t, authstate.OutcomeUnauthenticated, authstate.Evaluate(authstate.State{}, producao))
		assert.Equal(t, authstate.OutcomeUnauthenticated, authstate.Evaluate(authstate.State{}, nil))
	})

	t.Run("admin is granted everywhere", func(t *testing.T) {
		state := authenticatedState(authstate.RoleAdmin)
		assert.Equal(t, authstate.OutcomeGranted, authstate.Evaluate(state, producao))
	})

	t.Run("wrong role is forbidden", func(t *testing.T) {
		state := authenticatedState("vendas")
		assert.Equal(t, authstate.OutcomeForbidden, authstate.Evaluate(state, producao))
	})

	t.Run("matching role is granted", func(t *testing.T) {
		state := authenticatedState("producao", "vendas")
		assert.Equal(t, authstate.OutcomeGranted, authstate.Evaluate(state, producao))
	})

	t.Run("empty roles never granted", func(t *testing.T) {
		state := authenticatedState()
		assert.Equal(t, authstate.OutcomeForbidden, authstate.Evaluate(state, producao))
	})
}

func TestGuardRedirects(t *testing.T) {
	guard := authstate.NewGuard(nil)
	assert.Equal(t, "/", guard.RedirectFor(authstate.OutcomeUnauthenticated))
	assert.Equal(t, "/dashboard", guard.RedirectFor(authstate.OutcomeForbidden))
	assert.Equal(t, "", guard.RedirectFor(authstate.OutcomePending))
	assert.Equal(t, "", guard.RedirectFor(authstate.OutcomeGranted))

	custom := authstate.NewGuard(nil,
		authstate.WithLoginPath("/entrar"),
		authstate.WithLandingPath("/painel"),
	)
	assert.Equal(t, "/entrar", custom.RedirectFor(authstate.OutcomeUnauthenticated))
	assert.Equal(t, "/painel", custom.RedirectFor(authstate.OutcomeForbidden))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "pending", authstate.OutcomePending.String())
	assert.Equal(t, "unauthenticated", authstate.OutcomeUnauthenticated.String())
	assert.Equal(t, "forbidden", authstate.OutcomeForbidden.String())
	assert.Equal(t, "granted", authstate.OutcomeGranted.String())
}
