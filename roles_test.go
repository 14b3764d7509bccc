package authstate_test

import (
	"testing"

	"github.com/goliatone/go-authstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleSetHasAny(t *testing.T) {
	t.Run("empty set never grants", func(t *testing.T) {
		var roles authstate.RoleSet
		assert.False(t, roles.HasAny("producao"))
		assert.False(t, roles.HasAny())
	})

	t.Run("admin grants everything", func(t *testing.T) {
		roles := authstate.RoleSet{authstate.RoleAdmin}
		assert.True(t, roles.HasAny("producao"))
		assert.True(t, roles.HasAny("vendas", "financeiro"))
		// admin grants even with an empty required list
		assert.True(t, roles.HasAny())
	})

	t.Run("non-admin needs an intersection", func(t *testing.T) {
		roles := authstate.RoleSet{"vendas"}
		assert.True(t, roles.HasAny("vendas"))
		assert.True(t, roles.HasAny("producao", "vendas"))
		assert.False(t, roles.HasAny("producao"))
	})

	t.Run("empty required list never grants for non-admin", func(t *testing.T) {
		roles := authstate.RoleSet{"vendas", authstate.RolePending}
		assert.False(t, roles.HasAny())
	})
}

func TestRoleSetHas(t *testing.T) {
	roles := authstate.RoleSet{"producao", authstate.RolePending}
	assert.True(t, roles.Has("producao"))
	assert.False(t, roles.Has(authstate.RoleAdmin))
}

func TestRoleSetClone(t *testing.T) {
	roles := authstate.RoleSet{"vendas"}
	clone := roles.Clone()
	clone[0] = "producao"
	assert.Equal(t, authstate.RoleSet{"vendas"}, roles)

	var empty authstate.RoleSet
	assert.Nil(t, empty.Clone())
}

func TestRoleSetColumnCodec(t *testing.T) {
	roles := authstate.RoleSet{authstate.RoleAdmin, "producao"}

	value, err := roles.Value()
	require.NoError(t, err)
	assert.Equal(t, `["admin","producao"]`, value)

	var decoded authstate.RoleSet
	require.NoError(t, decoded.Scan(value))
	assert.Equal(t, roles, decoded)

	var fromNil authstate.RoleSet
	require.NoError(t, fromNil.Scan(nil))
	assert.Nil(t, fromNil)
}
