package tokenware_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-authstate"
	"github.com/goliatone/go-authstate/middleware/tokenware"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var signingKey = []byte("test-secret")

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	if claims["exp"] == nil {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(signingKey)
	require.NoError(t, err)
	return signed
}

func hmacParser() tokenware.Parser {
	return tokenware.ParserFunc(func(raw string) (jwt.MapClaims, error) {
		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return signingKey, nil
		})
		if err != nil {
			return nil, err
		}
		return claims, nil
	})
}

func passthroughErrors(ctx router.Context, err error) error {
	return err
}

func TestTokenwareValidToken(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{
		"sub":   "user-1",
		"email": "op@example.com",
	})

	mw := tokenware.New(tokenware.Config{
		Parser:       hmacParser(),
		ErrorHandler: passthroughErrors,
	})

	called := false
	handler := mw(func(ctx router.Context) error {
		called = true
		return nil
	})

	ctx := router.NewMockContext()
	ctx.HeadersM["Authorization"] = "Bearer " + token
	ctx.On("GetString", "Authorization", "").Return("Bearer " + token)
	ctx.On("Locals", "session_state", mock.AnythingOfType("authstate.State")).Return(nil)

	require.NoError(t, handler(ctx))
	assert.True(t, called)
}

func TestTokenwareMissingToken(t *testing.T) {
	mw := tokenware.New(tokenware.Config{
		Parser:       hmacParser(),
		ErrorHandler: passthroughErrors,
	})

	handler := mw(func(ctx router.Context) error { return nil })

	ctx := router.NewMockContext()
	ctx.On("GetString", "Authorization", "").Return("")

	err := handler(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, tokenware.ErrTokenMissingOrMalformed)
}

func TestTokenwareBadSignature(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "user-1"})

	mw := tokenware.New(tokenware.Config{
		Parser:       hmacParser(),
		ErrorHandler: passthroughErrors,
	})

	called := false
	handler := mw(func(ctx router.Context) error {
		called = true
		return nil
	})

	ctx := router.NewMockContext()
	ctx.On("GetString", "Authorization", "").Return("Bearer " + token + "x")

	assert.Error(t, handler(ctx))
	assert.False(t, called)
}

func TestTokenwareMissingSubject(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"email": "op@example.com"})

	mw := tokenware.New(tokenware.Config{
		Parser:       hmacParser(),
		ErrorHandler: passthroughErrors,
	})

	handler := mw(func(ctx router.Context) error { return nil })

	ctx := router.NewMockContext()
	ctx.On("GetString", "Authorization", "").Return("Bearer " + token)

	assert.Error(t, handler(ctx))
}

func TestTokenwareRoleEnforcement(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "user-1"})

	roles := authstate.RoleSet{"vendas"}
	mw := tokenware.New(tokenware.Config{
		Parser:       hmacParser(),
		ErrorHandler: passthroughErrors,
		Allowed:      authstate.RoleSet{"producao"},
		Roles: func(ctx context.Context, userID string) authstate.RoleSet {
			return roles
		},
	})

	handler := mw(func(ctx router.Context) error { return nil })

	ctx := router.NewMockContext()
	ctx.On("GetString", "Authorization", "").Return("Bearer " + token)
	ctx.On("Context").Return(context.Background()).Maybe()

	err := handler(ctx)
	assert.ErrorIs(t, err, tokenware.ErrInsufficientRole)

	// the admin role grants everything
	roles = authstate.RoleSet{authstate.RoleAdmin}

	ctx = router.NewMockContext()
	ctx.On("GetString", "Authorization", "").Return("Bearer " + token)
	ctx.On("Context").Return(context.Background()).Maybe()
	ctx.On("Locals", "session_state", mock.AnythingOfType("authstate.State")).Return(nil)

	assert.NoError(t, handler(ctx))
}

func TestTokenwareFilterSkipsCheck(t *testing.T) {
	mw := tokenware.New(tokenware.Config{
		Parser:       hmacParser(),
		ErrorHandler: passthroughErrors,
		Filter: func(ctx router.Context) bool {
			return true
		},
	})

	called := false
	handler := mw(func(ctx router.Context) error {
		called = true
		return nil
	})

	ctx := router.NewMockContext()
	require.NoError(t, handler(ctx))
	assert.True(t, called)
}

func TestTokenwareExtractorChain(t *testing.T) {
	extractors := tokenware.Extractors("header:Authorization,cookie:access_token,query:token", "Bearer")
	assert.Len(t, extractors, 3)

	// malformed entries are skipped
	assert.Empty(t, tokenware.Extractors("garbage", "Bearer"))
}
