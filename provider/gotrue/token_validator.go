package gotrue

import (
	"context"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenValidator verifies platform-issued access tokens, either against the
// project's shared HS256 secret or its JWK Set endpoint.
type TokenValidator struct {
	keyfunc  jwt.Keyfunc
	audience string
	jwks     *keyfunc.JWKS
}

// NewTokenValidator builds a validator from the config. JWTSecret wins over
// JWKSURL when both are set.
func NewTokenValidator(ctx context.Context, cfg Config) (*TokenValidator, error) {
	v := &TokenValidator{audience: cfg.Audience}

	switch {
	case cfg.JWTSecret != "":
		secret := []byte(cfg.JWTSecret)
		v.keyfunc = func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return secret, nil
		}
	case cfg.JWKSURL != "":
		jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
			Ctx:               ctx,
			RefreshInterval:   time.Hour,
			RefreshUnknownKID: true,
		})
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to fetch JWK set")
		}
		v.jwks = jwks
		v.keyfunc = jwks.Keyfunc
	default:
		return nil, goerrors.New("token validation requires JWTSecret or JWKSURL", goerrors.CategoryBadInput)
	}

	return v, nil
}

// Validate parses and verifies an access token, returning its claims.
func (v *TokenValidator) Validate(raw string) (jwt.MapClaims, error) {
	opts := make([]jwt.ParserOption, 0, 1)
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, v.keyfunc, opts...)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "invalid access token").
			WithCode(goerrors.CodeUnauthorized)
	}

	if !token.Valid {
		return nil, goerrors.New("invalid access token", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	return claims, nil
}

// Close stops the background JWKS refresh, if one is running.
func (v *TokenValidator) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}
