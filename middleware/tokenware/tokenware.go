// Package tokenware guards API routes with the platform access token. Where
// the root package's Guard reads the Manager's mirrored state, tokenware is
// stateless: each request carries a bearer token, the token is verified, and
// the request proceeds with the session it describes.
package tokenware

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-authstate"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

var (
	defaultTokenLookup         = "header:" + router.HeaderAuthorization
	ErrTokenMissingOrMalformed = errors.New("missing or malformed access token")
	ErrInsufficientRole        = errors.New("insufficient role")
)

// Parser verifies a raw access token and returns its claims. Both the gotrue
// TokenValidator and the embedded store satisfy it.
type Parser interface {
	Validate(raw string) (jwt.MapClaims, error)
}

// ParserFunc adapts a plain function to Parser.
type ParserFunc func(raw string) (jwt.MapClaims, error)

func (f ParserFunc) Validate(raw string) (jwt.MapClaims, error) { return f(raw) }

// RoleResolver looks up the role set for an identity id. Wire it to the user
// store's GetRecord; leave nil to skip role checks entirely.
type RoleResolver func(ctx context.Context, userID string) authstate.RoleSet

// Roles returns a RoleResolver backed by the user store. Lookup failures
// resolve to an empty set.
func Roles(users authstate.UserStore) RoleResolver {
	return func(ctx context.Context, userID string) authstate.RoleSet {
		id, err := uuid.Parse(userID)
		if err != nil {
			return nil
		}
		record, err := users.GetRecord(ctx, id)
		if err != nil {
			return nil
		}
		return record.Roles.Clone()
	}
}

type Config struct {
	// Filter skips the middleware for matching requests.
	Filter func(router.Context) bool

	ErrorHandler router.ErrorHandler

	// Parser is required.
	Parser Parser

	// Roles resolves the identity's role set. Optional.
	Roles RoleResolver

	// Allowed is the role list the request must satisfy. Empty means any
	// verified session passes.
	Allowed authstate.RoleSet

	// TokenLookup is a comma separated list of <source>:<name> entries, e.g.
	// "header:Authorization,cookie:access_token,query:token".
	TokenLookup string

	AuthScheme string

	// ContextKey is the locals key the request State is stored under.
	ContextKey string

	// ContextEnricher propagates the request State to the standard Go
	// context. Optional; authstate.WithStateContext is the usual choice.
	ContextEnricher func(context.Context, authstate.State) context.Context
}

// New builds the middleware. It panics when no Parser is configured, the same
// contract the rest of the middleware packages follow.
func New(config ...Config) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		cfg := configDefault(config...)

		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return hf(ctx)
			}

			raw, err := extractToken(ctx, cfg.extractors())
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			claims, err := cfg.Parser.Validate(raw)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			session, err := authstate.SessionFromClaims(claims)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}
			session.AccessToken = raw

			var roles authstate.RoleSet
			if cfg.Roles != nil {
				roles = cfg.Roles(ctx.Context(), session.UserID)
			}

			state := authstate.State{
				Session: session,
				User:    session.Identity(),
				Roles:   roles,
			}

			if len(cfg.Allowed) > 0 && authstate.Evaluate(state, cfg.Allowed) != authstate.OutcomeGranted {
				return cfg.ErrorHandler(ctx, ErrInsufficientRole)
			}

			ctx.Locals(cfg.ContextKey, state)

			if cfg.ContextEnricher != nil {
				ctx.SetContext(cfg.ContextEnricher(ctx.Context(), state))
			}

			return hf(ctx)
		}
	}
}

func configDefault(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Parser == nil {
		panic("tokenware: configuration requires a Parser")
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(ctx router.Context, err error) error {
			switch {
			case errors.Is(err, ErrTokenMissingOrMalformed):
				return ctx.Status(router.StatusBadRequest).SendString(ErrTokenMissingOrMalformed.Error())
			case errors.Is(err, ErrInsufficientRole):
				return ctx.Status(router.StatusForbidden).SendString(ErrInsufficientRole.Error())
			default:
				return ctx.Status(router.StatusUnauthorized).SendString("invalid or expired token")
			}
		}
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "session_state"
	}

	return cfg
}

// Extractor pulls a raw token out of the request.
type Extractor func(router.Context) (string, error)

func (cfg *Config) extractors() []Extractor {
	return Extractors(cfg.TokenLookup, cfg.AuthScheme)
}

func extractToken(ctx router.Context, extractors []Extractor) (string, error) {
	var raw string
	var err error

	for _, extractor := range extractors {
		raw, err = extractor(ctx)
		if raw != "" && err == nil {
			return raw, nil
		}
	}

	if err == nil {
		err = ErrTokenMissingOrMalformed
	}
	return "", err
}

// Extractors parses a lookup expression into its extractor chain.
func Extractors(tokenLookup, authScheme string) []Extractor {
	extractors := make([]Extractor, 0)

	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.Split(strings.TrimSpace(rootPart), ":")
		if len(parts) != 2 {
			continue
		}

		source := strings.TrimSpace(parts[0])
		name := strings.TrimSpace(parts[1])

		switch source {
		case "header":
			extractors = append(extractors, fromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, fromQuery(name))
		case "param":
			extractors = append(extractors, fromParam(name))
		case "cookie":
			extractors = append(extractors, fromCookie(name))
		}
	}

	return extractors
}

func fromHeader(header, authScheme string) Extractor {
	return func(c router.Context) (string, error) {
		value := c.GetString(header, "")
		scheme := strings.TrimSpace(authScheme)
		l := len(scheme)
		if l == 0 {
			return "", ErrTokenMissingOrMalformed
		}
		if len(value) > l+1 && strings.EqualFold(value[:l], scheme) {
			return strings.TrimSpace(value[l:]), nil
		}
		return "", ErrTokenMissingOrMalformed
	}
}

func fromQuery(param string) Extractor {
	return func(c router.Context) (string, error) {
		token := c.Query(param, "")
		if token == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return token, nil
	}
}

func fromParam(param string) Extractor {
	return func(c router.Context) (string, error) {
		token := c.Param(param)
		if token == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return token, nil
	}
}

func fromCookie(name string) Extractor {
	return func(c router.Context) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return token, nil
	}
}
