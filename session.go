package authstate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// SessionObject is the read-only mirror of a platform session. It is created
// by the SessionStore on sign in, replaced on token refresh, and destroyed on
// sign out; nothing in this package mutates one after publication.
type SessionObject struct {
	UserID       string         `json:"user_id,omitempty"`
	Email        string         `json:"email,omitempty"`
	AccessToken  string         `json:"access_token,omitempty"`
	RefreshToken string         `json:"refresh_token,omitempty"`
	IssuedAt     *time.Time     `json:"issued_at,omitempty"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

func (s *SessionObject) GetUserID() string {
	return s.UserID
}

func (s *SessionObject) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(s.UserID)
}

// Expired reports whether the session's access token is past its expiry at
// the given instant. Sessions without an expiry never expire locally.
func (s *SessionObject) Expired(at time.Time) bool {
	if s == nil || s.ExpiresAt == nil {
		return false
	}
	return at.After(*s.ExpiresAt)
}

// Identity returns the identity carried by the session.
func (s *SessionObject) Identity() Identity {
	if s == nil {
		return nil
	}
	return sessionIdentity{session: s}
}

// Clone returns a shallow copy safe to hand to consumers.
func (s *SessionObject) Clone() *SessionObject {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}

func (s SessionObject) String() string {
	issuedAt := "<nil>"
	if s.IssuedAt != nil {
		issuedAt = s.IssuedAt.Format(time.RFC1123)
	}
	return fmt.Sprintf("user=%s email=%s iat=%s", s.UserID, s.Email, issuedAt)
}

// SessionFromClaims builds a SessionObject from validated access-token
// claims. The raw token is attached by the caller.
func SessionFromClaims(claims jwt.MapClaims) (*SessionObject, error) {
	if claims == nil {
		return nil, goerrors.New("session claims are empty", goerrors.CategoryBadInput)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, goerrors.New("session claims carry no subject", goerrors.CategoryBadInput)
	}

	session := &SessionObject{UserID: sub}

	if email, ok := claims["email"].(string); ok {
		session.Email = email
	}

	session.IssuedAt = claimTime(claims, "iat")
	session.ExpiresAt = claimTime(claims, "exp")

	return session, nil
}

// claimTime reads a timestamp claim. Decoded tokens carry numeric values,
// claims built in-process may carry *jwt.NumericDate; both are accepted.
func claimTime(claims jwt.MapClaims, key string) *time.Time {
	switch v := claims[key].(type) {
	case *jwt.NumericDate:
		if v == nil {
			return nil
		}
		t := v.Time
		return &t
	case float64:
		t := time.Unix(int64(v), 0)
		return &t
	case json.Number:
		secs, err := v.Int64()
		if err != nil {
			return nil
		}
		t := time.Unix(secs, 0)
		return &t
	case int64:
		t := time.Unix(v, 0)
		return &t
	}
	return nil
}

type sessionIdentity struct {
	session *SessionObject
}

func (s sessionIdentity) ID() string {
	if s.session == nil {
		return ""
	}
	return s.session.UserID
}

func (s sessionIdentity) Email() string {
	if s.session == nil {
		return ""
	}
	return s.session.Email
}

var _ Identity = sessionIdentity{}
