package authstate

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Role is a string tag granting access to a subset of protected routes
type Role = string

const (
	// RoleAdmin is the universal-access role; it satisfies every check
	RoleAdmin Role = "admin"
	// RolePending is assigned to every non-first identity at bootstrap until
	// an admin hands out a real role
	RolePending Role = "pending"
)

// RoleSet is the materialized role list of the current user record. The zero
// value (nil) grants nothing.
type RoleSet []Role

// Has reports whether the set contains the exact role.
func (r RoleSet) Has(role Role) bool {
	for _, have := range r {
		if have == role {
			return true
		}
	}
	return false
}

// HasAny reports whether the set grants access for the required roles.
// An empty set never grants. The admin role grants everything. Callers must
// pass a non-empty required list for non-admin roles to ever grant access;
// HasAny() with no arguments is false even for a populated set.
func (r RoleSet) HasAny(required ...Role) bool {
	if len(r) == 0 {
		return false
	}
	if r.Has(RoleAdmin) {
		return true
	}
	for _, want := range required {
		if r.Has(want) {
			return true
		}
	}
	return false
}

// Clone returns an independent copy, nil for nil.
func (r RoleSet) Clone() RoleSet {
	if r == nil {
		return nil
	}
	out := make(RoleSet, len(r))
	copy(out, r)
	return out
}

// Value stores the set as a JSON array so the column round-trips the same way
// on sqlite and postgres.
func (r RoleSet) Value() (driver.Value, error) {
	if r == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]Role(r))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *RoleSet) Scan(src any) error {
	if src == nil {
		*r = nil
		return nil
	}

	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("roles: cannot scan %T", src)
	}

	if len(raw) == 0 {
		*r = nil
		return nil
	}

	var roles []Role
	if err := json.Unmarshal(raw, &roles); err != nil {
		return fmt.Errorf("roles: %w", err)
	}
	*r = roles
	return nil
}
