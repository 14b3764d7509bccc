package authstate

// State is the derived auth state exposed to consumers. It is a value
// snapshot; mutating a copy has no effect on the Manager.
type State struct {
	// Session is the mirrored platform session, nil when signed out
	Session *SessionObject
	// User is the identity carried by the session, nil when signed out
	User Identity
	// Roles is the resolved role set, empty until resolution completes
	Roles RoleSet
	// Loading is true only between process start (or a session change) and
	// the completion of role resolution. While true, no access decision is
	// available.
	Loading bool
}

// Authenticated reports whether both a session and its identity are present.
func (s State) Authenticated() bool {
	return s.Session != nil && s.User != nil
}

// UserID returns the signed-in identity id, empty when signed out.
func (s State) UserID() string {
	if s.User == nil {
		return ""
	}
	return s.User.ID()
}

func (s State) clone() State {
	return State{
		Session: s.Session.Clone(),
		User:    s.User,
		Roles:   s.Roles.Clone(),
		Loading: s.Loading,
	}
}
