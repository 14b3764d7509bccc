package authstate

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRecord is the application-level row tracking an identity's role
// assignments. Its ID is the platform identity id; the platform keeps its own
// account table which we never touch.
type UserRecord struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Roles         RoleSet    `bun:"roles,notnull" json:"roles,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// NewUserRecord builds the record inserted at bootstrap time.
func NewUserRecord(id uuid.UUID, email string, roles RoleSet) *UserRecord {
	now := time.Now()
	return &UserRecord{
		ID:        id,
		Email:     email,
		Roles:     roles.Clone(),
		CreatedAt: &now,
		UpdatedAt: &now,
	}
}

// recordIdentity adapts a UserRecord to the Identity interface.
type recordIdentity struct {
	record *UserRecord
}

// NewIdentityFromRecord returns an Identity adapter for the provided record.
func NewIdentityFromRecord(record *UserRecord) Identity {
	if record == nil {
		return nil
	}
	return recordIdentity{record: record}
}

func (r recordIdentity) ID() string {
	if r.record == nil {
		return ""
	}
	return r.record.ID.String()
}

func (r recordIdentity) Email() string {
	if r.record == nil {
		return ""
	}
	return r.record.Email
}

var _ Identity = recordIdentity{}
