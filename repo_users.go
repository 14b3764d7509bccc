package authstate

import (
	"context"
	"database/sql"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the user-record store: one row per platform identity, holding its
// role assignments.
type Users interface {
	repository.Repository[*UserRecord]

	GetRecord(ctx context.Context, id uuid.UUID) (*UserRecord, error)
	GetRecordTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*UserRecord, error)

	CountRecords(ctx context.Context) (int, error)
	CountRecordsTx(ctx context.Context, tx bun.IDB) (int, error)

	UpdateRoles(ctx context.Context, id uuid.UUID, roles RoleSet) (*UserRecord, error)
	UpdateRolesTx(ctx context.Context, tx bun.IDB, id uuid.UUID, roles RoleSet) (*UserRecord, error)

	// Bootstrap is the atomic get-or-create run on first sign in: select by
	// id; on not-found, count the table and insert with the admin role for an
	// empty store, the pending role otherwise. The bool reports whether a
	// record was created.
	Bootstrap(ctx context.Context, id uuid.UUID, email string) (*UserRecord, bool, error)
	BootstrapTx(ctx context.Context, tx bun.IDB, id uuid.UUID, email string) (*UserRecord, bool, error)
}

type users struct {
	repository.Repository[*UserRecord]
	db *bun.DB
}

var (
	_ Users                              = (*users)(nil)
	_ repository.Repository[*UserRecord] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*UserRecord](db, repository.ModelHandlers[*UserRecord]{
		NewRecord: func() *UserRecord { return &UserRecord{} },
		GetID: func(u *UserRecord) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *UserRecord, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) GetRecord(ctx context.Context, id uuid.UUID) (*UserRecord, error) {
	return a.GetRecordTx(ctx, a.db, id)
}

func (a *users) GetRecordTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*UserRecord, error) {
	record := &UserRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id.String()).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if goerrors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
			return nil, ErrRecordNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to select user record")
	}

	return record, nil
}

func (a *users) CountRecords(ctx context.Context) (int, error) {
	return a.CountRecordsTx(ctx, a.db)
}

func (a *users) CountRecordsTx(ctx context.Context, tx bun.IDB) (int, error) {
	count, err := tx.NewSelect().
		Model((*UserRecord)(nil)).
		Count(ctx)

	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to count user records")
	}

	return count, nil
}

func (a *users) UpdateRoles(ctx context.Context, id uuid.UUID, roles RoleSet) (*UserRecord, error) {
	return a.UpdateRolesTx(ctx, a.db, id, roles)
}

func (a *users) UpdateRolesTx(ctx context.Context, tx bun.IDB, id uuid.UUID, roles RoleSet) (*UserRecord, error) {
	record, err := a.GetRecordTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	record.Roles = roles.Clone()
	record.UpdatedAt = &now

	_, err = tx.NewUpdate().
		Model(record).
		Column("roles", "updated_at").
		WherePK().
		Exec(ctx)

	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user roles")
	}

	return record, nil
}

func (a *users) Bootstrap(ctx context.Context, id uuid.UUID, email string) (*UserRecord, bool, error) {
	var record *UserRecord
	var created bool

	err := a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var txErr error
		record, created, txErr = a.BootstrapTx(ctx, tx, id, email)
		return txErr
	})

	if err != nil {
		return nil, false, err
	}

	return record, created, nil
}

func (a *users) BootstrapTx(ctx context.Context, tx bun.IDB, id uuid.UUID, email string) (*UserRecord, bool, error) {
	existing, err := a.GetRecordTx(ctx, tx, id)
	if err == nil {
		return existing, false, nil
	}

	if !IsRecordNotFound(err) {
		return nil, false, goerrors.Wrap(err, ErrBootstrap.Category, ErrBootstrap.Message)
	}

	total, err := a.CountRecordsTx(ctx, tx)
	if err != nil {
		return nil, false, goerrors.Wrap(err, ErrBootstrap.Category, ErrBootstrap.Message)
	}

	roles := RoleSet{RolePending}
	if total == 0 {
		roles = RoleSet{RoleAdmin}
	}

	record := NewUserRecord(id, email, roles)
	if record, err = a.CreateTx(ctx, tx, record); err != nil {
		return nil, false, goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user record")
	}

	return record, true, nil
}
