package user

import (
	"context"
	"database/sql"
	"io"

	"github.com/go-sql-driver/mysql"
	"github.com/gocraft/dbr/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// errors specific to storage backends
var (
	ErrNilDatabase     = errors.New("database is nil")
	ErrDuplicateRecord = errors.New("duplicate record")
)

// Store describes a storage contract for users, groups
// and their memberships
type Store interface {
	UpsertUser(ctx context.Context, u User) (User, error)
	FetchUserByID(ctx context.Context, userID uuid.UUID) (User, error)
	FetchUserByUsername(ctx context.Context, username string) (User, error)
	DeleteUserByID(ctx context.Context, userID uuid.UUID) error

	UpsertGroup(ctx context.Context, g Group) (Group, error)
	FetchGroupByID(ctx context.Context, groupID uuid.UUID) (Group, error)
	FetchGroupByName(ctx context.Context, name string) (Group, error)
	FetchAllGroups(ctx context.Context) ([]Group, error)
	DeleteGroupByID(ctx context.Context, groupID uuid.UUID) error

	CreateMembership(ctx context.Context, groupID, userID uuid.UUID) error
	DeleteMembership(ctx context.Context, groupID, userID uuid.UUID) error
	HasMembership(ctx context.Context, groupID, userID uuid.UUID) (bool, error)
	FetchGroupsByUserID(ctx context.Context, userID uuid.UUID) ([]Group, error)
	FetchMemberIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error)
}

// MySQLStore is the default store implementation
type MySQLStore struct {
	db *dbr.Connection
}

// NewMySQLStore returns a user store with mysql used as a backend
func NewMySQLStore(db *dbr.Connection) (Store, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}

	return &MySQLStore{db}, nil
}

//? BEGIN ->>>----------------------------------------------------------------
//? unexported utility functions

func (s *MySQLStore) getUser(ctx context.Context, q string, args ...interface{}) (u User, err error) {
	err = s.db.NewSession(nil).
		SelectBySql(q, args...).
		LoadOneContext(ctx, &u)

	if err != nil {
		if err == dbr.ErrNotFound {
			return u, ErrUserNotFound
		}

		return u, err
	}

	return u, nil
}

func (s *MySQLStore) getGroup(ctx context.Context, q string, args ...interface{}) (g Group, err error) {
	err = s.db.NewSession(nil).
		SelectBySql(q, args...).
		LoadOneContext(ctx, &g)

	if err != nil {
		if err == dbr.ErrNotFound {
			return g, ErrGroupNotFound
		}

		return g, err
	}

	return g, nil
}

func (s *MySQLStore) getGroups(ctx context.Context, q string, args ...interface{}) (gs []Group, err error) {
	if _, err = s.db.NewSession(nil).SelectBySql(q, args...).LoadContext(ctx, &gs); err != nil {
		return nil, err
	}

	return gs, nil
}

func asDuplicate(err error) error {
	if merr, ok := err.(*mysql.MySQLError); ok && merr.Number == 1062 {
		return ErrDuplicateRecord
	}

	return err
}

//? unexported utility functions
//? END ---<<<----------------------------------------------------------------

// UpsertUser stores a user record
func (s *MySQLStore) UpsertUser(ctx context.Context, u User) (User, error) {
	_, err := s.db.NewSession(nil).
		InsertInto("user").
		Columns("id", "username", "role", "is_enabled", "created_at", "updated_at").
		Record(&u).
		ExecContext(ctx)

	if err != nil {
		return u, asDuplicate(err)
	}

	return u, nil
}

func (s *MySQLStore) FetchUserByID(ctx context.Context, userID uuid.UUID) (User, error) {
	return s.getUser(ctx, "SELECT * FROM `user` WHERE id = ? LIMIT 1", userID)
}

func (s *MySQLStore) FetchUserByUsername(ctx context.Context, username string) (User, error) {
	return s.getUser(ctx, "SELECT * FROM `user` WHERE username = ? LIMIT 1", username)
}

// DeleteUserByID deletes a user along with its memberships
func (s *MySQLStore) DeleteUserByID(ctx context.Context, userID uuid.UUID) (err error) {
	sess := s.db.NewSession(nil)

	tx, err := sess.Begin()
	if err != nil {
		return err
	}
	defer tx.RollbackUnlessCommitted()

	if _, err = tx.DeleteFrom("group_users").Where("user_id = ?", userID).ExecContext(ctx); err != nil {
		return err
	}

	if _, err = tx.DeleteFrom("user").Where("id = ?", userID).ExecContext(ctx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit user deletion")
	}

	return nil
}

// UpsertGroup stores a group record
func (s *MySQLStore) UpsertGroup(ctx context.Context, g Group) (Group, error) {
	_, err := s.db.NewSession(nil).
		InsertInto("group").
		Columns("id", "name", "description", "is_enabled", "created_at", "updated_at").
		Record(&g).
		ExecContext(ctx)

	if err != nil {
		return g, asDuplicate(err)
	}

	return g, nil
}

func (s *MySQLStore) FetchGroupByID(ctx context.Context, groupID uuid.UUID) (Group, error) {
	return s.getGroup(ctx, "SELECT * FROM `group` WHERE id = ? LIMIT 1", groupID)
}

func (s *MySQLStore) FetchGroupByName(ctx context.Context, name string) (Group, error) {
	return s.getGroup(ctx, "SELECT * FROM `group` WHERE name = ? LIMIT 1", name)
}

func (s *MySQLStore) FetchAllGroups(ctx context.Context) ([]Group, error) {
	return s.getGroups(ctx, "SELECT * FROM `group`")
}

// DeleteGroupByID deletes a group and all of its memberships
// in a single transaction, so no dangling membership can survive
func (s *MySQLStore) DeleteGroupByID(ctx context.Context, groupID uuid.UUID) (err error) {
	sess := s.db.NewSession(nil)

	tx, err := sess.Begin()
	if err != nil {
		return err
	}
	defer tx.RollbackUnlessCommitted()

	// memberships first, then the group row
	if _, err = tx.DeleteFrom("group_users").Where("group_id = ?", groupID).ExecContext(ctx); err != nil {
		return err
	}

	if _, err = tx.DeleteFrom("group").Where("id = ?", groupID).ExecContext(ctx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit group deletion")
	}

	return nil
}

// CreateMembership stores a relation flagging that a user belongs to a group
func (s *MySQLStore) CreateMembership(ctx context.Context, groupID, userID uuid.UUID) error {
	_, err := s.db.ExecContext(
		ctx,
		"INSERT IGNORE INTO `group_users`(group_id, user_id) VALUES(?, ?)",
		groupID,
		userID,
	)

	return err
}

// DeleteMembership deletes a group-user relation
func (s *MySQLStore) DeleteMembership(ctx context.Context, groupID, userID uuid.UUID) error {
	res, err := s.db.ExecContext(
		ctx,
		"DELETE FROM `group_users` WHERE group_id = ? AND user_id = ? LIMIT 1",
		groupID,
		userID,
	)
	if err != nil {
		return err
	}

	ra, err := res.RowsAffected()
	if err != nil {
		return err
	}

	// if no rows were affected then returning this as a non-critical error
	if ra == 0 {
		return ErrNothingChanged
	}

	return nil
}

// HasMembership checks whether a group-user relation exists
func (s *MySQLStore) HasMembership(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	var n int

	err := s.db.NewSession(nil).
		SelectBySql("SELECT COUNT(*) FROM `group_users` WHERE group_id = ? AND user_id = ?", groupID, userID).
		LoadOneContext(ctx, &n)

	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// FetchGroupsByUserID retrieves all groups a user is an explicit member of
func (s *MySQLStore) FetchGroupsByUserID(ctx context.Context, userID uuid.UUID) ([]Group, error) {
	return s.getGroups(
		ctx,
		"SELECT g.* FROM `group` g INNER JOIN `group_users` gu ON gu.group_id = g.id WHERE gu.user_id = ?",
		userID,
	)
}

// FetchMemberIDs retrieves the ids of all explicit members of a group
func (s *MySQLStore) FetchMemberIDs(ctx context.Context, groupID uuid.UUID) (ids []uuid.UUID, err error) {
	rows, err := s.db.NewSession(nil).
		QueryContext(ctx, "SELECT user_id FROM `group_users` WHERE group_id = ?", groupID)
	if err != nil {
		if err == sql.ErrNoRows {
			return ids, nil
		}

		return nil, err
	}

	defer func(c io.Closer) {
		if xerr := c.Close(); xerr != nil {
			err = xerr
		}
	}(rows)

	ids = make([]uuid.UUID, 0)
	for rows.Next() {
		var userID uuid.UUID
		if err = rows.Scan(&userID); err != nil {
			return nil, err
		}

		ids = append(ids, userID)
	}

	return ids, nil
}
