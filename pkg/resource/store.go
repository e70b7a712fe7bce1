package resource

import (
	"context"
	"database/sql"
	"io"

	"github.com/go-sql-driver/mysql"
	"github.com/gocraft/dbr/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// storage errors
var (
	ErrNilDatabase   = errors.New("database is nil")
	ErrDuplicateName = errors.New("duplicate resource name")
)

// Store describes a storage contract for resources
type Store interface {
	CreateResource(ctx context.Context, r Resource) (Resource, error)
	UpdateResource(ctx context.Context, r Resource) (Resource, error)
	FetchResourceByID(ctx context.Context, resourceID uuid.UUID) (Resource, error)
	FetchResourceByName(ctx context.Context, name string) (Resource, error)
	FetchAllResources(ctx context.Context) ([]Resource, error)
	FetchNamesByPrefix(ctx context.Context, prefix string) ([]string, error)
	DeleteResourceByID(ctx context.Context, resourceID uuid.UUID) error
}

// MySQLStore is the default resource store implementation
type MySQLStore struct {
	db *dbr.Connection
}

// NewMySQLStore returns a resource store with mysql used as a backend
func NewMySQLStore(db *dbr.Connection) (Store, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}

	return &MySQLStore{db}, nil
}

func (s *MySQLStore) get(ctx context.Context, q string, args ...interface{}) (r Resource, err error) {
	err = s.db.NewSession(nil).
		SelectBySql(q, args...).
		LoadOneContext(ctx, &r)

	if err != nil {
		if err == dbr.ErrNotFound {
			return r, ErrResourceNotFound
		}

		return r, err
	}

	return r, nil
}

func (s *MySQLStore) getMany(ctx context.Context, q string, args ...interface{}) (rs []Resource, err error) {
	if _, err = s.db.NewSession(nil).SelectBySql(q, args...).LoadContext(ctx, &rs); err != nil {
		return nil, err
	}

	return rs, nil
}

// CreateResource creates a new database record
func (s *MySQLStore) CreateResource(ctx context.Context, r Resource) (Resource, error) {
	_, err := s.db.NewSession(nil).
		InsertInto("resource").
		Columns("id", "name", "description", "is_advertised", "creator", "editor", "created_at", "updated_at").
		Record(&r).
		ExecContext(ctx)

	if err != nil {
		if merr, ok := err.(*mysql.MySQLError); ok && merr.Number == 1062 {
			return r, ErrDuplicateName
		}

		return r, err
	}

	return r, nil
}

// UpdateResource updates an existing record
func (s *MySQLStore) UpdateResource(ctx context.Context, r Resource) (Resource, error) {
	if r.ID == uuid.Nil {
		return r, ErrZeroResourceID
	}

	updates := map[string]interface{}{
		"name":          r.Name,
		"description":   r.Description,
		"is_advertised": r.IsAdvertised,
		"editor":        r.Editor,
		"updated_at":    r.UpdatedAt,
	}

	res, err := s.db.NewSession(nil).
		Update("resource").
		SetMap(updates).
		Where("id = ?", r.ID).
		ExecContext(ctx)
	if err != nil {
		return r, err
	}

	ra, err := res.RowsAffected()
	if err != nil {
		return r, err
	}

	// if no rows were affected then returning this as a non-critical error
	if ra == 0 {
		return r, ErrNothingChanged
	}

	return r, nil
}

func (s *MySQLStore) FetchResourceByID(ctx context.Context, resourceID uuid.UUID) (Resource, error) {
	return s.get(ctx, "SELECT * FROM `resource` WHERE id = ? LIMIT 1", resourceID)
}

func (s *MySQLStore) FetchResourceByName(ctx context.Context, name string) (Resource, error) {
	return s.get(ctx, "SELECT * FROM `resource` WHERE name = ? LIMIT 1", name)
}

func (s *MySQLStore) FetchAllResources(ctx context.Context) ([]Resource, error) {
	return s.getMany(ctx, "SELECT * FROM `resource`")
}

// FetchNamesByPrefix retrieves resource names sharing a given prefix,
// used by the name collision resolver
func (s *MySQLStore) FetchNamesByPrefix(ctx context.Context, prefix string) (names []string, err error) {
	rows, err := s.db.NewSession(nil).
		QueryContext(ctx, "SELECT name FROM `resource` WHERE name LIKE ?", escapeLike(prefix)+"%")
	if err != nil {
		if err == sql.ErrNoRows {
			return names, nil
		}

		return nil, err
	}

	defer func(c io.Closer) {
		if xerr := c.Close(); xerr != nil {
			err = xerr
		}
	}(rows)

	names = make([]string, 0)
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return nil, err
		}

		names = append(names, name)
	}

	return names, nil
}

// DeleteResourceByID removes a record by resource id
func (s *MySQLStore) DeleteResourceByID(ctx context.Context, resourceID uuid.UUID) error {
	_, err := s.db.NewSession(nil).
		DeleteFrom("resource").
		Where("id = ?", resourceID).
		ExecContext(ctx)

	return err
}

// escapeLike escapes LIKE wildcards inside a literal prefix
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}

		out = append(out, s[i])
	}

	return string(out)
}
