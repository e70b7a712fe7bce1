package access

import (
	"context"

	"github.com/gocraft/dbr/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// storage errors
var (
	ErrNilDatabase = errors.New("database is nil")
)

// Store describes a storage contract for security rules
// NOTE: rule sets are only ever replaced wholesale per resource
type Store interface {
	ReplaceRulesByResourceID(ctx context.Context, resourceID uuid.UUID, rules []Rule) error
	FetchRulesByResourceID(ctx context.Context, resourceID uuid.UUID) ([]Rule, error)
	FetchRulesByResourceIDs(ctx context.Context, resourceIDs []uuid.UUID) (map[uuid.UUID][]Rule, error)
	FetchRulesByUserID(ctx context.Context, userID uuid.UUID) ([]Rule, error)
	FetchRulesByUsername(ctx context.Context, username string) ([]Rule, error)
	DeleteRulesByResourceID(ctx context.Context, resourceID uuid.UUID) error
}

// ruleRecord is the flat database image of a rule; the principal
// union is spread over nullable-ish columns and its kind is derived
// back on read
type ruleRecord struct {
	ID         uuid.UUID `db:"id"`
	ResourceID uuid.UUID `db:"resource_id"`
	UserID     uuid.UUID `db:"user_id"`
	GroupID    uuid.UUID `db:"group_id"`
	Username   string    `db:"username"`
	GroupName  string    `db:"group_name"`
	CanRead    bool      `db:"can_read"`
	CanWrite   bool      `db:"can_write"`
}

func newRuleRecord(r Rule) ruleRecord {
	rec := ruleRecord{
		ID:         r.ID,
		ResourceID: r.ResourceID,
		CanRead:    r.CanRead,
		CanWrite:   r.CanWrite,
	}

	switch r.Principal.Kind {
	case PKUser:
		rec.UserID = r.Principal.ID
	case PKGroup:
		rec.GroupID = r.Principal.ID
	case PKExternalUser:
		rec.Username = r.Principal.Name
	case PKExternalGroup:
		rec.GroupName = r.Principal.Name
	}

	return rec
}

func (rec ruleRecord) toRule() Rule {
	r := Rule{
		ID:         rec.ID,
		ResourceID: rec.ResourceID,
		CanRead:    rec.CanRead,
		CanWrite:   rec.CanWrite,
	}

	// exactly one subject column is ever set; none at all means a
	// protective rule
	switch {
	case rec.UserID != uuid.Nil:
		r.Principal = UserPrincipal(rec.UserID)
	case rec.GroupID != uuid.Nil:
		r.Principal = GroupPrincipal(rec.GroupID)
	case rec.Username != "":
		r.Principal = ExternalUserPrincipal(rec.Username)
	case rec.GroupName != "":
		r.Principal = ExternalGroupPrincipal(rec.GroupName)
	default:
		r.Principal = NoPrincipal()
	}

	return r
}

// MySQLStore is the default rule store implementation
type MySQLStore struct {
	db *dbr.Connection
}

// NewMySQLStore returns a rule store with mysql used as a backend
func NewMySQLStore(db *dbr.Connection) (Store, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}

	return &MySQLStore{db}, nil
}

func (s *MySQLStore) getMany(ctx context.Context, q string, args ...interface{}) ([]Rule, error) {
	recs := make([]ruleRecord, 0)
	if _, err := s.db.NewSession(nil).SelectBySql(q, args...).LoadContext(ctx, &recs); err != nil {
		return nil, err
	}

	rules := make([]Rule, 0, len(recs))
	for _, rec := range recs {
		rules = append(rules, rec.toRule())
	}

	return rules, nil
}

// ReplaceRulesByResourceID atomically swaps the whole rule set of a
// given resource
func (s *MySQLStore) ReplaceRulesByResourceID(ctx context.Context, resourceID uuid.UUID, rules []Rule) error {
	tx, err := s.db.NewSession(nil).Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.RollbackUnlessCommitted()

	if _, err = tx.DeleteFrom("security_rule").
		Where("resource_id = ?", resourceID).
		ExecContext(ctx); err != nil {
		return err
	}

	for _, r := range rules {
		rec := newRuleRecord(r)

		if _, err = tx.InsertInto("security_rule").
			Columns("id", "resource_id", "user_id", "group_id", "username", "group_name", "can_read", "can_write").
			Record(&rec).
			ExecContext(ctx); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *MySQLStore) FetchRulesByResourceID(ctx context.Context, resourceID uuid.UUID) ([]Rule, error) {
	return s.getMany(ctx, "SELECT * FROM `security_rule` WHERE resource_id = ?", resourceID)
}

func (s *MySQLStore) FetchRulesByResourceIDs(ctx context.Context, resourceIDs []uuid.UUID) (map[uuid.UUID][]Rule, error) {
	buckets := make(map[uuid.UUID][]Rule, len(resourceIDs))
	if len(resourceIDs) == 0 {
		return buckets, nil
	}

	rules, err := s.getMany(ctx, "SELECT * FROM `security_rule` WHERE resource_id IN ?", resourceIDs)
	if err != nil {
		return nil, err
	}

	for _, r := range rules {
		buckets[r.ResourceID] = append(buckets[r.ResourceID], r)
	}

	return buckets, nil
}

func (s *MySQLStore) FetchRulesByUserID(ctx context.Context, userID uuid.UUID) ([]Rule, error) {
	return s.getMany(ctx, "SELECT * FROM `security_rule` WHERE user_id = ?", userID)
}

func (s *MySQLStore) FetchRulesByUsername(ctx context.Context, username string) ([]Rule, error) {
	return s.getMany(ctx, "SELECT * FROM `security_rule` WHERE username = ?", username)
}

// DeleteRulesByResourceID removes the whole rule set of a resource
func (s *MySQLStore) DeleteRulesByResourceID(ctx context.Context, resourceID uuid.UUID) error {
	_, err := s.db.NewSession(nil).
		DeleteFrom("security_rule").
		Where("resource_id = ?", resourceID).
		ExecContext(ctx)

	return err
}
