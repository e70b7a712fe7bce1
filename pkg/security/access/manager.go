package access

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/resourcekeep/keep/pkg/resource"
	"github.com/resourcekeep/keep/pkg/user"
)

// errors
var (
	ErrNilRuleStore       = errors.New("rule store is nil")
	ErrNilUserManager     = errors.New("user manager is nil")
	ErrNilResourceManager = errors.New("resource manager is nil")
	ErrNilAccessManager   = errors.New("access manager is nil")
	ErrZeroResourceID     = errors.New("resource id is zero")
	ErrRuleNotFound       = errors.New("rule not found")
	ErrRulesNotResolved   = errors.New("caller rules are not resolved")
	ErrAccessDenied       = errors.New("access denied")
	ErrMalformedPrincipal = errors.New("principal must reference exactly one subject")
	ErrOrphanedGrant      = errors.New("grant carries no principal")
	ErrEveryoneRuleShape  = errors.New("everyone group rule must be read-only")
	ErrUnknownUser        = errors.New("rule references an unknown user")
	ErrUnknownGroup       = errors.New("rule references an unknown group")
)

// Manager is the authorization facade: it resolves callers against
// stored rules and guards every rule mutation
type Manager struct {
	store     Store
	resources *resource.Manager
	users     *user.Manager
	logger    *zap.Logger
}

// NewManager initializes a new access manager
func NewManager(store Store, resources *resource.Manager, users *user.Manager) (*Manager, error) {
	if store == nil {
		return nil, ErrNilRuleStore
	}

	if resources == nil {
		return nil, ErrNilResourceManager
	}

	if users == nil {
		return nil, ErrNilUserManager
	}

	return &Manager{
		store:     store,
		resources: resources,
		users:     users,
	}, nil
}

// SetLogger assigns a logger for this manager
func (m *Manager) SetLogger(logger *zap.Logger) error {
	if logger != nil {
		logger = logger.Named("[access]")
	}

	m.logger = logger

	return nil
}

// Logger returns the assigned logger, initializing a fallback if unset
func (m *Manager) Logger() *zap.Logger {
	if m.logger == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			panic(errors.Wrap(err, "failed to initialize fallback logger"))
		}

		m.logger = l
	}

	return m.logger
}

// resolveCaller loads the caller's own rules, producing an evaluable
// authorization snapshot
func (m *Manager) resolveCaller(ctx context.Context, u user.User) (Caller, error) {
	own, err := m.store.FetchRulesByUserID(ctx, u.ID)
	if err != nil {
		return Caller{}, errors.Wrap(err, "failed to fetch caller rules")
	}

	return Caller{User: u, Rules: own}, nil
}

// resourceAndRules loads a resource together with its rule set
// NOTE: a missing resource surfaces as not found before any
// access conclusion can be drawn about it
func (m *Manager) resourceAndRules(ctx context.Context, resourceID uuid.UUID) (resource.Resource, []Rule, error) {
	res, err := m.resources.ByID(ctx, resourceID)
	if err != nil {
		return res, nil, err
	}

	rules, err := m.store.FetchRulesByResourceID(ctx, resourceID)
	if err != nil {
		return res, nil, errors.Wrap(err, "failed to fetch resource rules")
	}

	return res, rules, nil
}

// CanUserRead reports whether a stored user may read a given resource
func (m *Manager) CanUserRead(ctx context.Context, u user.User, resourceID uuid.UUID) (bool, error) {
	res, rules, err := m.resourceAndRules(ctx, resourceID)
	if err != nil {
		return false, err
	}

	c, err := m.resolveCaller(ctx, u)
	if err != nil {
		return false, err
	}

	return CanRead(c, res, rules), nil
}

// CanUserWrite reports whether a stored user may write a given resource
func (m *Manager) CanUserWrite(ctx context.Context, u user.User, resourceID uuid.UUID) (bool, error) {
	res, rules, err := m.resourceAndRules(ctx, resourceID)
	if err != nil {
		return false, err
	}

	c, err := m.resolveCaller(ctx, u)
	if err != nil {
		return false, err
	}

	return CanWrite(c, res, rules), nil
}

// CanExternalRead reports whether an externally-authenticated caller,
// known only by username and provider-supplied group names, may read
// a given resource
func (m *Manager) CanExternalRead(ctx context.Context, username string, groupNames []string, resourceID uuid.UUID) (bool, error) {
	c, res, rules, err := m.resolveExternal(ctx, username, groupNames, resourceID)
	if err != nil {
		return false, err
	}

	return CanRead(c, res, rules), nil
}

// CanExternalWrite reports whether an externally-authenticated caller
// may write a given resource
func (m *Manager) CanExternalWrite(ctx context.Context, username string, groupNames []string, resourceID uuid.UUID) (bool, error) {
	c, res, rules, err := m.resolveExternal(ctx, username, groupNames, resourceID)
	if err != nil {
		return false, err
	}

	return CanWrite(c, res, rules), nil
}

func (m *Manager) resolveExternal(ctx context.Context, username string, groupNames []string, resourceID uuid.UUID) (Caller, resource.Resource, []Rule, error) {
	res, rules, err := m.resourceAndRules(ctx, resourceID)
	if err != nil {
		return Caller{}, res, nil, err
	}

	own, err := m.store.FetchRulesByUsername(ctx, username)
	if err != nil {
		return Caller{}, res, nil, errors.Wrap(err, "failed to fetch external caller rules")
	}

	// external callers hold a regular user role; they are neither
	// admins nor guests
	c := Caller{
		User:           user.User{Username: username, Role: user.RUser},
		Rules:          own,
		ExternalGroups: groupNames,
	}

	return c, res, rules, nil
}

// Rules returns the rule set of a given resource
// NOTE: reserved for admins and the resource owner; an owner must
// also hold plain read access
func (m *Manager) Rules(ctx context.Context, u user.User, resourceID uuid.UUID) ([]Rule, error) {
	res, rules, err := m.resourceAndRules(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	c, err := m.resolveCaller(ctx, u)
	if err != nil {
		return nil, err
	}

	if !u.IsAdmin() && !(IsOwner(c, res) && CanRead(c, res, rules)) {
		return nil, ErrAccessDenied
	}

	return rules, nil
}

// UpdateRules replaces the whole rule set of a given resource
// NOTE: the caller must hold write access and be either an admin or
// the resource owner; partial application never happens
func (m *Manager) UpdateRules(ctx context.Context, u user.User, resourceID uuid.UUID, rules []Rule) ([]Rule, error) {
	res, current, err := m.resourceAndRules(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	c, err := m.resolveCaller(ctx, u)
	if err != nil {
		return nil, err
	}

	if !u.IsAdmin() && !IsOwner(c, res) {
		return nil, ErrAccessDenied
	}

	if !CanWrite(c, res, current) {
		return nil, ErrAccessDenied
	}

	prepared, err := m.prepareRules(ctx, resourceID, rules)
	if err != nil {
		return nil, err
	}

	if err = m.store.ReplaceRulesByResourceID(ctx, resourceID, prepared); err != nil {
		return nil, errors.Wrap(err, "failed to replace resource rules")
	}

	m.Logger().Info("replaced resource rules",
		zap.String("resource_id", resourceID.String()),
		zap.Int("count", len(prepared)),
	)

	return prepared, nil
}

// prepareRules validates and canonicalizes an incoming rule set
// before it is persisted
func (m *Manager) prepareRules(ctx context.Context, resourceID uuid.UUID, rules []Rule) ([]Rule, error) {
	prepared := make([]Rule, 0, len(rules))
	for _, r := range rules {
		var err error

		// incoming rules are pinned to the resource being updated
		r.ResourceID = resourceID

		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}

		if err = r.Validate(); err != nil {
			return nil, err
		}

		switch r.Principal.Kind {
		case PKUser:
			if _, err = m.users.UserByID(ctx, r.Principal.ID); err != nil {
				if errors.Cause(err) == user.ErrUserNotFound {
					return nil, ErrUnknownUser
				}

				return nil, err
			}
		case PKGroup:
			g, xerr := m.users.GroupByID(ctx, r.Principal.ID)
			if xerr != nil {
				if errors.Cause(xerr) == user.ErrGroupNotFound {
					return nil, ErrUnknownGroup
				}

				return nil, xerr
			}

			// a rule on the everyone group is only ever read-only;
			// anything else would hand write access to the world
			if g.IsEveryone() && (!r.CanRead || r.CanWrite) {
				return nil, ErrEveryoneRuleShape
			}
		}

		prepared = append(prepared, r)
	}

	return prepared, nil
}
