package user

import (
	"context"
	"strings"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// errors
var (
	ErrNilStore            = errors.New("user store is nil")
	ErrNilUserManager      = errors.New("user manager is nil")
	ErrZeroUserID          = errors.New("user id is zero")
	ErrZeroGroupID         = errors.New("group id is zero")
	ErrUserNotFound        = errors.New("user not found")
	ErrGroupNotFound       = errors.New("group not found")
	ErrUsernameTaken       = errors.New("username is taken")
	ErrGroupNameTaken      = errors.New("group name is taken")
	ErrReservedName        = errors.New("name is reserved for system use")
	ErrReservedGroup       = errors.New("reserved group cannot be changed")
	ErrReservedUser        = errors.New("reserved user cannot be changed")
	ErrAlreadyMember       = errors.New("user is already a member")
	ErrNotMember           = errors.New("user is not a member")
	ErrNothingChanged      = errors.New("nothing changed")
	ErrCacheMiss           = errors.New("cache miss")
	ErrMissingBootstrap    = errors.New("reserved records are missing, bootstrap required")
	ErrAlreadyBootstrapped = errors.New("reserved records already exist")
)

// Manager governs users, groups and their memberships
// NOTE: resolved users are cached as serialized snapshots; any
// mutation of a user or its memberships invalidates the snapshot
type Manager struct {
	store  Store
	cache  Cache
	logger *zap.Logger
}

// NewManager initializes a new user manager
// NOTE: cache is optional and can be nil
func NewManager(store Store, cache Cache) (*Manager, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	m := &Manager{
		store: store,
		cache: cache,
	}

	return m, nil
}

// SetLogger assigns a logger for this manager
func (m *Manager) SetLogger(logger *zap.Logger) error {
	if logger != nil {
		logger = logger.Named("[user]")
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

// Bootstrap creates the reserved everyone group and guest user
// NOTE: this is the only path allowed to claim reserved names and
// must be executed exactly once per store
func (m *Manager) Bootstrap(ctx context.Context) (g Group, guest User, err error) {
	if _, err = m.store.FetchGroupByName(ctx, EveryoneGroupName); err == nil {
		return g, guest, ErrAlreadyBootstrapped
	} else if err != ErrGroupNotFound {
		return g, guest, errors.Wrap(err, "failed to check for the reserved group")
	}

	g = NewGroup(EveryoneGroupName, "implicit group containing every user")
	if g, err = m.store.UpsertGroup(ctx, g); err != nil {
		return g, guest, errors.Wrap(err, "failed to create the reserved group")
	}

	guest = NewUser(GuestUsername, RGuest)
	if guest, err = m.store.UpsertUser(ctx, guest); err != nil {
		return g, guest, errors.Wrap(err, "failed to create the reserved guest user")
	}

	m.Logger().Info("bootstrap complete",
		zap.String("group_id", g.ID.String()),
		zap.String("guest_id", guest.ID.String()),
	)

	return g, guest, nil
}

// EveryoneGroup returns the reserved everyone group
func (m *Manager) EveryoneGroup(ctx context.Context) (Group, error) {
	g, err := m.store.FetchGroupByName(ctx, EveryoneGroupName)
	if err != nil {
		if err == ErrGroupNotFound {
			return g, ErrMissingBootstrap
		}

		return g, err
	}

	return g, nil
}

// CreateGroup creates a new regular group
func (m *Manager) CreateGroup(ctx context.Context, name, description string) (g Group, err error) {
	name = strings.TrimSpace(name)

	if IsReservedName(name) {
		return g, ErrReservedName
	}

	// checking whether the name is already taken
	if _, err = m.store.FetchGroupByName(ctx, name); err == nil {
		return g, ErrGroupNameTaken
	} else if err != ErrGroupNotFound {
		return g, err
	}

	g = NewGroup(name, description)
	if err = g.Validate(); err != nil {
		return g, err
	}

	if g, err = m.store.UpsertGroup(ctx, g); err != nil {
		return g, errors.Wrapf(err, "failed to create group: %s", name)
	}

	return g, nil
}

// DeleteGroup deletes a group, cascading the removal of every
// membership before the group record itself is deleted
func (m *Manager) DeleteGroup(ctx context.Context, groupID uuid.UUID) error {
	g, err := m.GroupByID(ctx, groupID)
	if err != nil {
		return err
	}

	if g.IsEveryone() {
		return ErrReservedGroup
	}

	// members must lose their cached membership snapshots
	memberIDs, err := m.store.FetchMemberIDs(ctx, g.ID)
	if err != nil {
		return errors.Wrapf(err, "failed to fetch member ids: group_id=%s", g.ID)
	}

	// the store deletes memberships and the group row in one transaction
	if err = m.store.DeleteGroupByID(ctx, g.ID); err != nil {
		return errors.Wrapf(err, "failed to delete group: %s", g.ID)
	}

	for _, uid := range memberIDs {
		m.evictUser(ctx, uid)
	}

	return nil
}

// GroupByID returns a group by its id
func (m *Manager) GroupByID(ctx context.Context, groupID uuid.UUID) (Group, error) {
	if groupID == uuid.Nil {
		return Group{}, ErrZeroGroupID
	}

	return m.store.FetchGroupByID(ctx, groupID)
}

// GroupByName returns a group by its exact name
func (m *Manager) GroupByName(ctx context.Context, name string) (Group, error) {
	return m.store.FetchGroupByName(ctx, strings.TrimSpace(name))
}

// CreateUser creates a new regular user
func (m *Manager) CreateUser(ctx context.Context, username string, role Role) (u User, err error) {
	username = strings.TrimSpace(username)

	if IsReservedName(username) {
		return u, ErrReservedName
	}

	if _, err = m.store.FetchUserByUsername(ctx, username); err == nil {
		return u, ErrUsernameTaken
	} else if err != ErrUserNotFound {
		return u, err
	}

	u = NewUser(username, role)
	if err = u.Validate(); err != nil {
		return u, err
	}

	if u, err = m.store.UpsertUser(ctx, u); err != nil {
		return u, errors.Wrapf(err, "failed to create user: %s", username)
	}

	return u, nil
}

// DeleteUser deletes a user along with its memberships
func (m *Manager) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	u, err := m.store.FetchUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if strings.EqualFold(u.Username, GuestUsername) {
		return ErrReservedUser
	}

	if err = m.store.DeleteUserByID(ctx, u.ID); err != nil {
		return errors.Wrapf(err, "failed to delete user: %s", u.ID)
	}

	m.evictUser(ctx, u.ID)

	return nil
}

// AddMember adds a user to a group
// NOTE: membership of the reserved group is implicit and cannot
// be granted explicitly
func (m *Manager) AddMember(ctx context.Context, groupID, userID uuid.UUID) error {
	g, err := m.GroupByID(ctx, groupID)
	if err != nil {
		return err
	}

	if g.IsEveryone() {
		return ErrReservedGroup
	}

	if _, err = m.store.FetchUserByID(ctx, userID); err != nil {
		return err
	}

	ok, err := m.store.HasMembership(ctx, g.ID, userID)
	if err != nil {
		return err
	}

	if ok {
		return ErrAlreadyMember
	}

	if err = m.store.CreateMembership(ctx, g.ID, userID); err != nil {
		return errors.Wrapf(err, "failed to create membership: group_id=%s, user_id=%s", g.ID, userID)
	}

	m.evictUser(ctx, userID)

	return nil
}

// RemoveMember removes a user from a group
func (m *Manager) RemoveMember(ctx context.Context, groupID, userID uuid.UUID) error {
	g, err := m.GroupByID(ctx, groupID)
	if err != nil {
		return err
	}

	if g.IsEveryone() {
		return ErrReservedGroup
	}

	ok, err := m.store.HasMembership(ctx, g.ID, userID)
	if err != nil {
		return err
	}

	if !ok {
		return ErrNotMember
	}

	if err = m.store.DeleteMembership(ctx, g.ID, userID); err != nil {
		return errors.Wrapf(err, "failed to delete membership: group_id=%s, user_id=%s", g.ID, userID)
	}

	m.evictUser(ctx, userID)

	return nil
}

// UserByID returns a user with resolved group memberships
// NOTE: the reserved everyone group is always appended to the
// resolved membership list
func (m *Manager) UserByID(ctx context.Context, userID uuid.UUID) (u User, err error) {
	if userID == uuid.Nil {
		return u, ErrZeroUserID
	}

	// checking the snapshot cache first
	if u, err = m.cachedUser(ctx, userID); err == nil {
		return u, nil
	}

	if u, err = m.store.FetchUserByID(ctx, userID); err != nil {
		return u, err
	}

	if u, err = m.resolveGroups(ctx, u); err != nil {
		return u, err
	}

	m.putCachedUser(ctx, u)

	return u, nil
}

// UserByUsername returns a user with resolved group memberships
func (m *Manager) UserByUsername(ctx context.Context, username string) (u User, err error) {
	if u, err = m.store.FetchUserByUsername(ctx, strings.TrimSpace(username)); err != nil {
		return u, err
	}

	return m.resolveGroups(ctx, u)
}

func (m *Manager) resolveGroups(ctx context.Context, u User) (User, error) {
	gs, err := m.store.FetchGroupsByUserID(ctx, u.ID)
	if err != nil {
		return u, errors.Wrapf(err, "failed to resolve memberships: user_id=%s", u.ID)
	}

	everyone, err := m.EveryoneGroup(ctx)
	if err != nil {
		return u, err
	}

	u.Groups = append(gs, everyone)

	return u, nil
}

//---------------------------------------------------------------------------
// snapshot cache
//---------------------------------------------------------------------------

func (m *Manager) cachedUser(ctx context.Context, userID uuid.UUID) (u User, err error) {
	if m.cache == nil {
		return u, ErrCacheMiss
	}

	entry, err := m.cache.Get(ctx, userID.String())
	if err != nil {
		return u, ErrCacheMiss
	}

	if err = jsoniter.Unmarshal(entry, &u); err != nil {
		// a corrupt snapshot is treated as a miss
		return u, ErrCacheMiss
	}

	return u, nil
}

func (m *Manager) putCachedUser(ctx context.Context, u User) {
	if m.cache == nil {
		return
	}

	entry, err := jsoniter.Marshal(u)
	if err != nil {
		m.Logger().Warn("failed to marshal user snapshot", zap.Error(err))
		return
	}

	if err = m.cache.Put(ctx, u.ID.String(), entry); err != nil {
		m.Logger().Warn("failed to cache user snapshot", zap.Error(err))
	}
}

func (m *Manager) evictUser(ctx context.Context, userID uuid.UUID) {
	if m.cache == nil {
		return
	}

	if err := m.cache.Delete(ctx, userID.String()); err != nil {
		m.Logger().Debug("failed to evict user snapshot", zap.Error(err))
	}
}
