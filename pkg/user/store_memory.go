package user

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// memoryStore is an in-memory store implementation, used for
// tests and for the bootstrap dry runs
type memoryStore struct {
	users       map[uuid.UUID]User
	usernameMap map[string]uuid.UUID
	groups      map[uuid.UUID]Group
	nameMap     map[string]uuid.UUID

	// group id -> set of member user ids
	memberships map[uuid.UUID]map[uuid.UUID]struct{}

	sync.RWMutex
}

// NewMemoryStore returns an initialized in-memory user store
func NewMemoryStore() Store {
	return &memoryStore{
		users:       make(map[uuid.UUID]User),
		usernameMap: make(map[string]uuid.UUID),
		groups:      make(map[uuid.UUID]Group),
		nameMap:     make(map[string]uuid.UUID),
		memberships: make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

func normName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (s *memoryStore) UpsertUser(ctx context.Context, u User) (User, error) {
	s.Lock()
	s.users[u.ID] = u
	s.usernameMap[normName(u.Username)] = u.ID
	s.Unlock()

	return u, nil
}

func (s *memoryStore) FetchUserByID(ctx context.Context, userID uuid.UUID) (User, error) {
	s.RLock()
	u, ok := s.users[userID]
	s.RUnlock()

	if !ok {
		return u, ErrUserNotFound
	}

	return u, nil
}

func (s *memoryStore) FetchUserByUsername(ctx context.Context, username string) (User, error) {
	s.RLock()
	u, ok := s.users[s.usernameMap[normName(username)]]
	s.RUnlock()

	if !ok {
		return u, ErrUserNotFound
	}

	return u, nil
}

func (s *memoryStore) DeleteUserByID(ctx context.Context, userID uuid.UUID) error {
	s.Lock()
	if u, ok := s.users[userID]; ok {
		delete(s.usernameMap, normName(u.Username))
		delete(s.users, userID)
	}

	for gid := range s.memberships {
		delete(s.memberships[gid], userID)
	}
	s.Unlock()

	return nil
}

func (s *memoryStore) UpsertGroup(ctx context.Context, g Group) (Group, error) {
	s.Lock()
	s.groups[g.ID] = g
	s.nameMap[normName(g.Name)] = g.ID
	s.Unlock()

	return g, nil
}

func (s *memoryStore) FetchGroupByID(ctx context.Context, groupID uuid.UUID) (Group, error) {
	s.RLock()
	g, ok := s.groups[groupID]
	s.RUnlock()

	if !ok {
		return g, ErrGroupNotFound
	}

	return g, nil
}

func (s *memoryStore) FetchGroupByName(ctx context.Context, name string) (Group, error) {
	s.RLock()
	g, ok := s.groups[s.nameMap[normName(name)]]
	s.RUnlock()

	if !ok {
		return g, ErrGroupNotFound
	}

	return g, nil
}

func (s *memoryStore) FetchAllGroups(ctx context.Context) ([]Group, error) {
	s.RLock()
	gs := make([]Group, 0, len(s.groups))
	for _, g := range s.groups {
		gs = append(gs, g)
	}
	s.RUnlock()

	return gs, nil
}

func (s *memoryStore) DeleteGroupByID(ctx context.Context, groupID uuid.UUID) error {
	s.Lock()
	if g, ok := s.groups[groupID]; ok {
		delete(s.nameMap, normName(g.Name))
		delete(s.groups, groupID)
	}

	// memberships go down with the group
	delete(s.memberships, groupID)
	s.Unlock()

	return nil
}

func (s *memoryStore) CreateMembership(ctx context.Context, groupID, userID uuid.UUID) error {
	s.Lock()
	if s.memberships[groupID] == nil {
		s.memberships[groupID] = make(map[uuid.UUID]struct{})
	}

	s.memberships[groupID][userID] = struct{}{}
	s.Unlock()

	return nil
}

func (s *memoryStore) DeleteMembership(ctx context.Context, groupID, userID uuid.UUID) error {
	s.Lock()
	_, ok := s.memberships[groupID][userID]
	delete(s.memberships[groupID], userID)
	s.Unlock()

	if !ok {
		return ErrNothingChanged
	}

	return nil
}

func (s *memoryStore) HasMembership(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	s.RLock()
	_, ok := s.memberships[groupID][userID]
	s.RUnlock()

	return ok, nil
}

func (s *memoryStore) FetchGroupsByUserID(ctx context.Context, userID uuid.UUID) ([]Group, error) {
	gs := make([]Group, 0)

	s.RLock()
	for gid, members := range s.memberships {
		if _, ok := members[userID]; ok {
			if g, found := s.groups[gid]; found {
				gs = append(gs, g)
			}
		}
	}
	s.RUnlock()

	return gs, nil
}

func (s *memoryStore) FetchMemberIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0)

	s.RLock()
	for uid := range s.memberships[groupID] {
		ids = append(ids, uid)
	}
	s.RUnlock()

	return ids, nil
}
