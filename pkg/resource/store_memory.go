package resource

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// memoryStore is an in-memory resource store implementation
type memoryStore struct {
	resources map[uuid.UUID]Resource
	nameMap   map[string]uuid.UUID

	sync.RWMutex
}

// NewMemoryStore returns an initialized in-memory resource store
func NewMemoryStore() Store {
	return &memoryStore{
		resources: make(map[uuid.UUID]Resource),
		nameMap:   make(map[string]uuid.UUID),
	}
}

func normKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (s *memoryStore) CreateResource(ctx context.Context, r Resource) (Resource, error) {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.nameMap[normKey(r.Name)]; ok {
		return r, ErrDuplicateName
	}

	s.resources[r.ID] = r
	s.nameMap[normKey(r.Name)] = r.ID

	return r, nil
}

func (s *memoryStore) UpdateResource(ctx context.Context, r Resource) (Resource, error) {
	s.Lock()
	defer s.Unlock()

	current, ok := s.resources[r.ID]
	if !ok {
		return r, ErrResourceNotFound
	}

	// keeping the name index consistent across renames
	if normKey(current.Name) != normKey(r.Name) {
		delete(s.nameMap, normKey(current.Name))
		s.nameMap[normKey(r.Name)] = r.ID
	}

	s.resources[r.ID] = r

	return r, nil
}

func (s *memoryStore) FetchResourceByID(ctx context.Context, resourceID uuid.UUID) (Resource, error) {
	s.RLock()
	r, ok := s.resources[resourceID]
	s.RUnlock()

	if !ok {
		return r, ErrResourceNotFound
	}

	return r, nil
}

func (s *memoryStore) FetchResourceByName(ctx context.Context, name string) (Resource, error) {
	s.RLock()
	r, ok := s.resources[s.nameMap[normKey(name)]]
	s.RUnlock()

	if !ok {
		return r, ErrResourceNotFound
	}

	return r, nil
}

func (s *memoryStore) FetchAllResources(ctx context.Context) ([]Resource, error) {
	s.RLock()
	rs := make([]Resource, 0, len(s.resources))
	for _, r := range s.resources {
		rs = append(rs, r)
	}
	s.RUnlock()

	return rs, nil
}

func (s *memoryStore) FetchNamesByPrefix(ctx context.Context, prefix string) ([]string, error) {
	names := make([]string, 0)

	s.RLock()
	for _, r := range s.resources {
		if strings.HasPrefix(r.Name, prefix) {
			names = append(names, r.Name)
		}
	}
	s.RUnlock()

	return names, nil
}

func (s *memoryStore) DeleteResourceByID(ctx context.Context, resourceID uuid.UUID) error {
	s.Lock()
	if r, ok := s.resources[resourceID]; ok {
		delete(s.nameMap, normKey(r.Name))
		delete(s.resources, resourceID)
	}
	s.Unlock()

	return nil
}
