package access

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// memoryStore is an in-memory rule store implementation
type memoryStore struct {
	rules map[uuid.UUID][]Rule

	sync.RWMutex
}

// NewMemoryStore returns an initialized in-memory rule store
func NewMemoryStore() Store {
	return &memoryStore{
		rules: make(map[uuid.UUID][]Rule),
	}
}

func (s *memoryStore) ReplaceRulesByResourceID(ctx context.Context, resourceID uuid.UUID, rules []Rule) error {
	rs := make([]Rule, len(rules))
	copy(rs, rules)

	s.Lock()
	s.rules[resourceID] = rs
	s.Unlock()

	return nil
}

func (s *memoryStore) FetchRulesByResourceID(ctx context.Context, resourceID uuid.UUID) ([]Rule, error) {
	s.RLock()
	defer s.RUnlock()

	rs := make([]Rule, len(s.rules[resourceID]))
	copy(rs, s.rules[resourceID])

	return rs, nil
}

func (s *memoryStore) FetchRulesByResourceIDs(ctx context.Context, resourceIDs []uuid.UUID) (map[uuid.UUID][]Rule, error) {
	buckets := make(map[uuid.UUID][]Rule, len(resourceIDs))

	s.RLock()
	for _, id := range resourceIDs {
		if rules, ok := s.rules[id]; ok {
			rs := make([]Rule, len(rules))
			copy(rs, rules)
			buckets[id] = rs
		}
	}
	s.RUnlock()

	return buckets, nil
}

func (s *memoryStore) FetchRulesByUserID(ctx context.Context, userID uuid.UUID) ([]Rule, error) {
	matched := make([]Rule, 0)

	s.RLock()
	for _, rules := range s.rules {
		for _, r := range rules {
			if r.Principal.Kind == PKUser && r.Principal.ID == userID {
				matched = append(matched, r)
			}
		}
	}
	s.RUnlock()

	return matched, nil
}

func (s *memoryStore) FetchRulesByUsername(ctx context.Context, username string) ([]Rule, error) {
	matched := make([]Rule, 0)

	s.RLock()
	for _, rules := range s.rules {
		for _, r := range rules {
			if r.Principal.Kind == PKExternalUser && r.Principal.Name == username {
				matched = append(matched, r)
			}
		}
	}
	s.RUnlock()

	return matched, nil
}

func (s *memoryStore) DeleteRulesByResourceID(ctx context.Context, resourceID uuid.UUID) error {
	s.Lock()
	delete(s.rules, resourceID)
	s.Unlock()

	return nil
}
