package access

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/resourcekeep/keep/pkg/resource"
	"github.com/resourcekeep/keep/pkg/user"
)

// Decorated is a resource annotated with the action flags a specific
// caller holds over it
type Decorated struct {
	resource.Resource
	CanEdit   bool `json:"can_edit"`
	CanDelete bool `json:"can_delete"`
	CanCopy   bool `json:"can_copy"`
}

// DecorateList annotates a resource listing with per-caller action
// flags; rulesByResource buckets every listed resource's rules by
// resource id
// NOTE: copying requires read access only, while editing and
// deleting both require write access
func DecorateList(c Caller, items []resource.Resource, rulesByResource map[uuid.UUID][]Rule) []Decorated {
	decorated := make([]Decorated, 0, len(items))

	// admins hold every flag on everything; no per-item evaluation needed
	if c.User.IsAdmin() {
		for _, res := range items {
			decorated = append(decorated, Decorated{
				Resource:  res,
				CanEdit:   true,
				CanDelete: true,
				CanCopy:   true,
			})
		}

		return decorated
	}

	for _, res := range items {
		rules := rulesByResource[res.ID]

		readable := CanRead(c, res, rules)
		writable := CanWrite(c, res, rules)

		decorated = append(decorated, Decorated{
			Resource:  res,
			CanEdit:   writable,
			CanDelete: writable,
			CanCopy:   readable,
		})
	}

	return decorated
}

// ListWithFlags returns every stored resource decorated with the
// action flags held by a given user
// NOTE: rules for the whole listing are fetched in one pass
func (m *Manager) ListWithFlags(ctx context.Context, u user.User) ([]Decorated, error) {
	items, err := m.resources.List(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, res := range items {
		ids = append(ids, res.ID)
	}

	buckets, err := m.store.FetchRulesByResourceIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch listing rules")
	}

	// the caller's own rules are already inside the buckets; picking
	// them out here saves a second store round-trip
	own := make([]Rule, 0)
	for _, rules := range buckets {
		for _, r := range rules {
			if r.Principal.Kind == PKUser && r.Principal.ID == u.ID {
				own = append(own, r)
			}
		}
	}

	c := Caller{User: u, Rules: own}

	return DecorateList(c, items, buckets), nil
}
