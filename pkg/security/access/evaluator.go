package access

import (
	"github.com/google/uuid"

	"github.com/resourcekeep/keep/pkg/resource"
	"github.com/resourcekeep/keep/pkg/user"
)

// Caller is a fully resolved authorization snapshot of a principal:
// the user, the rules granted directly to it, and (for externally
// authenticated principals) the provider-supplied group names
// WARNING: Rules must be resolved before any ownership-dependent
// check; a nil Rules slice is a programmer error and the predicates
// panic on it rather than deny
type Caller struct {
	User           user.User
	Rules          []Rule
	ExternalGroups []string
}

// OwnerRule returns the caller's own rule referencing a given
// resource, matched by resource id equality on the rule's
// resource reference
func (c Caller) OwnerRule(resourceID uuid.UUID) (Rule, bool) {
	if c.Rules == nil {
		panic(ErrRulesNotResolved)
	}

	for _, r := range c.Rules {
		if r.ResourceID == resourceID {
			return r, true
		}
	}

	return Rule{}, false
}

// IsOwner tests whether the caller owns a given resource, i.e. some
// rule of its own references this exact resource id
func IsOwner(c Caller, res resource.Resource) bool {
	_, ok := c.OwnerRule(res.ID)
	return ok
}

// CanRead tests whether the caller may read a given resource:
// advertised resources are readable by anyone, admins read
// everything, otherwise an owner rule or a matching group rule
// must grant read
func CanRead(c Caller, res resource.Resource, rules []Rule) bool {
	if res.IsAdvertised {
		return true
	}

	if c.User.IsAdmin() {
		return true
	}

	if r, ok := c.OwnerRule(res.ID); ok && r.CanRead {
		return true
	}

	return matchGroupRule(c, rules, func(r Rule) bool { return r.CanRead })
}

// CanWrite tests whether the caller may write a given resource
// NOTE: guests never write; the check short-circuits before
// ownership is even consulted
func CanWrite(c Caller, res resource.Resource, rules []Rule) bool {
	if c.User.IsGuest() {
		return false
	}

	if c.User.IsAdmin() {
		return true
	}

	if r, ok := c.OwnerRule(res.ID); ok && r.CanWrite {
		return true
	}

	return matchGroupRule(c, rules, func(r Rule) bool { return r.CanWrite })
}

// CanReadWrite tests whether the caller may both read and write a
// given resource
// NOTE: both flags must co-occur on the same matching rule; read via
// one principal and write via another do not combine
func CanReadWrite(c Caller, res resource.Resource, rules []Rule) bool {
	if c.User.IsGuest() {
		return false
	}

	if c.User.IsAdmin() {
		return true
	}

	if r, ok := c.OwnerRule(res.ID); ok && r.CanRead && r.CanWrite {
		return true
	}

	return matchGroupRule(c, rules, func(r Rule) bool { return r.CanRead && r.CanWrite })
}

// matchGroupRule scans a resource's rules for one whose group
// principal matches the caller and satisfies the given predicate
// NOTE: disabled groups do not grant anything
func matchGroupRule(c Caller, rules []Rule, match func(Rule) bool) bool {
	for _, r := range rules {
		if !match(r) {
			continue
		}

		switch r.Principal.Kind {
		case PKGroup:
			for _, g := range c.User.Groups {
				if g.ID == r.Principal.ID && g.IsEnabled {
					return true
				}
			}
		case PKExternalGroup:
			for _, name := range c.ExternalGroups {
				if name == r.Principal.Name {
					return true
				}
			}
		}
	}

	return false
}
