package access

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PrincipalKind designates the subject kind a rule applies to
type PrincipalKind uint8

// principal kinds
// NOTE: PKNone is carried by protective rules only (explicit
// no-access markers with no subject and no grants)
const (
	PKNone PrincipalKind = iota
	PKUser
	PKGroup
	PKExternalUser
	PKExternalGroup
)

func (k PrincipalKind) String() string {
	switch k {
	case PKNone:
		return "none"
	case PKUser:
		return "user"
	case PKGroup:
		return "group"
	case PKExternalUser:
		return "external user"
	case PKExternalGroup:
		return "external group"
	default:
		return "unrecognized principal kind"
	}
}

// Principal is the subject of a security rule: exactly one of a
// stored user, a stored group, or an externally-authenticated
// user/group known only by name
type Principal struct {
	Kind PrincipalKind `json:"kind"`
	ID   uuid.UUID     `json:"id,omitempty"`
	Name string        `json:"name,omitempty"`
}

// UserPrincipal references a stored user by id
func UserPrincipal(userID uuid.UUID) Principal {
	return Principal{Kind: PKUser, ID: userID}
}

// GroupPrincipal references a stored group by id
func GroupPrincipal(groupID uuid.UUID) Principal {
	return Principal{Kind: PKGroup, ID: groupID}
}

// ExternalUserPrincipal references an externally-authenticated user
func ExternalUserPrincipal(username string) Principal {
	return Principal{Kind: PKExternalUser, Name: strings.TrimSpace(username)}
}

// ExternalGroupPrincipal references an externally-provided group name
func ExternalGroupPrincipal(groupName string) Principal {
	return Principal{Kind: PKExternalGroup, Name: strings.TrimSpace(groupName)}
}

// NoPrincipal is the subject of a protective rule
func NoPrincipal() Principal {
	return Principal{Kind: PKNone}
}

// Validate enforces the exactly-one-subject invariant
func (p Principal) Validate() error {
	switch p.Kind {
	case PKNone:
		if p.ID != uuid.Nil || p.Name != "" {
			return ErrMalformedPrincipal
		}
	case PKUser, PKGroup:
		if p.ID == uuid.Nil || p.Name != "" {
			return ErrMalformedPrincipal
		}
	case PKExternalUser, PKExternalGroup:
		if p.ID != uuid.Nil || p.Name == "" {
			return ErrMalformedPrincipal
		}
	default:
		return ErrMalformedPrincipal
	}

	return nil
}

func (p Principal) String() string {
	switch p.Kind {
	case PKUser, PKGroup:
		return fmt.Sprintf("%s(%s)", p.Kind, p.ID)
	case PKExternalUser, PKExternalGroup:
		return fmt.Sprintf("%s(%s)", p.Kind, p.Name)
	default:
		return p.Kind.String()
	}
}
