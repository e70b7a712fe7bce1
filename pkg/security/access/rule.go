package access

import (
	"github.com/google/uuid"
)

// Rule is a single security rule: a (resource, principal, canRead,
// canWrite) tuple
// NOTE: rule sets are always replaced wholesale per resource, never
// patched rule by rule
type Rule struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ResourceID uuid.UUID `db:"resource_id" json:"resource_id"`
	Principal  Principal `db:"-" json:"principal"`
	CanRead    bool      `db:"can_read" json:"can_read"`
	CanWrite   bool      `db:"can_write" json:"can_write"`
}

// NewRule initializes a new rule with a fresh id
func NewRule(resourceID uuid.UUID, p Principal, canRead, canWrite bool) Rule {
	return Rule{
		ID:         uuid.New(),
		ResourceID: resourceID,
		Principal:  p,
		CanRead:    canRead,
		CanWrite:   canWrite,
	}
}

// ProtectiveRule initializes an explicit no-access marker, which
// shadows default access and is distinguishable from "rule absent"
func ProtectiveRule(resourceID uuid.UUID) Rule {
	return Rule{
		ID:         uuid.New(),
		ResourceID: resourceID,
		Principal:  NoPrincipal(),
	}
}

// IsProtective tests whether this rule is an explicit no-access marker
func (r Rule) IsProtective() bool {
	return r.Principal.Kind == PKNone && !r.CanRead && !r.CanWrite
}

// Validate performs a basic self-check
func (r Rule) Validate() error {
	if r.ResourceID == uuid.Nil {
		return ErrZeroResourceID
	}

	if err := r.Principal.Validate(); err != nil {
		return err
	}

	// a grant without a subject is not a protective marker, it's garbage
	if r.Principal.Kind == PKNone && (r.CanRead || r.CanWrite) {
		return ErrOrphanedGrant
	}

	return nil
}
