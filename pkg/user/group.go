package user

import (
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Group represents a named collection of users
// NOTE: one distinguished instance carries the reserved everyone name;
// it implicitly contains every user and is fixed to read-only grants
type Group struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name" valid:"required,printableascii"`
	Description string    `db:"description" json:"description"`
	IsEnabled   bool      `db:"is_enabled" json:"is_enabled"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// NewGroup initializes a new group with a fresh id
func NewGroup(name, description string) Group {
	return Group{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(name),
		Description: description,
		IsEnabled:   true,
		CreatedAt:   time.Now(),
	}
}

// Validate performs a basic self-check
func (g Group) Validate() error {
	if g.ID == uuid.Nil {
		return ErrZeroGroupID
	}

	if ok, err := govalidator.ValidateStruct(g); !ok || err != nil {
		return errors.Wrap(err, "group validation failed")
	}

	return nil
}

// IsEveryone tests whether this is the reserved everyone group
func (g Group) IsEveryone() bool {
	return strings.EqualFold(g.Name, EveryoneGroupName)
}
