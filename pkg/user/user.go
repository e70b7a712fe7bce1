package user

import (
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Role designates the base privilege level of a user
type Role uint8

// user roles, from least to most privileged
const (
	RGuest Role = iota
	RUser
	RAdmin
)

func (r Role) String() string {
	switch r {
	case RGuest:
		return "guest"
	case RUser:
		return "user"
	case RAdmin:
		return "admin"
	default:
		return "unrecognized role"
	}
}

// reserved principal names which cannot be claimed by regular
// user or group management, only by the one-time bootstrap
const (
	EveryoneGroupName = "everyone"
	GuestUsername     = "guest"
)

// IsReservedName tests whether a given name is reserved for system use
func IsReservedName(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case EveryoneGroupName, GuestUsername:
		return true
	}

	return false
}

// User represents an authenticated principal
// NOTE: two reserved instances exist, the guest user and the
// members of the everyone group; see Manager.Bootstrap
type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Username  string    `db:"username" json:"username" valid:"required,printableascii"`
	Role      Role      `db:"role" json:"role"`
	IsEnabled bool      `db:"is_enabled" json:"is_enabled"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	// resolved group memberships; always includes the reserved
	// everyone group once resolved by the manager
	Groups []Group `db:"-" json:"groups,omitempty"`

	// transient per-request annotation, never persisted
	IP string `db:"-" json:"-"`
}

// NewUser initializes a new user with a fresh id
func NewUser(username string, role Role) User {
	return User{
		ID:        uuid.New(),
		Username:  strings.TrimSpace(username),
		Role:      role,
		IsEnabled: true,
		CreatedAt: time.Now(),
	}
}

// Validate performs a basic self-check
func (u User) Validate() error {
	if u.ID == uuid.Nil {
		return ErrZeroUserID
	}

	if ok, err := govalidator.ValidateStruct(u); !ok || err != nil {
		return errors.Wrap(err, "user validation failed")
	}

	return nil
}

// IsAdmin tests whether this user carries the administrator role
func (u User) IsAdmin() bool {
	return u.Role == RAdmin
}

// IsGuest tests whether this user is an anonymous principal
func (u User) IsGuest() bool {
	return u.Role == RGuest
}

// IsMemberOf tests whether this user has a given group among
// its resolved memberships
func (u User) IsMemberOf(groupID uuid.UUID) bool {
	for _, g := range u.Groups {
		if g.ID == groupID {
			return true
		}
	}

	return false
}

// GroupIDs returns the ids of all resolved memberships
func (u User) GroupIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(u.Groups))
	for _, g := range u.Groups {
		ids = append(ids, g.ID)
	}

	return ids
}
