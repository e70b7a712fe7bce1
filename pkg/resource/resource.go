package resource

import (
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/r3labs/diff/v2"
)

// Resource is the protected object of this module
// NOTE: resource names are globally unique; collisions are resolved
// deterministically by the manager with a suggested alternative
type Resource struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name" valid:"required"`
	Description string    `db:"description" json:"description"`

	// IsAdvertised marks a resource as publicly readable
	// regardless of explicit security rules
	IsAdvertised bool `db:"is_advertised" json:"is_advertised"`

	// Creator is the username of the original owner,
	// Editor is the username of the last writer
	Creator string `db:"creator" json:"creator"`
	Editor  string `db:"editor" json:"editor"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NewResource initializes a new resource with a fresh id
func NewResource(name, description, creator string) Resource {
	return Resource{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(name),
		Description: description,
		Creator:     creator,
		Editor:      creator,
		CreatedAt:   time.Now(),
	}
}

// Validate performs a basic self-check
func (r Resource) Validate() error {
	if r.ID == uuid.Nil {
		return ErrZeroResourceID
	}

	if ok, err := govalidator.ValidateStruct(r); !ok || err != nil {
		return errors.Wrap(err, "resource validation failed")
	}

	return nil
}

// ApplyChangelog applies changes described by a diff.Diff() changelog
// NOTE: doing a manual update to avoid using reflection
func (r *Resource) ApplyChangelog(changelog diff.Changelog) error {
	// it's ok if there are no changes to apply
	if len(changelog) == 0 {
		return nil
	}

	for _, change := range changelog {
		switch change.Path[0] {
		case "Name":
			r.Name = change.To.(string)
		case "Description":
			r.Description = change.To.(string)
		case "IsAdvertised":
			r.IsAdvertised = change.To.(bool)
		case "Editor":
			r.Editor = change.To.(string)
		case "UpdatedAt":
			r.UpdatedAt = change.To.(time.Time)
		}
	}

	return nil
}
