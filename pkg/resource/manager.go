package resource

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/r3labs/diff/v2"
	"go.uber.org/zap"
)

// errors
var (
	ErrNilStore           = errors.New("resource store is nil")
	ErrNilResourceManager = errors.New("resource manager is nil")
	ErrZeroResourceID     = errors.New("resource id is zero")
	ErrResourceNotFound   = errors.New("resource not found")
	ErrForbiddenChange    = errors.New("resource id is not allowed to change")
	ErrNothingChanged     = errors.New("nothing changed")
)

// DuplicatedNameError is returned when a resource name is already
// taken; it carries a deterministic suggested alternative
// NOTE: the suggestion is never applied silently
type DuplicatedNameError struct {
	Name       string
	Suggestion string
}

func (e DuplicatedNameError) Error() string {
	return fmt.Sprintf("resource name is taken: %q (next available: %q)", e.Name, e.Suggestion)
}

// Manager governs resource records and their name uniqueness
type Manager struct {
	store  Store
	logger *zap.Logger
}

// NewManager initializes a new resource manager
func NewManager(store Store) (*Manager, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	return &Manager{store: store}, nil
}

// SetLogger assigns a logger for this manager
func (m *Manager) SetLogger(logger *zap.Logger) error {
	if logger != nil {
		logger = logger.Named("[resource]")
	}

	m.logger = logger

	return nil
}

// Logger returns the assigned logger, initializing a fallback if unset
func (m *Manager) Logger() *zap.Logger {
	if m.logger == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			panic(errors.Wrap(err, "failed to initialize fallback logger"))
		}

		m.logger = l
	}

	return m.logger
}

// Create persists a new resource
// NOTE: a name collision yields a DuplicatedNameError carrying the
// suggested alternative; nothing is written in that case
func (m *Manager) Create(ctx context.Context, r Resource) (Resource, error) {
	if err := r.Validate(); err != nil {
		return r, err
	}

	if err := m.checkName(ctx, r.Name, r.ID); err != nil {
		return r, err
	}

	r, err := m.store.CreateResource(ctx, r)
	if err != nil {
		return r, errors.Wrapf(err, "failed to create resource: %s", r.Name)
	}

	return r, nil
}

// Update persists changes to an existing resource
// NOTE: renames are checked against the name collision rules; an
// update carrying no actual change is refused
func (m *Manager) Update(ctx context.Context, r Resource) (Resource, error) {
	if err := r.Validate(); err != nil {
		return r, err
	}

	current, err := m.ByID(ctx, r.ID)
	if err != nil {
		return r, err
	}

	if !strings.EqualFold(current.Name, r.Name) {
		if err = m.checkName(ctx, r.Name, r.ID); err != nil {
			return r, err
		}
	}

	// carrying immutable fields over before computing the changelog
	r.Creator = current.Creator
	r.CreatedAt = current.CreatedAt
	r.UpdatedAt = current.UpdatedAt

	changelog, err := diff.Diff(current, r)
	if err != nil {
		return r, errors.Wrap(err, "failed to compute resource changelog")
	}

	if len(changelog) == 0 {
		return r, ErrNothingChanged
	}

	if err = current.ApplyChangelog(changelog); err != nil {
		return r, errors.Wrap(err, "failed to apply resource changelog")
	}

	current.UpdatedAt = time.Now()

	current, err = m.store.UpdateResource(ctx, current)
	if err != nil {
		return current, errors.Wrapf(err, "failed to update resource: %s", current.ID)
	}

	return current, nil
}

// Delete removes a resource record
func (m *Manager) Delete(ctx context.Context, resourceID uuid.UUID) error {
	if resourceID == uuid.Nil {
		return ErrZeroResourceID
	}

	if _, err := m.ByID(ctx, resourceID); err != nil {
		return err
	}

	return m.store.DeleteResourceByID(ctx, resourceID)
}

// ByID returns a resource by its id
func (m *Manager) ByID(ctx context.Context, resourceID uuid.UUID) (Resource, error) {
	if resourceID == uuid.Nil {
		return Resource{}, ErrZeroResourceID
	}

	return m.store.FetchResourceByID(ctx, resourceID)
}

// ByName returns a resource by its exact name
func (m *Manager) ByName(ctx context.Context, name string) (Resource, error) {
	return m.store.FetchResourceByName(ctx, strings.TrimSpace(name))
}

// List returns all stored resources
func (m *Manager) List(ctx context.Context) ([]Resource, error) {
	return m.store.FetchAllResources(ctx)
}

// checkName enforces global name uniqueness
// NOTE: a match against selfID is not a collision (renaming a
// resource to its own name)
func (m *Manager) checkName(ctx context.Context, name string, selfID uuid.UUID) error {
	existing, err := m.store.FetchResourceByName(ctx, name)
	if err != nil {
		if err == ErrResourceNotFound {
			return nil
		}

		return errors.Wrapf(err, "failed to check name availability: %s", name)
	}

	if existing.ID == selfID {
		return nil
	}

	suggestion, err := m.suggestName(ctx, name)
	if err != nil {
		return errors.Wrapf(err, "failed to compute a name suggestion: %s", name)
	}

	return DuplicatedNameError{Name: name, Suggestion: suggestion}
}

// suggestName computes the deterministic "<base> - <n>" alternative,
// where n is one more than the highest numeric suffix already in
// use among names matching "<base> - %", defaulting to 2
func (m *Manager) suggestName(ctx context.Context, base string) (string, error) {
	prefix := base + " - "

	names, err := m.store.FetchNamesByPrefix(ctx, prefix)
	if err != nil {
		return "", err
	}

	suffix := regexp.MustCompile("^" + regexp.QuoteMeta(prefix) + `(\d+)$`)

	next := 2
	for _, name := range names {
		match := suffix.FindStringSubmatch(name)
		if match == nil {
			continue
		}

		n, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}

		if n >= next {
			next = n + 1
		}
	}

	return fmt.Sprintf("%s - %d", base, next), nil
}
