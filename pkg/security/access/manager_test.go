package access_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/resourcekeep/keep/pkg/resource"
	"github.com/resourcekeep/keep/pkg/security/access"
	"github.com/resourcekeep/keep/pkg/user"
)

// newTestEnv wires memory-backed managers for facade tests
func newTestEnv(t *testing.T) (*user.Manager, *resource.Manager, *access.Manager) {
	a := assert.New(t)

	um, err := user.NewManager(user.NewMemoryStore(), nil)
	a.NoError(err)
	a.NotNil(um)
	a.NoError(um.SetLogger(zap.NewNop()))

	rm, err := resource.NewManager(resource.NewMemoryStore())
	a.NoError(err)
	a.NotNil(rm)
	a.NoError(rm.SetLogger(zap.NewNop()))

	am, err := access.NewManager(access.NewMemoryStore(), rm, um)
	a.NoError(err)
	a.NotNil(am)
	a.NoError(am.SetLogger(zap.NewNop()))

	return um, rm, am
}

func TestManagerNotFoundBeforeForbidden(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	um, _, am := newTestEnv(t)

	_, _, err := um.Bootstrap(ctx)
	a.NoError(err)

	u, err := um.CreateUser(ctx, "bob", user.RUser)
	a.NoError(err)

	// the resource does not exist; absence wins over denial
	_, err = am.CanUserRead(ctx, u, uuid.New())
	a.Error(err)
	a.Equal(resource.ErrResourceNotFound, err)

	_, err = am.UpdateRules(ctx, u, uuid.New(), nil)
	a.Error(err)
	a.Equal(resource.ErrResourceNotFound, err)
}

func TestManagerOwnerAccess(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	um, rm, am := newTestEnv(t)

	_, _, err := um.Bootstrap(ctx)
	a.NoError(err)

	admin, err := um.CreateUser(ctx, "root", user.RAdmin)
	a.NoError(err)

	alice, err := um.CreateUser(ctx, "alice", user.RUser)
	a.NoError(err)

	bob, err := um.CreateUser(ctx, "bob", user.RUser)
	a.NoError(err)

	res, err := rm.Create(ctx, resource.NewResource("world map", "", admin.Username))
	a.NoError(err)

	// the admin hands alice ownership of the resource
	rules, err := am.UpdateRules(ctx, admin, res.ID, []access.Rule{
		access.NewRule(res.ID, access.UserPrincipal(alice.ID), true, true),
	})
	a.NoError(err)
	a.Len(rules, 1)

	ok, err := am.CanUserRead(ctx, alice, res.ID)
	a.NoError(err)
	a.True(ok)

	ok, err = am.CanUserWrite(ctx, alice, res.ID)
	a.NoError(err)
	a.True(ok)

	// bob holds nothing
	ok, err = am.CanUserRead(ctx, bob, res.ID)
	a.NoError(err)
	a.False(ok)

	// and is not allowed to inspect or mutate the rule set
	_, err = am.Rules(ctx, bob, res.ID)
	a.Equal(access.ErrAccessDenied, err)

	_, err = am.UpdateRules(ctx, bob, res.ID, nil)
	a.Equal(access.ErrAccessDenied, err)

	// alice, as the owner, sees the rules
	fetched, err := am.Rules(ctx, alice, res.ID)
	a.NoError(err)
	a.Len(fetched, 1)
	a.Equal(alice.ID, fetched[0].Principal.ID)
}

func TestManagerEveryoneRuleShape(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	um, rm, am := newTestEnv(t)

	everyone, _, err := um.Bootstrap(ctx)
	a.NoError(err)

	admin, err := um.CreateUser(ctx, "root", user.RAdmin)
	a.NoError(err)

	res, err := rm.Create(ctx, resource.NewResource("public map", "", admin.Username))
	a.NoError(err)

	// write access for the whole world is rejected outright
	_, err = am.UpdateRules(ctx, admin, res.ID, []access.Rule{
		access.NewRule(res.ID, access.GroupPrincipal(everyone.ID), true, true),
	})
	a.Equal(access.ErrEveryoneRuleShape, err)

	// so is a shape that grants nothing readable
	_, err = am.UpdateRules(ctx, admin, res.ID, []access.Rule{
		access.NewRule(res.ID, access.GroupPrincipal(everyone.ID), false, false),
	})
	a.Equal(access.ErrEveryoneRuleShape, err)

	// read-only is the one accepted shape
	_, err = am.UpdateRules(ctx, admin, res.ID, []access.Rule{
		access.NewRule(res.ID, access.GroupPrincipal(everyone.ID), true, false),
	})
	a.NoError(err)

	// any user reads through the everyone grant
	bob, err := um.CreateUser(ctx, "bob", user.RUser)
	a.NoError(err)

	// membership resolution attaches the everyone group
	bob, err = um.UserByID(ctx, bob.ID)
	a.NoError(err)

	ok, err := am.CanUserRead(ctx, bob, res.ID)
	a.NoError(err)
	a.True(ok)

	ok, err = am.CanUserWrite(ctx, bob, res.ID)
	a.NoError(err)
	a.False(ok)
}

func TestManagerUnknownPrincipals(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	um, rm, am := newTestEnv(t)

	_, _, err := um.Bootstrap(ctx)
	a.NoError(err)

	admin, err := um.CreateUser(ctx, "root", user.RAdmin)
	a.NoError(err)

	res, err := rm.Create(ctx, resource.NewResource("world map", "", admin.Username))
	a.NoError(err)

	_, err = am.UpdateRules(ctx, admin, res.ID, []access.Rule{
		access.NewRule(res.ID, access.UserPrincipal(uuid.New()), true, false),
	})
	a.Equal(access.ErrUnknownUser, err)

	_, err = am.UpdateRules(ctx, admin, res.ID, []access.Rule{
		access.NewRule(res.ID, access.GroupPrincipal(uuid.New()), true, false),
	})
	a.Equal(access.ErrUnknownGroup, err)
}

func TestManagerReplaceAllRoundTrip(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	um, rm, am := newTestEnv(t)

	_, _, err := um.Bootstrap(ctx)
	a.NoError(err)

	admin, err := um.CreateUser(ctx, "root", user.RAdmin)
	a.NoError(err)

	alice, err := um.CreateUser(ctx, "alice", user.RUser)
	a.NoError(err)

	res, err := rm.Create(ctx, resource.NewResource("world map", "", admin.Username))
	a.NoError(err)

	set := []access.Rule{
		access.NewRule(res.ID, access.UserPrincipal(alice.ID), true, true),
		access.NewRule(res.ID, access.ExternalUserPrincipal("carol"), true, false),
		access.NewRule(res.ID, access.ExternalGroupPrincipal("partners"), true, false),
		access.ProtectiveRule(res.ID),
	}

	stored, err := am.UpdateRules(ctx, admin, res.ID, set)
	a.NoError(err)
	a.Len(stored, len(set))

	// replaying the exact same set changes nothing
	replayed, err := am.UpdateRules(ctx, admin, res.ID, stored)
	a.NoError(err)
	a.Equal(stored, replayed)

	// every principal kind survives the round trip intact
	fetched, err := am.Rules(ctx, admin, res.ID)
	a.NoError(err)
	a.ElementsMatch(stored, fetched)

	protective := 0
	for _, r := range fetched {
		if r.IsProtective() {
			protective++
		}
	}
	a.Equal(1, protective)

	// a shrunken replacement leaves no survivors from the old set
	shrunk, err := am.UpdateRules(ctx, admin, res.ID, []access.Rule{
		access.NewRule(res.ID, access.UserPrincipal(alice.ID), true, true),
	})
	a.NoError(err)
	a.Len(shrunk, 1)

	fetched, err = am.Rules(ctx, admin, res.ID)
	a.NoError(err)
	a.Len(fetched, 1)
}

func TestManagerExternalCallers(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	um, rm, am := newTestEnv(t)

	_, _, err := um.Bootstrap(ctx)
	a.NoError(err)

	admin, err := um.CreateUser(ctx, "root", user.RAdmin)
	a.NoError(err)

	res, err := rm.Create(ctx, resource.NewResource("partner map", "", admin.Username))
	a.NoError(err)

	_, err = am.UpdateRules(ctx, admin, res.ID, []access.Rule{
		access.NewRule(res.ID, access.ExternalUserPrincipal("carol"), true, true),
		access.NewRule(res.ID, access.ExternalGroupPrincipal("partners"), true, false),
	})
	a.NoError(err)

	// carol owns a direct grant
	ok, err := am.CanExternalRead(ctx, "carol", nil, res.ID)
	a.NoError(err)
	a.True(ok)

	ok, err = am.CanExternalWrite(ctx, "carol", nil, res.ID)
	a.NoError(err)
	a.True(ok)

	// dave reads through the partners group only
	ok, err = am.CanExternalRead(ctx, "dave", []string{"partners"}, res.ID)
	a.NoError(err)
	a.True(ok)

	ok, err = am.CanExternalWrite(ctx, "dave", []string{"partners"}, res.ID)
	a.NoError(err)
	a.False(ok)

	// no grant at all
	ok, err = am.CanExternalRead(ctx, "dave", nil, res.ID)
	a.NoError(err)
	a.False(ok)
}

func TestManagerListWithFlags(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	um, rm, am := newTestEnv(t)

	_, _, err := um.Bootstrap(ctx)
	a.NoError(err)

	admin, err := um.CreateUser(ctx, "root", user.RAdmin)
	a.NoError(err)

	alice, err := um.CreateUser(ctx, "alice", user.RUser)
	a.NoError(err)

	owned, err := rm.Create(ctx, resource.NewResource("owned map", "", admin.Username))
	a.NoError(err)

	advertised, err := rm.Create(ctx, resource.NewResource("advertised map", "", admin.Username))
	a.NoError(err)

	advertised.IsAdvertised = true
	advertised, err = rm.Update(ctx, advertised)
	a.NoError(err)

	hidden, err := rm.Create(ctx, resource.NewResource("hidden map", "", admin.Username))
	a.NoError(err)

	_, err = am.UpdateRules(ctx, admin, owned.ID, []access.Rule{
		access.NewRule(owned.ID, access.UserPrincipal(alice.ID), true, true),
	})
	a.NoError(err)

	decorated, err := am.ListWithFlags(ctx, alice)
	a.NoError(err)
	a.Len(decorated, 3)

	flags := make(map[uuid.UUID]access.Decorated, len(decorated))
	for _, d := range decorated {
		flags[d.ID] = d
	}

	// full access through the ownership rule
	a.True(flags[owned.ID].CanCopy)
	a.True(flags[owned.ID].CanEdit)
	a.True(flags[owned.ID].CanDelete)

	// advertised means copyable, nothing more
	a.True(flags[advertised.ID].CanCopy)
	a.False(flags[advertised.ID].CanEdit)
	a.False(flags[advertised.ID].CanDelete)

	// no rule and not advertised
	a.False(flags[hidden.ID].CanCopy)
	a.False(flags[hidden.ID].CanEdit)
	a.False(flags[hidden.ID].CanDelete)

	// the admin holds every flag on everything
	decorated, err = am.ListWithFlags(ctx, admin)
	a.NoError(err)
	a.Len(decorated, 3)

	for _, d := range decorated {
		a.True(d.CanCopy)
		a.True(d.CanEdit)
		a.True(d.CanDelete)
	}
}
