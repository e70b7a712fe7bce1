package access_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/resourcekeep/keep/pkg/resource"
	"github.com/resourcekeep/keep/pkg/security/access"
	"github.com/resourcekeep/keep/pkg/user"
)

func TestCanReadAdvertised(t *testing.T) {
	a := assert.New(t)

	res := resource.NewResource("world map", "", "alice")
	res.IsAdvertised = true

	// a guest with no rules at all
	guest := access.Caller{
		User:  user.NewUser("guest", user.RGuest),
		Rules: []access.Rule{},
	}

	a.True(access.CanRead(guest, res, nil))
	a.False(access.CanWrite(guest, res, nil))
	a.False(access.CanReadWrite(guest, res, nil))
}

func TestAdminFullAccess(t *testing.T) {
	a := assert.New(t)

	res := resource.NewResource("private map", "", "alice")

	admin := access.Caller{
		User:  user.NewUser("root", user.RAdmin),
		Rules: []access.Rule{},
	}

	// no rules exist anywhere, yet the admin holds everything
	a.True(access.CanRead(admin, res, nil))
	a.True(access.CanWrite(admin, res, nil))
	a.True(access.CanReadWrite(admin, res, nil))
}

func TestGuestNeverWrites(t *testing.T) {
	a := assert.New(t)

	res := resource.NewResource("private map", "", "alice")

	guest := user.NewUser("guest", user.RGuest)

	// even a direct write grant cannot make a guest writable
	ownRule := access.NewRule(res.ID, access.UserPrincipal(guest.ID), true, true)

	c := access.Caller{
		User:  guest,
		Rules: []access.Rule{ownRule},
	}

	a.True(access.CanRead(c, res, nil))
	a.False(access.CanWrite(c, res, nil))
	a.False(access.CanReadWrite(c, res, nil))
}

func TestOwnerRuleAccess(t *testing.T) {
	a := assert.New(t)

	res := resource.NewResource("private map", "", "alice")
	other := resource.NewResource("other map", "", "bob")

	u := user.NewUser("alice", user.RUser)

	c := access.Caller{
		User: u,
		Rules: []access.Rule{
			access.NewRule(res.ID, access.UserPrincipal(u.ID), true, true),
		},
	}

	a.True(access.IsOwner(c, res))
	a.True(access.CanRead(c, res, nil))
	a.True(access.CanWrite(c, res, nil))
	a.True(access.CanReadWrite(c, res, nil))

	// no rule references the other resource
	a.False(access.IsOwner(c, other))
	a.False(access.CanRead(c, other, nil))
	a.False(access.CanWrite(c, other, nil))
}

func TestZeroRuleResource(t *testing.T) {
	a := assert.New(t)

	res := resource.NewResource("orphan map", "", "alice")

	c := access.Caller{
		User:  user.NewUser("bob", user.RUser),
		Rules: []access.Rule{},
	}

	// a resource with no rules is invisible to regular users
	a.False(access.CanRead(c, res, []access.Rule{}))
	a.False(access.CanWrite(c, res, []access.Rule{}))
}

func TestGroupRuleAccess(t *testing.T) {
	a := assert.New(t)

	res := resource.NewResource("team map", "", "alice")

	g := user.NewGroup("cartographers", "")

	u := user.NewUser("bob", user.RUser)
	u.Groups = []user.Group{g}

	c := access.Caller{User: u, Rules: []access.Rule{}}

	rules := []access.Rule{
		access.NewRule(res.ID, access.GroupPrincipal(g.ID), true, false),
	}

	a.True(access.CanRead(c, res, rules))
	a.False(access.CanWrite(c, res, rules))

	// membership in an unrelated group grants nothing
	stranger := user.NewUser("eve", user.RUser)
	stranger.Groups = []user.Group{user.NewGroup("strangers", "")}

	sc := access.Caller{User: stranger, Rules: []access.Rule{}}
	a.False(access.CanRead(sc, res, rules))
}

func TestDisabledGroupGrantsNothing(t *testing.T) {
	a := assert.New(t)

	res := resource.NewResource("team map", "", "alice")

	g := user.NewGroup("cartographers", "")
	g.IsEnabled = false

	u := user.NewUser("bob", user.RUser)
	u.Groups = []user.Group{g}

	c := access.Caller{User: u, Rules: []access.Rule{}}

	rules := []access.Rule{
		access.NewRule(res.ID, access.GroupPrincipal(g.ID), true, true),
	}

	a.False(access.CanRead(c, res, rules))
	a.False(access.CanWrite(c, res, rules))
}

func TestExternalGroupRuleAccess(t *testing.T) {
	a := assert.New(t)

	res := resource.NewResource("partner map", "", "alice")

	rules := []access.Rule{
		access.NewRule(res.ID, access.ExternalGroupPrincipal("partners"), true, false),
	}

	c := access.Caller{
		User:           user.NewUser("external", user.RUser),
		Rules:          []access.Rule{},
		ExternalGroups: []string{"partners"},
	}

	a.True(access.CanRead(c, res, rules))
	a.False(access.CanWrite(c, res, rules))

	// the provider never vouched for this group name
	other := access.Caller{
		User:           user.NewUser("external", user.RUser),
		Rules:          []access.Rule{},
		ExternalGroups: []string{"outsiders"},
	}

	a.False(access.CanRead(other, res, rules))
}

func TestReadWriteMustCoOccur(t *testing.T) {
	a := assert.New(t)

	res := resource.NewResource("split map", "", "alice")

	readers := user.NewGroup("readers", "")
	writers := user.NewGroup("writers", "")

	u := user.NewUser("bob", user.RUser)
	u.Groups = []user.Group{readers, writers}

	c := access.Caller{User: u, Rules: []access.Rule{}}

	// read via one rule, write via another; the combined grant
	// never materializes
	rules := []access.Rule{
		access.NewRule(res.ID, access.GroupPrincipal(readers.ID), true, false),
		access.NewRule(res.ID, access.GroupPrincipal(writers.ID), false, true),
	}

	a.True(access.CanRead(c, res, rules))
	a.True(access.CanWrite(c, res, rules))
	a.False(access.CanReadWrite(c, res, rules))

	// a single rule carrying both flags does combine
	both := []access.Rule{
		access.NewRule(res.ID, access.GroupPrincipal(readers.ID), true, true),
	}

	a.True(access.CanReadWrite(c, res, both))
}

func TestProtectiveRuleGrantsNothing(t *testing.T) {
	a := assert.New(t)

	res := resource.NewResource("guarded map", "", "alice")

	u := user.NewUser("bob", user.RUser)
	c := access.Caller{User: u, Rules: []access.Rule{}}

	rules := []access.Rule{access.ProtectiveRule(res.ID)}

	a.True(rules[0].IsProtective())
	a.False(access.CanRead(c, res, rules))
	a.False(access.CanWrite(c, res, rules))
}

func TestUnresolvedRulesPanic(t *testing.T) {
	a := assert.New(t)

	res := resource.NewResource("private map", "", "alice")

	// a nil rule slice is a programmer error, not a denial
	c := access.Caller{User: user.NewUser("bob", user.RUser)}

	a.Panics(func() {
		access.CanRead(c, res, nil)
	})
}
