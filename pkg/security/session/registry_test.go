package session_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/resourcekeep/keep/pkg/security/session"
	"github.com/resourcekeep/keep/pkg/user"
)

// fakeClock is a manually advanced clock for expiry tests
type fakeClock struct {
	sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.Lock()
	defer c.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.Lock()
	c.now = c.now.Add(d)
	c.Unlock()
}

func newTestRegistry(t *testing.T) (*session.Registry, *fakeClock) {
	a := assert.New(t)

	clock := newFakeClock()

	// a long sweep interval keeps the sweeper out of the way; these
	// tests exercise lazy eviction only
	r, err := session.NewRegistry(clock, time.Hour, zap.NewNop())
	a.NoError(err)
	a.NotNil(r)

	return r, clock
}

func TestCreateAndLookupSession(t *testing.T) {
	a := assert.New(t)

	r, _ := newTestRegistry(t)
	defer r.Close()

	u := user.NewUser("alice", user.RUser)

	s, err := r.CreateSession(u, time.Hour)
	a.NoError(err)
	a.NotEmpty(s.ID)
	a.NotEmpty(s.RefreshToken)
	a.Equal(u.ID, s.User.ID)

	got, err := r.UserData(s.ID)
	a.NoError(err)
	a.Equal(u.ID, got.ID)
	a.Equal(u.Username, got.Username)

	// zero ttl is refused outright
	_, err = r.CreateSession(u, 0)
	a.Equal(session.ErrZeroTTL, err)
}

func TestExpiredSessionEvictedOnSight(t *testing.T) {
	a := assert.New(t)

	r, clock := newTestRegistry(t)
	defer r.Close()

	s, err := r.CreateSession(user.NewUser("alice", user.RUser), time.Hour)
	a.NoError(err)
	a.Equal(1, r.Len())

	clock.Advance(time.Hour + time.Second)

	// the first lookup observes expiry and evicts
	_, err = r.UserData(s.ID)
	a.Equal(session.ErrSessionNotFound, err)
	a.Equal(0, r.Len())

	// later lookups observe plain absence
	_, err = r.UserData(s.ID)
	a.Equal(session.ErrSessionNotFound, err)
}

func TestRefreshSession(t *testing.T) {
	a := assert.New(t)

	r, clock := newTestRegistry(t)
	defer r.Close()

	s, err := r.CreateSession(user.NewUser("alice", user.RUser), time.Hour)
	a.NoError(err)

	clock.Advance(30 * time.Minute)

	refreshed, err := r.RefreshSession(s.ID, s.RefreshToken, time.Hour)
	a.NoError(err)

	// the token is never rotated, only the expiry moves
	a.Equal(s.RefreshToken, refreshed.RefreshToken)
	a.Equal(clock.Now().Add(time.Hour), refreshed.ExpireAt)
	a.Equal(clock.Now(), refreshed.RefreshedAt)

	// the extension outlives the original expiry
	clock.Advance(45 * time.Minute)
	_, err = r.UserData(s.ID)
	a.NoError(err)
}

func TestRefreshWithWrongTokenIsNoOp(t *testing.T) {
	a := assert.New(t)

	r, clock := newTestRegistry(t)
	defer r.Close()

	s, err := r.CreateSession(user.NewUser("alice", user.RUser), time.Hour)
	a.NoError(err)

	clock.Advance(30 * time.Minute)

	_, err = r.RefreshSession(s.ID, "bogus", time.Hour)
	a.Equal(session.ErrWrongToken, err)

	// the stored expiry stayed exactly where it was
	clock.Advance(30*time.Minute + time.Second)
	_, err = r.UserData(s.ID)
	a.Equal(session.ErrSessionNotFound, err)
}

func TestRefreshExpiredSession(t *testing.T) {
	a := assert.New(t)

	r, clock := newTestRegistry(t)
	defer r.Close()

	s, err := r.CreateSession(user.NewUser("alice", user.RUser), time.Hour)
	a.NoError(err)

	clock.Advance(2 * time.Hour)

	// a matching token cannot resurrect an expired session
	_, err = r.RefreshSession(s.ID, s.RefreshToken, time.Hour)
	a.Equal(session.ErrSessionNotFound, err)
	a.Equal(0, r.Len())
}

func TestRemoveSessions(t *testing.T) {
	a := assert.New(t)

	r, _ := newTestRegistry(t)
	defer r.Close()

	s, err := r.CreateSession(user.NewUser("alice", user.RUser), time.Hour)
	a.NoError(err)

	r.RemoveSession(s.ID)
	_, err = r.UserData(s.ID)
	a.Equal(session.ErrSessionNotFound, err)

	// removing an absent session is a silent no-op
	r.RemoveSession(s.ID)

	_, err = r.CreateSession(user.NewUser("bob", user.RUser), time.Hour)
	a.NoError(err)

	_, err = r.CreateSession(user.NewUser("carol", user.RUser), time.Hour)
	a.NoError(err)

	a.Equal(2, r.Len())
	r.RemoveAllSessions()
	a.Equal(0, r.Len())
}

func TestConcurrentLookupDuringEviction(t *testing.T) {
	a := assert.New(t)

	r, clock := newTestRegistry(t)
	defer r.Close()

	u := user.NewUser("alice", user.RUser)

	s, err := r.CreateSession(u, time.Hour)
	a.NoError(err)

	clock.Advance(time.Hour + time.Second)

	// every concurrent observer sees either a valid snapshot or a
	// clean absence, never a stale one
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			got, xerr := r.UserData(s.ID)
			if xerr == nil {
				a.Equal(u.ID, got.ID)
			} else {
				a.Equal(session.ErrSessionNotFound, xerr)
			}
		}()
	}
	wg.Wait()

	a.Equal(0, r.Len())
}

func TestRegistryClose(t *testing.T) {
	a := assert.New(t)

	r, _ := newTestRegistry(t)

	a.NoError(r.Close())

	// a closed registry refuses new sessions
	_, err := r.CreateSession(user.NewUser("alice", user.RUser), time.Hour)
	a.Equal(session.ErrRegistryClosed, err)

	a.Equal(session.ErrRegistryClosed, r.Close())
}

func TestSweepEvictsExpired(t *testing.T) {
	a := assert.New(t)

	clock := newFakeClock()

	r, err := session.NewRegistry(clock, 10*time.Millisecond, zap.NewNop())
	a.NoError(err)
	defer r.Close()

	_, err = r.CreateSession(user.NewUser("alice", user.RUser), time.Minute)
	a.NoError(err)

	clock.Advance(2 * time.Minute)

	// the sweeper catches up without any lookup happening
	a.Eventually(func() bool { return r.Len() == 0 }, time.Second, 10*time.Millisecond)
}
