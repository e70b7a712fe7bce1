package session

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/resourcekeep/keep/pkg/user"
	"github.com/resourcekeep/keep/pkg/util"
)

// errors
var (
	ErrNilRegistry     = errors.New("session registry is nil")
	ErrZeroTTL         = errors.New("session ttl is zero")
	ErrSessionNotFound = errors.New("session not found")
	ErrWrongToken      = errors.New("refresh token mismatch")
	ErrRegistryClosed  = errors.New("session registry is closed")
	ErrEmptySessionID  = errors.New("session id is empty")
	ErrEmptyToken      = errors.New("refresh token is empty")
)

// Clock abstracts time for the registry so that expiry behaviour is
// testable without sleeping
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Registry is an in-memory session cache with TTL expiry; expired
// sessions are evicted lazily on lookup and proactively by a
// background sweep
type Registry struct {
	sessions map[string]Session
	clock    Clock
	interval time.Duration
	logger   *zap.Logger
	done     chan struct{}
	closed   bool

	sync.RWMutex
}

// NewRegistry initializes a session registry and starts its sweep
// goroutine; a nil clock falls back to wall time
func NewRegistry(clock Clock, sweepInterval time.Duration, logger *zap.Logger) (*Registry, error) {
	if clock == nil {
		clock = realClock{}
	}

	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	if logger != nil {
		logger = logger.Named("[session]")
	} else {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, errors.Wrap(err, "failed to initialize fallback logger")
		}

		logger = l.Named("[session]")
	}

	r := &Registry{
		sessions: make(map[string]Session),
		clock:    clock,
		interval: sweepInterval,
		logger:   logger,
		done:     make(chan struct{}),
	}

	go r.sweep()

	return r, nil
}

// sweep periodically evicts expired sessions until Close is called
func (r *Registry) sweep() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := r.clock.Now()

			r.Lock()
			for id, s := range r.sessions {
				if s.IsExpired(now) {
					delete(r.sessions, id)
				}
			}
			r.Unlock()
		case <-r.done:
			return
		}
	}
}

// CreateSession registers a new session for a given user
func (r *Registry) CreateSession(u user.User, ttl time.Duration) (Session, error) {
	if ttl <= 0 {
		return Session{}, ErrZeroTTL
	}

	token, err := util.NewCSPRNGHex(RefreshTokenLength)
	if err != nil {
		return Session{}, errors.Wrap(err, "failed to generate refresh token")
	}

	now := r.clock.Now()

	s := Session{
		ID:           util.NewULID().String(),
		RefreshToken: token,
		User:         u,
		CreatedAt:    now,
		RefreshedAt:  now,
		ExpireAt:     now.Add(ttl),
	}

	r.Lock()
	if r.closed {
		r.Unlock()
		return Session{}, ErrRegistryClosed
	}

	r.sessions[s.ID] = s
	r.Unlock()

	r.logger.Debug("session created",
		zap.String("session_id", s.ID),
		zap.String("username", u.Username),
	)

	return s, nil
}

// UserData returns the owner snapshot of a live session
// NOTE: an expired session is evicted the moment it is seen; later
// lookups observe plain absence, never a stale snapshot
func (r *Registry) UserData(sessionID string) (user.User, error) {
	if sessionID == "" {
		return user.User{}, ErrEmptySessionID
	}

	r.Lock()
	defer r.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return user.User{}, ErrSessionNotFound
	}

	if s.IsExpired(r.clock.Now()) {
		delete(r.sessions, sessionID)
		return user.User{}, ErrSessionNotFound
	}

	return s.User, nil
}

// RefreshSession extends a live session's expiry if and only if the
// presented refresh token matches; the token itself is not rotated
// NOTE: a mismatched token is a strict no-op, the stored expiry is
// left exactly as it was
func (r *Registry) RefreshSession(sessionID string, token string, ttl time.Duration) (Session, error) {
	if sessionID == "" {
		return Session{}, ErrEmptySessionID
	}

	if token == "" {
		return Session{}, ErrEmptyToken
	}

	if ttl <= 0 {
		return Session{}, ErrZeroTTL
	}

	r.Lock()
	defer r.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}

	now := r.clock.Now()
	if s.IsExpired(now) {
		delete(r.sessions, sessionID)
		return Session{}, ErrSessionNotFound
	}

	if s.RefreshToken != token {
		return Session{}, ErrWrongToken
	}

	s.RefreshedAt = now
	s.ExpireAt = now.Add(ttl)
	r.sessions[sessionID] = s

	return s, nil
}

// RemoveSession drops a session; removing an absent session is a
// silent no-op
func (r *Registry) RemoveSession(sessionID string) {
	r.Lock()
	delete(r.sessions, sessionID)
	r.Unlock()
}

// RemoveAllSessions drops every registered session
func (r *Registry) RemoveAllSessions() {
	r.Lock()
	r.sessions = make(map[string]Session)
	r.Unlock()
}

// Len returns the number of currently registered sessions, expired
// but not yet evicted ones included
func (r *Registry) Len() int {
	r.RLock()
	defer r.RUnlock()

	return len(r.sessions)
}

// Close stops the sweep goroutine; the registry refuses new sessions
// afterwards
func (r *Registry) Close() error {
	r.Lock()
	defer r.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}

	r.closed = true
	close(r.done)

	return nil
}
