package hub

import (
	"errors"
	"sync"

	"chathub-backend/internal/jwt"
	"chathub-backend/internal/models"
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrAlreadyAuthenticated = errors.New("connection already authenticated as another user")
)

type TokenVerifier interface {
	VerifyAccess(tokenString string) (jwt.UserToken, error)
}

type Identity struct {
	UserID   int64
	Username string
}

// Registry maps live connection ids to authenticated identities. A user may
// hold several connections; status goes online with the first and offline
// with the last.
type Registry struct {
	mutex    sync.RWMutex
	sessions map[string]Identity
	perUser  map[int64]int
	verifier TokenVerifier
	presence *presenceWriter
	announce PresenceFunc
}

// PresenceFunc is told when a user's first connection authenticates or
// last connection goes away. It runs under the registry lock, so calls for
// one user never overtake each other.
type PresenceFunc func(connID string, identity Identity, online bool)

func NewRegistry(verifier TokenVerifier, presence *presenceWriter) *Registry {
	return &Registry{
		sessions: make(map[string]Identity),
		perUser:  make(map[int64]int),
		verifier: verifier,
		presence: presence,
	}
}

// Authenticate verifies token and binds connID to its identity. first is
// true when this is the user's only live connection. Re-authenticating as
// the same user is a no-op.
// OnPresence installs fn as the presence announcer. It must not call back
// into the registry.
func (r *Registry) OnPresence(fn PresenceFunc) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.announce = fn
}

func (r *Registry) Authenticate(connID string, token string) (identity Identity, first bool, err error) {
	claims, err := r.verifier.VerifyAccess(token)
	if err != nil {
		return Identity{}, false, ErrAuthenticationFailed
	}
	identity = Identity{UserID: claims.UserID, Username: claims.Username}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if current, ok := r.sessions[connID]; ok {
		if current.UserID != identity.UserID {
			return Identity{}, false, ErrAlreadyAuthenticated
		}
		return current, false, nil
	}

	r.sessions[connID] = identity
	r.perUser[identity.UserID]++
	first = r.perUser[identity.UserID] == 1

	if first {
		r.changed(connID, identity, true)
	}
	return identity, first, nil
}

func (r *Registry) Lookup(connID string) (Identity, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	identity, ok := r.sessions[connID]
	return identity, ok
}

// Forget removes connID. ok is false when it was never authenticated or
// already forgotten; last is true when the user has no connections left.
func (r *Registry) Forget(connID string) (identity Identity, last bool, ok bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	identity, ok = r.sessions[connID]
	if !ok {
		return Identity{}, false, false
	}
	delete(r.sessions, connID)

	r.perUser[identity.UserID]--
	if r.perUser[identity.UserID] <= 0 {
		delete(r.perUser, identity.UserID)
		last = true
	}

	if last {
		r.changed(connID, identity, false)
	}
	return identity, last, true
}

// changed must be called with the mutex held.
func (r *Registry) changed(connID string, identity Identity, online bool) {
	if r.presence != nil {
		status := models.StatusOffline
		if online {
			status = models.StatusOnline
		}
		r.presence.Set(identity.UserID, status)
	}
	if r.announce != nil {
		r.announce(connID, identity, online)
	}
}

func (r *Registry) IsOnline(userID int64) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.perUser[userID] > 0
}

func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.sessions)
}
