// Package session holds the identity and key of the signed-in user.
//
// A Registry is an ordinary value passed to whoever needs it, so tests can
// run several independent sessions side by side.
package session

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/casekeeper/internal/common"
	"github.com/dmitrijs2005/casekeeper/internal/logging"
)

type Registry struct {
	mu     sync.RWMutex
	userID string
	key    []byte
	log    logging.Logger
}

func NewRegistry(log logging.Logger) *Registry {
	return &Registry{log: log.With("module", "session")}
}

// Start makes userID the active user. The caller must have verified key.
// An active session is ended first. The registry keeps its own copy of key.
func (r *Registry) Start(userID string, key []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clear()
	r.userID = userID
	r.key = common.CloneBytes(key)
}

// End drops the session and zeroes the key. Persisted data is untouched.
func (r *Registry) End() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clear()
}

// Abort ends the session after a fatal decryption failure.
func (r *Registry) Abort(ctx context.Context, cause error) {
	r.mu.Lock()
	userID := r.userID
	r.clear()
	r.mu.Unlock()

	if userID != "" {
		r.log.Error(ctx, "session aborted", "user", userID, "error", cause)
	}
}

func (r *Registry) clear() {
	common.WipeByteArray(r.key)
	r.key = nil
	r.userID = ""
}

func (r *Registry) Active() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userID != ""
}

func (r *Registry) CurrentUserID() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.userID == "" {
		return "", common.ErrUnauthenticated
	}
	return r.userID, nil
}

// CurrentKey returns a copy of the session key.
func (r *Registry) CurrentKey() ([]byte, error) {
	_, key, err := r.Current()
	return key, err
}

// Current returns the user id and a copy of the key as one snapshot, so a
// concurrent user switch cannot pair one user's id with another's key.
func (r *Registry) Current() (string, []byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.userID == "" {
		return "", nil, common.ErrUnauthenticated
	}
	return r.userID, common.CloneBytes(r.key), nil
}
