// Package services contains application services for the casekeeper client.
// This file defines the authentication service: offline login against the
// locally stored salt and verification marker, logout, and logout-and-clear
// of a user's local data.
package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/casekeeper/internal/client/keys"
	"github.com/dmitrijs2005/casekeeper/internal/client/repositories/kv"
	"github.com/dmitrijs2005/casekeeper/internal/client/session"
	"github.com/dmitrijs2005/casekeeper/internal/client/store"
	"github.com/dmitrijs2005/casekeeper/internal/common"
	"github.com/dmitrijs2005/casekeeper/internal/logging"
)

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - Login: derive the user's key from the password and the local salt,
//     check it against the verification marker and start a session. The
//     first login of a user on this device creates the salt and marker.
//   - Logout: end the session. Local data stays on the device.
//   - ClearOfflineData: delete the current user's records and key material,
//     then end the session.
//
// All methods must honor context cancellation/timeouts.
type AuthService interface {
	Login(ctx context.Context, userID string, password []byte) error
	Logout(ctx context.Context)
	ClearOfflineData(ctx context.Context) (int64, error)
}

// SessionListener is told when a session has started, so work buffered
// before login can move to the user.
type SessionListener interface {
	SessionStarted(ctx context.Context) error
}

// Stores gives access to the raw metadata and record stores in one unit of
// work. client.Storage implements it.
type Stores interface {
	Atomically(ctx context.Context, fn func(ctx context.Context, metadata, records kv.Repository) error) error
}

type authService struct {
	deriver  *keys.Deriver
	sessions *session.Registry
	stores   Stores
	listener SessionListener
	log      logging.Logger
}

// NewAuthService constructs an AuthService. listener may be nil.
func NewAuthService(d *keys.Deriver, sessions *session.Registry, stores Stores, listener SessionListener, log logging.Logger) AuthService {
	return &authService{
		deriver:  d,
		sessions: sessions,
		stores:   stores,
		listener: listener,
		log:      log.With("module", "auth"),
	}
}

// Login authenticates userID offline. A wrong password leaves no session,
// even if another user was logged in before.
func (a *authService) Login(ctx context.Context, userID string, password []byte) error {
	if userID == "" {
		return keys.ErrEmptyUserID
	}
	if err := store.ValidateUserID(userID); err != nil {
		return err
	}

	existed, err := a.deriver.EnsureSalt(ctx, userID)
	if err != nil {
		return fmt.Errorf("ensure salt: %w", err)
	}

	key, err := a.deriver.DeriveKey(ctx, userID, password)
	if err != nil {
		return fmt.Errorf("derive key: %w", err)
	}
	defer common.WipeByteArray(key)

	if err := a.checkKey(ctx, userID, key, existed); err != nil {
		a.sessions.End()
		return err
	}

	a.sessions.Start(userID, key)
	a.log.Info(ctx, "session started", "user", userID)

	if a.listener != nil {
		if err := a.listener.SessionStarted(ctx); err != nil {
			// Logged in regardless; buffered operations stay buffered.
			a.log.Warn(ctx, "post-login processing failed", "user", userID, "error", err)
		}
	}
	return nil
}

// checkKey verifies key against the user's marker. A user without a
// marker gets one: either this is their first login, or an earlier first
// login stopped between writing the salt and the marker.
func (a *authService) checkKey(ctx context.Context, userID string, key []byte, existed bool) error {
	if existed {
		has, err := a.deriver.HasMarker(ctx, userID)
		if err != nil {
			return err
		}
		if has {
			if !a.deriver.Verify(ctx, userID, key) {
				a.log.Warn(ctx, "login rejected", "user", userID)
				return common.ErrWrongCredentials
			}
			return nil
		}
		a.log.Warn(ctx, "verification marker missing, writing a new one", "user", userID)
	}
	return a.deriver.WriteVerificationMarker(ctx, userID, key)
}

func (a *authService) Logout(ctx context.Context) {
	if uid, err := a.sessions.CurrentUserID(); err == nil {
		a.log.Info(ctx, "session ended", "user", uid)
	}
	a.sessions.End()
}

// ClearOfflineData removes everything the current user keeps on this
// device and returns how many records were deleted. The next login of the
// user starts from a new salt.
func (a *authService) ClearOfflineData(ctx context.Context) (int64, error) {
	userID, err := a.sessions.CurrentUserID()
	if err != nil {
		return 0, err
	}

	var removed int64
	err = a.stores.Atomically(ctx, func(ctx context.Context, metadata, records kv.Repository) error {
		n, err := store.ClearUser(ctx, records, userID)
		if err != nil {
			return err
		}
		removed = n
		return keys.ForgetUser(ctx, metadata, userID)
	})
	if err != nil {
		return 0, fmt.Errorf("clear offline data: %w", err)
	}

	a.sessions.End()
	a.log.Info(ctx, "offline data cleared", "user", userID, "records", removed)
	return removed, nil
}
