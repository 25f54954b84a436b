// Package keys manages per-user key material on a device: the KDF salt,
// key derivation from a password and the verification marker that tells
// a right password from a wrong one without touching user data.
//
// Salts and markers live unencrypted in the metadata store:
//
//	salt:<userID>    $argon2id$v=19$m=65536,t=1,p=4$<base64 salt>
//	verify:<userID>  nonce || AES-GCM("DECRYPT ME")
package keys

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/dmitrijs2005/casekeeper/internal/client/repositories/kv"
	"github.com/dmitrijs2005/casekeeper/internal/client/store"
	"github.com/dmitrijs2005/casekeeper/internal/common"
	"github.com/dmitrijs2005/casekeeper/internal/cryptox"
	"github.com/dmitrijs2005/casekeeper/internal/logging"
)

var ErrEmptyUserID = fmt.Errorf("%w: empty", common.ErrInvalidUserID)

// validateUserID rejects ids that records of the user could not be stored
// under without colliding with another user's.
func validateUserID(userID string) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	return store.ValidateUserID(userID)
}

func SaltKey(userID string) string   { return "salt:" + userID }
func MarkerKey(userID string) string { return "verify:" + userID }

type Deriver struct {
	meta   kv.Repository
	params cryptox.KDFParams
	log    logging.Logger
}

// NewDeriver returns a Deriver storing salts and markers in meta. params
// is the work factor for salts created from now on; existing salts keep
// the one they were created with.
func NewDeriver(meta kv.Repository, params cryptox.KDFParams, log logging.Logger) *Deriver {
	return &Deriver{meta: meta, params: params, log: log.With("module", "keys")}
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %w", common.ErrStorageUnavailable, err)
}

func (d *Deriver) loadSalt(ctx context.Context, userID string) (cryptox.Salt, bool, error) {
	raw, err := d.meta.Get(ctx, SaltKey(userID))
	if err != nil {
		return cryptox.Salt{}, false, storageErr(err)
	}
	if raw == nil {
		return cryptox.Salt{}, false, nil
	}
	salt, err := cryptox.ParseSalt(string(raw))
	if err != nil {
		return cryptox.Salt{}, true, fmt.Errorf("salt for %s: %w", userID, err)
	}
	return salt, true, nil
}

// EnsureSalt creates the user's salt unless one exists and reports whether
// it already existed. A stored salt is never replaced, not even a malformed
// one: a new salt would orphan everything encrypted under the old key.
func (d *Deriver) EnsureSalt(ctx context.Context, userID string) (bool, error) {
	if err := validateUserID(userID); err != nil {
		return false, err
	}

	_, exists, err := d.loadSalt(ctx, userID)
	if exists || err != nil {
		return exists, err
	}

	encoded := []byte(cryptox.NewSalt(d.params).String())

	if sw, ok := d.meta.(kv.Swapper); ok {
		created, err := sw.CompareAndSwap(ctx, SaltKey(userID), nil, encoded)
		if err != nil {
			return false, storageErr(err)
		}
		if !created {
			// Another process created it first; theirs wins.
			return true, nil
		}
	} else if err := d.meta.Set(ctx, SaltKey(userID), encoded); err != nil {
		return false, storageErr(err)
	}

	d.log.Info(ctx, "salt created", "user", userID)
	return false, nil
}

// DeriveKey runs the KDF over password with the user's stored salt.
func (d *Deriver) DeriveKey(ctx context.Context, userID string, password []byte) ([]byte, error) {
	salt, exists, err := d.loadSalt(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", common.ErrNoSalt, userID)
	}
	return cryptox.DeriveKey(password, salt), nil
}

func (d *Deriver) WriteVerificationMarker(ctx context.Context, userID string, key []byte) error {
	sealed, err := cryptox.Seal(key, []byte(common.VerificationText), []byte(MarkerKey(userID)))
	if err != nil {
		return err
	}
	if err := d.meta.Set(ctx, MarkerKey(userID), sealed); err != nil {
		return storageErr(err)
	}
	return nil
}

// Verify reports whether key opens the user's marker. Any failure, a
// missing marker included, yields false.
func (d *Deriver) Verify(ctx context.Context, userID string, key []byte) bool {
	sealed, err := d.meta.Get(ctx, MarkerKey(userID))
	if err != nil {
		d.log.Warn(ctx, "marker read failed", "user", userID, "error", err)
		return false
	}
	if sealed == nil {
		return false
	}

	plain, err := cryptox.Open(key, sealed, []byte(MarkerKey(userID)))
	if err != nil {
		return false
	}
	defer common.WipeByteArray(plain)

	return subtle.ConstantTimeCompare(plain, []byte(common.VerificationText)) == 1
}

func (d *Deriver) HasMarker(ctx context.Context, userID string) (bool, error) {
	sealed, err := d.meta.Get(ctx, MarkerKey(userID))
	if err != nil {
		return false, storageErr(err)
	}
	return sealed != nil, nil
}

// Forget removes the user's salt and marker. Data encrypted under the
// user's old key becomes unreadable for good.
func (d *Deriver) Forget(ctx context.Context, userID string) error {
	if err := ForgetUser(ctx, d.meta, userID); err != nil {
		return err
	}
	d.log.Info(ctx, "key material removed", "user", userID)
	return nil
}

// ForgetUser deletes userID's key material from meta. It exists apart from
// Forget so callers can run it against a transactional store.
func ForgetUser(ctx context.Context, meta kv.Repository, userID string) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if err := meta.Delete(ctx, MarkerKey(userID)); err != nil {
		return storageErr(err)
	}
	if err := meta.Delete(ctx, SaltKey(userID)); err != nil {
		return storageErr(err)
	}
	return nil
}
