// Package store encrypts application values on their way to a raw
// key-value store. Keys are namespaced by the active user,
// "<userID>-<logicalKey>", and every value is sealed with that user's
// session key using the storage key as additional data.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/casekeeper/internal/client/metrics"
	"github.com/dmitrijs2005/casekeeper/internal/client/repositories/kv"
	"github.com/dmitrijs2005/casekeeper/internal/common"
	"github.com/dmitrijs2005/casekeeper/internal/cryptox"
	"github.com/dmitrijs2005/casekeeper/internal/logging"
)

// ErrNoChange returned from an Update callback skips the write.
var ErrNoChange = errors.New("no change")

var ErrClearUnsupported = errors.New("raw store cannot delete by prefix")

// ErrSessionChanged is returned for a context bound to a user other than
// the one of the active session.
var ErrSessionChanged = errors.New("session changed")

const defaultMaxAttempts = 8

// Sessions is the view of the session registry the store needs.
type Sessions interface {
	Current() (userID string, key []byte, err error)
	Abort(ctx context.Context, cause error)
}

// KeyVerifier checks a key against the user's verification marker.
type KeyVerifier interface {
	Verify(ctx context.Context, userID string, key []byte) bool
}

// Separator joins the user id and the logical key of a storage key. A user
// id must not contain it, otherwise "a" + "b-c" and "a-b" + "c" would share
// a storage key and a prefix delete of "a-" would reach into "a-b".
const Separator = "-"

func StorageKey(userID, logicalKey string) string {
	return UserPrefix(userID) + logicalKey
}

func UserPrefix(userID string) string {
	return userID + Separator
}

// ValidateUserID reports whether userID can namespace storage keys.
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: empty", common.ErrInvalidUserID)
	}
	if strings.Contains(userID, Separator) {
		return fmt.Errorf("%w: %q contains %q", common.ErrInvalidUserID, userID, Separator)
	}
	return nil
}

type boundUserKey struct{}

// BindUser pins ctx to userID. Store calls made with the returned context
// fail with ErrSessionChanged once another user's session is active, so
// work started for one user never touches the next user's records.
func BindUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, boundUserKey{}, userID)
}

type EncryptedStore struct {
	raw         kv.Repository
	sessions    Sessions
	verifier    KeyVerifier
	metrics     *metrics.Metrics
	log         logging.Logger
	maxAttempts int
}

type Option func(*EncryptedStore)

// WithVerifier makes a decryption failure re-check the session key. If the
// key no longer opens the marker the session is aborted.
func WithVerifier(v KeyVerifier) Option {
	return func(s *EncryptedStore) { s.verifier = v }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *EncryptedStore) { s.metrics = m }
}

// WithMaxAttempts bounds compare-and-swap retries of one write.
func WithMaxAttempts(n int) Option {
	return func(s *EncryptedStore) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func New(raw kv.Repository, sessions Sessions, log logging.Logger, opts ...Option) *EncryptedStore {
	s := &EncryptedStore{
		raw:         raw,
		sessions:    sessions,
		log:         log.With("module", "store"),
		maxAttempts: defaultMaxAttempts,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %w", common.ErrStorageUnavailable, err)
}

// current snapshots the session and checks it against the user ctx is
// bound to, if any. The caller wipes the returned key.
func (s *EncryptedStore) current(ctx context.Context) (string, []byte, error) {
	userID, key, err := s.sessions.Current()
	if err != nil {
		return "", nil, err
	}
	if want, ok := ctx.Value(boundUserKey{}).(string); ok && want != userID {
		common.WipeByteArray(key)
		return "", nil, fmt.Errorf("%w: bound to %s", ErrSessionChanged, want)
	}
	return userID, key, nil
}

// Get decrypts the value under logicalKey into v and reports whether it was
// found. A value that fails to decrypt is logged and reported as not found.
func (s *EncryptedStore) Get(ctx context.Context, logicalKey string, v any) (bool, error) {
	userID, key, err := s.current(ctx)
	if err != nil {
		return false, err
	}
	defer common.WipeByteArray(key)

	sk := StorageKey(userID, logicalKey)
	raw, err := s.raw.Get(ctx, sk)
	if err != nil {
		return false, storageErr(err)
	}
	if raw == nil {
		return false, nil
	}

	return s.open(ctx, userID, key, logicalKey, raw, v)
}

func (s *EncryptedStore) open(ctx context.Context, userID string, key []byte, logicalKey string, raw []byte, v any) (bool, error) {
	rec, err := unmarshalRecord(raw)
	if err == nil {
		err = cryptox.DecryptRecord(rec.Ciphertext, rec.Nonce, key, []byte(StorageKey(userID, logicalKey)), v)
	}
	if err == nil {
		return true, nil
	}

	s.metrics.DecryptFailed()
	s.log.Warn(ctx, "record could not be decrypted", "user", userID, "key", logicalKey, "error", err)

	if s.verifier != nil && !s.verifier.Verify(ctx, userID, key) {
		s.sessions.Abort(ctx, err)
		s.metrics.SessionAborted()
		return false, common.ErrUnauthenticated
	}
	return false, nil
}

// Set encrypts v under logicalKey, replacing any previous value.
func (s *EncryptedStore) Set(ctx context.Context, logicalKey string, v any) error {
	return s.update(ctx, logicalKey, func(func(any) (bool, error)) (any, error) {
		return v, nil
	})
}

// Remove deletes logicalKey. Removing an absent key is not an error.
func (s *EncryptedStore) Remove(ctx context.Context, logicalKey string) error {
	userID, key, err := s.current(ctx)
	if err != nil {
		return err
	}
	common.WipeByteArray(key)

	if err := s.raw.Delete(ctx, StorageKey(userID, logicalKey)); err != nil {
		return storageErr(err)
	}
	return nil
}

// Clear deletes every record of userID. It needs no session.
func (s *EncryptedStore) Clear(ctx context.Context, userID string) (int64, error) {
	return ClearUser(ctx, s.raw, userID)
}

// ClearUser deletes every record of userID from raw.
func ClearUser(ctx context.Context, raw kv.Repository, userID string) (int64, error) {
	if err := ValidateUserID(userID); err != nil {
		return 0, err
	}
	pd, ok := raw.(kv.PrefixDeleter)
	if !ok {
		return 0, ErrClearUnsupported
	}
	n, err := pd.DeletePrefix(ctx, UserPrefix(userID))
	if err != nil {
		return n, storageErr(err)
	}
	return n, nil
}

// Update runs a read-modify-write of logicalKey. fn gets the current value
// (zero and false when absent) and returns the value to store, or
// ErrNoChange to leave it. When the raw store supports compare-and-swap a
// concurrent writer makes fn run again on the newer value.
func Update[T any](ctx context.Context, s *EncryptedStore, logicalKey string, fn func(cur T, found bool) (T, error)) error {
	return s.update(ctx, logicalKey, func(decode func(any) (bool, error)) (any, error) {
		var cur T
		found, err := decode(&cur)
		if err != nil {
			return nil, err
		}
		return fn(cur, found)
	})
}

func (s *EncryptedStore) update(ctx context.Context, logicalKey string, fn func(decode func(any) (bool, error)) (any, error)) error {
	userID, key, err := s.current(ctx)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	sk := StorageKey(userID, logicalKey)
	swapper, canSwap := s.raw.(kv.Swapper)

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		raw, err := s.raw.Get(ctx, sk)
		if err != nil {
			return storageErr(err)
		}

		var version uint64
		if raw != nil {
			if prev, err := unmarshalRecord(raw); err == nil {
				version = prev.Version
			}
		}

		next, err := fn(func(v any) (bool, error) {
			if raw == nil {
				return false, nil
			}
			return s.open(ctx, userID, key, logicalKey, raw, v)
		})
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		if err != nil {
			return err
		}

		ciphertext, nonce, err := cryptox.EncryptRecord(next, key, []byte(sk))
		if err != nil {
			return fmt.Errorf("encrypt %s: %w", logicalKey, err)
		}
		enc, err := record{Version: version + 1, Nonce: nonce, Ciphertext: ciphertext}.marshal()
		if err != nil {
			return err
		}

		if !canSwap {
			if err := s.raw.Set(ctx, sk, enc); err != nil {
				return storageErr(err)
			}
			return nil
		}

		ok, err := swapper.CompareAndSwap(ctx, sk, raw, enc)
		if err != nil {
			return storageErr(err)
		}
		if ok {
			return nil
		}
		s.log.Debug(ctx, "concurrent write detected, retrying", "key", logicalKey, "attempt", attempt)
	}

	return fmt.Errorf("%w: %s", common.ErrVersionConflict, logicalKey)
}
