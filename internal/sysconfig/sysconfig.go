// Package sysconfig implements SysConfig (§3, §6): auth data (hashed
// root key + per-user hashed credentials) and host data
// (startup_counter, settings_version), persisted separately from the
// data batch journal in an embedded pebble KV store, round-tripped
// through BSON — the teacher's own document-encoding idiom
// (pkg/storage/bson.go) applied to the one part of this engine that
// is genuinely schema-free.
package sysconfig

import (
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/crypto/bcrypt"

	"github.com/gridrow/dbengine/internal/qerr"
)

// sysConfigKey is the single pebble key SysConfig is stored under; the
// store is not used for anything else.
var sysConfigKey = []byte("sysconfig")

// AuthData holds the hashed root key and the hashed per-user
// credential map.
type AuthData struct {
	RootKeyHash []byte            `bson:"root_key_hash"`
	Users       map[string][]byte `bson:"users"`
}

// HostData holds boot bookkeeping unrelated to authentication.
type HostData struct {
	StartupCounter  uint64 `bson:"startup_counter"`
	SettingsVersion uint64 `bson:"settings_version"`
}

// SysConfig is the full persisted record; equality is structural
// (§3's "Equality is structural" requirement): Equal compares the
// fields themselves, not their BSON encoding.
type SysConfig struct {
	Auth AuthData `bson:"auth"`
	Host HostData `bson:"host"`
}

// Equal reports whether two SysConfigs are structurally identical.
func (s SysConfig) Equal(other SysConfig) bool {
	return reflect.DeepEqual(s, other)
}

// Store is the pebble-backed persistence layer for SysConfig.
type Store struct {
	db *pebble.DB
}

// Open opens (creating if absent) the pebble store at dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "sysconfig: open pebble store")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save persists cfg, replacing whatever was stored before.
func (s *Store) Save(cfg SysConfig) error {
	b, err := bson.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "sysconfig: marshal")
	}
	if err := s.db.Set(sysConfigKey, b, pebble.Sync); err != nil {
		return errors.Wrap(err, "sysconfig: pebble set")
	}
	return nil
}

// Load reads back the persisted SysConfig. found is false if nothing
// has been saved yet (a fresh boot).
func (s *Store) Load() (cfg SysConfig, found bool, err error) {
	v, closer, getErr := s.db.Get(sysConfigKey)
	if errors.Is(getErr, pebble.ErrNotFound) {
		return SysConfig{}, false, nil
	}
	if getErr != nil {
		return SysConfig{}, false, errors.Wrap(getErr, "sysconfig: pebble get")
	}
	defer closer.Close()
	if err := bson.Unmarshal(v, &cfg); err != nil {
		return SysConfig{}, false, errors.Wrap(err, "sysconfig: unmarshal")
	}
	return cfg, true, nil
}

// HashPassword implements the password-hashing external-interface
// contract (§6): hash(password, cost) -> bytes.
func HashPassword(password string, cost int) ([]byte, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, errors.Wrap(err, "sysconfig: hash password")
	}
	return b, nil
}

// VerifyPassword implements verify(password, hashed) -> bool.
func VerifyPassword(password string, hashed []byte) bool {
	return bcrypt.CompareHashAndPassword(hashed, []byte(password)) == nil
}

// VerifyRoot checks password against the stored root key hash.
func (a AuthData) VerifyRoot(password string) error {
	if !VerifyPassword(password, a.RootKeyHash) {
		return qerr.Wrap(qerr.ErrAuth, "sysconfig: bad root credentials")
	}
	return nil
}

// VerifyUser checks password against a named user's stored hash.
func (a AuthData) VerifyUser(name, password string) error {
	hashed, ok := a.Users[name]
	if !ok {
		return qerr.Wrapf(qerr.ErrAuth, "sysconfig: unknown user %q", name)
	}
	if !VerifyPassword(password, hashed) {
		return qerr.Wrapf(qerr.ErrAuth, "sysconfig: bad credentials for user %q", name)
	}
	return nil
}
