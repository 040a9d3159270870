package centraldb

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bowlofstew/nimbus.io/pkg/config"
	"github.com/bowlofstew/nimbus.io/pkg/gateway"
)

// ErrUnknownCollection is returned by Resolve when no collection with
// the given name exists.
var ErrUnknownCollection = errors.New("centraldb: unknown collection")

// ErrUnknownKey is returned by UserForKey when the presented key id has
// no matching row.
var ErrUnknownKey = errors.New("centraldb: unknown key id")

// Store is a gorm-backed client against the central database: user,
// collection, and HMAC signing-key resolution, plus the supplemented
// Collection CRUD surface from original_source/web_server/application.py.
// It implements pkg/gateway's CollectionResolver interface.
type Store struct {
	db *gorm.DB
}

// New opens the central database, runs pending migrations, and returns
// a ready Store. Migrations run unconditionally on startup rather than
// behind a flag — the central database is a single, cluster-wide
// resource the gateway owns, not a shared multi-tenant schema other
// applications also migrate.
func New(ctx context.Context, cfg config.CentralDBConfig) (*Store, error) {
	if err := runMigrations(ctx, cfg.DSN); err != nil {
		return nil, err
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("centraldb: connect: %w", err)
	}

	return &Store{db: db}, nil
}

// DB returns the underlying gorm connection, for tests that need to
// seed rows outside Store's own CRUD surface (e.g. users, which Store
// never creates itself — user provisioning is out of this repo's
// scope per spec §1).
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Resolve maps a collection name to its owning user and numeric id.
func (s *Store) Resolve(ctx context.Context, name string) (userID int64, collectionID int64, err error) {
	var c Collection
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, 0, ErrUnknownCollection
		}
		return 0, 0, fmt.Errorf("centraldb: resolve %q: %w", name, err)
	}
	return c.UserID, c.ID, nil
}

// UserForKey returns the owning user id and HMAC signing secret for a
// presented key_id, the Go equivalent of sql_authenticator.py's
// "select key from diy_key where key_id=%s".
func (s *Store) UserForKey(ctx context.Context, keyID string) (userID int64, secret []byte, err error) {
	var k Key
	if err := s.db.WithContext(ctx).Where("key_id = ?", keyID).First(&k).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil, ErrUnknownKey
		}
		return 0, nil, fmt.Errorf("centraldb: key lookup %q: %w", keyID, err)
	}
	return k.UserID, k.Secret, nil
}

// CreateCollection creates a new, non-default collection for userID.
func (s *Store) CreateCollection(ctx context.Context, userID int64, name string) (collectionID int64, err error) {
	c := Collection{UserID: userID, Name: name}
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		return 0, fmt.Errorf("centraldb: create collection %q: %w", name, err)
	}
	return c.ID, nil
}

// DeleteCollection deletes a collection by name. Deleting the user's
// default collection is forbidden — the caller (pkg/gateway) checks
// IsDefaultCollection first, per original_source's
// "can't delete default collection" rule, but Store also refuses it as
// a second line of defense.
func (s *Store) DeleteCollection(ctx context.Context, userID int64, name string) error {
	var c Collection
	if err := s.db.WithContext(ctx).Where("user_id = ? AND name = ?", userID, name).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUnknownCollection
		}
		return fmt.Errorf("centraldb: delete collection %q: %w", name, err)
	}
	if c.IsDefault {
		return fmt.Errorf("centraldb: cannot delete default collection %q", name)
	}
	if err := s.db.WithContext(ctx).Delete(&c).Error; err != nil {
		return fmt.Errorf("centraldb: delete collection %q: %w", name, err)
	}
	return nil
}

// ListCollections lists every collection owned by userID.
func (s *Store) ListCollections(ctx context.Context, userID int64) ([]gateway.CollectionInfo, error) {
	var rows []Collection
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("centraldb: list collections for user %d: %w", userID, err)
	}
	out := make([]gateway.CollectionInfo, len(rows))
	for i, c := range rows {
		out[i] = gateway.CollectionInfo{Name: c.Name, ID: c.ID, IsDefault: c.IsDefault}
	}
	return out, nil
}

// SpaceUsage returns the collection's current byte usage. The
// bytes_used column is maintained by an out-of-repo reconciliation job
// against node-local indexes — the gateway only ever reads it.
func (s *Store) SpaceUsage(ctx context.Context, collectionID int64) (bytes int64, err error) {
	var c Collection
	if err := s.db.WithContext(ctx).Select("bytes_used").Where("id = ?", collectionID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrUnknownCollection
		}
		return 0, fmt.Errorf("centraldb: space usage for collection %d: %w", collectionID, err)
	}
	return c.BytesUsed, nil
}

// IsDefaultCollection reports whether collectionID is its user's
// default collection.
func (s *Store) IsDefaultCollection(ctx context.Context, collectionID int64) (bool, error) {
	var c Collection
	if err := s.db.WithContext(ctx).Select("is_default").Where("id = ?", collectionID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrUnknownCollection
		}
		return false, fmt.Errorf("centraldb: is-default check for collection %d: %w", collectionID, err)
	}
	return c.IsDefault, nil
}
