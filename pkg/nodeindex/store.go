package nodeindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bowlofstew/nimbus.io/pkg/config"
	"github.com/bowlofstew/nimbus.io/pkg/gateway"
)

// Store is a glebarez/sqlite-backed client against the node-local
// index. It implements pkg/gateway's NodeIndex interface.
type Store struct {
	db *gorm.DB
}

// New opens (creating if necessary) the sqlite file at cfg.Path and
// migrates its schema via gorm.AutoMigrate — the node-local index is a
// single-writer file the gateway process owns outright, unlike the
// shared central database, so there's no golang-migrate ceremony here.
func New(cfg config.NodeIndexConfig) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("nodeindex: create directory for %q: %w", cfg.Path, err)
	}

	dsn := cfg.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("nodeindex: open %q: %w", cfg.Path, err)
	}

	if err := db.AutoMigrate(&segment{}); err != nil {
		return nil, fmt.Errorf("nodeindex: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// liveSegment fetches the newest non-tombstoned row for (collectionID, key).
func (s *Store) liveSegment(ctx context.Context, collectionID int64, key string) (*segment, error) {
	var seg segment
	err := s.db.WithContext(ctx).
		Where("collection_id = ? AND key = ? AND tombstone = ?", collectionID, key, false).
		Order("timestamp DESC").
		First(&seg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &seg, nil
}

// SizeLookup satisfies destroyer.SizeLookup's signature: 0, nil if no
// live row exists for the key.
func (s *Store) SizeLookup(ctx context.Context, collectionID int64, key string) (int64, error) {
	seg, err := s.liveSegment(ctx, collectionID, key)
	if err != nil {
		return 0, fmt.Errorf("nodeindex: size lookup %q: %w", key, err)
	}
	if seg == nil {
		return 0, nil
	}
	return seg.FileSize, nil
}

// Stat returns the live row's metadata for a head_key request, or
// gwerrors.ErrNotFound-compatible nil if the key has no live row.
func (s *Store) Stat(ctx context.Context, collectionID int64, key string) (*gateway.KeyStat, error) {
	seg, err := s.liveSegment(ctx, collectionID, key)
	if err != nil {
		return nil, fmt.Errorf("nodeindex: stat %q: %w", key, err)
	}
	if seg == nil {
		return nil, nil
	}
	return &gateway.KeyStat{
		Size:        seg.FileSize,
		FileMD5:     seg.FileMD5,
		FileAdler32: seg.FileAdler32,
		Timestamp:   seg.Timestamp,
	}, nil
}

// ListMatch returns every live key in collectionID starting with
// prefix, grounded on original_source/web_server/listmatcher.py's
// "select key from ... where collection_id = %s and file_tombstone =
// false and key like %s".
func (s *Store) ListMatch(ctx context.Context, collectionID int64, prefix string) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).
		Model(&segment{}).
		Where("collection_id = ? AND tombstone = ? AND key LIKE ?", collectionID, false, prefix+"%").
		Order("key").
		Pluck("key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("nodeindex: listmatch %q: %w", prefix, err)
	}
	return keys, nil
}

// RecordArchive inserts the node-local row for a newly completed
// archive, per spec §4.9 ("Application ... invokes RecordArchive on
// success").
func (s *Store) RecordArchive(ctx context.Context, collectionID int64, key string, timestamp int64, size int64) error {
	seg := segment{
		CollectionID: collectionID,
		Key:          key,
		Timestamp:    timestamp,
		FileSize:     size,
	}
	if err := s.db.WithContext(ctx).Create(&seg).Error; err != nil {
		return fmt.Errorf("nodeindex: record archive %q: %w", key, err)
	}
	return nil
}

// RecordDestroy tombstones every live row for (collectionID, key) as of
// timestamp, leaving the history intact rather than deleting rows — the
// same append-only discipline the original segment/tombstone design
// uses.
func (s *Store) RecordDestroy(ctx context.Context, collectionID int64, key string, timestamp int64) error {
	err := s.db.WithContext(ctx).
		Model(&segment{}).
		Where("collection_id = ? AND key = ? AND tombstone = ?", collectionID, key, false).
		Updates(map[string]any{"tombstone": true}).Error
	if err != nil {
		return fmt.Errorf("nodeindex: record destroy %q: %w", key, err)
	}
	return s.db.WithContext(ctx).Create(&segment{
		CollectionID: collectionID,
		Key:          key,
		Timestamp:    timestamp,
		Tombstone:    true,
	}).Error
}
