package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"marketdata/internal/provider"
)

// cacheRow is the on-disk shape of an Entry.
type cacheRow struct {
	CacheKey  string `gorm:"primaryKey;size:128"`
	Category  string `gorm:"index;size:32"`
	Result    []byte
	WrittenAt time.Time `gorm:"index"`
	TTLNanos  int64
}

func (cacheRow) TableName() string { return "cache_entries" }

// SQLiteBackend persists entries in a single SQLite file (pure Go driver).
type SQLiteBackend struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if needed) the cache database at path.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if err := db.AutoMigrate(&cacheRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate cache database: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (s *SQLiteBackend) Get(ctx context.Context, key string) (Entry, bool, error) {
	var row cacheRow
	err := s.db.WithContext(ctx).Where("cache_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("sqlite get: %w", err)
	}
	e, err := row.entry()
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (s *SQLiteBackend) Set(ctx context.Context, key string, e Entry) error {
	raw, err := json.Marshal(e.Result)
	if err != nil {
		return fmt.Errorf("encoding entry %s: %w", key, err)
	}
	row := cacheRow{
		CacheKey:  key,
		Category:  string(e.Category),
		Result:    raw,
		WrittenAt: e.CreatedAt.UTC(),
		TTLNanos:  int64(e.TTL),
	}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("sqlite set: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("cache_key = ?", key).Delete(&cacheRow{}).Error; err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}

// Scan reads rows in batches ordered by key.
func (s *SQLiteBackend) Scan(ctx context.Context, fn func(Entry) bool) error {
	var rows []cacheRow
	stop := false
	res := s.db.WithContext(ctx).FindInBatches(&rows, 200, func(tx *gorm.DB, _ int) error {
		for _, row := range rows {
			e, err := row.entry()
			if err != nil {
				continue
			}
			if !fn(e) {
				stop = true
				return errStopScan
			}
		}
		return nil
	})
	if res.Error != nil && !(stop && errors.Is(res.Error, errStopScan)) {
		return fmt.Errorf("sqlite scan: %w", res.Error)
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteBackend) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var errStopScan = errors.New("scan stopped")

func (r cacheRow) entry() (Entry, error) {
	var res provider.Result
	if err := json.Unmarshal(r.Result, &res); err != nil {
		return Entry{}, fmt.Errorf("decoding entry %s: %w", r.CacheKey, err)
	}
	return Entry{
		Key:       r.CacheKey,
		Category:  provider.Category(r.Category),
		Result:    &res,
		CreatedAt: r.WrittenAt,
		TTL:       time.Duration(r.TTLNanos),
	}, nil
}
