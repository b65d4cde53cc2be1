package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"morcore/internal/infrastructure/persistence/gormstore/model"
)

func setupDBCache(t *testing.T) *DBCache {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "cache.sqlite")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	if err := db.AutoMigrate(&model.CacheEntry{}); err != nil {
		t.Fatalf("auto migrate cache_entries: %v", err)
	}

	return NewDBCache(db)
}

func TestDBCacheSetGetDelete(t *testing.T) {
	cache := setupDBCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "subject:https://subjects.example.org/1", `{"priority":"high"}`, 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	value, found, err := cache.Get(ctx, "subject:https://subjects.example.org/1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found || value != `{"priority":"high"}` {
		t.Fatalf("Get() = %q, found=%v", value, found)
	}

	if err := cache.Set(ctx, "subject:https://subjects.example.org/1", `{"priority":"low"}`, 0); err != nil {
		t.Fatalf("Set(update) error = %v", err)
	}
	value, found, err = cache.Get(ctx, "subject:https://subjects.example.org/1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found || value != `{"priority":"low"}` {
		t.Fatalf("Get() after update = %q, found=%v", value, found)
	}

	if err := cache.Delete(ctx, "subject:https://subjects.example.org/1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	_, found, err = cache.Get(ctx, "subject:https://subjects.example.org/1")
	if err != nil {
		t.Fatalf("Get() after delete error = %v", err)
	}
	if found {
		t.Fatalf("Get() expected found=false after delete")
	}
}

func TestDBCacheExpiry(t *testing.T) {
	cache := setupDBCache(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	if err := cache.Set(ctx, "token:fixer", "abc", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, found, _ := cache.Get(ctx, "token:fixer"); !found {
		t.Fatalf("Get() before expiry found=false")
	}

	now = now.Add(2 * time.Minute)
	if _, found, _ := cache.Get(ctx, "token:fixer"); found {
		t.Fatalf("Get() after expiry found=true")
	}

	purged, err := cache.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if purged != 1 {
		t.Fatalf("Purge() = %d, want 1", purged)
	}
}

func TestDBCacheRejectsEmptyKey(t *testing.T) {
	cache := setupDBCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, " ", "v", 0); err == nil {
		t.Fatalf("Set() expected error for empty key")
	}
	if _, _, err := cache.Get(ctx, ""); err == nil {
		t.Fatalf("Get() expected error for empty key")
	}
	if err := cache.Delete(ctx, ""); err == nil {
		t.Fatalf("Delete() expected error for empty key")
	}
}

func TestNewRedisCacheRejectsInvalidURL(t *testing.T) {
	if _, err := NewRedisCache(context.Background(), "not-a-redis-url"); err == nil {
		t.Fatalf("NewRedisCache() expected error for invalid url")
	}
}
