package snaps

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sequentialIDs struct {
	next int
}

func (g *sequentialIDs) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("snap-%03d", g.next), nil
}

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time {
	return c.now
}

func (c *manualClock) Advance(step time.Duration) {
	c.now = c.now.Add(step)
}

type staticGraph struct {
	followed map[string][]string
	calls    int
	err      error
}

func (g *staticGraph) FollowedEmails(_ context.Context, _ string, username string) ([]string, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.followed[username], nil
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snaps.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestStore(t *testing.T) (*Store, *manualClock, *gorm.DB) {
	t.Helper()
	db := openTestDatabase(t)
	clock := &manualClock{now: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)}
	store, err := NewStore(StoreConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: &sequentialIDs{},
	})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	return store, clock, db
}

func mustCreate(t *testing.T, store *Store, clock *manualClock, input NewSnap) Snap {
	t.Helper()
	clock.Advance(time.Minute)
	snap, err := store.Create(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	return snap
}

func snapIDs(snaps []Snap) []string {
	ids := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		ids = append(ids, snap.ID)
	}
	return ids
}
