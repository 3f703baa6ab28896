package host

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/nerrad567/occupancy-core/migrations"

	"github.com/nerrad567/occupancy-core/internal/infrastructure/database"
	"github.com/nerrad567/occupancy-core/internal/occupancy"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "occupancy.db"),
		WALMode:     true,
		BusyTimeout: 1,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return NewStore(db)
}

func TestStoreLoadEmpty(t *testing.T) {
	store := openStore(t)

	_, found, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if found {
		t.Fatal("empty store reported a snapshot")
	}
}

func TestStoreSaveAndLoad(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	until := "2025-01-01T12:10:00Z"
	snapshot := occupancy.Snapshot{
		"kitchen": {
			IsOccupied:      true,
			OccupiedUntil:   &until,
			ActiveOccupants: []string{"Mike"},
			ActiveHolds:     []string{"radar"},
			LockState:       "unlocked",
		},
	}

	if err := store.Save(ctx, snapshot, time.Now()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, found, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !found {
		t.Fatal("snapshot not found after save")
	}

	entry, ok := loaded["kitchen"]
	if !ok {
		t.Fatal("kitchen missing from loaded snapshot")
	}
	if !entry.IsOccupied || entry.OccupiedUntil == nil || *entry.OccupiedUntil != until {
		t.Fatalf("entry = %+v, want occupied until %s", entry, until)
	}
	if len(entry.ActiveHolds) != 1 || entry.ActiveHolds[0] != "radar" {
		t.Fatalf("active_holds = %v, want [radar]", entry.ActiveHolds)
	}
}

func TestStoreSaveOverwrites(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	first := occupancy.Snapshot{"kitchen": {IsOccupied: true, LockState: "unlocked"}}
	second := occupancy.Snapshot{"bedroom": {IsOccupied: true, LockState: "unlocked"}}

	if err := store.Save(ctx, first, time.Now()); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	if err := store.Save(ctx, second, time.Now()); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	loaded, _, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := loaded["kitchen"]; ok {
		t.Fatal("overwritten snapshot still contains kitchen")
	}
	if _, ok := loaded["bedroom"]; !ok {
		t.Fatal("latest snapshot missing bedroom")
	}
}
