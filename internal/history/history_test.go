package history

import (
	"context"
	"testing"
	"time"

	"github.com/friendsincode/clipdeck/internal/config"
	"github.com/friendsincode/clipdeck/internal/db"
	"github.com/friendsincode/clipdeck/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.Connect(&config.Config{DBBackend: config.DatabaseSQLite, DBDSN: ":memory:"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(database) })
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(database)
}

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	records := []*models.ExportRecord{
		{Subject: "alice", OutputName: "one.mp3", CreatedAt: base},
		{Subject: "alice", OutputName: "two.mp3", CreatedAt: base.Add(time.Minute)},
		{Subject: "bob", OutputName: "three.m4a", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, rec := range records {
		if err := store.Record(ctx, rec); err != nil {
			t.Fatalf("record: %v", err)
		}
		if rec.ID == "" {
			t.Fatal("record id not assigned")
		}
	}

	got, err := store.List(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].OutputName != "two.mp3" || got[1].OutputName != "one.mp3" {
		t.Fatalf("unexpected alice history: %+v", got)
	}

	all, err := store.List(ctx, "", 2)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 || all[0].OutputName != "three.m4a" {
		t.Fatalf("unexpected history: %+v", all)
	}
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	old := time.Now().Add(-48 * time.Hour).UTC()

	_ = store.Record(ctx, &models.ExportRecord{Subject: "a", CreatedAt: old})
	_ = store.Record(ctx, &models.ExportRecord{Subject: "a"})

	n, err := store.Prune(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
	left, _ := store.List(ctx, "a", 0)
	if len(left) != 1 {
		t.Fatalf("left %d records", len(left))
	}
}
