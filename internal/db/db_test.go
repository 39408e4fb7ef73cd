package db

import (
	"testing"

	"github.com/friendsincode/clipdeck/internal/config"
	"github.com/friendsincode/clipdeck/internal/models"
)

func TestConnectSQLiteAndMigrate(t *testing.T) {
	cfg := &config.Config{DBBackend: config.DatabaseSQLite, DBDSN: ":memory:"}
	database, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer Close(database)

	if err := Migrate(database); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	for _, table := range []string{"waveform_cache", "export_records"} {
		if !database.Migrator().HasTable(table) {
			t.Errorf("table %s missing", table)
		}
	}

	rec := models.ExportRecord{ID: "e1", SessionID: "s1", OutputName: "a.mp3", Path: "copy"}
	if err := database.Create(&rec).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	var got models.ExportRecord
	if err := database.First(&got, "id = ?", "e1").Error; err != nil {
		t.Fatalf("query: %v", err)
	}
	if got.OutputName != "a.mp3" {
		t.Fatalf("record = %+v", got)
	}
	UpdateConnectionMetrics(database)
}

func TestConnectUnknownBackend(t *testing.T) {
	if _, err := Connect(&config.Config{DBBackend: "oracle"}); err == nil {
		t.Fatal("expected error")
	}
}
