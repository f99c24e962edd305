package database

import (
	"testing"

	"github.com/axellelanca/trafficstats/internal/config"
	"github.com/axellelanca/trafficstats/internal/models"
)

func TestOpenAndMigrateSQLite(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = ":memory:"

	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer Close(db)

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	for _, model := range []any{&models.User{}, &models.Visitor{}, &models.TrafficStat{}} {
		if !db.Migrator().HasTable(model) {
			t.Errorf("expected table for %T", model)
		}
	}
	if !db.Migrator().HasIndex(&models.TrafficStat{}, "idx_traffic_stats_created_at") {
		t.Error("expected an index on traffic_stats.created_at")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Driver = "oracle"

	if _, err := Open(cfg); err == nil {
		t.Fatal("expected an error for an unsupported driver")
	}
}
