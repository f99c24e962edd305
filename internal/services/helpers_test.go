package services

import (
	"context"
	"testing"
	"time"

	"github.com/axellelanca/trafficstats/internal/config"
	"github.com/axellelanca/trafficstats/internal/database"
	"github.com/axellelanca/trafficstats/internal/models"
	"github.com/axellelanca/trafficstats/internal/repository"
	"gorm.io/gorm"
)

var msk = time.FixedZone("MSK", 3*60*60)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := &config.Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = ":memory:"
	db, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func addStat(t *testing.T, repo repository.TrafficRepository, stat models.TrafficStat) {
	t.Helper()
	if err := repo.CreateTrafficStat(context.Background(), &stat); err != nil {
		t.Fatalf("create traffic stat: %v", err)
	}
}

func addUser(t *testing.T, repo repository.UserRepository, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, FirstName: "First", LastName: username, Email: username + "@example.com"}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func strPtr(s string) *string { return &s }
