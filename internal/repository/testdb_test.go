package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/charter-booking/internal/db"
	"github.com/Leganyst/charter-booking/internal/model"
)

// newTestDB: отдельная in-memory база SQLite на тест.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := db.OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := model.AutoMigrate(gdb); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql DB: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return gdb
}

func createCharter(t *testing.T, gdb *gorm.DB) *model.Charter {
	t.Helper()

	c := &model.Charter{CaptainID: uuid.New(), Name: "Sea Breeze", BasePriceCents: 50000}
	if err := NewGormCharterRepository(gdb).Create(context.Background(), c); err != nil {
		t.Fatalf("create charter: %v", err)
	}
	return c
}
