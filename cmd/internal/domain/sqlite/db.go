package sqlite

import (
	"time"
	"waitlist/cmd/internal/domain/entity"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Init opens (and migrates) the sqlite database at dbPath.
// Use ":memory:" for a throwaway database.
func Init(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	// SQLite only handles one writer at a time, a single connection keeps
	// every referral count-then-insert serialized too. It must be set before
	// migrating: each connection to ":memory:" is a separate database.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if dbPath != ":memory:" {
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := db.AutoMigrate(&entity.User{}, &entity.Referral{}); err != nil {
		return nil, err
	}

	return db, nil
}
