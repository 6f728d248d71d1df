package database

import (
	"fmt"

	"github.com/modelrelay/modelrelay/internal/models"
	"gorm.io/gorm"
)

type DB struct {
	*gorm.DB
	config     models.DatabaseConfig
	driverName string
}

// New opens a connection for the configured driver and verifies it with a
// ping. ClickHouse is intended for high-volume request logs; the relational
// drivers carry the full schema.
func New(config models.DatabaseConfig) (*DB, error) {
	dialector, driverName, err := openDialector(config)
	if err != nil {
		return nil, err
	}

	gormDB, err := gorm.Open(dialector, gormOptions(config))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", config.Type, err)
	}

	db := &DB{
		DB:         gormDB,
		config:     config,
		driverName: driverName,
	}

	db.setConnectionPool()

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping %s: %w", config.Type, err)
	}

	return db, nil
}

// Migrate creates or updates the schema for every persisted model.
func (db *DB) Migrate() error {
	return db.AutoMigrate(
		&models.User{},
		&models.APIKey{},
		&models.Conversation{},
		&models.ConversationMessage{},
		&models.RequestLog{},
	)
}

func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (db *DB) Ping() error {
	if db.DB == nil {
		return fmt.Errorf("database not connected")
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (db *DB) DriverName() string {
	return db.driverName
}

func (db *DB) setConnectionPool() {
	if db.DB == nil {
		return
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return
	}

	if db.config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(db.config.MaxOpenConns)
	}
	if db.config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(db.config.MaxIdleConns)
	}
}
