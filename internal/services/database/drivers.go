package database

import (
	"fmt"

	"github.com/modelrelay/modelrelay/internal/models"
	"gorm.io/driver/clickhouse"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openDialector(config models.DatabaseConfig) (gorm.Dialector, string, error) {
	switch config.Type {
	case models.SQLite:
		if config.FilePath == "" {
			return nil, "", fmt.Errorf("file_path is required for SQLite")
		}
		return sqlite.Open(config.FilePath), "sqlite3", nil

	case models.PostgreSQL:
		dsn := config.DSN
		if dsn == "" {
			dsn = fmt.Sprintf(
				"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
				config.Host,
				config.Port,
				config.Username,
				config.Password,
				config.Database,
				sslMode(config.SSLMode),
			)
		}
		return postgres.Open(dsn), "postgres", nil

	case models.MySQL:
		dsn := config.DSN
		if dsn == "" {
			dsn = fmt.Sprintf(
				"%s:%s@tcp(%s:%d)/%s?parseTime=true",
				config.Username,
				config.Password,
				config.Host,
				config.Port,
				config.Database,
			)
		}
		return mysql.Open(dsn), "mysql", nil

	case models.ClickHouse:
		dsn := config.DSN
		if dsn == "" {
			dsn = fmt.Sprintf(
				"clickhouse://%s:%s@%s:%d/%s",
				config.Username,
				config.Password,
				config.Host,
				config.Port,
				config.Database,
			)
		}
		return clickhouse.New(clickhouse.Config{
			DSN:                    dsn,
			DefaultGranularity:     3,
			DefaultCompression:     "LZ4",
			DefaultIndexType:       "minmax",
			DefaultTableEngineOpts: "ENGINE=MergeTree() ORDER BY id",
		}), "clickhouse", nil

	default:
		return nil, "", fmt.Errorf("unsupported database type: %s", config.Type)
	}
}

func gormOptions(config models.DatabaseConfig) *gorm.Config {
	if config.Type == models.ClickHouse {
		// The ClickHouse driver has incomplete prepared statement support.
		// See: https://github.com/go-gorm/gorm/issues/7493
		return &gorm.Config{PrepareStmt: false}
	}
	return &gorm.Config{}
}

func sslMode(mode string) string {
	if mode == "" {
		return "disable"
	}
	return mode
}
