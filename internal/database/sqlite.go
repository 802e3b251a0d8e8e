package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/migrator"
	"gorm.io/gorm/schema"
)

// NewSQLiteDB opens a SQLite database. SQLite allows a single writer, so
// the pool is pinned to one connection and transactions serialize.
func NewSQLiteDB(dsn string, gormCfg *gorm.Config) (*gorm.DB, error) {
	db, err := gorm.Open(SQLiteDialector(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

// SQLiteDialector returns a SQLite dialector that declares decimal columns
// as text. A decimal(p,s) column would otherwise get NUMERIC affinity and
// be stored as a binary float.
func SQLiteDialector(dsn string) gorm.Dialector {
	return textDecimalDialector{Dialector: sqlite.Open(dsn).(*sqlite.Dialector)}
}

type textDecimalDialector struct {
	*sqlite.Dialector
}

func (d textDecimalDialector) DataTypeOf(field *schema.Field) string {
	if strings.HasPrefix(strings.ToLower(string(field.DataType)), "decimal") {
		return "text"
	}
	return d.Dialector.DataTypeOf(field)
}

func (d textDecimalDialector) Migrator(db *gorm.DB) gorm.Migrator {
	return sqlite.Migrator{Migrator: migrator.Migrator{Config: migrator.Config{
		DB:                          db,
		Dialector:                   d,
		CreateIndexAfterCreateTable: true,
	}}}
}
