// Package migration manages schema migrations for the voiceflow tables
// (agent_configs, contacts) using golang-migrate with embedded SQL files.
// This package is internal and should not be imported by external projects.
package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	_ "github.com/lib/pq"        // postgres driver
	_ "modernc.org/sqlite"       // sqlite driver (pure Go)
)

//go:embed migrations/postgres/*.sql
var postgresFS embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteFS embed.FS

// Config 迁移配置
type Config struct {
	// Driver: postgres 或 sqlite
	Driver string

	// DatabaseURL 连接串（sqlite 时为文件路径）
	DatabaseURL string

	// TableName 迁移版本表名，默认 schema_migrations
	TableName string
}

// Migrator 封装 golang-migrate 的生命周期
type Migrator struct {
	migrate *migrate.Migrate
	db      *sql.DB
	logger  *zap.Logger
}

// New 创建迁移器
func New(cfg Config, logger *zap.Logger) (*Migrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TableName == "" {
		cfg.TableName = "schema_migrations"
	}

	var (
		sqlDriverName string
		fsys          fs.FS
		path          string
	)
	switch cfg.Driver {
	case "postgres":
		sqlDriverName = "postgres"
		fsys, path = postgresFS, "migrations/postgres"
	case "sqlite":
		sqlDriverName = "sqlite"
		fsys, path = sqliteFS, "migrations/sqlite"
	default:
		return nil, fmt.Errorf("unsupported migration driver: %q", cfg.Driver)
	}

	db, err := sql.Open(sqlDriverName, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	var dbDriver database.Driver
	switch cfg.Driver {
	case "postgres":
		dbDriver, err = postgres.WithInstance(db, &postgres.Config{MigrationsTable: cfg.TableName})
	case "sqlite":
		dbDriver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{MigrationsTable: cfg.TableName})
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create database driver: %w", err)
	}

	srcDriver, err := iofs.New(fsys, path)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, cfg.Driver, dbDriver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create migrator: %w", err)
	}

	return &Migrator{
		migrate: m,
		db:      db,
		logger:  logger.With(zap.String("component", "migration")),
	}, nil
}

// Up 应用所有待执行的迁移
func (m *Migrator) Up() error {
	err := m.migrate.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("no pending migrations")
		return nil
	}
	return err
}

// Down 回滚最后一次迁移
func (m *Migrator) Down() error {
	err := m.migrate.Steps(-1)
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// DownAll 回滚全部迁移
func (m *Migrator) DownAll() error {
	err := m.migrate.Down()
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// Goto 迁移到指定版本
func (m *Migrator) Goto(version uint) error {
	err := m.migrate.Migrate(version)
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// Force 强制设置版本号，不执行任何迁移
func (m *Migrator) Force(version int) error {
	return m.migrate.Force(version)
}

// Version 返回当前版本与 dirty 标记
func (m *Migrator) Version() (uint, bool, error) {
	v, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Close 释放资源
func (m *Migrator) Close() error {
	srcErr, dbErr := m.migrate.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}
