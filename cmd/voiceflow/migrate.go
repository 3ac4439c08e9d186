package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/BaSui01/voiceflow/config"
	"github.com/BaSui01/voiceflow/internal/migration"

	"go.uber.org/zap"
)

// =============================================================================
// 🗃️ 数据库迁移命令
// =============================================================================

// runMigrate handles the migrate command and its subcommands
func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}

	subcommand := args[0]
	subargs := args[1:]

	switch subcommand {
	case "up":
		withMigrator(subargs, func(m *migration.Migrator) error { return m.Up() })
	case "down":
		withMigrator(subargs, func(m *migration.Migrator) error { return m.Down() })
	case "reset":
		withMigrator(subargs, func(m *migration.Migrator) error { return m.DownAll() })
	case "status", "version":
		withMigrator(subargs, printMigrationVersion)
	case "goto":
		runMigrateGoto(subargs)
	case "force":
		runMigrateForce(subargs)
	case "help", "-h", "--help":
		printMigrateUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", subcommand)
		printMigrateUsage()
		os.Exit(1)
	}
}

// printMigrateUsage prints the usage information for migrate command
func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  voiceflow migrate <subcommand> [options]

Subcommands:
  up        Apply all pending migrations
  down      Rollback the last migration
  status    Show current migration version
  version   Alias for status
  goto      Migrate to a specific version
  force     Force set migration version (use with caution)
  reset     Rollback all migrations
  help      Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --driver <type>     Database driver: postgres, sqlite (default: from config)
  --dsn <url>         Database connection string (default: from config)

Examples:
  voiceflow migrate up
  voiceflow migrate up --config /etc/voiceflow/config.yaml
  voiceflow migrate down
  voiceflow migrate status
  voiceflow migrate goto 1
  voiceflow migrate force 0
  voiceflow migrate reset`)
}

// createMigrator creates a migrator from command line flags
func createMigrator(fs *flag.FlagSet, args []string) (*migration.Migrator, error) {
	configPath := fs.String("config", "", "Path to config file")
	driver := fs.String("driver", "", "Database driver (postgres, sqlite)")
	dsn := fs.String("dsn", "", "Database connection string")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// 显式指定 driver+dsn 时直接使用，否则从配置推导
	if *driver == "" || *dsn == "" {
		loader := config.NewLoader()
		if *configPath != "" {
			loader = loader.WithConfigPath(*configPath)
		}
		cfg, err := loader.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if *driver == "" {
			*driver = cfg.Database.Driver
		}
		if *dsn == "" {
			*dsn = cfg.Database.DSN()
		}
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	return migration.New(migration.Config{
		Driver:      *driver,
		DatabaseURL: *dsn,
	}, logger)
}

// withMigrator runs fn against a migrator built from args, exiting on failure.
func withMigrator(args []string, fn func(*migration.Migrator) error) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	migrator, err := createMigrator(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	if err := fn(migrator); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
}

// printMigrationVersion shows the current migration version and dirty flag
func printMigrationVersion(m *migration.Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if version == 0 {
		fmt.Println("No migrations applied")
		return nil
	}
	fmt.Printf("Current version: %d (dirty: %v)\n", version, dirty)
	return nil
}

// runMigrateGoto migrates to a specific version
func runMigrateGoto(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: voiceflow migrate goto <version>\n")
		os.Exit(1)
	}

	version, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid version number: %s\n", args[0])
		os.Exit(1)
	}

	withMigrator(args[1:], func(m *migration.Migrator) error {
		return m.Goto(uint(version))
	})
}

// runMigrateForce forces the migration version
func runMigrateForce(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: voiceflow migrate force <version>\n")
		os.Exit(1)
	}

	version, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid version number: %s\n", args[0])
		os.Exit(1)
	}

	withMigrator(args[1:], func(m *migration.Migrator) error {
		return m.Force(int(version))
	})
}
