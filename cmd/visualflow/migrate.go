package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/BaSui01/visualflow/config"
	"github.com/BaSui01/visualflow/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// runMigrate dispatches the migrate subcommands
func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}

	subcommand, subargs := args[0], args[1:]
	switch subcommand {
	case "up":
		withMigrator("migrate up", subargs, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunUp(ctx)
		})
	case "down":
		withMigrator("migrate down", subargs, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunDown(ctx)
		})
	case "status":
		withMigrator("migrate status", subargs, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunStatus(ctx)
		})
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
  visualflow migrate <subcommand> [options]

Subcommands:
  up        Apply all pending migrations
  down      Rollback the last migration
  status    Show migration status
  force     Force set migration version (use with caution)
  help      Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  visualflow migrate up
  visualflow migrate up --config /etc/visualflow/config.yaml
  visualflow migrate up --db-type sqlite --db-url "file:visualflow.db?mode=rwc"
  visualflow migrate status
  visualflow migrate force 1`)
}

// createMigrator creates a migrator from command line flags
func createMigrator(fs *flag.FlagSet, args []string) (*migration.DefaultMigrator, error) {
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *dbType != "" && *dbURL != "" {
		t, err := migration.ParseDatabaseType(*dbType)
		if err != nil {
			return nil, err
		}
		return migration.NewMigrator(&migration.Config{DatabaseType: t, DatabaseURL: *dbURL})
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if *dbType != "" {
		cfg.Database.Driver = *dbType
	}
	return migration.NewMigratorFromDatabaseConfig(cfg.Database)
}

// withMigrator builds the migrator from flags and runs fn, exiting on failure
func withMigrator(name string, args []string, fn func(ctx context.Context, cli *migration.CLI) error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	migrator, err := createMigrator(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}

	err = fn(context.Background(), migration.NewCLI(migrator))
	_ = migrator.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", name, err)
		os.Exit(1)
	}
}

// runMigrateForce forces the migration version
func runMigrateForce(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: visualflow migrate force <version>\n")
		os.Exit(1)
	}

	version, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid version number: %s\n", args[0])
		os.Exit(1)
	}

	withMigrator("migrate force", args[1:], func(ctx context.Context, cli *migration.CLI) error {
		return cli.RunForce(ctx, int(version))
	})
}
