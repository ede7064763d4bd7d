package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/lazydrop/lazydrop-billing/pkg/config"
	"github.com/lazydrop/lazydrop-billing/pkg/db"
	"github.com/lazydrop/lazydrop-billing/pkg/logger"
	"github.com/lazydrop/lazydrop-billing/pkg/migrate"
)

var errUsage = errors.New("usage")

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate only touch the filesystem.
	if handled, err := runFileCommand(*cmd, *dir, *name); handled {
		exitOnError(err)
		return
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"dir": *dir,
	})

	if cfg.DB.IsSQLite() {
		fmt.Fprintln(os.Stderr, "goose migrations target postgres; sqlite databases are migrated by the services in dev")
		os.Exit(1)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	logg.Info(ctx, "migrate ready")
	if err := runDBCommand(ctx, sqlDB, *cmd, *dir, *version); err != nil {
		_ = dbClient.Close()
		exitOnError(err)
	}
}

func runFileCommand(cmd, dir, name string) (bool, error) {
	switch cmd {
	case "create":
		if name == "" {
			return true, fmt.Errorf("%w: missing -name for create", errUsage)
		}
		path, err := migrate.CreateSQLMigration(dir, name)
		if err != nil {
			return true, fmt.Errorf("failed to create migration: %w", err)
		}
		fmt.Println("created migration:", path)
		return true, nil
	case "validate":
		if err := migrate.ValidateDir(dir); err != nil {
			return true, fmt.Errorf("migration validation failed: %w", err)
		}
		fmt.Println("migration validation passed")
		return true, nil
	default:
		return false, nil
	}
}

func runDBCommand(ctx context.Context, sqlDB *sql.DB, cmd, dir, version string) error {
	switch cmd {
	case "up", "down", "status":
	case "version":
		if version == "" {
			return fmt.Errorf("%w: missing -version for version command", errUsage)
		}
	default:
		return fmt.Errorf("%w: unknown -cmd value %q", errUsage, cmd)
	}

	runner, err := migrate.NewRunner(sqlDB, dir, os.Stdout)
	if err != nil {
		return err
	}
	if cmd == "version" {
		return runner.MigrateTo(ctx, version)
	}
	return runner.Apply(ctx, cmd)
}

func exitOnError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
