package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/BaSui01/videoflow/config"
	"github.com/BaSui01/videoflow/internal/migration"
)

// =============================================================================
// Database Migration Commands
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
		runMigrateCommand("up", subargs, nil, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunUp(ctx)
		})
	case "down":
		var all *bool
		runMigrateCommand("down", subargs,
			func(fs *flag.FlagSet) { all = fs.Bool("all", false, "Rollback all migrations") },
			func(ctx context.Context, cli *migration.CLI) error {
				if *all {
					return cli.RunDownAll(ctx)
				}
				return cli.RunDown(ctx)
			})
	case "status":
		runMigrateCommand("status", subargs, nil, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunStatus(ctx)
		})
	case "version":
		runMigrateCommand("version", subargs, nil, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunVersion(ctx)
		})
	case "info":
		runMigrateCommand("info", subargs, nil, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunInfo(ctx)
		})
	case "steps":
		n, rest, ok := leadingInt(subargs)
		if !ok || n == 0 {
			fmt.Fprintln(os.Stderr, "Usage: videoflow migrate steps <n>  (negative n rolls back)")
			os.Exit(1)
		}
		runMigrateCommand("steps", rest, nil, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunSteps(ctx, n)
		})
	case "goto":
		v, rest, ok := leadingInt(subargs)
		if !ok || v < 0 {
			fmt.Fprintln(os.Stderr, "Usage: videoflow migrate goto <version>")
			os.Exit(1)
		}
		runMigrateCommand("goto", rest, nil, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunGoto(ctx, uint(v))
		})
	case "force":
		v, rest, ok := leadingInt(subargs)
		if !ok {
			fmt.Fprintln(os.Stderr, "Usage: videoflow migrate force <version>")
			os.Exit(1)
		}
		runMigrateCommand("force", rest, nil, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunForce(ctx, v)
		})
	case "reset":
		runMigrateCommand("reset", subargs, nil, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunDownAll(ctx)
		})
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
  videoflow migrate <subcommand> [options]

Subcommands:
  up        Apply all pending migrations
  down      Rollback the last migration
  status    Show migration status
  version   Show current migration version
  info      Show migration summary
  steps     Apply n migrations (negative rolls back)
  goto      Migrate to a specific version
  force     Force set migration version (use with caution)
  reset     Rollback all migrations
  help      Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Interrupting a running command (Ctrl-C) stops gracefully after the
in-flight migration finishes, so the schema is never left dirty.

Examples:
  videoflow migrate up
  videoflow migrate up --config /etc/videoflow/config.yaml
  videoflow migrate down
  videoflow migrate status
  videoflow migrate steps -2
  videoflow migrate goto 1
  videoflow migrate force 0
  videoflow migrate reset`)
}

// leadingInt pulls the leading positional argument off args and parses
// it as an integer; the remainder goes through normal flag parsing.
func leadingInt(args []string) (int, []string, bool) {
	if len(args) < 1 {
		return 0, nil, false
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, nil, false
	}
	return n, args[1:], true
}

// runMigrateCommand carries the boilerplate shared by every subcommand:
// flag setup, migrator construction and teardown, signal-aware context.
func runMigrateCommand(name string, args []string, bind func(*flag.FlagSet), action func(context.Context, *migration.CLI) error) {
	if err := migrateCommand(name, args, bind, action); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", name, err)
		os.Exit(1)
	}
}

func migrateCommand(name string, args []string, bind func(*flag.FlagSet), action func(context.Context, *migration.CLI) error) error {
	fs := flag.NewFlagSet("migrate "+name, flag.ExitOnError)
	if bind != nil {
		bind(fs)
	}

	migrator, err := createMigrator(fs, args)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return action(ctx, migration.NewCLI(migrator))
}

// createMigrator creates a migrator from command line flags
func createMigrator(fs *flag.FlagSet, args []string) (*migration.DefaultMigrator, error) {
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// If db-type and db-url are provided, use them directly
	if *dbType != "" && *dbURL != "" {
		return migration.NewMigratorFromURL(*dbType, *dbURL)
	}

	// Otherwise, load from config
	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Override database type if specified
	if *dbType != "" {
		cfg.Database.Driver = *dbType
	}

	return migration.NewMigratorFromDatabaseConfig(cfg.Database)
}
