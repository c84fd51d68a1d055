package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"

	"github.com/mailtmpl/internal/db"
)

const usage = `usage: migrate [-database-url URL] <command>

commands:
  up          apply all pending migrations
  down [N]    roll back N migrations (default 1)
  version     print the current schema version
`

func main() {
	_ = godotenv.Load()

	dbURL := flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	if *dbURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	m, err := db.NewMigrator(*dbURL)
	if err != nil {
		slog.Error("failed to open migrator", "err", err)
		os.Exit(1)
	}
	defer m.Close()

	if err := run(m, flag.Args()); err != nil {
		slog.Error("migration failed", "err", err)
		os.Exit(1)
	}
}

func run(m *migrate.Migrate, args []string) error {
	switch args[0] {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				return fmt.Errorf("down: invalid step count %q", args[1])
			}
			steps = n
		}
		if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Println("version: none")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("version: %d dirty: %t\n", version, dirty)
	return nil
}
