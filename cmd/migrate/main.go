package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/campusmarket/internal/storage/postgres"
)

const commandTimeout = 30 * time.Second

func main() {
	var (
		direction string
		steps     int
		dsn       string
	)

	flag.StringVar(&direction, "direction", "up", "migration direction: up|down|status")
	flag.IntVar(&steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: MARKET_POSTGRES_DSN)")
	flag.Parse()

	if strings.TrimSpace(dsn) == "" {
		dsn = strings.TrimSpace(os.Getenv("MARKET_POSTGRES_DSN"))
	}
	if dsn == "" {
		fail("MARKET_POSTGRES_DSN (or -dsn) is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := runMigration(ctx, dsn, direction, steps); err != nil {
		fail("%v", err)
	}
}

// runMigration применяет миграции и печатает итоговое состояние схемы.
func runMigration(ctx context.Context, dsn, direction string, steps int) error {
	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	direction = strings.ToLower(strings.TrimSpace(direction))
	switch direction {
	case "up":
		if err := store.MigrateUp(ctx, steps); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
	case "down":
		if steps <= 0 {
			steps = 1
		}
		if err := store.MigrateDown(ctx, steps); err != nil {
			return fmt.Errorf("migrate down failed: %w", err)
		}
	case "status":
	default:
		return fmt.Errorf("unsupported direction: %s (use up|down|status)", direction)
	}

	version, count, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	fmt.Printf("migrate %s ok: version=%d applied=%d\n", direction, version, count)

	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
