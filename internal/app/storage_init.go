package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
	"github.com/vladislavdragonenkov/campusmarket/internal/storage/memory"
	"github.com/vladislavdragonenkov/campusmarket/internal/storage/postgres"
)

// runtimeDependencies — хранилище и сопутствующие ручки, выбранные по конфигурации.
type runtimeDependencies struct {
	store domain.Store
	// pg не nil только для postgres-драйвера (health check, Close).
	pg *postgres.Store
}

// Close освобождает ресурсы хранилища.
func (d *runtimeDependencies) Close() {
	if d.pg != nil {
		_ = d.pg.Close()
	}
}

// initRuntimeDependencies создаёт хранилище по выбранному драйверу.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		logger.Info("using in-memory storage")
		return &runtimeDependencies{store: memory.NewStore()}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres storage driver requires MARKET_POSTGRES_DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		logger.Info("using postgres storage")
		return &runtimeDependencies{store: store, pg: store}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}
}
