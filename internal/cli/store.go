package cli

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/backlog/internal/config"
	"github.com/xraph/backlog/store"
	"github.com/xraph/backlog/store/memory"
	"github.com/xraph/backlog/store/postgres"
	"github.com/xraph/backlog/store/redis"
	"github.com/xraph/backlog/store/sqlite"
)

// openStore connects to the configured backend and migrates it.
func openStore(ctx context.Context, cfg config.Store, logger *slog.Logger) (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch cfg.Driver {
	case config.DriverMemory:
		s = memory.New()
	case config.DriverSQLite:
		s, err = sqlite.Open(ctx, cfg.Path, sqlite.WithLogger(logger))
	case config.DriverPostgres:
		s, err = postgres.New(ctx, cfg.DSN, postgres.WithLogger(logger))
	case config.DriverRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		opts := []redis.Option{redis.WithLogger(logger)}
		if cfg.Prefix != "" {
			opts = append(opts, redis.WithPrefix(cfg.Prefix))
		}
		s = &ownedRedis{Store: redis.New(client, opts...), client: client}
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%s store unreachable: %w", cfg.Driver, err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// ownedRedis closes the client the CLI created.
type ownedRedis struct {
	*redis.Store
	client *goredis.Client
}

func (o *ownedRedis) Close() error { return o.client.Close() }
