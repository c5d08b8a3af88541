package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/onyx-report/onyx-cli/internal/cost"
	"github.com/onyx-report/onyx-cli/internal/fci"
	"github.com/onyx-report/onyx-cli/internal/store"
)

// initStore opens the configured store and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}

	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{MaxConns: cfg.Store.MaxConns})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func newAggregator() *fci.Aggregator {
	return fci.NewAggregator(cost.NewCalculator(cfg.Costs), cfg.FCI)
}
