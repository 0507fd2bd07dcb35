package commands

import (
	"fmt"
	"log/slog"

	"github.com/Sumatoshi-tech/importcost/internal/bundle"
	"github.com/Sumatoshi-tech/importcost/internal/config"
	"github.com/Sumatoshi-tech/importcost/internal/cost"
	"github.com/Sumatoshi-tech/importcost/internal/observability"
	"github.com/Sumatoshi-tech/importcost/internal/sizecache"
)

// buildService wires the shared pipeline from the resolved configuration.
func buildService(cfg *config.Config, metrics *observability.Metrics) (*cost.Service, error) {
	logger := slog.Default()

	cache, err := sizecache.New(sizecache.Config{
		Dir:            cfg.Cache.Dir,
		MemoryEntries:  cfg.Cache.MemoryItems,
		BundlerVersion: bundle.BundlerVersion(),
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create size cache: %w", err)
	}

	sizer, err := bundle.New(bundle.Config{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("create sizer: %w", err)
	}

	return cost.NewService(cost.ServiceConfig{
		Cache:   cache,
		Sizer:   sizer,
		Metrics: metrics,
		Logger:  logger,
	}), nil
}

// requestConfig maps the resolved configuration onto per-request options.
func requestConfig(cfg *config.Config) cost.Config {
	return cost.Config{
		Concurrent:  cfg.Concurrent,
		MaxCallTime: cfg.MaxCallTime(),
	}
}
