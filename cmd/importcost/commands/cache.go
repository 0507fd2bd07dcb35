package commands

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/importcost/internal/bundle"
	"github.com/Sumatoshi-tech/importcost/internal/config"
	"github.com/Sumatoshi-tech/importcost/internal/sizecache"
)

// NewCacheCommand creates the cache command group.
func NewCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the size cache",
	}

	cmd.AddCommand(cacheStatsCmd(), cacheClearCmd())

	return cmd
}

func openCache(configPath string) (*sizecache.Cache, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	cache, err := sizecache.New(sizecache.Config{
		Dir:            cfg.Cache.Dir,
		MemoryEntries:  cfg.Cache.MemoryItems,
		BundlerVersion: bundle.BundlerVersion(),
	})
	if err != nil {
		return nil, fmt.Errorf("open size cache: %w", err)
	}

	return cache, nil
}

func cacheStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show disk cache location and entry count",
		RunE: func(_ *cobra.Command, _ []string) error {
			cache, err := openCache(configPath)
			if err != nil {
				return err
			}

			stats := cache.Stats()

			fmt.Fprintf(os.Stdout, "path:    %s\n", cache.DiskPath())
			fmt.Fprintf(os.Stdout, "entries: %d\n", stats.DiskEntries)

			if info, statErr := os.Stat(cache.DiskPath()); statErr == nil {
				fmt.Fprintf(os.Stdout, "size:    %s\n", humanize.Bytes(uint64(info.Size())))
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path")

	return cmd
}

func cacheClearCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the on-disk size cache",
		RunE: func(_ *cobra.Command, _ []string) error {
			cache, err := openCache(configPath)
			if err != nil {
				return err
			}

			if err := cache.RemoveDiskTier(); err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "removed %s\n", cache.DiskPath())

			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path")

	return cmd
}
