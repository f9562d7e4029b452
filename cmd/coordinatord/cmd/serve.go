package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nodecoord/coordinator/internal/catalog"
	"github.com/nodecoord/coordinator/internal/catalog/dynamostore"
	"github.com/nodecoord/coordinator/internal/catalog/memstore"
	"github.com/nodecoord/coordinator/internal/coordinator"
	"github.com/nodecoord/coordinator/internal/idgen"
	"github.com/nodecoord/coordinator/internal/killer/ipckiller"
	"github.com/nodecoord/coordinator/internal/metrics"
	"github.com/nodecoord/coordinator/internal/nodestate"
	"github.com/nodecoord/coordinator/internal/resolver/ipcresolver"
	"github.com/nodecoord/coordinator/pkg/config"
	"github.com/nodecoord/coordinator/pkg/logger"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "start the coordinator and wait for submissions",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithField("component", "coordinatord")

	cfg, source, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if hostname != "" {
		cfg.Hostname = hostname
	}
	if archiveRoot != "" {
		cfg.ArchiveRoot = archiveRoot
		// Load already normalized the file/env-derived value; a flag
		// applied afterward needs the same treatment before stage 2's
		// archiveLocation := cfg.ArchiveRoot + id relies on it.
		config.NormalizeArchiveRoot(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config after CLI overrides: %w", err)
	}
	log.Info("configuration loaded", "source", source, "hostname", cfg.Hostname, "catalogBackend", cfg.Catalog.Backend)

	store, closeStore, err := newCatalogStore(cmd.Context(), *cfg)
	if err != nil {
		return fmt.Errorf("build catalog store: %w", err)
	}
	defer closeStore()

	res := ipcresolver.New(cfg.Transport.ResolverSocket)
	defer res.Close()

	kill := ipckiller.New(cfg.Transport.KillerSocket)
	defer kill.Close()

	ids := idgen.New()
	defer ids.Close()

	// The transport that accepts submissions and calls coord.Submit /
	// coord.Kill is out of scope for this repository; coordinatord here
	// wires and holds the coordinator ready for that transport to drive.
	_ = coordinator.New(store, res, nodestate.New(), kill, metrics.NewInMemorySink(), ids, *cfg)

	log.Info("coordinator is ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("received shutdown signal, stopping", "signal", sig)
	return nil
}

func newCatalogStore(ctx context.Context, cfg config.Config) (catalog.Store, func(), error) {
	switch cfg.Catalog.Backend {
	case "dynamodb":
		store, err := dynamostore.New(ctx, dynamostore.Config{
			Region:            cfg.Catalog.Region,
			JobsTable:         cfg.Catalog.JobsTable,
			ClustersTable:     cfg.Catalog.ClustersTable,
			CommandsTable:     cfg.Catalog.CommandsTable,
			ApplicationsTable: cfg.Catalog.ApplicationsTable,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		return memstore.New(), func() {}, nil
	}
}
