package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/filedepot/filedepot/internal/logger"
	"github.com/filedepot/filedepot/pkg/api"
	"github.com/filedepot/filedepot/pkg/config"
	"github.com/filedepot/filedepot/pkg/metrics"
	"github.com/filedepot/filedepot/pkg/registry"
	"github.com/filedepot/filedepot/pkg/repository/fsrepo"
	"github.com/filedepot/filedepot/pkg/server"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the FileDepot server",
	Long: `Start the FileDepot TCP server and, if enabled, the HTTP
introspection server.

The server loads its configuration from the file given by --config, or
from the default location if none is specified. Run "filedepot init"
first to generate a starter configuration file.`,
	RunE: runStart,
}

var (
	startPort       int
	startMaxClients int
	startRepoPath   string
)

func init() {
	startCmd.Flags().IntVar(&startPort, "port", 0, "TCP listen port (overrides config)")
	startCmd.Flags().IntVar(&startMaxClients, "max-clients", 0, "maximum concurrent clients (overrides config)")
	startCmd.Flags().StringVar(&startRepoPath, "repo", "", "repository directory (overrides config)")
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyStartFlags(cfg)

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Starting FileDepot", "version", Version, "commit", Commit)

	repo, err := fsrepo.New(cfg.Repository.Path)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}
	defer repo.Close()

	reg := registry.New()

	var m *metrics.ServerMetrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
	}

	srv := server.New(cfg.Server, repo, reg, m)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Shut everything down on SIGINT/SIGTERM.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		sig := <-sigChan
		logger.Info("Received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	errChan := make(chan error, 2)

	if cfg.API.Enabled {
		apiSrv := api.NewServer(cfg.API, reg)
		go func() {
			if err := apiSrv.Start(ctx); err != nil {
				errChan <- err
			}
		}()
	}

	go func() {
		errChan <- srv.Serve(ctx)
	}()

	select {
	case err := <-errChan:
		cancel()
		return err
	case <-ctx.Done():
		return <-errChan
	}
}

// applyStartFlags layers command-line overrides on top of the loaded
// configuration.
func applyStartFlags(cfg *config.Config) {
	if startPort > 0 {
		cfg.Server.Port = startPort
	}
	if startMaxClients > 0 {
		cfg.Server.MaxClients = startMaxClients
	}
	if startRepoPath != "" {
		cfg.Repository.Path = startRepoPath
	}
}
