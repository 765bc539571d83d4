// Bambu Farm - print farm gateway
//
// This is the main entry point for the Bambu Farm gateway. The gateway
// fronts a fleet of Bambu Lab printers on the local network and exposes
// them through a single gRPC service:
//   - Roster streaming of configured printers
//   - Per-printer report/command relay over the printers' MQTT brokers
//   - File upload over the printers' implicit FTPS servers
//
// An operational HTTP server exposes health, roster, session and
// Prometheus endpoints.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ellenhp/bambu-farm/internal/api"
	"github.com/ellenhp/bambu-farm/internal/farm"
	"github.com/ellenhp/bambu-farm/internal/infrastructure/config"
	"github.com/ellenhp/bambu-farm/internal/infrastructure/ftps"
	"github.com/ellenhp/bambu-farm/internal/infrastructure/logging"
	"github.com/ellenhp/bambu-farm/internal/infrastructure/metrics"
	"github.com/ellenhp/bambu-farm/internal/printer"
	"github.com/ellenhp/bambu-farm/internal/rpc"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "bambufarm.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Bambu Farm gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	registry, err := printer.BuildRoster(cfg.Printers, log)
	if err != nil {
		return fmt.Errorf("building printer roster: %w", err)
	}
	log.Info("printer roster loaded", "printers", registry.Len())

	collector := metrics.New()
	collector.SetPrinters(registry.Len())

	gateway, err := farm.New(farm.Options{
		Registry:   registry,
		Dialer:     &mqttDialer{cfg: cfg.Device, logger: log.Component("mqtt")},
		Transferer: &ftpsTransferer{client: ftps.New(cfg.FTPS)},
		Sessions:   cfg.Sessions,
		Uploads:    cfg.Uploads,
		Logger:     log.Component("farm"),
		Metrics:    collector,
	})
	if err != nil {
		return fmt.Errorf("creating farm: %w", err)
	}
	defer func() {
		if closeErr := gateway.Close(); closeErr != nil {
			log.Error("error closing farm", "error", closeErr)
		}
	}()

	if cfg.HTTP.Enabled {
		opsServer, apiErr := api.New(api.Deps{
			Config:  cfg.HTTP,
			Logger:  log.Component("api"),
			Farm:    gateway,
			Metrics: collector.Handler(),
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := opsServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := opsServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	grpcServer := rpc.NewServer(cfg.Server, rpc.NewService(gateway), log.Component("rpc"), collector)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return grpcServer.ListenAndServe(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, cleaning up")

		// Closing the farm ends every open stream so the graceful stop
		// does not wait on long-lived subscribers.
		if closeErr := gateway.Close(); closeErr != nil {
			log.Error("error closing farm", "error", closeErr)
		}
		grpcServer.Stop(context.WithoutCancel(gctx))
		return nil
	})

	log.Info("initialisation complete", "address", cfg.Server.Address)
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("Bambu Farm gateway stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses BAMBUFARM_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("BAMBUFARM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
