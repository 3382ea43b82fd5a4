package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/taskdock/internal/api"
	"github.com/bryanchriswhite/taskdock/internal/logger"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the TaskDock server",
	Long: `Start the TaskDock pipeline with X11 window monitoring.

The server provides a REST API and a WebSocket stream with the ordered
window view, and accepts reorder, pin and window intents.`,
	Example: `  # Start server on default port (8437)
  taskdock serve

  # Start server on custom port
  taskdock serve --port 9090

  # Start with specific config file
  taskdock serve --config /path/to/config.yaml

  # Start with debug logging
  taskdock serve --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	log := logger.WithComponent("serve")

	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Str("pins_backend", cfg.Pins.Backend).
		Msg("Configuration loaded")

	rt, err := newDaemon(cfg, modeServe)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.notifier.Start(); err != nil {
		return fmt.Errorf("failed to start change notifier: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(rt.driver, rt.hub, rt.pins, rt.overlay)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.driver.Run(gctx)
	})
	g.Go(func() error {
		return server.Start(gctx, cfg.ServerPort)
	})

	log.Info().
		Int("port", cfg.ServerPort).
		Str("api", fmt.Sprintf("http://localhost:%d/api", cfg.ServerPort)).
		Msg("TaskDock is running, press Ctrl+C to stop")

	err = g.Wait()
	log.Info().Msg("Shutting down gracefully")
	return err
}
