package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rodgomesc/terminal-hook/internal/bridge"
	"github.com/rodgomesc/terminal-hook/internal/capture"
	"github.com/rodgomesc/terminal-hook/internal/config"
	"github.com/rodgomesc/terminal-hook/internal/event"
	"github.com/rodgomesc/terminal-hook/internal/host"
	"github.com/rodgomesc/terminal-hook/internal/logging"
	"github.com/rodgomesc/terminal-hook/internal/router"
)

var serveShells int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the capture service and protocol bridge",
	Long: `Run the capture service and its loopback JSON-RPC bridge until
interrupted.

With --shells N the server also spawns N local PTY shells and captures
their output, which makes a self-contained setup for development. Without
it, the server only captures sessions the host environment registers.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&serveShells, "shells", 0, "number of local PTY shells to spawn")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	bus := event.NewBus()

	service := capture.NewService(bus,
		capture.WithCapacity(cfg.Capture.BufferLines),
		capture.WithPIDResolveTimeout(cfg.Capture.PIDResolveTimeout()),
		capture.WithLogger(logger),
	)
	defer service.Close()

	rt := router.New(service,
		router.WithDefaultOutputLines(cfg.Capture.DefaultOutputLines),
		router.WithLogger(logger),
	)

	server := bridge.New(bridgeAddr(cfg), rt, bridge.WithLogger(logger))
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start bridge: %w", err)
	}
	defer server.Close()

	if serveShells > 0 {
		shells := host.New(bus, host.WithLogger(logger))
		defer shells.Close()
		for i := 0; i < serveShells; i++ {
			name := fmt.Sprintf("shell-%d", i+1)
			if _, err := shells.Open(name); err != nil {
				return fmt.Errorf("failed to spawn %s: %w", name, err)
			}
		}
		logger.Info("local shells spawned", "count", serveShells)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "bridge listening on %s\n", server.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("shutting down", "signal", sig.String())
	return nil
}
