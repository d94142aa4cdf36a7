package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rodgomesc/terminal-hook/internal/config"
	"github.com/rodgomesc/terminal-hook/internal/logging"
	"github.com/rodgomesc/terminal-hook/internal/proxy"
)

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Bridge stdio frames to a running server",
	Long: `Read newline-delimited JSON-RPC frames from stdin, forward each to
the bridge over TCP, and write the responses to stdout.

Intended to be spawned by clients that speak stdio only. Diagnostics go
to the log file (or stderr), never stdout.`,
	RunE: runProxy,
}

func init() {
	rootCmd.AddCommand(proxyCmd)
}

func runProxy(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	p := proxy.New(bridgeAddr(cfg),
		proxy.WithTimeout(cfg.Proxy.Timeout()),
		proxy.WithLogger(logger),
	)
	return p.Run(os.Stdin, os.Stdout)
}
