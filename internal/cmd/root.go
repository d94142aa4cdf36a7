package cmd

import (
	"net"
	"strconv"
	"strings"

	"github.com/rodgomesc/terminal-hook/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "terminal-hook",
	Short: "Terminal output capture bridge",
	Long: `Terminal-hook captures terminal session output into bounded,
normalized line buffers and serves it over a loopback JSON-RPC bridge.
Clients query sessions through the stdio proxy or directly over TCP.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/terminal-hook/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("$HOME/.config/terminal-hook")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("TERMINAL_HOOK")
	// Replace dots with underscores for nested keys in env vars
	// e.g., TERMINAL_HOOK_BRIDGE_PORT for bridge.port
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// bridgeAddr returns the bridge dial/listen address from config.
func bridgeAddr(cfg *config.Config) string {
	return net.JoinHostPort(cfg.Bridge.Host, strconv.Itoa(cfg.Bridge.Port))
}
