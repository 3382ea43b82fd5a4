package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/taskdock/internal/config"
	"github.com/bryanchriswhite/taskdock/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "taskdock",
		Short: "TaskDock - window state aggregation for a desktop dock",
		Long: `TaskDock watches the window system and publishes a stable, user-ordered
view of every open window, grouped per display and virtual desktop and as
one aggregate list.

Features:
  • Enumerate windows, displays and desktops via X11/EWMH
  • Remember drag-and-drop ordering across refreshes
  • Pin windows and applications (YAML or SQLite storage)
  • Keep windows out from under the dock strip
  • REST API and WebSocket stream for the dock UI`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/taskdock/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8437)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig opens the config file, applies flag overrides and sets up
// logging.
func loadConfig() (*config.Manager, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if port := viper.GetInt("server_port"); port > 0 {
		configMgr.SetPort(port)
	}
	if level := viper.GetString("log_level"); level != "" {
		configMgr.SetLogLevel(level)
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	return configMgr, nil
}
