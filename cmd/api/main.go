package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/inaiurai/marketplace/internal/config"
)

// cfgFile is the optional config file given with --config.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "marketplace",
	Short: "Services marketplace API",
	Long: `marketplace runs the task, bid, booking and dispute lifecycle API
together with the background workers that deliver notifications and match
taskers to posted tasks.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (env vars and .env still apply)")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads configuration and installs the JSON logger as default.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}
