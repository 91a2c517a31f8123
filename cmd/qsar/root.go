package main

import (
	"fmt"

	"qsar/internal/config"
	"qsar/internal/version"

	"github.com/spf13/cobra"
)

var (
	// configPath is the --config flag value
	configPath string
	// envFile is the --env-file flag value
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "qsar",
	Short: "qsar - a minimal raw-TCP HTTP server",
	Long: `qsar serves a small fixed route table over raw TCP: one request per
connection, one response, then close. Every request is written to a daily
access log, and everything else that happens goes to a daily incident log.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(version.String() + "\n")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Config file (json, toml or yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"Dotenv file loaded before config; existing variables win")
}

// loadConfig resolves the effective config: .env, then file, then env vars.
func loadConfig() (*config.LoadResult, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	result, err := config.LoadConfigWithDetails(configPath)
	if err != nil {
		return nil, err
	}
	if err := result.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return result, nil
}
