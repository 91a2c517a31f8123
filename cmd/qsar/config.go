package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"qsar/internal/config"
)

var (
	configFormat     string
	configInitFormat string
	configInitForce  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage qsar configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Display the configuration qsar would run with after applying the
config file, .env and QSAR_* environment variables.

Examples:
  qsar config show
  qsar config show --format json
  qsar -c qsar.toml config show`,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default config file",
	Long: `Write the default configuration. The format follows the file extension
unless --format is given.

Examples:
  qsar config init                  # qsar.toml
  qsar config init qsar.yaml
  qsar config init --format json -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

var configEnvCmd = &cobra.Command{
	Use:   "env",
	Short: "List supported environment variables",
	Run:   runConfigEnv,
}

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "human", "Output format (json, human)")
	configInitCmd.Flags().StringVar(&configInitFormat, "format", "", "Config format (json, toml, yaml)")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configEnvCmd)
	rootCmd.AddCommand(configCmd)
}

// ConfigShowResponse is the response format for config show
type ConfigShowResponse struct {
	ConfigPath   string               `json:"configPath,omitempty"`
	UsedDefaults bool                 `json:"usedDefaults"`
	EnvOverrides []config.EnvOverride `json:"envOverrides,omitempty"`
	Config       *config.Config       `json:"config"`
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	result, err := loadConfig()
	if err != nil {
		return err
	}

	resp := ConfigShowResponse{
		ConfigPath:   result.ConfigPath,
		UsedDefaults: result.UsedDefaults,
		EnvOverrides: activeEnvOverrides(),
		Config:       result.Config,
	}

	out := cmd.OutOrStdout()
	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	case "human":
		return outputConfigHuman(out, resp)
	default:
		return fmt.Errorf("unsupported format: %s", configFormat)
	}
}

func activeEnvOverrides() []config.EnvOverride {
	var active []config.EnvOverride
	for _, e := range config.SupportedEnv() {
		if _, ok := os.LookupEnv(e.Name); ok {
			active = append(active, e)
		}
	}
	return active
}

func outputConfigHuman(w io.Writer, resp ConfigShowResponse) error {
	fmt.Fprintln(w, "qsar Configuration")
	fmt.Fprintln(w, strings.Repeat("─", 50))
	if resp.UsedDefaults {
		fmt.Fprintln(w, "Source: built-in defaults")
	} else {
		fmt.Fprintf(w, "Source: %s\n", resp.ConfigPath)
	}
	if len(resp.EnvOverrides) > 0 {
		fmt.Fprintln(w, "Environment overrides:")
		for _, e := range resp.EnvOverrides {
			fmt.Fprintf(w, "  %s -> %s\n", e.Name, e.Key)
		}
	}
	fmt.Fprintln(w)

	// Flatten through JSON so keys match the config file
	data, err := json.Marshal(resp.Config)
	if err != nil {
		return err
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return err
	}
	flat := map[string]string{}
	flatten("", tree, flat)

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-28s %s\n", k, flat[k])
	}
	return nil
}

func flatten(prefix string, v interface{}, out map[string]string) {
	m, ok := v.(map[string]interface{})
	if !ok {
		out[prefix] = fmt.Sprint(v)
		return
	}
	for k, child := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		flatten(key, child, out)
	}
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := "qsar.toml"
	if len(args) == 1 {
		path = args[0]
	}

	format := configInitFormat
	if format == "" {
		format = config.FormatFromPath(path)
	}
	cfg := config.DefaultConfig()

	if path == "-" {
		data, err := cfg.Marshal(format)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	if _, err := os.Stat(path); err == nil && !configInitForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	data, err := cfg.Marshal(format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
	return nil
}

func runConfigEnv(cmd *cobra.Command, args []string) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Supported environment variables:")
	for _, e := range config.SupportedEnv() {
		fmt.Fprintf(out, "  %-28s %s\n", e.Name, e.Key)
	}
}
