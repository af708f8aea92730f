package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ragcore/internal/config"
)

var (
	configDir string
	envName   string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "ragcore",
	Short: "Agentic retrieval engine over local knowledge bases",
	Long: `ragcore answers questions against locally indexed knowledge bases by
fusing vector, keyword and graph retrieval under an LLM agent loop.

Configuration is read from the config directory (YAML or JSON, layered
by environment) with environment variable overrides on top.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config-dir", "c", "", `configuration directory (default "config")`)
	rootCmd.PersistentFlags().StringVarP(&envName, "env", "e", "", "environment to load (development/staging/production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig resolves the environment from the --env flag, falling back
// to the ENVIRONMENT variable, then loads the layered configuration.
func loadConfig() (*config.Config, error) {
	env := config.Development
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		env = config.Environment(strings.ToLower(v))
	}
	if envName != "" {
		env = config.Environment(strings.ToLower(envName))
	}
	dir := configDir
	if dir == "" {
		dir = os.Getenv("CONFIG_DIR")
	}
	return config.NewLoader(dir, env).Load()
}
