package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	configPath string
	logLevel   string
	cfg        config

	log = logrus.New()

	rootCmd = &cobra.Command{
		Use:   "cellz",
		Short: "Typed CSV cell conversion and validation",
		Long: `cellz converts CSV cells to typed values and back using per-column
processing chains declared in a YAML or TOML schema.

Check files against a schema, inspect the chains a schema compiles to,
or rewrite a file in the schema's canonical output format.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Disable default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Defaults file (.toml, .yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	// Add commands
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(formatCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	log.SetOutput(cmd.ErrOrStderr())

	if configPath != "" {
		c, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = *c
	}

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	if level == "" {
		level = "warn"
	}
	l, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(l)
	return nil
}
