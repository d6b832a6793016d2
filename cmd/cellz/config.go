package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zoobzio/cellz/schema"
)

// config holds defaults that flags override.
type config struct {
	LogLevel       string `yaml:"log_level" toml:"log_level"`
	Header         *bool  `yaml:"header" toml:"header"`
	SkipValidation bool   `yaml:"skip_validation" toml:"skip_validation"`
	Report         string `yaml:"report" toml:"report"`
}

func loadConfig(path string) (*config, error) {
	f, err := schema.FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var c config
	switch f {
	case schema.FormatTOML:
		if _, err := toml.Decode(string(data), &c); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	return &c, nil
}

// schemaFlags are shared by every command that compiles a schema.
type schemaFlags struct {
	path           string
	header         bool
	skipValidation bool
}

func (f *schemaFlags) register(cmd *cobra.Command, withSkip bool) {
	cmd.Flags().StringVarP(&f.path, "schema", "s", "", "Schema file (.yaml, .yml, .toml)")
	cmd.Flags().BoolVar(&f.header, "header", false, "Files start with a header row")
	if withSkip {
		cmd.Flags().BoolVar(&f.skipValidation, "skip-validation", false, "Leave constraint stages out of output chains")
	}
	_ = cmd.MarkFlagRequired("schema") //nolint:errcheck
}

// compile loads the schema and applies header overrides from flags and
// config, flags first.
func (f *schemaFlags) compile(cmd *cobra.Command) (*schema.Registry, error) {
	s, err := schema.LoadFile(f.path)
	if err != nil {
		return nil, err
	}
	switch {
	case cmd.Flags().Changed("header"):
		s.Header = f.header
	case cfg.Header != nil:
		s.Header = *cfg.Header
	}
	return schema.Compile(s)
}

func (f *schemaFlags) skip(cmd *cobra.Command) bool {
	if cmd.Flags().Changed("skip-validation") {
		return f.skipValidation
	}
	return cfg.SkipValidation
}
