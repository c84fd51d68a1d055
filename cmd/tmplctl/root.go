package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// cliConfig is read from tmplctl.yaml and TMPLCTL_* environment variables.
type cliConfig struct {
	DatabaseURL    string            `mapstructure:"database_url"`
	OrganizationID string            `mapstructure:"organization_id"`
	Values         map[string]string `mapstructure:"values"`
}

type cli struct {
	v       *viper.Viper
	cfgFile string
	cfg     cliConfig
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:           "tmplctl",
		Short:         "Inspect, render, import and export email templates",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig(cmd)
		},
	}
	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default: ./tmplctl.yaml)")
	root.PersistentFlags().String("database-url", "", "PostgreSQL connection string")
	_ = c.v.BindPFlag("database_url", root.PersistentFlags().Lookup("database-url"))

	root.AddCommand(
		c.extractCmd(),
		c.renderCmd(),
		c.importCmd(),
		c.exportCmd(),
		c.catalogCmd(),
	)
	return root
}

func (c *cli) loadConfig(cmd *cobra.Command) error {
	v := c.v
	v.SetEnvPrefix("TMPLCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database_url")
	_ = v.BindEnv("organization_id")

	if c.cfgFile != "" {
		v.SetConfigFile(c.cfgFile)
	} else {
		v.SetConfigName("tmplctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/tmplctl")
	}

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return fmt.Errorf("reading config: %w", err)
		}
	} else {
		fmt.Fprintf(cmd.ErrOrStderr(), "Using config file: %s\n", v.ConfigFileUsed())
	}

	if err := v.Unmarshal(&c.cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if path := v.ConfigFileUsed(); path != "" {
		values, err := readValues(path)
		if err != nil {
			return err
		}
		c.cfg.Values = values
	}
	return nil
}

// readValues decodes the values section straight from the file. Viper folds
// keys to lower case and placeholder names are case-sensitive.
func readValues(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var doc struct {
		Values map[string]string `yaml:"values"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parsing config values: %w", err)
	}
	return doc.Values, nil
}

func (c *cli) databaseURL() (string, error) {
	if c.cfg.DatabaseURL == "" {
		return "", errors.New("database url missing: set --database-url, TMPLCTL_DATABASE_URL or database_url in tmplctl.yaml")
	}
	return c.cfg.DatabaseURL, nil
}
