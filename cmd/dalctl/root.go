package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/config"
)

type RootOptions struct {
	ConfigFile string
	Schema     string
	Entity     string
	Filter     string

	viper *viper.Viper
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{viper: config.New()}

	cmd := &cobra.Command{
		Use:          "dalctl",
		Short:        "Inspect and run filters of the data-access layer",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (settings may also come from DAL_* variables)")
	cmd.PersistentFlags().StringVar(&opts.Schema, "schema", "schema.json", "entity registry as JSON")
	cmd.PersistentFlags().StringVar(&opts.Entity, "entity", "", "entity the filter applies to")
	cmd.PersistentFlags().StringVar(&opts.Filter, "filter", "", "filter file with predicates and connectors, - for stdin")
	cmd.PersistentFlags().String("backend", "", "backend: postgres or mongodb")
	_ = cmd.MarkPersistentFlagRequired("entity")
	_ = opts.viper.BindPFlag("backend", cmd.PersistentFlags().Lookup("backend"))

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewCountCommand(opts))
	return cmd
}

func (o *RootOptions) config() (config.Config, error) {
	return config.Load(o.viper, o.ConfigFile)
}

func newLogger(cfg config.Config) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(cfg.LogLevel()).
		With().Timestamp().Logger()
}
