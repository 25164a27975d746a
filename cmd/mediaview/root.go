package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thesyncim/mediaview/internal/conf"
	"github.com/thesyncim/mediaview/internal/logging"
)

// app carries state shared by every subcommand.
type app struct {
	viper      *viper.Viper
	configPath string
	settings   *conf.Settings
	logger     *slog.Logger
}

// RootCommand creates and returns the root command.
func RootCommand() *cobra.Command {
	a := &app{viper: conf.New()}

	rootCmd := &cobra.Command{
		Use:           "mediaview",
		Short:         "Letterboxing media element host",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Path to config file (default: ./config.yaml)")
	flags.Bool("debug", false, "Enable debug logging")
	flags.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (text or json)")
	bindFlags(a.viper, flags, map[string]string{
		"debug":      "debug",
		"log.level":  "log-level",
		"log.format": "log-format",
	})

	rootCmd.AddCommand(
		playCommand(a),
		configCommand(a),
		devicesCommand(a),
	)
	return rootCmd
}

func (a *app) initialize() error {
	settings, err := conf.Load(a.viper, a.configPath)
	if err != nil {
		return err
	}
	level := settings.Log.Level
	if settings.Debug {
		level = "debug"
	}
	logger, err := logging.Init(os.Stderr, settings.Log.Format, level)
	if err != nil {
		return fmt.Errorf("error initializing logging: %w", err)
	}
	a.settings = settings
	a.logger = logger
	return nil
}
