package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/knightshock/internal/config"
)

var (
	configPath string
	logLevel   string
	logFormat  string
	cfg        *config.Config
	log        = logrus.New()

	rootCmd = &cobra.Command{
		Use:   "knightshock",
		Short: "Shock-tube ignition-delay toolkit",
		Long: `knightshock runs constant-volume and constant-pressure reactor sweeps to
map ignition delay times, inverts multi-wavelength absorbance records to
species mole fractions, and sizes shock-tube driver fill pressures.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = loadConfig(); err != nil {
				return err
			}
			return setupLogging(log, cfg.General, logLevel, logFormat)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides general.log_level)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json (overrides general.log_format)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

// setupLogging applies level and formatter, flags taking precedence
func setupLogging(l *logrus.Logger, general config.GeneralConfig, level, format string) error {
	if level == "" {
		level = general.LogLevel
	}
	if format == "" {
		format = general.LogFormat
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.SetLevel(lvl)
	l.SetOutput(os.Stderr)

	switch format {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", format)
	}
	return nil
}
