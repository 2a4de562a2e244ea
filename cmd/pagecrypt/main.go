package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/guided-traffic/pagecrypt/internal/config"
	"github.com/guided-traffic/pagecrypt/internal/monitoring"
	"github.com/guided-traffic/pagecrypt/internal/pipeline"
)

var (
	// Build information injected at build time
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"

	settingsFile string
	rootCmd      = &cobra.Command{
		Use:   "pagecrypt [site-dir | config.json]",
		Short: "pagecrypt encrypts selected fragments of generated HTML pages",
		Long: `pagecrypt runs after a static site generator and encrypts the parts of each
page selected by the rules in encrypted.json. Each fragment is encrypted with
AES-256-CBC under a PBKDF2-SHA256 key derived from its password, replaced by a
placeholder, and the payloads plus a small browser decryptor are injected into
the page's <head>.

The argument is the site directory (containing encrypted.json) or the path of
a .json config file. Without an argument ./encrypted.json is used. The config
file is deleted after a fully successful run unless --keep-config is given.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runEncrypt,
	}
)

func init() {
	cobra.OnInitialize(initSettings)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&settingsFile, "settings", "", "path to settings file (default ./.pagecrypt.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text or json)")
	rootCmd.Flags().Int("workers", 1, "number of articles processed concurrently")
	rootCmd.Flags().Bool("keep-config", false, "do not delete the encryption config after a successful run")
	rootCmd.Flags().Bool("force", false, "re-encrypt pages that already contain encrypted data")
	rootCmd.Flags().Bool("strict", false, "reject unknown keys in the encryption config")
	rootCmd.Flags().String("metrics-file", "", "write run metrics in Prometheus text format to this file")

	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log_format", flags.Lookup("log-format"))
	_ = viper.BindPFlag("workers", rootCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("keep_config", rootCmd.Flags().Lookup("keep-config"))
	_ = viper.BindPFlag("force", rootCmd.Flags().Lookup("force"))
	_ = viper.BindPFlag("strict", rootCmd.Flags().Lookup("strict"))
	_ = viper.BindPFlag("metrics_file", rootCmd.Flags().Lookup("metrics-file"))

	rootCmd.AddCommand(newEncryptCmd(), newDecryptCmd(), newGenpassCmd(), newVersionCmd())
}

func initSettings() {
	config.InitSettings(settingsFile)
}

// configureLogging applies level and format to the standard logrus logger
func configureLogging(s *config.Settings) {
	level, err := logrus.ParseLevel(s.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if s.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func runEncrypt(cmd *cobra.Command, args []string) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}
	configureLogging(settings)

	logrus.WithFields(logrus.Fields{
		"version":   version,
		"commit":    commit,
		"buildTime": buildTime,
	}).Debug("pagecrypt build information")

	fs := afero.NewOsFs()

	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	configPath, err := config.ResolveConfigPath(fs, arg)
	if err != nil {
		return err
	}

	cfg, err := config.LoadEncryptionConfig(fs, configPath, settings.Strict)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"config":       configPath,
		"generated_at": cfg.GeneratedAt,
		"articles":     len(cfg.Articles),
	}).Info("Loaded encryption config")

	metrics := monitoring.NewMetrics()
	p, err := pipeline.New(fs, cfg, pipeline.Options{
		Workers: settings.Workers,
		Force:   settings.Force,
		Metrics: metrics,
		Logger:  logrus.NewEntry(logrus.StandardLogger()),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := p.Run(ctx)
	if err != nil {
		return fmt.Errorf("encryption run aborted: %w", err)
	}

	if settings.MetricsFile != "" {
		if err := metrics.WriteTextfile(settings.MetricsFile); err != nil {
			logrus.WithError(err).WithField("path", settings.MetricsFile).Warn("Failed to write metrics file")
		}
	}

	switch {
	case !report.AllSucceeded():
		logrus.WithField("config", configPath).Warn("Some articles were not encrypted, keeping the encryption config")
	case settings.KeepConfig:
		logrus.WithField("config", configPath).Info("Keeping the encryption config")
	default:
		if err := fs.Remove(configPath); err != nil {
			logrus.WithError(err).WithField("config", configPath).Warn("Failed to delete the encryption config")
		} else {
			logrus.WithField("config", configPath).Info("Deleted the encryption config")
		}
	}

	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
