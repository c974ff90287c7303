// Command stagehand serves the site and editor API and runs maintenance
// tasks against the content store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eringen/stagehand"
	"github.com/eringen/stagehand/config"
	"github.com/eringen/stagehand/editor"
	"github.com/eringen/stagehand/store"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "stagehand",
	Short:         "Staged content editing backend for a small organisation's website",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = newLogger(verbose || cfg.Debug)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func newLogger(debug bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if debug {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zc.Build()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("STAGEHAND_CONFIG"), "YAML config file (env STAGEHAND_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(cleanupImagesCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(envCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// siteConfig maps the loaded configuration onto the app's settings.
func siteConfig(c *config.Config) stagehand.SiteConfig {
	return stagehand.SiteConfig{
		Name:            c.Site.Name,
		URL:             c.Site.URL,
		Description:     c.Site.Description,
		Sections:        c.Site.Sections,
		Addr:            c.Server.Addr,
		DatabaseDriver:  c.Database.Driver,
		DatabaseDSN:     c.Database.DSN,
		AdminPassword:   c.Admin.Password,
		SessionSecret:   c.Admin.SessionSecret,
		CookieSecure:    c.Admin.CookieSecure,
		AllowedOrigins:  c.Server.AllowedOrigins,
		SectionCacheTTL: c.Server.CacheTTL,
		StaticURLPrefix: c.Storage.URLPrefix,
	}
}

// openEditor opens the configured store and wraps it in an editor. The
// returned func closes the store.
func openEditor() (*editor.Editor, func(), error) {
	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	ed := editor.New(db, nil, editor.WithLogger(logger.Named("editor")))
	return ed, func() { db.Close() }, nil
}
