package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eringen/stagehand"
	"github.com/eringen/stagehand/config"
	"github.com/eringen/stagehand/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the public site, admin editor and editor API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireServer(); err != nil {
			return err
		}
		app := stagehand.New(siteConfig(cfg), stagehand.DefaultViews(),
			stagehand.WithLogger(logger),
			stagehand.WithStaticDir(cfg.Storage.StaticDir))
		defer app.Close()
		return app.Run(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations to the configured database",
	Long: `Apply the embedded Postgres migrations. SQLite databases create their
schema on open, so for them this only verifies the file can be opened.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch strings.ToLower(cfg.Database.Driver) {
		case "postgres", "postgresql", "pgx":
			changed, err := store.Migrate(cmd.Context(), cfg.Database.DSN)
			if err != nil {
				return err
			}
			if !changed {
				fmt.Fprintln(cmd.OutOrStdout(), "no migrations to apply")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		default:
			db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "sqlite schema ready at %s\n", cfg.Database.DSN)
			return nil
		}
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List sections with unpublished changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ed, closeStore, err := openEditor()
		if err != nil {
			return err
		}
		defer closeStore()

		pending, err := ed.Aggregator.Unpublished(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(pending) == 0 {
			fmt.Fprintln(out, "everything is published")
			return nil
		}
		for _, s := range pending.Sorted() {
			fmt.Fprintln(out, s)
		}
		return nil
	},
}

var publishSections []string

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish all staged changes",
	Long: `Publish layouts of the given sections (every pending section by default)
and all staged images and content. Rows that fail are reported and skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ed, closeStore, err := openEditor()
		if err != nil {
			return err
		}
		defer closeStore()

		ctx := cmd.Context()
		sections := publishSections
		if len(sections) == 0 {
			pending, err := ed.Aggregator.Unpublished(ctx)
			if err != nil {
				return err
			}
			sections = pending.Sorted()
		}
		report, err := ed.Publisher.PublishAll(ctx, sections)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "published %d layouts, %d images, %d content items\n", report.Layouts, report.Images, report.Content)
		for _, f := range report.Failures {
			fmt.Fprintf(out, "failed: %s %s: %v\n", f.Table, f.Key, f.Err)
		}
		if len(report.Remaining) > 0 {
			fmt.Fprintf(out, "still unpublished: %s\n", strings.Join(report.Remaining, ", "))
		}
		if report.Partial() {
			return fmt.Errorf("%d rows failed to publish", len(report.Failures))
		}
		return nil
	},
}

var cleanupImagesCmd = &cobra.Command{
	Use:   "cleanup-images",
	Short: "Remove duplicate image rows, keeping the earliest per section and URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		ed, closeStore, err := openEditor()
		if err != nil {
			return err
		}
		defer closeStore()

		n, err := ed.Images.CleanupDuplicates(cmd.Context())
		if err != nil {
			return err
		}
		logger.Info("image cleanup finished", zap.Int("removed", n))
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d duplicate image rows\n", n)
		return nil
	},
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Describe the environment variables stagehand reads",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(cmd.OutOrStdout(), config.Usage())
		return nil
	},
}

func init() {
	publishCmd.Flags().StringSliceVarP(&publishSections, "section", "s", nil, "Sections whose layouts to publish (default: all pending)")
}
