package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/eringen/stagehand/editor"
)

// seedFile is the document read by the seed command:
//
//	sections:
//	  hero:
//	    layout: layout-2
//	    image: /public/uploads/hero.jpg
//	    content:
//	      title: Welcome
type seedFile struct {
	Sections map[string]seedSection `yaml:"sections"`
}

type seedSection struct {
	Layout  string            `yaml:"layout"`
	Image   string            `yaml:"image"`
	Content map[string]string `yaml:"content"`
}

func parseSeed(r io.Reader) (seedFile, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return seedFile{}, fmt.Errorf("parse seed: %w", err)
	}
	for name, s := range f.Sections {
		if s.Layout == "" {
			continue
		}
		if _, err := editor.ParseLayout(s.Layout); err != nil {
			return seedFile{}, fmt.Errorf("section %s: %w", name, err)
		}
	}
	return f, nil
}

// applySeed stages every value in f. Sections are applied in name order so
// repeated runs log identically.
func applySeed(ctx context.Context, ed *editor.Editor, f seedFile, log *zap.Logger) (int, error) {
	names := make([]string, 0, len(f.Sections))
	for name := range f.Sections {
		names = append(names, name)
	}
	sort.Strings(names)

	writes := 0
	for _, name := range names {
		s := f.Sections[name]
		if s.Layout != "" {
			if _, err := ed.Layouts.Set(ctx, name, editor.Layout(s.Layout)); err != nil {
				return writes, err
			}
			writes++
		}
		if s.Image != "" {
			if _, err := ed.Images.SelectForSection(ctx, name, s.Image); err != nil {
				return writes, err
			}
			writes++
		}
		keys := make([]string, 0, len(s.Content))
		for k := range s.Content {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, err := ed.Content.Set(ctx, name, k, s.Content[k]); err != nil {
				return writes, err
			}
			writes++
		}
		log.Debug("seeded section", zap.String("section", name))
	}
	return writes, nil
}

var seedPublish bool

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Stage layouts, images and content from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fh, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer fh.Close()
		f, err := parseSeed(fh)
		if err != nil {
			return err
		}

		ed, closeStore, err := openEditor()
		if err != nil {
			return err
		}
		defer closeStore()

		ctx := cmd.Context()
		n, err := applySeed(ctx, ed, f, logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "staged %d values across %d sections\n", n, len(f.Sections))

		if !seedPublish {
			return nil
		}
		pending, err := ed.Aggregator.Unpublished(ctx)
		if err != nil {
			return err
		}
		report, err := ed.Publisher.PublishAll(ctx, pending.Sorted())
		if err != nil {
			return err
		}
		if report.Partial() {
			return fmt.Errorf("%d rows failed to publish", len(report.Failures))
		}
		fmt.Fprintln(cmd.OutOrStdout(), "published")
		return nil
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedPublish, "publish", false, "Publish everything after staging")
}
