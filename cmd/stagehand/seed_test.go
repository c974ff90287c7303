package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eringen/stagehand/config"
	"github.com/eringen/stagehand/editor"
	"github.com/eringen/stagehand/store"
)

const sampleSeed = `
sections:
  hero:
    layout: layout-1
    image: /public/uploads/hero.jpg
    content:
      title: Welcome
      subtitle: Since 1998
  contact:
    content:
      email: hello@example.org
`

func TestParseSeed(t *testing.T) {
	f, err := parseSeed(strings.NewReader(sampleSeed))
	require.NoError(t, err)
	require.Len(t, f.Sections, 2)
	assert.Equal(t, "layout-1", f.Sections["hero"].Layout)
	assert.Equal(t, "Welcome", f.Sections["hero"].Content["title"])
	assert.Empty(t, f.Sections["contact"].Layout)
}

func TestParseSeedRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown layout", "sections:\n  hero:\n    layout: layout-9\n"},
		{"unknown field", "sections:\n  hero:\n    colour: red\n"},
		{"not yaml", "sections: [unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSeed(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestApplySeedStagesFirstWritesAsPublished(t *testing.T) {
	db, err := store.Open("sqlite", filepath.Join(t.TempDir(), "seed.db"))
	require.NoError(t, err)
	defer db.Close()
	ed := editor.New(db, nil)
	ctx := context.Background()

	f, err := parseSeed(strings.NewReader(sampleSeed))
	require.NoError(t, err)
	n, err := applySeed(ctx, ed, f, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	l, err := ed.Layouts.Get(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, editor.LayoutDefault, l.Published)

	values, err := ed.Content.Section(ctx, "contact", editor.Published)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"email": "hello@example.org"}, values)

	img, ok, err := ed.Images.Active(ctx, "hero", editor.Staging)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/public/uploads/hero.jpg", img.URL)

	// Layouts and content are created published; the new image is staged.
	pending, err := ed.Aggregator.Unpublished(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"hero"}, pending.Sorted())

	// Re-applying the same document changes nothing.
	_, err = applySeed(ctx, ed, f, zap.NewNop())
	require.NoError(t, err)
	pending, err = ed.Aggregator.Unpublished(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"hero"}, pending.Sorted())
}

func TestSiteConfigMapping(t *testing.T) {
	c := &config.Config{}
	c.Site.Name = "Harbour Trust"
	c.Site.Sections = []string{"hero", "contact"}
	c.Server.Addr = ":8080"
	c.Database.Driver = "postgres"
	c.Database.DSN = "postgres://localhost/stagehand"
	c.Admin.Password = "secret"
	c.Storage.URLPrefix = "/media"

	sc := siteConfig(c)
	assert.Equal(t, "Harbour Trust", sc.Name)
	assert.Equal(t, []string{"hero", "contact"}, sc.Sections)
	assert.Equal(t, ":8080", sc.Addr)
	assert.Equal(t, "postgres", sc.DatabaseDriver)
	assert.Equal(t, "secret", sc.AdminPassword)
	assert.Equal(t, "/media", sc.StaticURLPrefix)
}
